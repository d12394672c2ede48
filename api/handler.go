package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jarsa/cfdi-values-service/internal/cfdi"
	"github.com/jarsa/cfdi-values-service/internal/db"
	"github.com/jarsa/cfdi-values-service/internal/models"
	"github.com/jarsa/cfdi-values-service/internal/services"
	"github.com/jarsa/cfdi-values-service/internal/storage"
)

const (
	MaxBodySize = 2 * 1024 * 1024 // 2MB
	Version     = "1.0.0"
)

// Handler handles HTTP requests for fiscal value computation
type Handler struct {
	config    *models.Config
	builder   *cfdi.Builder
	validator *services.ValueSetValidator
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, builder *cfdi.Builder) *Handler {
	return &Handler{
		config:    config,
		builder:   builder,
		validator: services.NewValueSetValidator(),
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Main endpoint
	router.HandleFunc("/api/cfdi/values", h.BuildValues).Methods("POST")

	// Computed document CRUD
	router.HandleFunc("/api/cfdi/documents", h.GetDocuments).Methods("GET")
	router.HandleFunc("/api/cfdi/document/{id}", h.GetDocument).Methods("GET")
	router.HandleFunc("/api/cfdi/document/{id}", h.DeleteDocument).Methods("DELETE")

	// Value-added recompute
	router.HandleFunc("/api/cfdi/line/value-added", h.ValueAdded).Methods("PUT")

	// Statistics
	router.HandleFunc("/api/stats", h.GetStats).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	Database  ServiceStatus `json:"database"`
	Storage   ServiceStatus `json:"storage"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Database: h.checkDatabase(),
		Storage:  h.checkStorage(),
	}

	// The builder works without db/storage, so they only degrade the
	// status, never fail it.
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// checkDatabase verifies the connection pool is up
func (h *Handler) checkDatabase() ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{
			Available: false,
			Error:     "database pool not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL via PgBouncer",
	}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if storage.Client == nil {
		return ServiceStatus{
			Available: false,
			Error:     "storage client not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "MinIO S3",
	}
}

// BuildValues computes the fiscal value set of one invoice. When the
// database and archive are configured the result is persisted for the
// stamping pipeline; otherwise it is only returned.
func (h *Handler) BuildValues(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	var req models.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	vals, err := h.builder.Build(ctx, &req.Invoice, req.Lines)
	if err != nil {
		h.sendError(w, buildStatusCode(err), err.Error())
		return
	}

	validation := h.validator.Validate(vals)
	if !validation.Valid {
		// The builder guarantees these invariants; a failure here is a
		// bug worth surfacing, not a client error.
		fmt.Printf("Warning: computed value set failed validation for %s\n", req.Invoice.Name)
	}

	resp := models.BuildResponse{
		Success:       true,
		Values:        vals,
		Validation:    validation,
		TotalDuration: time.Since(start).Seconds(),
	}

	// Persist for the stamping pipeline when the database is up.
	if db.Pool != nil {
		doc := documentFromValues(&req.Invoice, vals)

		payload, _ := json.Marshal(vals)
		doc.ValuesJSON = string(payload)
		doc.ID = uuid.New()

		if storage.Client != nil {
			url, err := storage.ArchiveValueSet(ctx, req.Invoice.Name, doc.ID.String(), payload)
			if err != nil {
				// Archive is best effort, the computation already succeeded.
				fmt.Printf("Warning: failed to archive value set: %v\n", err)
			} else {
				doc.ArchiveURL = url
			}
		}

		if err := db.SaveFiscalDocument(ctx, doc); err != nil {
			fmt.Printf("Warning: failed to persist fiscal document: %v\n", err)
		} else {
			resp.DocumentID = doc.ID.String()
			resp.ArchiveURL = doc.ArchiveURL
		}
	}

	resp.TotalDuration = time.Since(start).Seconds()
	json.NewEncoder(w).Encode(resp)
}

func documentFromValues(inv *cfdi.Invoice, vals *cfdi.FiscalValueSet) *db.FiscalDocument {
	return &db.FiscalDocument{
		InvoiceID:           inv.ID,
		InvoiceName:         inv.Name,
		DocumentType:        vals.DocumentType,
		CFDIDate:            vals.CFDIDate,
		Currency:            vals.CurrencyName,
		TotalWoDiscount:     vals.TotalAmountUntaxedWoDiscount,
		TotalDiscount:       vals.TotalAmountUntaxedDiscount,
		TotalTaxTransferred: vals.TotalTaxTransferred,
		TotalTaxWithholding: vals.TotalTaxWithholding,
		ExternalTrade:       vals.ExternalTrade != nil,
	}
}

// buildStatusCode maps builder sentinels to HTTP status codes.
func buildStatusCode(err error) int {
	switch {
	case errors.Is(err, cfdi.ErrInvalidLineData):
		return http.StatusBadRequest
	case errors.Is(err, cfdi.ErrMissingRate), errors.Is(err, cfdi.ErrConfiguration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// GetDocuments returns the latest computed documents
func (h *Handler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	docs, err := db.GetFiscalDocuments(r.Context(), limit)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to fetch documents: "+err.Error())
		return
	}
	if docs == nil {
		docs = []db.FiscalDocument{}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   true,
		"documents": docs,
		"count":     len(docs),
	})
}

// GetDocument returns one computed document with its full value set
// and a presigned archive URL when available
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := db.GetFiscalDocumentByID(r.Context(), id)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "document not found")
		return
	}

	downloadURL := ""
	if storage.Client != nil && doc.ArchiveURL != "" {
		if url, err := storage.GetPresignedURL(r.Context(), doc.ArchiveURL); err == nil {
			downloadURL = url
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"document":    doc,
		"downloadUrl": downloadURL,
	})
}

// DeleteDocument removes a computed document and its archived copy
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := db.GetFiscalDocumentByID(r.Context(), id)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "document not found")
		return
	}

	if err := db.DeleteFiscalDocument(r.Context(), id); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to delete document: "+err.Error())
		return
	}

	if storage.Client != nil && doc.ArchiveURL != "" {
		if err := storage.DeleteArchive(r.Context(), doc.ArchiveURL); err != nil {
			fmt.Printf("Warning: failed to delete archived value set: %v\n", err)
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"deleted": id,
	})
}

// ValueAdded recomputes the value-added figure of one line
func (h *Handler) ValueAdded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req models.ValueAddedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	line := &cfdi.InvoiceLine{}
	line.SetPriceSubtotal(req.PriceSubtotal)
	line.SetRawMaterial(req.RawMaterial)

	json.NewEncoder(w).Encode(models.ValueAddedResponse{
		PriceSubtotal: line.PriceSubtotal,
		RawMaterial:   line.RawMaterial,
		ValueAdded:    line.ValueAdded,
	})
}

// GetStats returns monthly document counts and tax totals
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	months := 6
	if m := r.URL.Query().Get("months"); m != "" {
		if parsed, err := strconv.Atoi(m); err == nil && parsed > 0 && parsed <= 24 {
			months = parsed
		}
	}

	stats, err := db.GetStats(r.Context(), months)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to fetch stats: "+err.Error())
		return
	}
	if stats == nil {
		stats = []db.MonthlyStats{}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

// sendError writes a JSON error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
