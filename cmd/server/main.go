package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jarsa/cfdi-values-service/api"
	"github.com/jarsa/cfdi-values-service/internal/auth"
	"github.com/jarsa/cfdi-values-service/internal/cfdi"
	"github.com/jarsa/cfdi-values-service/internal/db"
	"github.com/jarsa/cfdi-values-service/internal/models"
	"github.com/jarsa/cfdi-values-service/internal/rates"
	"github.com/jarsa/cfdi-values-service/internal/storage"
)

func main() {
	// Load .env if present (local development)
	godotenv.Load()

	// Initialize JWT
	if err := auth.Init(); err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	log.Println("JWT authentication initialized")

	// Initialize database connection pool
	if err := db.Init(); err != nil {
		log.Printf("Warning: Database not available: %v", err)
		log.Println("Running in compute-only mode (no persistence)")
	} else {
		defer db.Close()
		log.Println("Database connection pool initialized")
	}

	// Initialize MinIO storage
	if err := storage.Init(); err != nil {
		log.Printf("Warning: MinIO storage not available: %v", err)
		log.Println("Value sets will not be archived")
	} else {
		log.Println("MinIO storage initialized")
	}

	// Load configuration
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Wire the fiscal value builder
	builder := newBuilder(config)

	// Create API handler
	handler := api.NewHandler(config, builder)
	router := handler.SetupRoutes()

	// Add login endpoint
	router.HandleFunc("/api/login", auth.LoginHandler).Methods("POST")

	// Wrap router with JWT middleware (skips /health and /api/login)
	protectedRouter := auth.JWTMiddleware(router)

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Printf("Starting CFDI Values Service v%s on %s", api.Version, addr)
	log.Printf("Domestic country: %s", config.Fiscal.DomesticCountryCode)
	log.Printf("Database: %v", db.Pool != nil)
	log.Printf("Storage: %v", storage.Client != nil)
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/api/login                   - Authenticate", addr)
	log.Printf("  POST http://%s/api/cfdi/values             - Compute fiscal values (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/cfdi/documents          - List computed documents (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/cfdi/document/{id}      - Get single document (requires JWT)", addr)
	log.Printf("  DELETE http://%s/api/cfdi/document/{id}    - Delete document (requires JWT)", addr)
	log.Printf("  PUT  http://%s/api/cfdi/line/value-added   - Recompute value added (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/stats                   - Monthly stats (requires JWT)", addr)
	log.Printf("  GET  http://%s/health                      - Health check", addr)

	if err := http.ListenAndServe(addr, protectedRouter); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// newBuilder wires the computation core with its collaborators. The
// rate provider and country catalog degrade gracefully without a
// database; rate lookups then fail with a missing-rate error, which
// only matters for fully discounted or external-trade invoices.
func newBuilder(config *models.Config) *cfdi.Builder {
	ttl := time.Duration(config.Fiscal.RateCacheTTLHours) * time.Hour
	rateProvider := rates.NewProvider(rates.NewPGStore(db.GetPool()), ttl)
	catalog := db.NewCountryCatalog(config.Fiscal.DomesticCountryCode)

	return cfdi.NewBuilder(
		cfdi.EmbeddedCommonValues{},
		nil, // default line value provider
		rateProvider,
		catalog,
		cfdi.Config{ExporterRegistration: config.Fiscal.ExporterRegistration},
	)
}

func loadConfig(path string) (*models.Config, error) {
	// Read config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var config models.Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables if present
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if code := os.Getenv("DOMESTIC_COUNTRY_CODE"); code != "" {
		config.Fiscal.DomesticCountryCode = code
	}
	if reg := os.Getenv("EXPORTER_REGISTRATION"); reg != "" {
		config.Fiscal.ExporterRegistration = reg
	}

	if config.Fiscal.DomesticCountryCode == "" {
		config.Fiscal.DomesticCountryCode = "MEX"
	}

	return &config, nil
}
