package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jarsa/cfdi-values-service/internal/cfdi"
	"github.com/jarsa/cfdi-values-service/internal/models"
)

func TestBuildStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid line data is a client error", cfdi.ErrInvalidLineData, http.StatusBadRequest},
		{"missing rate is unprocessable", cfdi.ErrMissingRate, http.StatusUnprocessableEntity},
		{"configuration error is unprocessable", cfdi.ErrConfiguration, http.StatusUnprocessableEntity},
		{"anything else is internal", http.ErrBodyNotAllowed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildStatusCode(tt.err); got != tt.want {
				t.Errorf("buildStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValueAddedEndpoint(t *testing.T) {
	h := NewHandler(&models.Config{}, nil)

	body, _ := json.Marshal(models.ValueAddedRequest{
		PriceSubtotal: decimal.RequireFromString("1500"),
		RawMaterial:   decimal.RequireFromString("600"),
	})

	req := httptest.NewRequest(http.MethodPut, "/api/cfdi/line/value-added", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ValueAdded(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp models.ValueAddedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if !resp.ValueAdded.Equal(decimal.RequireFromString("900")) {
		t.Errorf("ValueAdded = %s, want 900", resp.ValueAdded)
	}
}
