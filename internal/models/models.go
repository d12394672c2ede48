package models

import (
	"github.com/shopspring/decimal"

	"github.com/jarsa/cfdi-values-service/internal/cfdi"
	"github.com/jarsa/cfdi-values-service/internal/services"
)

// BuildRequest is the input for fiscal value computation
type BuildRequest struct {
	Invoice cfdi.Invoice        `json:"invoice"`
	Lines   []*cfdi.InvoiceLine `json:"lines"`
}

// BuildResponse is the output of fiscal value computation
type BuildResponse struct {
	Success    bool                       `json:"success"`
	Values     *cfdi.FiscalValueSet       `json:"values,omitempty"`
	Validation *services.ValidationResult `json:"validation,omitempty"`
	DocumentID string                     `json:"documentId,omitempty"`
	ArchiveURL string                     `json:"archiveUrl,omitempty"`
	Error      string                     `json:"error,omitempty"`

	// Processing metadata
	TotalDuration float64 `json:"totalDuration"` // seconds
}

// ValueAddedRequest recomputes the value-added figure of one line
type ValueAddedRequest struct {
	PriceSubtotal decimal.Decimal `json:"priceSubtotal"`
	RawMaterial   decimal.Decimal `json:"rawMaterial"`
}

// ValueAddedResponse carries the recomputed figure
type ValueAddedResponse struct {
	PriceSubtotal decimal.Decimal `json:"priceSubtotal"`
	RawMaterial   decimal.Decimal `json:"rawMaterial"`
	ValueAdded    decimal.Decimal `json:"valueAdded"`
}

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// Fiscal config
	Fiscal FiscalConfig `yaml:"fiscal"`
}

// FiscalConfig represents the fiscal computation parameters
type FiscalConfig struct {
	// DomesticCountryCode is the SAT code of the issuing country
	DomesticCountryCode string `yaml:"domestic_country_code"`

	// ExporterRegistration is attached to external-trade documents for
	// regional-bloc customers
	ExporterRegistration string `yaml:"exporter_registration"`

	// RateCacheTTLHours controls how long currency rates are cached
	RateCacheTTLHours int `yaml:"rate_cache_ttl_hours"`
}
