// Package services holds cross-checks that run over computed fiscal
// value sets before they reach the stamping pipeline.
package services

import (
	"github.com/shopspring/decimal"

	"github.com/jarsa/cfdi-values-service/internal/cfdi"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field    string  `json:"field"`
	Code     string  `json:"code"`
	Expected float64 `json:"expected,omitempty"`
	Actual   float64 `json:"actual,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// ValidationWarning represents a non-critical issue
type ValidationWarning struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult is the response from validation
type ValidationResult struct {
	Valid       bool                `json:"valid"`
	NeedsReview bool                `json:"needs_review"`
	Errors      []ValidationError   `json:"errors"`
	Warnings    []ValidationWarning `json:"warnings"`
}

// ValueSetValidator cross-checks a computed value set against the
// arithmetic invariants the builder promises: aggregated tax totals
// equal the per-line contributions, totals equal line sums, and
// zero-value transfer documents really carry no tax.
type ValueSetValidator struct {
	tolerance decimal.Decimal // absolute rounding tolerance
}

// NewValueSetValidator creates a validator with a one-cent tolerance
func NewValueSetValidator() *ValueSetValidator {
	return &ValueSetValidator{tolerance: decimal.RequireFromString("0.01")}
}

// Validate performs all cross-validations on a computed value set
func (v *ValueSetValidator) Validate(vals *cfdi.FiscalValueSet) *ValidationResult {
	result := &ValidationResult{
		Valid:       true,
		NeedsReview: false,
		Errors:      []ValidationError{},
		Warnings:    []ValidationWarning{},
	}

	v.validateTaxTotals(vals, result)
	if vals.DocumentType == cfdi.DocumentTypeTransfer {
		v.validateTransferDocument(vals, result)
	} else {
		v.validateAmountTotals(vals, result)
	}
	v.validateDocumentType(vals, result)

	result.Valid = len(result.Errors) == 0
	result.NeedsReview = len(result.Warnings) > 0

	return result
}

// validateTaxTotals checks each aggregated list total against the sum
// of its entries and against the per-line contributions
func (v *ValueSetValidator) validateTaxTotals(vals *cfdi.FiscalValueSet, result *ValidationResult) {
	sumList := func(details []cfdi.TaxDetail) decimal.Decimal {
		total := decimal.Zero
		for _, tax := range details {
			total = total.Add(tax.Total)
		}
		return total
	}

	perLineTransferred := decimal.Zero
	perLineWithholding := decimal.Zero
	for _, lv := range vals.InvoiceLineValues {
		perLineTransferred = perLineTransferred.Add(sumList(lv.TaxDetailsTransferred))
		perLineWithholding = perLineWithholding.Add(sumList(lv.TaxDetailsWithholding))
	}

	checks := []struct {
		field    string
		total    decimal.Decimal
		expected decimal.Decimal
		code     string
	}{
		{"total_tax_transferred", vals.TotalTaxTransferred, sumList(vals.TaxDetailsTransferred), "tax_total_mismatch"},
		{"total_tax_withholding", vals.TotalTaxWithholding, sumList(vals.TaxDetailsWithholding), "tax_total_mismatch"},
		{"total_tax_transferred", vals.TotalTaxTransferred, perLineTransferred, "tax_line_sum_mismatch"},
		{"total_tax_withholding", vals.TotalTaxWithholding, perLineWithholding, "tax_line_sum_mismatch"},
	}

	for _, c := range checks {
		if c.total.Sub(c.expected).Abs().GreaterThan(v.tolerance) {
			result.Errors = append(result.Errors, ValidationError{
				Field:    c.field,
				Code:     c.code,
				Expected: c.expected.InexactFloat64(),
				Actual:   c.total.InexactFloat64(),
				Message:  "aggregated tax total does not match contributions",
			})
		}
	}
}

// validateAmountTotals checks the discount-related totals against the
// line values
func (v *ValueSetValidator) validateAmountTotals(vals *cfdi.FiscalValueSet, result *ValidationResult) {
	woDiscount := decimal.Zero
	discount := decimal.Zero
	for _, lv := range vals.InvoiceLineValues {
		woDiscount = woDiscount.Add(lv.TotalWoDiscount)
		discount = discount.Add(lv.DiscountAmount)
	}

	if vals.TotalAmountUntaxedWoDiscount.Sub(woDiscount).Abs().GreaterThan(v.tolerance) {
		result.Errors = append(result.Errors, ValidationError{
			Field:    "total_amount_untaxed_wo_discount",
			Code:     "amount_total_mismatch",
			Expected: woDiscount.InexactFloat64(),
			Actual:   vals.TotalAmountUntaxedWoDiscount.InexactFloat64(),
			Message:  "total does not match sum of line values",
		})
	}
	if vals.TotalAmountUntaxedDiscount.Sub(discount).Abs().GreaterThan(v.tolerance) {
		result.Errors = append(result.Errors, ValidationError{
			Field:    "total_amount_untaxed_discount",
			Code:     "amount_total_mismatch",
			Expected: discount.InexactFloat64(),
			Actual:   vals.TotalAmountUntaxedDiscount.InexactFloat64(),
			Message:  "total does not match sum of line discounts",
		})
	}
}

// validateTransferDocument checks the zero-value invariants of a "T"
// document
func (v *ValueSetValidator) validateTransferDocument(vals *cfdi.FiscalValueSet, result *ValidationResult) {
	if len(vals.TaxDetailsTransferred) != 0 || len(vals.TaxDetailsWithholding) != 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "tax_details",
			Code:    "transfer_with_taxes",
			Message: "zero-value transfer document carries tax entries",
		})
	}
	if !vals.TotalTaxTransferred.IsZero() || !vals.TotalTaxWithholding.IsZero() {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "tax_totals",
			Code:    "transfer_with_taxes",
			Message: "zero-value transfer document carries tax totals",
		})
	}
	if !vals.TotalAmountUntaxedWoDiscount.IsZero() || !vals.TotalAmountUntaxedDiscount.IsZero() {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "discount_totals",
			Code:    "transfer_with_discount_totals",
			Message: "zero-value transfer document carries discount totals",
		})
	}
	if vals.PaymentPolicy != "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "payment_policy",
			Code:    "transfer_with_payment_policy",
			Message: "transfer document should not carry a payment policy",
		})
	}
	for _, lv := range vals.InvoiceLineValues {
		if !lv.DiscountAmount.IsZero() {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "invoice_line_values",
				Code:    "transfer_with_line_discount",
				Actual:  lv.DiscountAmount.InexactFloat64(),
				Message: "transfer document line still carries a discount amount",
			})
			break
		}
	}
}

// validateDocumentType flags unknown document types
func (v *ValueSetValidator) validateDocumentType(vals *cfdi.FiscalValueSet, result *ValidationResult) {
	switch vals.DocumentType {
	case cfdi.DocumentTypeIncome, cfdi.DocumentTypeEgress, cfdi.DocumentTypeTransfer:
	default:
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "document_type",
			Code:    "unknown_document_type",
			Message: "document type not recognized: " + vals.DocumentType,
		})
	}
}
