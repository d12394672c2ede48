package services

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jarsa/cfdi-values-service/internal/cfdi"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func consistentValueSet() *cfdi.FiscalValueSet {
	return &cfdi.FiscalValueSet{
		DocumentType: cfdi.DocumentTypeIncome,
		InvoiceLineValues: []*cfdi.LineValues{
			{
				TotalWoDiscount: dec("100"),
				DiscountAmount:  dec("10"),
				TaxDetailsTransferred: []cfdi.TaxDetail{
					{Tax: "IVA16", Total: dec("14.4")},
				},
			},
			{
				TotalWoDiscount: dec("50"),
				DiscountAmount:  dec("0"),
				TaxDetailsTransferred: []cfdi.TaxDetail{
					{Tax: "IVA16", Total: dec("8")},
				},
			},
		},
		TotalAmountUntaxedWoDiscount: dec("150"),
		TotalAmountUntaxedDiscount:   dec("10"),
		TaxDetailsTransferred: []cfdi.TaxDetail{
			{Tax: "IVA16", Total: dec("22.4")},
		},
		TaxDetailsWithholding: []cfdi.TaxDetail{},
		TotalTaxTransferred:   dec("22.4"),
		TotalTaxWithholding:   decimal.Zero,
	}
}

func TestValidateConsistentValueSet(t *testing.T) {
	result := NewValueSetValidator().Validate(consistentValueSet())
	if !result.Valid {
		t.Fatalf("Valid = false, errors = %+v", result.Errors)
	}
	if result.NeedsReview {
		t.Errorf("NeedsReview = true, warnings = %+v", result.Warnings)
	}
}

func TestValidateTaxTotalMismatch(t *testing.T) {
	vals := consistentValueSet()
	vals.TotalTaxTransferred = dec("99")

	result := NewValueSetValidator().Validate(vals)
	if result.Valid {
		t.Fatal("Valid = true, want tax total mismatch")
	}
	found := false
	for _, e := range result.Errors {
		if e.Code == "tax_total_mismatch" {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %+v, want tax_total_mismatch", result.Errors)
	}
}

func TestValidateAmountTotalMismatch(t *testing.T) {
	vals := consistentValueSet()
	vals.TotalAmountUntaxedWoDiscount = dec("140")

	result := NewValueSetValidator().Validate(vals)
	if result.Valid {
		t.Fatal("Valid = true, want amount total mismatch")
	}
}

func TestValidateTransferDocument(t *testing.T) {
	vals := &cfdi.FiscalValueSet{
		DocumentType: cfdi.DocumentTypeTransfer,
		InvoiceLineValues: []*cfdi.LineValues{
			{TotalWoDiscount: dec("20")},
			{TotalWoDiscount: dec("15")},
		},
		TaxDetailsTransferred: []cfdi.TaxDetail{},
		TaxDetailsWithholding: []cfdi.TaxDetail{},
	}

	result := NewValueSetValidator().Validate(vals)
	if !result.Valid {
		t.Fatalf("Valid = false for clean transfer document, errors = %+v", result.Errors)
	}
}

func TestValidateTransferDocumentWithTaxes(t *testing.T) {
	vals := &cfdi.FiscalValueSet{
		DocumentType: cfdi.DocumentTypeTransfer,
		TaxDetailsTransferred: []cfdi.TaxDetail{
			{Tax: "IVA16", Total: dec("16")},
		},
		TaxDetailsWithholding: []cfdi.TaxDetail{},
		TotalTaxTransferred:   dec("16"),
	}

	result := NewValueSetValidator().Validate(vals)
	if result.Valid {
		t.Fatal("Valid = true for transfer document carrying taxes")
	}
}

func TestValidateUnknownDocumentType(t *testing.T) {
	vals := consistentValueSet()
	vals.DocumentType = "X"

	result := NewValueSetValidator().Validate(vals)
	if !result.NeedsReview {
		t.Error("NeedsReview = false, want warning for unknown document type")
	}
}
