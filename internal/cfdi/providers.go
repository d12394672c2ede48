package cfdi

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CommonValueProvider resolves the base document fields shared by every
// CFDI (customer identity, folio, fiscal regime). Owned by the host
// accounting layer.
type CommonValueProvider interface {
	CommonValues(ctx context.Context, inv *Invoice) (*CommonValues, error)
}

// LineValueProvider produces the tax/pricing breakdown of one line.
type LineValueProvider interface {
	LineValues(ctx context.Context, inv *Invoice, line *InvoiceLine) (*LineValues, error)
}

// CurrencyRateProvider is a historical rate lookup. RateOn returns how
// many units of the company currency one unit of currency was worth on
// the given date. Implementations return ErrMissingRate (possibly
// wrapped) when no rate exists on or before the date.
type CurrencyRateProvider interface {
	RateOn(ctx context.Context, currency string, companyID string, date time.Time) (decimal.Decimal, error)
}

// CountryCatalog answers country/region reference questions: the
// domestic SAT country code and regional-bloc membership for the
// external-trade exporter rule.
type CountryCatalog interface {
	DomesticCode() string
	InRegionalBloc(ctx context.Context, countryCode string) (bool, error)
}

// EmbeddedCommonValues derives the common document fields from the
// invoice itself, for callers that submit fully resolved invoices
// instead of wiring an accounting backend.
type EmbeddedCommonValues struct {
	FiscalRegime string
}

func (p EmbeddedCommonValues) CommonValues(ctx context.Context, inv *Invoice) (*CommonValues, error) {
	if inv.Customer.RFC == "" {
		return nil, buildErrf(ErrConfiguration, "invoice %s: customer RFC missing", inv.Name)
	}
	serie, folio := splitInvoiceName(inv.Name)
	return &CommonValues{
		Customer:     inv.Customer,
		CustomerRFC:  inv.Customer.RFC,
		SupplierRFC:  inv.Company.RFC,
		FiscalRegime: p.FiscalRegime,
		Serie:        serie,
		Folio:        folio,
	}, nil
}

// splitInvoiceName separates "INV/2026/0042" into serie "INV/2026"
// and folio "0042".
func splitInvoiceName(name string) (serie, folio string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}

// StandardLineValues is the default LineValueProvider. It derives the
// breakdown from the line itself: gross amount from quantity and unit
// price, discount as the difference against the posted subtotal, and
// tax details copied from the line's charges.
type StandardLineValues struct{}

func (StandardLineValues) LineValues(ctx context.Context, inv *Invoice, line *InvoiceLine) (*LineValues, error) {
	if err := validateLine(line); err != nil {
		return nil, err
	}

	gross := line.Quantity.Mul(line.PriceUnit)
	vals := &LineValues{
		ProductID:             line.ProductID,
		ProductName:           line.ProductName,
		Quantity:              line.Quantity,
		PriceUnit:             line.PriceUnit,
		TotalWoDiscount:       gross,
		DiscountAmount:        gross.Sub(line.PriceSubtotal),
		TaxDetailsTransferred: append([]TaxDetail(nil), line.TaxesTransferred...),
		TaxDetailsWithholding: append([]TaxDetail(nil), line.TaxesWithholding...),
		TradeQty:              line.TradeQty,
		TradePrice:            line.TradePrice,
	}
	return vals, nil
}

func validateLine(line *InvoiceLine) error {
	if line.Quantity.IsNegative() {
		return buildErrf(ErrInvalidLineData, "product %q: negative quantity %s", line.ProductID, line.Quantity)
	}
	if line.Discount.IsNegative() || line.Discount.GreaterThan(decimal.NewFromInt(100)) {
		return buildErrf(ErrInvalidLineData, "product %q: discount %s out of range", line.ProductID, line.Discount)
	}
	for _, tax := range line.TaxesTransferred {
		if tax.Tax == "" {
			return buildErrf(ErrInvalidLineData, "product %q: transferred tax without identifier", line.ProductID)
		}
	}
	for _, tax := range line.TaxesWithholding {
		if tax.Tax == "" {
			return buildErrf(ErrInvalidLineData, "product %q: withheld tax without identifier", line.ProductID)
		}
	}
	return nil
}
