package cfdi

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SetRawMaterial updates the raw material cost and eagerly recomputes
// the value-added figure.
func (l *InvoiceLine) SetRawMaterial(cost decimal.Decimal) {
	l.RawMaterial = cost
	l.recomputeValueAdded()
}

// SetPriceSubtotal updates the posted subtotal and eagerly recomputes
// the value-added figure.
func (l *InvoiceLine) SetPriceSubtotal(subtotal decimal.Decimal) {
	l.PriceSubtotal = subtotal
	l.recomputeValueAdded()
}

func (l *InvoiceLine) recomputeValueAdded() {
	l.ValueAdded = l.PriceSubtotal.Sub(l.RawMaterial)
}

// SanitizeCFDIString removes the characters the SAT string rules forbid
// and cuts the result to size. The pipe is the CFDI field separator so
// it becomes a space. Empty input stays empty.
//
//	SanitizeCFDIString("Product ABC (small size)", 100) == "Product ABC (small size)"
func SanitizeCFDIString(text string, size int) string {
	if text == "" {
		return ""
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, "|", " "))
	if size > 0 && len(text) > size {
		text = text[:size]
	}
	return text
}
