package cfdi

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	oneHundred = decimal.NewFromInt(100)
	one        = decimal.NewFromInt(1)
)

// Config carries the deployment-specific fiscal parameters.
type Config struct {
	// ExporterRegistration is the company's exporter registration number,
	// attached to external-trade documents for regional-bloc customers.
	ExporterRegistration string
}

// Builder assembles the fiscal value set of one invoice. Collaborators
// are read-only; Build has no side effects and every call produces a
// fresh result.
type Builder struct {
	common    CommonValueProvider
	lines     LineValueProvider
	rates     CurrencyRateProvider
	countries CountryCatalog
	cfg       Config
}

// NewBuilder wires a Builder. A nil lines provider falls back to
// StandardLineValues.
func NewBuilder(common CommonValueProvider, lines LineValueProvider, rates CurrencyRateProvider, countries CountryCatalog, cfg Config) *Builder {
	if lines == nil {
		lines = StandardLineValues{}
	}
	return &Builder{
		common:    common,
		lines:     lines,
		rates:     rates,
		countries: countries,
		cfg:       cfg,
	}
}

// Build computes the fiscal value set for an invoice and its lines.
// The invoice must already have passed the host's configuration checks;
// Build does not validate company setup. Output is all-or-nothing: any
// provider failure aborts the computation.
func (b *Builder) Build(ctx context.Context, inv *Invoice, lines []*InvoiceLine) (*FiscalValueSet, error) {
	common, err := b.common.CommonValues(ctx, inv)
	if err != nil {
		return nil, err
	}

	vals := &FiscalValueSet{
		DocumentType:      documentType(inv.MoveType),
		CFDIDate:          cfdiTimestamp(inv),
		CurrencyName:      inv.Currency,
		PaymentMethodCode: paymentMethodCode(inv.PaymentMethodCode),
		PaymentPolicy:     inv.PaymentPolicy,
		Customer:          common.Customer,
		CustomerRFC:       common.CustomerRFC,
		SupplierRFC:       common.SupplierRFC,
		FiscalRegime:      common.FiscalRegime,
		Folio:             common.Folio,
		Serie:             common.Serie,
	}

	computable := computableLines(lines)
	allDiscounted := allFullyDiscounted(computable)

	rate, err := b.conversionRate(ctx, inv, allDiscounted)
	if err != nil {
		return nil, err
	}
	vals.CurrencyConversionRate = rate

	vals.AccountLast4 = accountLast4(inv.PartnerBankAcc)
	vals.CustomerFiscalResidence = b.fiscalResidence(common)

	for _, line := range computable {
		lineVals, err := b.lines.LineValues(ctx, inv, line)
		if err != nil {
			return nil, err
		}
		vals.InvoiceLineValues = append(vals.InvoiceLineValues, lineVals)
	}

	for _, lv := range vals.InvoiceLineValues {
		vals.TotalAmountUntaxedWoDiscount = vals.TotalAmountUntaxedWoDiscount.Add(lv.TotalWoDiscount)
		vals.TotalAmountUntaxedDiscount = vals.TotalAmountUntaxedDiscount.Add(lv.DiscountAmount)
	}

	b.aggregateTaxes(vals)

	if allDiscounted {
		b.reclassifyZeroValue(inv, vals)
	}

	if inv.ExternalTrade {
		trade, err := b.externalTradeValues(ctx, inv, common, vals)
		if err != nil {
			return nil, err
		}
		vals.ExternalTrade = trade
	}

	return vals, nil
}

// documentType maps the move type to the CFDI "TipoDeComprobante":
// income for standard customer invoices, egress for everything else.
func documentType(moveType string) string {
	if moveType == MoveOutInvoice {
		return DocumentTypeIncome
	}
	return DocumentTypeEgress
}

// cfdiTimestamp joins the invoice date with its posting time. The CFDI
// carries local fiscal time; no timezone conversion happens here.
func cfdiTimestamp(inv *Invoice) string {
	d := inv.InvoiceDate
	t := inv.PostTime
	combined := time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, d.Location())
	return combined.Format(CFDIDateLayout)
}

// paymentMethodCode applies the SAT substitution of the legacy "NA"
// code with "99" (por definir).
func paymentMethodCode(code string) string {
	return strings.ReplaceAll(code, "NA", "99")
}

func computableLines(lines []*InvoiceLine) []*InvoiceLine {
	out := make([]*InvoiceLine, 0, len(lines))
	for _, line := range lines {
		if line.Computable() {
			out = append(out, line)
		}
	}
	return out
}

// allFullyDiscounted is true only when every computable line carries a
// 100% discount. An invoice with no computable lines is not considered
// fully discounted.
func allFullyDiscounted(lines []*InvoiceLine) bool {
	if len(lines) == 0 {
		return false
	}
	for _, line := range lines {
		if !line.Discount.Equal(oneHundred) {
			return false
		}
	}
	return true
}

// conversionRate resolves the invoice-to-company currency rate. Same
// currency means no conversion. With real amounts the rate is derived
// from the posted balances; a fully discounted invoice has zero balance,
// so the historical rate table is consulted instead.
func (b *Builder) conversionRate(ctx context.Context, inv *Invoice, allDiscounted bool) (*decimal.Decimal, error) {
	if inv.Currency == inv.CompanyCurrency {
		return nil, nil
	}

	if !allDiscounted {
		sign := moveSign(inv.MoveType)
		totalCurrency := sign.Mul(inv.AmountTotal)
		if totalCurrency.IsZero() {
			return nil, buildErrf(ErrConfiguration, "invoice %s: zero total amount, cannot derive conversion rate", inv.Name)
		}
		rate := inv.AmountTotalSigned.Div(totalCurrency)
		return &rate, nil
	}

	historic, err := b.rates.RateOn(ctx, inv.Currency, inv.Company.CommercialPartnerID.String(), inv.InvoiceDate)
	if err != nil {
		return nil, err
	}
	if historic.IsZero() {
		return nil, buildErrf(ErrMissingRate, "currency %s on %s", inv.Currency, inv.InvoiceDate.Format("2006-01-02"))
	}
	rate := one.Div(historic)
	return &rate, nil
}

// moveSign is +1 for outbound documents and inbound refunds, -1 for the
// rest, mirroring how the accounting system signs balances.
func moveSign(moveType string) decimal.Decimal {
	switch moveType {
	case MoveOutInvoice, MoveOutReceipt, MoveInRefund:
		return decimal.NewFromInt(1)
	default:
		return decimal.NewFromInt(-1)
	}
}

// accountLast4 extracts the last four digits of the customer bank
// account. Formatting characters are dropped first; a value is kept
// only when exactly four digits remain at the tail.
func accountLast4(accNumber string) string {
	if accNumber == "" {
		return ""
	}
	var digits []rune
	for _, r := range accNumber {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string(digits[len(digits)-4:])
}

// fiscalResidence is the customer country code, but only for foreign
// customers with a real RFC. SAT generic RFCs never carry a residence.
func (b *Builder) fiscalResidence(common *CommonValues) string {
	if common.Customer.CountryCode == b.countries.DomesticCode() {
		return ""
	}
	if common.CustomerRFC == GenericRFCForeign || common.CustomerRFC == GenericRFCDomestic {
		return ""
	}
	return common.Customer.CountryCode
}

// aggregateTaxes groups every line's transferred and withheld charges
// by tax identifier, summing the per-line totals. List order follows
// first appearance so the rendered CFDI is stable.
func (b *Builder) aggregateTaxes(vals *FiscalValueSet) {
	vals.TaxDetailsTransferred, vals.TotalTaxTransferred = mergeTaxDetails(vals.InvoiceLineValues, func(lv *LineValues) []TaxDetail {
		return lv.TaxDetailsTransferred
	})
	vals.TaxDetailsWithholding, vals.TotalTaxWithholding = mergeTaxDetails(vals.InvoiceLineValues, func(lv *LineValues) []TaxDetail {
		return lv.TaxDetailsWithholding
	})
}

func mergeTaxDetails(lineValues []*LineValues, pick func(*LineValues) []TaxDetail) ([]TaxDetail, decimal.Decimal) {
	merged := []TaxDetail{}
	index := map[string]int{}
	total := decimal.Zero

	for _, lv := range lineValues {
		for _, tax := range pick(lv) {
			i, ok := index[tax.Tax]
			if !ok {
				merged = append(merged, TaxDetail{
					Tax:       tax.Tax,
					TaxType:   tax.TaxType,
					TaxAmount: tax.TaxAmount,
					TaxName:   tax.TaxName,
				})
				i = len(merged) - 1
				index[tax.Tax] = i
			}
			merged[i].Total = merged[i].Total.Add(tax.Total)
			total = total.Add(tax.Total)
		}
	}
	return merged, total
}

// reclassifyZeroValue turns a fully discounted invoice into a
// zero-value transfer document ("T"): no taxes, no payment policy, and
// each line reporting its full pre-discount value as the transferred
// amount. Self-billed invoices (customer is the issuing company's own
// commercial partner) are left untouched.
func (b *Builder) reclassifyZeroValue(inv *Invoice, vals *FiscalValueSet) {
	related := inv.Company.CommercialPartnerID != uuid.Nil &&
		inv.Company.CommercialPartnerID == inv.Customer.CommercialPartnerID
	if related {
		return
	}

	vals.DocumentType = DocumentTypeTransfer
	vals.PaymentPolicy = ""

	vals.TaxDetailsTransferred = []TaxDetail{}
	vals.TaxDetailsWithholding = []TaxDetail{}
	vals.TotalTaxTransferred = decimal.Zero
	vals.TotalTaxWithholding = decimal.Zero

	vals.TotalAmountUntaxedWoDiscount = decimal.Zero
	vals.TotalAmountUntaxedDiscount = decimal.Zero

	for _, lv := range vals.InvoiceLineValues {
		lv.TotalWoDiscount = lv.Quantity.Mul(lv.PriceUnit)
		lv.DiscountAmount = decimal.Zero
		lv.TaxDetailsTransferred = []TaxDetail{}
		lv.TaxDetailsWithholding = []TaxDetail{}
	}
}
