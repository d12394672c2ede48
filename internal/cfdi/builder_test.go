package cfdi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Stub collaborators ---

type stubCommon struct {
	vals *CommonValues
	err  error
}

func (s stubCommon) CommonValues(ctx context.Context, inv *Invoice) (*CommonValues, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.vals != nil {
		return s.vals, nil
	}
	// Default: mirror the invoice's own customer.
	return &CommonValues{
		Customer:    inv.Customer,
		CustomerRFC: inv.Customer.RFC,
		SupplierRFC: inv.Company.RFC,
	}, nil
}

type stubRates struct {
	rates map[string]string // currency -> company-currency units per unit
}

func (s stubRates) RateOn(ctx context.Context, currency, companyID string, date time.Time) (decimal.Decimal, error) {
	r, ok := s.rates[currency]
	if !ok {
		return decimal.Zero, buildErrf(ErrMissingRate, "currency %s on %s", currency, date.Format("2006-01-02"))
	}
	return decimal.RequireFromString(r), nil
}

type stubCatalog struct {
	domestic string
	bloc     map[string]bool
}

func (s stubCatalog) DomesticCode() string {
	if s.domestic == "" {
		return "MEX"
	}
	return s.domestic
}

func (s stubCatalog) InRegionalBloc(ctx context.Context, code string) (bool, error) {
	return s.bloc[code], nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testBuilder(rates map[string]string) *Builder {
	return NewBuilder(
		stubCommon{},
		nil,
		stubRates{rates: rates},
		stubCatalog{bloc: map[string]bool{"USA": true, "CAN": true}},
		Config{ExporterRegistration: "EXP-0001"},
	)
}

func baseInvoice() *Invoice {
	return &Invoice{
		ID:                uuid.New(),
		Name:              "INV/2026/0042",
		MoveType:          MoveOutInvoice,
		Currency:          "MXN",
		CompanyCurrency:   "MXN",
		AmountTotal:       dec("1160"),
		AmountTotalSigned: dec("1160"),
		InvoiceDate:       time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		PostTime:          time.Date(2026, 3, 15, 14, 30, 5, 0, time.UTC),
		PaymentMethodCode: "03",
		PaymentPolicy:     "PUE",
		Customer: Partner{
			Name:                "Cliente SA de CV",
			RFC:                 "CACX7605101P8",
			CountryCode:         "MEX",
			CommercialPartnerID: uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		},
		Company: Partner{
			Name:                "Emisor SA de CV",
			RFC:                 "EKU9003173C9",
			CountryCode:         "MEX",
			CommercialPartnerID: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		},
	}
}

func taxedLine(product string, qty, price, discount string) *InvoiceLine {
	q := dec(qty)
	p := dec(price)
	d := dec(discount)
	gross := q.Mul(p)
	subtotal := gross.Mul(decimal.NewFromInt(100).Sub(d)).Div(decimal.NewFromInt(100))
	return &InvoiceLine{
		Quantity:      q,
		PriceUnit:     p,
		Discount:      d,
		PriceSubtotal: subtotal,
		ProductID:     product,
		ProductName:   "Producto " + product,
		TaxesTransferred: []TaxDetail{
			{Tax: "IVA16", TaxType: "Tasa", TaxAmount: dec("0.16"), TaxName: "IVA", Total: subtotal.Mul(dec("0.16"))},
		},
	}
}

// --- Tests ---

func TestDocumentType(t *testing.T) {
	tests := []struct {
		moveType string
		want     string
	}{
		{MoveOutInvoice, DocumentTypeIncome},
		{MoveOutRefund, DocumentTypeEgress},
		{MoveInRefund, DocumentTypeEgress},
		{MoveOutReceipt, DocumentTypeEgress},
	}
	for _, tt := range tests {
		if got := documentType(tt.moveType); got != tt.want {
			t.Errorf("documentType(%s) = %s, want %s", tt.moveType, got, tt.want)
		}
	}
}

func TestCFDITimestamp(t *testing.T) {
	inv := baseInvoice()
	b := testBuilder(nil)
	vals, err := b.Build(context.Background(), inv, []*InvoiceLine{taxedLine("P1", "1", "1000", "0")})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if vals.CFDIDate != "2026-03-15T14:30:05" {
		t.Errorf("CFDIDate = %s, want 2026-03-15T14:30:05", vals.CFDIDate)
	}
}

func TestPaymentMethodCodeSubstitution(t *testing.T) {
	if got := paymentMethodCode("NA"); got != "99" {
		t.Errorf("paymentMethodCode(NA) = %s, want 99", got)
	}
	if got := paymentMethodCode("03"); got != "03" {
		t.Errorf("paymentMethodCode(03) = %s, want 03", got)
	}
}

func TestConversionRate(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		moveType string
		total    string
		signed   string
		want     string // "" means nil
	}{
		{
			name:     "same currency means no conversion",
			currency: "MXN",
			moveType: MoveOutInvoice,
			total:    "1160",
			signed:   "1160",
			want:     "",
		},
		{
			name:     "outbound invoice positive sign",
			currency: "USD",
			moveType: MoveOutInvoice,
			total:    "100",
			signed:   "1750",
			want:     "17.5",
		},
		{
			name:     "inbound refund positive sign",
			currency: "USD",
			moveType: MoveInRefund,
			total:    "100",
			signed:   "1750",
			want:     "17.5",
		},
		{
			name:     "outbound refund negative sign",
			currency: "USD",
			moveType: MoveOutRefund,
			total:    "100",
			signed:   "-1750",
			want:     "17.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := baseInvoice()
			inv.Currency = tt.currency
			inv.MoveType = tt.moveType
			inv.AmountTotal = dec(tt.total)
			inv.AmountTotalSigned = dec(tt.signed)

			b := testBuilder(nil)
			vals, err := b.Build(context.Background(), inv, []*InvoiceLine{taxedLine("P1", "1", tt.total, "0")})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			if tt.want == "" {
				if vals.CurrencyConversionRate != nil {
					t.Fatalf("CurrencyConversionRate = %s, want nil", vals.CurrencyConversionRate)
				}
				return
			}
			if vals.CurrencyConversionRate == nil {
				t.Fatal("CurrencyConversionRate = nil, want value")
			}
			if !vals.CurrencyConversionRate.Equal(dec(tt.want)) {
				t.Errorf("CurrencyConversionRate = %s, want %s", vals.CurrencyConversionRate, tt.want)
			}
		})
	}
}

func TestConversionRateFullyDiscountedUsesHistoricRate(t *testing.T) {
	inv := baseInvoice()
	inv.Currency = "USD"
	inv.AmountTotal = dec("0")
	inv.AmountTotalSigned = dec("0")

	lines := []*InvoiceLine{taxedLine("P1", "2", "10", "100")}

	b := testBuilder(map[string]string{"USD": "20"})
	vals, err := b.Build(context.Background(), inv, lines)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if vals.CurrencyConversionRate == nil {
		t.Fatal("CurrencyConversionRate = nil, want 1/20")
	}
	if !vals.CurrencyConversionRate.Equal(dec("0.05")) {
		t.Errorf("CurrencyConversionRate = %s, want 0.05", vals.CurrencyConversionRate)
	}
}

func TestConversionRateMissingHistoricRate(t *testing.T) {
	inv := baseInvoice()
	inv.Currency = "USD"

	lines := []*InvoiceLine{taxedLine("P1", "2", "10", "100")}

	b := testBuilder(nil) // no rates at all
	_, err := b.Build(context.Background(), inv, lines)
	if !errors.Is(err, ErrMissingRate) {
		t.Fatalf("Build() error = %v, want ErrMissingRate", err)
	}
}

func TestAccountLast4(t *testing.T) {
	tests := []struct {
		acc  string
		want string
	}{
		{"AB12-34**56", "3456"},
		{"012180001234567897", "7897"},
		{"A-1B2", ""},
		{"", ""},
		{"9876", "9876"},
	}
	for _, tt := range tests {
		if got := accountLast4(tt.acc); got != tt.want {
			t.Errorf("accountLast4(%q) = %q, want %q", tt.acc, got, tt.want)
		}
	}
}

func TestCustomerFiscalResidence(t *testing.T) {
	tests := []struct {
		name    string
		country string
		rfc     string
		want    string
	}{
		{"domestic customer", "MEX", "CACX7605101P8", ""},
		{"foreign customer with real tax id", "USA", "US123456789", "USA"},
		{"foreign customer with generic foreign RFC", "USA", GenericRFCForeign, ""},
		{"foreign customer with generic domestic RFC", "USA", GenericRFCDomestic, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := baseInvoice()
			inv.Customer.CountryCode = tt.country
			inv.Customer.RFC = tt.rfc

			b := testBuilder(nil)
			vals, err := b.Build(context.Background(), inv, []*InvoiceLine{taxedLine("P1", "1", "100", "0")})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if vals.CustomerFiscalResidence != tt.want {
				t.Errorf("CustomerFiscalResidence = %q, want %q", vals.CustomerFiscalResidence, tt.want)
			}
		})
	}
}

func TestTaxAggregation(t *testing.T) {
	l1 := taxedLine("P1", "1", "100", "0")
	l2 := taxedLine("P2", "1", "200", "0")
	l3 := taxedLine("P3", "1", "50", "0")
	l3.TaxesTransferred = []TaxDetail{
		{Tax: "IEPS8", TaxType: "Tasa", TaxAmount: dec("0.08"), TaxName: "IEPS", Total: dec("4")},
	}
	l3.TaxesWithholding = []TaxDetail{
		{Tax: "RET-ISR10", TaxType: "Tasa", TaxAmount: dec("0.10"), TaxName: "ISR", Total: dec("5")},
	}

	b := testBuilder(nil)
	vals, err := b.Build(context.Background(), baseInvoice(), []*InvoiceLine{l1, l2, l3})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(vals.TaxDetailsTransferred) != 2 {
		t.Fatalf("transferred groups = %d, want 2 (IVA16 merged, IEPS8 separate)", len(vals.TaxDetailsTransferred))
	}
	if vals.TaxDetailsTransferred[0].Tax != "IVA16" {
		t.Errorf("first transferred group = %s, want IVA16 (first-seen order)", vals.TaxDetailsTransferred[0].Tax)
	}
	// IVA 16% over 100 + 200 = 48, IEPS = 4.
	if !vals.TaxDetailsTransferred[0].Total.Equal(dec("48")) {
		t.Errorf("IVA16 total = %s, want 48", vals.TaxDetailsTransferred[0].Total)
	}

	// Output totals must equal the sum of every line contribution.
	perLine := decimal.Zero
	for _, lv := range vals.InvoiceLineValues {
		for _, tax := range lv.TaxDetailsTransferred {
			perLine = perLine.Add(tax.Total)
		}
	}
	if !vals.TotalTaxTransferred.Equal(perLine) {
		t.Errorf("TotalTaxTransferred = %s, want %s (sum of line contributions)", vals.TotalTaxTransferred, perLine)
	}
	if !vals.TotalTaxWithholding.Equal(dec("5")) {
		t.Errorf("TotalTaxWithholding = %s, want 5", vals.TotalTaxWithholding)
	}
}

func TestAllFullyDiscounted(t *testing.T) {
	tests := []struct {
		name  string
		lines []*InvoiceLine
		want  bool
	}{
		{
			name:  "every line at 100",
			lines: []*InvoiceLine{taxedLine("P1", "1", "10", "100"), taxedLine("P2", "1", "5", "100")},
			want:  true,
		},
		{
			name:  "one line below 100",
			lines: []*InvoiceLine{taxedLine("P1", "1", "10", "100"), taxedLine("P2", "1", "5", "50")},
			want:  false,
		},
		{
			name:  "no lines",
			lines: nil,
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := allFullyDiscounted(tt.lines); got != tt.want {
				t.Errorf("allFullyDiscounted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZeroValueReclassification(t *testing.T) {
	inv := baseInvoice()
	inv.AmountTotal = dec("0")
	inv.AmountTotalSigned = dec("0")

	lines := []*InvoiceLine{
		taxedLine("P1", "2", "10", "100"),
		taxedLine("P2", "3", "5", "100"),
	}

	b := testBuilder(nil)
	vals, err := b.Build(context.Background(), inv, lines)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if vals.DocumentType != DocumentTypeTransfer {
		t.Errorf("DocumentType = %s, want T", vals.DocumentType)
	}
	if vals.PaymentPolicy != "" {
		t.Errorf("PaymentPolicy = %q, want cleared", vals.PaymentPolicy)
	}
	if len(vals.TaxDetailsTransferred) != 0 || len(vals.TaxDetailsWithholding) != 0 {
		t.Error("tax lists not emptied")
	}
	if !vals.TotalTaxTransferred.IsZero() || !vals.TotalTaxWithholding.IsZero() {
		t.Error("tax totals not zeroed")
	}
	if !vals.TotalAmountUntaxedWoDiscount.IsZero() || !vals.TotalAmountUntaxedDiscount.IsZero() {
		t.Error("discount totals not zeroed")
	}

	// Lines report full pre-discount value as the transferred amount.
	want := []string{"20", "15"}
	for i, lv := range vals.InvoiceLineValues {
		if !lv.TotalWoDiscount.Equal(dec(want[i])) {
			t.Errorf("line %d TotalWoDiscount = %s, want %s", i, lv.TotalWoDiscount, want[i])
		}
		if !lv.DiscountAmount.IsZero() {
			t.Errorf("line %d DiscountAmount = %s, want 0", i, lv.DiscountAmount)
		}
	}
}

func TestZeroValueRelatedPartyGuard(t *testing.T) {
	inv := baseInvoice()
	inv.AmountTotal = dec("0")
	inv.AmountTotalSigned = dec("0")
	// Customer belongs to the issuing company's own commercial partner.
	inv.Customer.CommercialPartnerID = inv.Company.CommercialPartnerID

	lines := []*InvoiceLine{taxedLine("P1", "2", "10", "100")}

	b := testBuilder(nil)
	vals, err := b.Build(context.Background(), inv, lines)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if vals.DocumentType != DocumentTypeIncome {
		t.Errorf("DocumentType = %s, want I (no reclassification)", vals.DocumentType)
	}
	if vals.PaymentPolicy != "PUE" {
		t.Errorf("PaymentPolicy = %q, want PUE untouched", vals.PaymentPolicy)
	}
	if len(vals.TaxDetailsTransferred) == 0 {
		t.Error("tax list emptied, want untouched")
	}
}

func TestDisplayLinesExcluded(t *testing.T) {
	section := &InvoiceLine{DisplayType: "line_section", ProductName: "Servicios"}
	note := &InvoiceLine{DisplayType: "line_note", ProductName: "Nota"}
	real := taxedLine("P1", "1", "100", "0")

	b := testBuilder(nil)
	vals, err := b.Build(context.Background(), baseInvoice(), []*InvoiceLine{section, real, note})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(vals.InvoiceLineValues) != 1 {
		t.Errorf("line values = %d, want 1 (display lines excluded)", len(vals.InvoiceLineValues))
	}
}

func TestLineTotals(t *testing.T) {
	lines := []*InvoiceLine{
		taxedLine("P1", "2", "100", "10"), // gross 200, discount 20
		taxedLine("P2", "1", "50", "0"),   // gross 50, discount 0
	}

	b := testBuilder(nil)
	vals, err := b.Build(context.Background(), baseInvoice(), lines)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !vals.TotalAmountUntaxedWoDiscount.Equal(dec("250")) {
		t.Errorf("TotalAmountUntaxedWoDiscount = %s, want 250", vals.TotalAmountUntaxedWoDiscount)
	}
	if !vals.TotalAmountUntaxedDiscount.Equal(dec("20")) {
		t.Errorf("TotalAmountUntaxedDiscount = %s, want 20", vals.TotalAmountUntaxedDiscount)
	}
}

func TestInvalidLineAborts(t *testing.T) {
	tests := []struct {
		name string
		line *InvoiceLine
	}{
		{
			name: "negative quantity",
			line: &InvoiceLine{Quantity: dec("-1"), PriceUnit: dec("10"), ProductID: "P1"},
		},
		{
			name: "discount above 100",
			line: &InvoiceLine{Quantity: dec("1"), PriceUnit: dec("10"), Discount: dec("120"), ProductID: "P1"},
		},
		{
			name: "tax without identifier",
			line: &InvoiceLine{
				Quantity: dec("1"), PriceUnit: dec("10"), ProductID: "P1",
				TaxesTransferred: []TaxDetail{{TaxName: "IVA", Total: dec("1.6")}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBuilder(nil)
			_, err := b.Build(context.Background(), baseInvoice(), []*InvoiceLine{tt.line})
			if !errors.Is(err, ErrInvalidLineData) {
				t.Fatalf("Build() error = %v, want ErrInvalidLineData", err)
			}
		})
	}
}
