// Package cfdi computes the fiscal value set of a Mexican electronic
// invoice (CFDI) prior to stamping: currency conversion, per-line tax
// breakdowns, aggregated tax lists and the zero-value "T" reclassification
// for fully discounted invoices.
package cfdi

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Move types as posted by the accounting system.
const (
	MoveOutInvoice = "out_invoice"
	MoveOutRefund  = "out_refund"
	MoveOutReceipt = "out_receipt"
	MoveInInvoice  = "in_invoice"
	MoveInRefund   = "in_refund"
)

// CFDI document types (SAT "TipoDeComprobante").
const (
	DocumentTypeIncome   = "I" // Ingreso
	DocumentTypeEgress   = "E" // Egreso (nota de credito)
	DocumentTypeTransfer = "T" // Traslado (donacion / valor cero)
)

// Generic RFCs published by SAT for foreign and unidentified customers.
const (
	GenericRFCForeign  = "XEXX010101000"
	GenericRFCDomestic = "XAXX010101000"
)

// CFDIDateLayout is the timestamp format required by the CFDI schema.
const CFDIDateLayout = "2006-01-02T15:04:05"

// Partner is a business contact as the fiscal layer sees it.
type Partner struct {
	Name                string    `json:"name"`
	RFC                 string    `json:"rfc"`
	CountryCode         string    `json:"countryCode"`         // SAT country code, e.g. "MEX", "USA"
	CommercialPartnerID uuid.UUID `json:"commercialPartnerId"` // top-level legal entity
	TaxRegistrationID   string    `json:"taxRegistrationId,omitempty"`
}

// Invoice is the posted invoice header. Amounts are in invoice currency
// except AmountTotalSigned, which is in company currency.
type Invoice struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"` // folio/serie reference
	MoveType          string          `json:"moveType"`
	Currency          string          `json:"currency"`
	CompanyCurrency   string          `json:"companyCurrency"`
	AmountTotal       decimal.Decimal `json:"amountTotal"`
	AmountTotalSigned decimal.Decimal `json:"amountTotalSigned"`
	InvoiceDate       time.Time       `json:"invoiceDate"`
	PostTime          time.Time       `json:"postTime"`
	PaymentMethodCode string          `json:"paymentMethodCode"`
	PaymentPolicy     string          `json:"paymentPolicy"` // PUE / PPD
	ExternalTrade     bool            `json:"externalTrade"`
	PartnerBankAcc    string          `json:"partnerBankAcc,omitempty"`
	Customer          Partner         `json:"customer"`
	Company           Partner         `json:"company"`
	DeliveryLocation  string          `json:"deliveryLocation,omitempty"`
}

// InvoiceLine is one invoice line. Lines with a non-empty DisplayType
// (sections, notes) carry no amounts and are excluded from computation.
type InvoiceLine struct {
	Quantity      decimal.Decimal `json:"quantity"`
	PriceUnit     decimal.Decimal `json:"priceUnit"`
	Discount      decimal.Decimal `json:"discount"` // percentage 0-100
	PriceSubtotal decimal.Decimal `json:"priceSubtotal"`
	DisplayType   string          `json:"displayType,omitempty"`
	ProductID     string          `json:"productId"`
	ProductName   string          `json:"productName"`

	// External trade unit of measure values (comercio exterior).
	TradeQty   decimal.Decimal `json:"tradeQty"`
	TradePrice decimal.Decimal `json:"tradePrice"`

	// Tax charges applied to this line.
	TaxesTransferred []TaxDetail `json:"taxesTransferred,omitempty"`
	TaxesWithholding []TaxDetail `json:"taxesWithholding,omitempty"`

	// Value-added reporting fields.
	RawMaterial decimal.Decimal `json:"rawMaterial"`
	ValueAdded  decimal.Decimal `json:"valueAdded"`
}

// Computable reports whether the line participates in fiscal totals.
func (l *InvoiceLine) Computable() bool {
	return l.DisplayType == ""
}

// TaxDetail is one tax charge. At line level Total is the line's
// contribution; in the aggregated lists it is the sum across lines.
type TaxDetail struct {
	Tax       string          `json:"tax"` // tax identifier
	TaxType   string          `json:"taxType"`
	TaxAmount decimal.Decimal `json:"taxAmount"` // rate
	TaxName   string          `json:"taxName"`
	Total     decimal.Decimal `json:"total"`
}

// LineValues is the per-line breakdown produced by a LineValueProvider.
type LineValues struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    decimal.Decimal `json:"quantity"`
	PriceUnit   decimal.Decimal `json:"priceUnit"`

	TotalWoDiscount decimal.Decimal `json:"totalWoDiscount"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`

	TaxDetailsTransferred []TaxDetail `json:"taxDetailsTransferred"`
	TaxDetailsWithholding []TaxDetail `json:"taxDetailsWithholding"`

	TradeQty   decimal.Decimal `json:"tradeQty"`
	TradePrice decimal.Decimal `json:"tradePrice"`
}

// CommonValues are the base document fields resolved by the
// common-value provider (customer identity, folio, fiscal regime).
type CommonValues struct {
	Customer     Partner `json:"customer"`
	CustomerRFC  string  `json:"customerRfc"`
	SupplierRFC  string  `json:"supplierRfc"`
	FiscalRegime string  `json:"fiscalRegime"`
	Folio        string  `json:"folio"`
	Serie        string  `json:"serie"`
}

// TradeGood is one product group of the external-trade block, with
// amounts converted to USD.
type TradeGood struct {
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	Quantity     decimal.Decimal `json:"quantity"`
	SubtotalUSD  decimal.Decimal `json:"subtotalUsd"`
	UnitPriceUSD decimal.Decimal `json:"unitPriceUsd"`
}

// ExternalTradeValues is the comercio exterior complement data.
type ExternalTradeValues struct {
	CurrencyMXN             string          `json:"currencyMxn"`
	CurrencyUSD             string          `json:"currencyUsd"`
	ExporterNumber          string          `json:"exporterNumber,omitempty"`
	USDConversionRate       decimal.Decimal `json:"usdConversionRate"`
	Goods                   []TradeGood     `json:"goods"`
	TotalUSD                decimal.Decimal `json:"totalUsd"`
	DeliveryLocation        string          `json:"deliveryLocation,omitempty"`
	CustomerTaxRegistration string          `json:"customerTaxRegistration,omitempty"`
	CustomerFiscalResidence string          `json:"customerFiscalResidence,omitempty"`
}

// FiscalValueSet is the full value set handed to the rendering/stamping
// pipeline. It is created fresh per Build call and never mutated after
// being returned.
type FiscalValueSet struct {
	DocumentType      string `json:"documentType"`
	CFDIDate          string `json:"cfdiDate"`
	CurrencyName      string `json:"currencyName"`
	PaymentMethodCode string `json:"paymentMethodCode"`
	PaymentPolicy     string `json:"paymentPolicy,omitempty"`

	// Nil when invoice currency equals company currency.
	CurrencyConversionRate *decimal.Decimal `json:"currencyConversionRate,omitempty"`

	AccountLast4            string `json:"accountLast4,omitempty"`
	CustomerFiscalResidence string `json:"customerFiscalResidence,omitempty"`

	Customer     Partner `json:"customer"`
	CustomerRFC  string  `json:"customerRfc"`
	SupplierRFC  string  `json:"supplierRfc"`
	FiscalRegime string  `json:"fiscalRegime,omitempty"`
	Folio        string  `json:"folio,omitempty"`
	Serie        string  `json:"serie,omitempty"`

	InvoiceLineValues []*LineValues `json:"invoiceLineValues"`

	TotalAmountUntaxedWoDiscount decimal.Decimal `json:"totalAmountUntaxedWoDiscount"`
	TotalAmountUntaxedDiscount   decimal.Decimal `json:"totalAmountUntaxedDiscount"`

	TaxDetailsTransferred []TaxDetail     `json:"taxDetailsTransferred"`
	TaxDetailsWithholding []TaxDetail     `json:"taxDetailsWithholding"`
	TotalTaxTransferred   decimal.Decimal `json:"totalTaxTransferred"`
	TotalTaxWithholding   decimal.Decimal `json:"totalTaxWithholding"`

	ExternalTrade *ExternalTradeValues `json:"externalTrade,omitempty"`
}
