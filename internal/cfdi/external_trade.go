package cfdi

import (
	"context"

	"github.com/shopspring/decimal"
)

// Currency codes used by the comercio exterior complement.
const (
	currencyMXN = "MXN"
	currencyUSD = "USD"
)

// externalTradeValues assembles the comercio exterior complement:
// goods grouped by product with quantities in trade units and amounts
// converted to USD at the invoice-date rate.
//
// The residence rule here intentionally differs from the header one:
// only the domestic-country check applies, a generic RFC does not
// suppress the residence in this block.
func (b *Builder) externalTradeValues(ctx context.Context, inv *Invoice, common *CommonValues, vals *FiscalValueSet) (*ExternalTradeValues, error) {
	usdRate, err := b.rates.RateOn(ctx, currencyUSD, inv.Company.CommercialPartnerID.String(), inv.InvoiceDate)
	if err != nil {
		return nil, err
	}
	if usdRate.IsZero() {
		return nil, buildErrf(ErrMissingRate, "USD rate on %s", inv.InvoiceDate.Format("2006-01-02"))
	}

	trade := &ExternalTradeValues{
		CurrencyMXN:             currencyMXN,
		CurrencyUSD:             currencyUSD,
		USDConversionRate:       usdRate,
		DeliveryLocation:        inv.DeliveryLocation,
		CustomerTaxRegistration: common.Customer.TaxRegistrationID,
	}

	inBloc, err := b.countries.InRegionalBloc(ctx, common.Customer.CountryCode)
	if err != nil {
		return nil, err
	}
	if inBloc {
		trade.ExporterNumber = b.cfg.ExporterRegistration
	}

	if common.Customer.CountryCode != b.countries.DomesticCode() {
		trade.CustomerFiscalResidence = common.Customer.CountryCode
	}

	trade.Goods, trade.TotalUSD = b.tradeGoods(vals.InvoiceLineValues, usdRate)
	return trade, nil
}

// tradeGoods groups line values by product, summing trade-unit
// quantities and converting subtotal and unit price to USD.
func (b *Builder) tradeGoods(lineValues []*LineValues, usdRate decimal.Decimal) ([]TradeGood, decimal.Decimal) {
	goods := []TradeGood{}
	index := map[string]int{}
	var subtotals []decimal.Decimal
	totalUSD := decimal.Zero

	for _, lv := range lineValues {
		i, ok := index[lv.ProductID]
		if !ok {
			goods = append(goods, TradeGood{
				ProductID:   lv.ProductID,
				ProductName: lv.ProductName,
			})
			subtotals = append(subtotals, decimal.Zero)
			i = len(goods) - 1
			index[lv.ProductID] = i
		}
		goods[i].Quantity = goods[i].Quantity.Add(lv.TradeQty)
		subtotal := lv.TotalWoDiscount.Sub(lv.DiscountAmount)
		subtotals[i] = subtotals[i].Add(subtotal)
	}

	for i := range goods {
		goods[i].SubtotalUSD = subtotals[i].Div(usdRate)
		if !goods[i].Quantity.IsZero() {
			goods[i].UnitPriceUSD = goods[i].SubtotalUSD.Div(goods[i].Quantity)
		}
		totalUSD = totalUSD.Add(goods[i].SubtotalUSD)
	}
	return goods, totalUSD
}
