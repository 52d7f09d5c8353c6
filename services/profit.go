package services

import (
	"github.com/shopspring/decimal"
)

// ProfitCalculator computes estimated and actual resale profit. All money
// arithmetic is done in decimal and rounded half-to-even to cents.
type ProfitCalculator struct {
	FeePercent       float64
	ShippingEstimate float64
	MinProfit        float64
}

// NewProfitCalculator creates a calculator with the default fee percentage,
// shipping estimate and notification threshold.
func NewProfitCalculator(feePercent, shippingEstimate, minProfit float64) *ProfitCalculator {
	return &ProfitCalculator{
		FeePercent:       feePercent,
		ShippingEstimate: shippingEstimate,
		MinProfit:        minProfit,
	}
}

// Estimated uses the calculator's default fee and shipping.
func (p *ProfitCalculator) Estimated(askingPrice, marketValue *float64) *float64 {
	return EstimatedProfit(askingPrice, marketValue, p.FeePercent, p.ShippingEstimate)
}

// EstimatedWithFee overrides the fee percentage, e.g. with a linked seller
// account's store tier.
func (p *ProfitCalculator) EstimatedWithFee(askingPrice, marketValue *float64, feePercent float64) *float64 {
	return EstimatedProfit(askingPrice, marketValue, feePercent, p.ShippingEstimate)
}

// IsProfitable reports whether the deal clears the configured threshold.
func (p *ProfitCalculator) IsProfitable(askingPrice, marketValue *float64) bool {
	return p.ClearsThreshold(p.Estimated(askingPrice, marketValue))
}

// ClearsThreshold reports whether an already computed profit reaches the
// notification threshold.
func (p *ProfitCalculator) ClearsThreshold(profit *float64) bool {
	return profit != nil && *profit >= p.MinProfit
}

// EstimatedProfit returns marketValue - askingPrice - fees - shipping, or nil
// when either price is unknown.
func EstimatedProfit(askingPrice, marketValue *float64, feePercent, shippingEstimate float64) *float64 {
	if askingPrice == nil || marketValue == nil {
		return nil
	}

	market := decimal.NewFromFloat(*marketValue)
	fees := market.Mul(decimal.NewFromFloat(feePercent)).Div(decimal.NewFromInt(100))
	profit := market.
		Sub(decimal.NewFromFloat(*askingPrice)).
		Sub(fees).
		Sub(decimal.NewFromFloat(shippingEstimate))

	return toCents(profit)
}

// ActualProfit is the realised profit of a completed sale.
func ActualProfit(buyPrice, sellPrice, feesPaid, shippingCost float64) float64 {
	profit := decimal.NewFromFloat(sellPrice).
		Sub(decimal.NewFromFloat(buyPrice)).
		Sub(decimal.NewFromFloat(feesPaid)).
		Sub(decimal.NewFromFloat(shippingCost))
	return *toCents(profit)
}

// IsProfitable reports whether the estimated profit reaches minProfit.
// Unknown profit is never profitable.
func IsProfitable(askingPrice, marketValue *float64, feePercent, minProfit float64) bool {
	profit := EstimatedProfit(askingPrice, marketValue, feePercent, 0)
	if profit == nil {
		return false
	}
	return *profit >= minProfit
}

// EstimateFees is the marketplace fee on a sale at the given percentage.
func EstimateFees(sellPrice, feePercent float64) float64 {
	fees := decimal.NewFromFloat(sellPrice).
		Mul(decimal.NewFromFloat(feePercent)).
		Div(decimal.NewFromInt(100))
	return *toCents(fees)
}

func toCents(d decimal.Decimal) *float64 {
	f := d.RoundBank(2).InexactFloat64()
	return &f
}
