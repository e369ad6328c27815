// Package averaging computes the blended cost basis of a spot holding after
// an additional purchase, and the inverse: the entry price an additional
// purchase needs to pull the average down (or up) to a target.
package averaging

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/tactician/internal/numfmt"
)

// Holding is the current position: average price and quantity.
type Holding struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// Inputs are the raw averaging form fields, persisted verbatim.
type Inputs struct {
	InitPrice  string `json:"init_price"`
	InitQty    string `json:"init_qty"`
	NewPrice   string `json:"new_price"`
	NewSpend   string `json:"new_spend"`
	TargetAvg  string `json:"target_avg"`
	PlanInvest string `json:"plan_invest"`
}

// BlendResult is the outcome of adding a purchase to a holding.
type BlendResult struct {
	HoldingValue  decimal.Decimal `json:"holding_value"`
	NewQtyFromBuy decimal.Decimal `json:"new_qty_from_buy"`
	TotalQty      decimal.Decimal `json:"total_qty"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	NewAvgPrice   decimal.Decimal `json:"new_avg_price"`
	ReductionPct  decimal.Decimal `json:"reduction_pct"`
}

// Result bundles both calculations for a set of raw inputs.
type Result struct {
	Blend         BlendResult         `json:"blend"`
	RequiredPrice decimal.NullDecimal `json:"required_price"`
}

// Blend adds a purchase of spend (quote currency) at price to h.
//
//	newQty    = spend>0 && price>0 ? spend/price : 0
//	totalQty  = q1 + newQty
//	totalCost = p1*q1 + spend
//	newAvg    = totalQty>0 ? totalCost/totalQty : 0
//	reduction = p1>0 ? (p1-newAvg)/p1*100 : 0
func Blend(h Holding, price, spend decimal.Decimal) BlendResult {
	r := BlendResult{HoldingValue: h.Price.Mul(h.Qty)}
	if spend.IsPositive() && price.IsPositive() {
		r.NewQtyFromBuy = spend.Div(price)
	}
	r.TotalQty = h.Qty.Add(r.NewQtyFromBuy)
	r.TotalCost = r.HoldingValue.Add(spend)
	if r.TotalQty.IsPositive() {
		r.NewAvgPrice = r.TotalCost.Div(r.TotalQty)
	}
	if h.Price.IsPositive() {
		r.ReductionPct = h.Price.Sub(r.NewAvgPrice).Div(h.Price).Mul(numfmt.Hundred())
	}
	return r
}

// Target solves for the entry price at which spending invest blends h to
// exactly targetAvg:
//
//	v1  = p1*q1
//	den = (v1+invest)/targetAvg - q1
//	buy = invest/den
//
// The result is null when targetAvg is not positive or den <= 0, which
// means no positive entry price reaches the target with that budget.
func Target(h Holding, targetAvg, invest decimal.Decimal) decimal.NullDecimal {
	if !targetAvg.IsPositive() {
		return decimal.NullDecimal{}
	}
	v1 := h.Price.Mul(h.Qty)
	den := v1.Add(invest).Div(targetAvg).Sub(h.Qty)
	if !den.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(invest.Div(den))
}

// Evaluate runs both calculations over raw inputs. Unparseable fields count
// as zero in the blend; the target needs all four of its fields to parse.
func Evaluate(in Inputs) Result {
	h := Holding{Price: numfmt.ParseOrZero(in.InitPrice), Qty: numfmt.ParseOrZero(in.InitQty)}
	res := Result{
		Blend: Blend(h, numfmt.ParseOrZero(in.NewPrice), numfmt.ParseOrZero(in.NewSpend)),
	}

	_, okP := numfmt.ParseDecimal(in.InitPrice)
	_, okQ := numfmt.ParseDecimal(in.InitQty)
	target, okT := numfmt.ParseDecimal(in.TargetAvg)
	invest, okI := numfmt.ParseDecimal(in.PlanInvest)
	if okP && okQ && okT && okI {
		res.RequiredPrice = Target(h, target, invest)
	}
	return res
}
