// Package calc implements the position maths for simulated spot and futures
// trades: margin, position size, PnL, ROE, liquidation price and
// take-profit/stop-loss targets.
//
// Every function here is pure. Unparseable input is the normal state while a
// user is typing, so it yields a Metrics with Valid=false rather than an error.
//
// The liquidation formula is a deliberate simplification: a fixed 0.5%
// maintenance margin rate with no funding or fee adjustment.
package calc

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/tactician/internal/model"
	"github.com/atmx/tactician/internal/numfmt"
)

const (
	// MinLeverage and MaxLeverage bound the futures leverage slider.
	MinLeverage = 1
	MaxLeverage = 125
)

var (
	// MaintenanceMarginRate is the fixed MMR used for liquidation prices.
	MaintenanceMarginRate = decimal.RequireFromString("0.005")

	// MaxTakeProfitRate caps the take-profit rate, in percent of margin.
	MaxTakeProfitRate = decimal.NewFromInt(300)

	// MaxStopLossRate caps the stop-loss rate, in percent of margin.
	MaxStopLossRate = decimal.NewFromInt(100)

	one = decimal.NewFromInt(1)
)

// Params are the raw calculator inputs. Price, amount and rate fields are
// kept as typed text so half-entered values can be represented.
type Params struct {
	Mode           model.Mode  `json:"mode"`
	Side           model.Side  `json:"side"`
	Unit           model.Unit  `json:"unit"`
	Basis          model.Basis `json:"basis"`
	Leverage       int         `json:"leverage"`
	EntryPrice     string      `json:"entry_price"`
	ExitPrice      string      `json:"exit_price"`
	Amount         string      `json:"amount"`
	TakeProfitRate string      `json:"take_profit_rate"`
	StopLossRate   string      `json:"stop_loss_rate"`
}

// Metrics is the calculator output. Fields that cannot be derived from the
// inputs (no exit price, spot mode, no TP/SL rate) are null rather than zero,
// so "no exit price" stays distinct from "break-even".
type Metrics struct {
	Valid            bool                `json:"valid"`
	Leverage         int                 `json:"leverage"`
	EntryPrice       decimal.NullDecimal `json:"entry_price"`
	PositionSize     decimal.NullDecimal `json:"position_size"`
	Notional         decimal.NullDecimal `json:"notional"`
	Margin           decimal.NullDecimal `json:"margin"`
	PnL              decimal.NullDecimal `json:"pnl"`
	ROEPct           decimal.NullDecimal `json:"roe_pct"`
	BankruptcyPrice  decimal.NullDecimal `json:"bankruptcy_price"`
	LiquidationPrice decimal.NullDecimal `json:"liquidation_price"`
	TakeProfitPrice  decimal.NullDecimal `json:"take_profit_price"`
	TakeProfitValue  decimal.NullDecimal `json:"take_profit_value"`
	StopLossPrice    decimal.NullDecimal `json:"stop_loss_price"`
	StopLossValue    decimal.NullDecimal `json:"stop_loss_value"`
}

// EffectiveLeverage returns the leverage the maths runs with: 1 in spot
// mode, otherwise the requested leverage clamped to [MinLeverage, MaxLeverage].
func EffectiveLeverage(mode model.Mode, leverage int) int {
	if mode == model.ModeSpot {
		return 1
	}
	if leverage < MinLeverage {
		return MinLeverage
	}
	if leverage > MaxLeverage {
		return MaxLeverage
	}
	return leverage
}

// ResolveSize converts the entered amount into a base-currency quantity and
// the margin it requires.
//
//	base unit:            size = amount,              margin = size*entry/lev
//	quote unit, notional: size = amount/entry,        margin = amount/lev
//	quote unit, principal: size = amount*lev/entry,   margin = amount
//
// entry must be positive.
func ResolveSize(unit model.Unit, basis model.Basis, amount, entry decimal.Decimal, leverage int) (size, margin decimal.Decimal) {
	lev := decimal.NewFromInt(int64(leverage))
	switch {
	case unit == model.UnitBase:
		size = amount
		margin = size.Mul(entry).Div(lev)
	case basis == model.BasisNotional:
		size = amount.Div(entry)
		margin = amount.Div(lev)
	default:
		margin = amount
		size = amount.Mul(lev).Div(entry)
	}
	return size, margin
}

// PnL returns the profit of size units moved from entry to exit.
func PnL(side model.Side, entry, exit, size decimal.Decimal) decimal.Decimal {
	if side == model.SideShort {
		return entry.Sub(exit).Mul(size)
	}
	return exit.Sub(entry).Mul(size)
}

// ROE returns pnl as a percentage of margin. It reports ok=false when the
// margin is zero.
func ROE(pnl, margin decimal.Decimal) (decimal.Decimal, bool) {
	if margin.IsZero() {
		return decimal.Zero, false
	}
	return pnl.Div(margin).Mul(numfmt.Hundred()), true
}

// LiquidationPrice computes the bankruptcy and liquidation prices of a
// futures position:
//
//	bankruptcy  long: entry*(1-1/lev)      short: entry*(1+1/lev)
//	liquidation long: bankruptcy/(1-MMR)   short: bankruptcy/(1+MMR)
//
// Negative results are clamped to zero.
func LiquidationPrice(side model.Side, entry decimal.Decimal, leverage int) (bankruptcy, liquidation decimal.Decimal) {
	inv := one.Div(decimal.NewFromInt(int64(leverage)))
	if side == model.SideShort {
		bankruptcy = entry.Mul(one.Add(inv))
		liquidation = bankruptcy.Div(one.Add(MaintenanceMarginRate))
	} else {
		bankruptcy = entry.Mul(one.Sub(inv))
		liquidation = bankruptcy.Div(one.Sub(MaintenanceMarginRate))
	}
	if bankruptcy.IsNegative() {
		bankruptcy = decimal.Zero
	}
	if liquidation.IsNegative() {
		liquidation = decimal.Zero
	}
	return bankruptcy, liquidation
}

// TargetPrice returns the price at which a position gains (takeProfit=true)
// or loses rate percent of its margin: factor = rate/100/lev.
func TargetPrice(side model.Side, entry, rate decimal.Decimal, leverage int, takeProfit bool) decimal.Decimal {
	factor := rate.Div(numfmt.Hundred()).Div(decimal.NewFromInt(int64(leverage)))
	up := takeProfit == (side == model.SideLong)
	if up {
		return entry.Mul(one.Add(factor))
	}
	return entry.Mul(one.Sub(factor))
}

// ComputePositionMetrics derives every calculator output from p.
func ComputePositionMetrics(p Params) Metrics {
	lev := EffectiveLeverage(p.Mode, p.Leverage)
	m := Metrics{Leverage: lev}

	entry, ok := numfmt.ParseDecimal(p.EntryPrice)
	if !ok || !entry.IsPositive() {
		return m
	}
	amount, ok := numfmt.ParseDecimal(p.Amount)
	if !ok || amount.IsNegative() {
		return m
	}

	size, margin := ResolveSize(p.Unit, p.Basis, amount, entry, lev)
	m.Valid = true
	m.EntryPrice = decimal.NewNullDecimal(entry)
	m.PositionSize = decimal.NewNullDecimal(size)
	m.Notional = decimal.NewNullDecimal(size.Mul(entry))
	m.Margin = decimal.NewNullDecimal(margin)

	if exit, ok := numfmt.ParseDecimal(p.ExitPrice); ok && !exit.IsNegative() {
		pnl := PnL(p.Side, entry, exit, size)
		m.PnL = decimal.NewNullDecimal(pnl)
		if roe, ok := ROE(pnl, margin); ok {
			m.ROEPct = decimal.NewNullDecimal(roe)
		}
	}

	if p.Mode != model.ModeFuture {
		return m
	}

	bankruptcy, liq := LiquidationPrice(p.Side, entry, lev)
	m.BankruptcyPrice = decimal.NewNullDecimal(bankruptcy)
	m.LiquidationPrice = decimal.NewNullDecimal(liq)

	if rate, ok := parseRate(p.TakeProfitRate, MaxTakeProfitRate); ok {
		m.TakeProfitPrice = decimal.NewNullDecimal(TargetPrice(p.Side, entry, rate, lev, true))
		m.TakeProfitValue = decimal.NewNullDecimal(margin.Mul(rate).Div(numfmt.Hundred()))
	}
	if rate, ok := parseRate(p.StopLossRate, MaxStopLossRate); ok {
		m.StopLossPrice = decimal.NewNullDecimal(TargetPrice(p.Side, entry, rate, lev, false))
		m.StopLossValue = decimal.NewNullDecimal(margin.Mul(rate).Div(numfmt.Hundred()))
	}
	return m
}

// parseRate parses a percent-of-margin rate and clamps it to [0, max].
func parseRate(raw string, max decimal.Decimal) (decimal.Decimal, bool) {
	rate, ok := numfmt.ParseDecimal(raw)
	if !ok {
		return decimal.Zero, false
	}
	if rate.IsNegative() {
		return decimal.Zero, true
	}
	if rate.GreaterThan(max) {
		return max, true
	}
	return rate, true
}
