// Package model defines the core domain types shared across the tactician engine.
// Prices, quantities and cash amounts use shopspring/decimal.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects spot or leveraged futures maths.
type Mode string

const (
	ModeSpot   Mode = "spot"
	ModeFuture Mode = "future"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeSpot || m == ModeFuture }

// Side is the direction of a simulated position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideLong || s == SideShort }

// Unit is the unit the user typed the amount in.
type Unit string

const (
	UnitQuote Unit = "quote" // quote currency, e.g. USDT
	UnitBase  Unit = "base"  // base currency, e.g. BTC
)

// Basis says whether a quote-currency amount is the margin put up or the
// full position value. Ignored for base-currency amounts.
type Basis string

const (
	BasisPrincipal Basis = "principal"
	BasisNotional  Basis = "notional"
)

// Direction is the player's call in a prediction game.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool { return d == DirectionUp || d == DirectionDown }

// GameStatus is the lifecycle state of a prediction game.
// Won and lost are terminal.
type GameStatus string

const (
	GameActive GameStatus = "active"
	GameWon    GameStatus = "won"
	GameLost   GameStatus = "lost"
)

// Quote is one instrument in a quote snapshot. Snapshots are replaced
// wholesale on each refresh; no history is retained.
type Quote struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Change24hPct decimal.Decimal `json:"change_24h_pct"`
}

// Position is a saved paper position. AmountBase is always the quantity in
// base currency regardless of how the amount was entered.
// Schema: {id, instrument, entry, amount, leverage, side, mode, created}
type Position struct {
	ID           string          `json:"id"`
	InstrumentID string          `json:"instrument_id"`
	Symbol       string          `json:"symbol"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	AmountBase   decimal.Decimal `json:"amount_base"`
	Leverage     int             `json:"leverage"` // always 1 in spot mode
	Side         Side            `json:"side"`
	Mode         Mode            `json:"mode"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PositionValuation is a position marked to the current quote.
type PositionValuation struct {
	Position
	CurrentPrice decimal.Decimal `json:"current_price"`
	QuoteMissing bool            `json:"quote_missing"` // current price fell back to entry
	Cost         decimal.Decimal `json:"cost"`
	PnL          decimal.Decimal `json:"pnl"`
	ROEPct       decimal.Decimal `json:"roe_pct"`
}

// Portfolio is the read-only mark-to-market view of the ledger.
type Portfolio struct {
	Positions []PositionValuation `json:"positions"`
	TotalPnL  decimal.Decimal     `json:"total_pnl"`
}

// Game is one wagered up/down prediction. SettledPrice and PnL are nil
// until the game settles.
type Game struct {
	ID              string           `json:"id"`
	InstrumentID    string           `json:"instrument_id,omitempty"`
	Symbol          string           `json:"symbol"`
	StartPrice      decimal.Decimal  `json:"start_price"`
	PlacedAt        time.Time        `json:"placed_at"`
	TargetTime      time.Time        `json:"target_time"`
	DurationMinutes int              `json:"duration_minutes"`
	Direction       Direction        `json:"direction"`
	BetAmount       decimal.Decimal  `json:"bet_amount"`
	Status          GameStatus       `json:"status"`
	SettledPrice    *decimal.Decimal `json:"settled_price,omitempty"`
	PnL             *decimal.Decimal `json:"pnl,omitempty"`
}

// Settled reports whether the game reached a terminal state.
func (g Game) Settled() bool { return g.Status == GameWon || g.Status == GameLost }

// GameStats summarises settled games.
type GameStats struct {
	TotalGames int             `json:"total_games"`
	Wins       int             `json:"wins"`
	WinRatePct decimal.Decimal `json:"win_rate_pct"`
	TotalPnL   decimal.Decimal `json:"total_pnl"`
}
