// Package ledger keeps the user's saved paper positions and marks them to
// market against the latest quotes.
//
// The in-memory list is newest-first and is replaced as a whole on every
// mutation, after the new list has been persisted.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/tactician/internal/calc"
	"github.com/atmx/tactician/internal/model"
	"github.com/atmx/tactician/internal/store"
)

var (
	ErrNoInstrument  = errors.New("ledger: no instrument selected")
	ErrInvalidParams = errors.New("ledger: position parameters do not produce a margin")
)

// Repository persists the position list.
type Repository interface {
	Load(ctx context.Context) ([]model.Position, error)
	Save(ctx context.Context, positions []model.Position) error
}

// Ledger is the saved-position book. Safe for concurrent use.
type Ledger struct {
	repo  Repository
	now   func() time.Time
	newID func() string

	mu        sync.Mutex
	positions []model.Position
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDs overrides the id generator.
func WithIDs(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// NewID returns a time-ordered unique id (UUIDv7).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Open restores the ledger from repo. Corrupt persisted data is discarded
// with a warning; any other load failure is returned.
func Open(ctx context.Context, repo Repository, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: NewID,
	}
	for _, opt := range opts {
		opt(l)
	}

	positions, err := repo.Load(ctx)
	switch {
	case errors.Is(err, store.ErrCorruptState):
		slog.Warn("saved positions unreadable, starting empty", "err", err)
		positions = []model.Position{}
	case err != nil:
		return nil, fmt.Errorf("load positions: %w", err)
	}
	l.positions = positions

	slog.Info("ledger opened", "positions", len(positions))
	return l, nil
}

// Positions returns a copy of the saved positions, newest first.
func (l *Ledger) Positions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Position{}, l.positions...)
}

// Len returns the number of saved positions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Save records a position for inst built from the calculator parameters.
// The entered amount is normalized to a base-currency quantity the same way
// the calculator sizes it.
func (l *Ledger) Save(ctx context.Context, inst model.Quote, p calc.Params) (model.Position, error) {
	if inst.ID == "" {
		return model.Position{}, ErrNoInstrument
	}
	if !p.Mode.Valid() || !p.Side.Valid() {
		return model.Position{}, fmt.Errorf("%w: mode %q side %q", ErrInvalidParams, p.Mode, p.Side)
	}

	m := calc.ComputePositionMetrics(p)
	if !m.Valid || !m.Margin.Decimal.IsPositive() {
		return model.Position{}, ErrInvalidParams
	}

	pos := model.Position{
		ID:           l.newID(),
		InstrumentID: inst.ID,
		Symbol:       strings.ToUpper(inst.Symbol),
		EntryPrice:   m.EntryPrice.Decimal,
		AmountBase:   m.PositionSize.Decimal,
		Leverage:     m.Leverage,
		Side:         p.Side,
		Mode:         p.Mode,
		CreatedAt:    l.now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]model.Position, 0, len(l.positions)+1)
	next = append(next, pos)
	next = append(next, l.positions...)
	if err := l.repo.Save(ctx, next); err != nil {
		slog.Error("persist positions failed", "err", err)
		return model.Position{}, fmt.Errorf("save position: %w", err)
	}
	l.positions = next

	slog.Info("position saved",
		"id", pos.ID,
		"instrument", pos.InstrumentID,
		"side", pos.Side,
		"mode", pos.Mode,
		"entry", pos.EntryPrice.String(),
		"amount_base", pos.AmountBase.String(),
		"leverage", pos.Leverage,
	)
	return pos, nil
}

// Delete removes the position with id. It reports false, and writes
// nothing, when no such position exists.
func (l *Ledger) Delete(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, p := range l.positions {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	next := make([]model.Position, 0, len(l.positions)-1)
	next = append(next, l.positions[:idx]...)
	next = append(next, l.positions[idx+1:]...)
	if err := l.repo.Save(ctx, next); err != nil {
		slog.Error("persist positions failed", "err", err)
		return false, fmt.Errorf("delete position: %w", err)
	}
	l.positions = next

	slog.Info("position deleted", "id", id)
	return true, nil
}

// MarkToMarket values every position at prices (instrument id -> price).
// A position without a price is valued at its entry price.
func (l *Ledger) MarkToMarket(prices map[string]decimal.Decimal) model.Portfolio {
	positions := l.Positions()

	out := model.Portfolio{
		Positions: make([]model.PositionValuation, 0, len(positions)),
		TotalPnL:  decimal.Zero,
	}
	for _, p := range positions {
		v := Value(p, prices)
		out.Positions = append(out.Positions, v)
		out.TotalPnL = out.TotalPnL.Add(v.PnL)
	}
	return out
}

// Value marks a single position to market.
//
//	cost = amountBase*entry/leverage
//	roe  = pnl/cost*100
func Value(p model.Position, prices map[string]decimal.Decimal) model.PositionValuation {
	v := model.PositionValuation{Position: p}

	cur, ok := prices[p.InstrumentID]
	if !ok {
		cur = p.EntryPrice
		v.QuoteMissing = true
	}
	v.CurrentPrice = cur

	lev := p.Leverage
	if lev < 1 {
		lev = 1
	}
	v.Cost = p.AmountBase.Mul(p.EntryPrice).Div(decimal.NewFromInt(int64(lev)))
	v.PnL = calc.PnL(p.Side, p.EntryPrice, cur, p.AmountBase)
	if roe, ok := calc.ROE(v.PnL, v.Cost); ok {
		v.ROEPct = roe
	}
	return v
}
