// Package prediction runs the up/down price prediction game: a wager that an
// instrument's price will be above (up) or below (down) its start price once
// the chosen duration has elapsed.
//
// Games move active -> won or active -> lost exactly once. An exact tie
// satisfies neither direction and settles as a loss.
package prediction

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

	"github.com/atmx/tactician/internal/instrument"
	"github.com/atmx/tactician/internal/model"
	"github.com/atmx/tactician/internal/numfmt"
	"github.com/atmx/tactician/internal/store"
)

// Durations are the allowed game lengths in minutes.
var Durations = []int{1, 5, 15}

// DefaultBet is the bet amount the UI starts with.
var DefaultBet = decimal.NewFromInt(100)

// HistoryLimit is the length of the recent-results list.
const HistoryLimit = 10

var (
	ErrInvalidBet       = errors.New("prediction: bet amount must be a positive number")
	ErrInvalidDuration  = errors.New("prediction: duration must be 1, 5 or 15 minutes")
	ErrInvalidDirection = errors.New("prediction: direction must be up or down")
	ErrNoQuote          = errors.New("prediction: no current quote for instrument")
)

// Repository persists the game list.
type Repository interface {
	Load(ctx context.Context) ([]model.Game, error)
	Save(ctx context.Context, games []model.Game) error
}

// StartRequest is a new wager. Symbol accepts anything instrument.Resolve
// does (id, symbol or pair notation).
type StartRequest struct {
	Symbol          string          `json:"symbol"`
	Direction       model.Direction `json:"direction"`
	DurationMinutes int             `json:"duration_minutes"`
	BetAmount       string          `json:"bet_amount"`
}

// Engine owns the game list. Safe for concurrent use.
type Engine struct {
	repo  Repository
	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	games []model.Game // newest first
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used by Start.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs overrides the id generator.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// Open restores the engine from repo. Corrupt persisted data is discarded
// with a warning; any other load failure is returned.
func Open(ctx context.Context, repo Repository, opts ...Option) (*Engine, error) {
	e := &Engine{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(e)
	}

	games, err := repo.Load(ctx)
	switch {
	case errors.Is(err, store.ErrCorruptState):
		slog.Warn("saved prediction games unreadable, starting empty", "err", err)
		games = []model.Game{}
	case err != nil:
		return nil, fmt.Errorf("load games: %w", err)
	}
	e.games = games

	slog.Info("prediction engine opened", "games", len(games))
	return e, nil
}

// Start validates req against the current quotes and records an active game.
// Nothing is written when validation fails.
func (e *Engine) Start(ctx context.Context, req StartRequest, quotes []model.Quote) (model.Game, error) {
	if !req.Direction.Valid() {
		return model.Game{}, fmt.Errorf("%w: %q", ErrInvalidDirection, req.Direction)
	}
	if !validDuration(req.DurationMinutes) {
		return model.Game{}, fmt.Errorf("%w: %d", ErrInvalidDuration, req.DurationMinutes)
	}
	bet, ok := numfmt.ParseDecimal(req.BetAmount)
	if !ok || !bet.IsPositive() {
		return model.Game{}, ErrInvalidBet
	}
	q, err := instrument.Resolve(quotes, req.Symbol)
	if err != nil || !q.Price.IsPositive() {
		return model.Game{}, fmt.Errorf("%w: %s", ErrNoQuote, req.Symbol)
	}

	now := e.now()
	g := model.Game{
		ID:              e.newID(),
		InstrumentID:    q.ID,
		Symbol:          strings.ToUpper(q.Symbol),
		StartPrice:      q.Price,
		PlacedAt:        now,
		TargetTime:      now.Add(time.Duration(req.DurationMinutes) * time.Minute),
		DurationMinutes: req.DurationMinutes,
		Direction:       req.Direction,
		BetAmount:       bet,
		Status:          model.GameActive,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := make([]model.Game, 0, len(e.games)+1)
	next = append(next, g)
	next = append(next, e.games...)
	if err := e.repo.Save(ctx, next); err != nil {
		slog.Error("persist games failed", "err", err)
		return model.Game{}, fmt.Errorf("start game: %w", err)
	}
	e.games = next

	slog.Info("prediction game started",
		"id", g.ID,
		"symbol", g.Symbol,
		"direction", g.Direction,
		"start_price", g.StartPrice.String(),
		"bet", g.BetAmount.String(),
		"target_time", g.TargetTime,
	)
	return g, nil
}

// SettleResult reports one settlement pass.
type SettleResult struct {
	Settled  []model.Game
	Deferred int // expired games left active for lack of a quote
}

// Settle resolves every active game whose target time is at or before now.
// Games without a current quote stay active. The list is persisted only when
// at least one game changed; if that fails nothing is committed and the
// games are retried on the next pass.
func (e *Engine) Settle(ctx context.Context, now time.Time, quotes []model.Quote) (SettleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res SettleResult
	next := make([]model.Game, len(e.games))
	copy(next, e.games)

	for i, g := range next {
		if g.Status != model.GameActive || now.Before(g.TargetTime) {
			continue
		}
		q, ok := lookup(quotes, g)
		if !ok {
			res.Deferred++
			continue
		}
		next[i] = settle(g, q.Price)
		res.Settled = append(res.Settled, next[i])
	}

	if len(res.Settled) == 0 {
		return res, nil
	}
	if err := e.repo.Save(ctx, next); err != nil {
		slog.Error("persist games failed", "err", err)
		return SettleResult{Deferred: res.Deferred}, fmt.Errorf("settle games: %w", err)
	}
	e.games = next

	for _, g := range res.Settled {
		slog.Info("prediction game settled",
			"id", g.ID,
			"symbol", g.Symbol,
			"status", g.Status,
			"start_price", g.StartPrice.String(),
			"settled_price", g.SettledPrice.String(),
			"pnl", g.PnL.String(),
		)
	}
	return res, nil
}

// settle applies the strict-inequality win rule to g at price.
func settle(g model.Game, price decimal.Decimal) model.Game {
	var win bool
	if g.Direction == model.DirectionUp {
		win = price.GreaterThan(g.StartPrice)
	} else {
		win = price.LessThan(g.StartPrice)
	}

	pnl := g.BetAmount.Neg()
	g.Status = model.GameLost
	if win {
		pnl = g.BetAmount
		g.Status = model.GameWon
	}
	g.SettledPrice = &price
	g.PnL = &pnl
	return g
}

// lookup finds the settlement quote: by instrument id, or by symbol for
// games recorded without one.
func lookup(quotes []model.Quote, g model.Game) (model.Quote, bool) {
	for _, q := range quotes {
		if g.InstrumentID != "" && q.ID == g.InstrumentID {
			return q, q.Price.IsPositive()
		}
	}
	if g.InstrumentID != "" {
		return model.Quote{}, false
	}
	for _, q := range quotes {
		if strings.EqualFold(q.Symbol, g.Symbol) {
			return q, q.Price.IsPositive()
		}
	}
	return model.Quote{}, false
}

func validDuration(minutes int) bool {
	for _, d := range Durations {
		if d == minutes {
			return true
		}
	}
	return false
}

// --- Views ---

// Games returns every game, newest first.
func (e *Engine) Games() []model.Game {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Game{}, e.games...)
}

// Active returns the games still awaiting settlement, newest first.
func (e *Engine) Active() []model.Game {
	return e.filter(func(g model.Game) bool { return !g.Settled() }, 0)
}

// History returns settled games, newest first. limit <= 0 means all.
func (e *Engine) History(limit int) []model.Game {
	return e.filter(model.Game.Settled, limit)
}

func (e *Engine) filter(keep func(model.Game) bool, limit int) []model.Game {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Game, 0)
	for _, g := range e.games {
		if limit > 0 && len(out) >= limit {
			break
		}
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}

// Stats summarises the settled games.
func (e *Engine) Stats() model.GameStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := model.GameStats{WinRatePct: decimal.Zero, TotalPnL: decimal.Zero}
	for _, g := range e.games {
		if !g.Settled() {
			continue
		}
		s.TotalGames++
		if g.Status == model.GameWon {
			s.Wins++
		}
		if g.PnL != nil {
			s.TotalPnL = s.TotalPnL.Add(*g.PnL)
		}
	}
	if s.TotalGames > 0 {
		s.WinRatePct = decimal.NewFromInt(int64(s.Wins)).
			Div(decimal.NewFromInt(int64(s.TotalGames))).
			Mul(numfmt.Hundred())
	}
	return s
}

// Remaining returns the time left until g's target time, never negative.
func Remaining(g model.Game, now time.Time) time.Duration {
	left := g.TargetTime.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
