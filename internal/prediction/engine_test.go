package prediction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/tactician/internal/model"
	"github.com/atmx/tactician/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var t0 = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func quotes(btcPrice float64) []model.Quote {
	return []model.Quote{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", Price: d(btcPrice)},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", Price: d(3000)},
	}
}

type testEnv struct {
	kv  *store.MemoryKV
	eng *Engine
	now time.Time
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{kv: store.NewMemoryKV(), now: t0}
	env.eng = env.open(t)
	return env
}

func (env *testEnv) open(t *testing.T) *Engine {
	t.Helper()
	n := 0
	eng, err := Open(context.Background(), store.NewGameRepository(env.kv),
		WithClock(func() time.Time { return env.now }),
		WithIDs(func() string { n++; return fmt.Sprintf("g%d", n) }))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return eng
}

func (env *testEnv) start(t *testing.T, dir model.Direction, minutes int, bet string) model.Game {
	t.Helper()
	g, err := env.eng.Start(context.Background(), StartRequest{
		Symbol: "BTC", Direction: dir, DurationMinutes: minutes, BetAmount: bet,
	}, quotes(100))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return g
}

// --- Start ---

func TestStart_CreatesActiveGame(t *testing.T) {
	env := newEnv(t)
	g := env.start(t, model.DirectionUp, 5, "100")

	if g.Status != model.GameActive || g.InstrumentID != "bitcoin" || g.Symbol != "BTC" {
		t.Errorf("unexpected game: %+v", g)
	}
	if !g.StartPrice.Equal(d(100)) || !g.BetAmount.Equal(d(100)) {
		t.Errorf("unexpected prices: start=%s bet=%s", g.StartPrice, g.BetAmount)
	}
	if !g.TargetTime.Equal(t0.Add(5 * time.Minute)) {
		t.Errorf("expected target %v, got %v", t0.Add(5*time.Minute), g.TargetTime)
	}
	if g.SettledPrice != nil || g.PnL != nil {
		t.Error("active game must not carry settlement fields")
	}
}

func TestStart_ResolvesPairNotation(t *testing.T) {
	env := newEnv(t)
	g, err := env.eng.Start(context.Background(), StartRequest{
		Symbol: "eth/usdt", Direction: model.DirectionDown, DurationMinutes: 1, BetAmount: "5",
	}, quotes(100))
	if err != nil {
		t.Fatal(err)
	}
	if g.InstrumentID != "ethereum" || !g.StartPrice.Equal(d(3000)) {
		t.Errorf("unexpected game: %+v", g)
	}
}

func TestStart_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  StartRequest
		q    []model.Quote
		want error
	}{
		{"empty bet", StartRequest{"BTC", model.DirectionUp, 1, ""}, quotes(100), ErrInvalidBet},
		{"zero bet", StartRequest{"BTC", model.DirectionUp, 1, "0"}, quotes(100), ErrInvalidBet},
		{"negative bet", StartRequest{"BTC", model.DirectionUp, 1, "-10"}, quotes(100), ErrInvalidBet},
		{"garbage bet", StartRequest{"BTC", model.DirectionUp, 1, "ten"}, quotes(100), ErrInvalidBet},
		{"bad duration", StartRequest{"BTC", model.DirectionUp, 2, "10"}, quotes(100), ErrInvalidDuration},
		{"bad direction", StartRequest{"BTC", "sideways", 1, "10"}, quotes(100), ErrInvalidDirection},
		{"unknown symbol", StartRequest{"XRP", model.DirectionUp, 1, "10"}, quotes(100), ErrNoQuote},
		{"no quotes", StartRequest{"BTC", model.DirectionUp, 1, "10"}, nil, ErrNoQuote},
		{"zero price", StartRequest{"BTC", model.DirectionUp, 1, "10"}, quotes(0), ErrNoQuote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			_, err := env.eng.Start(context.Background(), tt.req, tt.q)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if len(env.eng.Games()) != 0 {
				t.Error("rejected start must not create a game")
			}
			if _, err := env.kv.Get(context.Background(), store.KeyGames); !errors.Is(err, store.ErrNotFound) {
				t.Error("rejected start must not write state")
			}
		})
	}
}

// --- Settle ---

func TestSettle_WinLoseTie(t *testing.T) {
	tests := []struct {
		dir    model.Direction
		price  float64
		status model.GameStatus
		pnl    float64
	}{
		{model.DirectionUp, 101, model.GameWon, 100},
		{model.DirectionUp, 99, model.GameLost, -100},
		{model.DirectionUp, 100, model.GameLost, -100},
		{model.DirectionDown, 99, model.GameWon, 100},
		{model.DirectionDown, 101, model.GameLost, -100},
		{model.DirectionDown, 100, model.GameLost, -100},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%v", tt.dir, tt.price), func(t *testing.T) {
			env := newEnv(t)
			env.start(t, tt.dir, 1, "100")

			res, err := env.eng.Settle(context.Background(), t0.Add(time.Minute), quotes(tt.price))
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Settled) != 1 {
				t.Fatalf("expected 1 settled game, got %d", len(res.Settled))
			}
			g := res.Settled[0]
			if g.Status != tt.status {
				t.Errorf("expected %s, got %s", tt.status, g.Status)
			}
			if g.PnL == nil || !g.PnL.Equal(d(tt.pnl)) {
				t.Errorf("expected pnl %v, got %v", tt.pnl, g.PnL)
			}
			if g.SettledPrice == nil || !g.SettledPrice.Equal(d(tt.price)) {
				t.Errorf("expected settled price %v, got %v", tt.price, g.SettledPrice)
			}
		})
	}
}

func TestSettle_NotBeforeTargetTime(t *testing.T) {
	env := newEnv(t)
	env.start(t, model.DirectionUp, 5, "100")
	before, _ := env.kv.Get(context.Background(), store.KeyGames)

	res, err := env.eng.Settle(context.Background(), t0.Add(5*time.Minute-time.Second), quotes(150))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Settled) != 0 || res.Deferred != 0 {
		t.Errorf("unexpired game must be untouched: %+v", res)
	}
	after, _ := env.kv.Get(context.Background(), store.KeyGames)
	if before != after {
		t.Error("no-op settlement must not write")
	}
}

func TestSettle_DefersWithoutQuote(t *testing.T) {
	env := newEnv(t)
	env.start(t, model.DirectionUp, 1, "100")

	for i := 1; i <= 5; i++ {
		res, err := env.eng.Settle(context.Background(), t0.Add(time.Duration(i)*time.Hour), nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Deferred != 1 || len(res.Settled) != 0 {
			t.Fatalf("pass %d: expected deferral, got %+v", i, res)
		}
	}
	if active := env.eng.Active(); len(active) != 1 {
		t.Fatalf("expected game still active, got %d", len(active))
	}

	// Only other instruments quoted: still deferred.
	res, _ := env.eng.Settle(context.Background(), t0.Add(6*time.Hour),
		[]model.Quote{{ID: "ethereum", Symbol: "eth", Price: d(3000)}})
	if res.Deferred != 1 {
		t.Errorf("expected deferral with unrelated quotes, got %+v", res)
	}

	res, _ = env.eng.Settle(context.Background(), t0.Add(7*time.Hour), quotes(120))
	if len(res.Settled) != 1 || res.Settled[0].Status != model.GameWon {
		t.Errorf("expected settlement once quote appears, got %+v", res)
	}
}

func TestSettle_Idempotent(t *testing.T) {
	env := newEnv(t)
	env.start(t, model.DirectionUp, 1, "100")
	ctx := context.Background()

	env.eng.Settle(ctx, t0.Add(time.Minute), quotes(101))
	res, err := env.eng.Settle(ctx, t0.Add(2*time.Minute), quotes(50))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Settled) != 0 {
		t.Error("settled game must not settle again")
	}
	g := env.eng.Games()[0]
	if g.Status != model.GameWon || !g.SettledPrice.Equal(d(101)) {
		t.Errorf("terminal game changed: %+v", g)
	}
}

func TestSettle_LegacyGameBySymbol(t *testing.T) {
	env := newEnv(t)
	legacy := []model.Game{{
		ID: "old", Symbol: "BTC", StartPrice: d(100), PlacedAt: t0,
		TargetTime: t0.Add(time.Minute), DurationMinutes: 1,
		Direction: model.DirectionDown, BetAmount: d(10), Status: model.GameActive,
	}}
	store.NewGameRepository(env.kv).Save(context.Background(), legacy)
	eng := env.open(t)

	res, err := eng.Settle(context.Background(), t0.Add(time.Minute), quotes(90))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Settled) != 1 || res.Settled[0].Status != model.GameWon {
		t.Errorf("expected legacy game settled by symbol, got %+v", res)
	}
}

// --- Views & persistence ---

func TestStatsAndHistory(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	if s := env.eng.Stats(); s.TotalGames != 0 || !s.WinRatePct.IsZero() || !s.TotalPnL.IsZero() {
		t.Errorf("expected empty stats, got %+v", s)
	}

	env.start(t, model.DirectionUp, 1, "100")  // g1: win
	env.start(t, model.DirectionDown, 1, "50") // g2: loss
	env.start(t, model.DirectionUp, 1, "30")   // g3: win
	env.start(t, model.DirectionUp, 15, "10")  // g4: still active
	env.eng.Settle(ctx, t0.Add(time.Minute), quotes(110))

	s := env.eng.Stats()
	if s.TotalGames != 3 || s.Wins != 2 {
		t.Errorf("expected 3 games 2 wins, got %+v", s)
	}
	if !s.TotalPnL.Equal(d(80)) {
		t.Errorf("expected total pnl 80, got %s", s.TotalPnL)
	}
	if got := s.WinRatePct.Round(4); !got.Equal(d(66.6667)) {
		t.Errorf("expected win rate 66.6667, got %s", got)
	}

	hist := env.eng.History(HistoryLimit)
	if len(hist) != 3 || hist[0].ID != "g3" || hist[2].ID != "g1" {
		t.Errorf("expected history newest first, got %+v", hist)
	}
	if h := env.eng.History(2); len(h) != 2 {
		t.Errorf("expected limit 2, got %d", len(h))
	}
	active := env.eng.Active()
	if len(active) != 1 || active[0].ID != "g4" {
		t.Errorf("expected g4 active, got %+v", active)
	}
}

func TestOpen_RestoresAndSurvivesCorruption(t *testing.T) {
	env := newEnv(t)
	env.start(t, model.DirectionUp, 1, "100")
	env.eng.Settle(context.Background(), t0.Add(time.Minute), quotes(105))

	reopened := env.open(t)
	games := reopened.Games()
	if len(games) != 1 || games[0].Status != model.GameWon || games[0].PnL == nil {
		t.Errorf("unexpected restored games: %+v", games)
	}

	env.kv.Set(context.Background(), store.KeyGames, "not json")
	broken := env.open(t)
	if len(broken.Games()) != 0 {
		t.Error("corrupt state should load as empty")
	}
}

func TestRemaining(t *testing.T) {
	g := model.Game{TargetTime: t0.Add(90 * time.Second)}
	if r := Remaining(g, t0); r != 90*time.Second {
		t.Errorf("expected 90s, got %s", r)
	}
	if r := Remaining(g, t0.Add(time.Hour)); r != 0 {
		t.Errorf("expected 0 after target, got %s", r)
	}
}
