// Package quote provides market quotes: a CoinGecko client and the cache
// every consumer reads the latest snapshot from.
//
// Consumers never wait on the network. The scheduler calls Cache.Refresh on
// a timer; everything else reads Cache.Current.
package quote

import (
	"context"
	_ "embed"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/tactician/internal/model"
)

// DefaultTTL is how long a fetched snapshot is served before refetching.
const DefaultTTL = 60 * time.Second

// Source provides quotes. Implementations may return cached or fallback data.
type Source interface {
	Quotes(ctx context.Context) ([]model.Quote, error)
}

//go:embed fallback.json
var fallbackJSON []byte

// Snapshot is one immutable set of quotes.
type Snapshot struct {
	Quotes    []model.Quote `json:"quotes"`
	FetchedAt time.Time     `json:"fetched_at"`
	Fallback  bool          `json:"fallback"` // built-in dataset, nothing fetched yet
	Stale     bool          `json:"stale"`    // last refresh failed, serving last good data
}

// Prices returns id -> price for every quote.
func (s Snapshot) Prices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Quotes))
	for _, q := range s.Quotes {
		out[q.ID] = q.Price
	}
	return out
}

// Lookup finds a quote by instrument id.
func (s Snapshot) Lookup(id string) (model.Quote, bool) {
	for _, q := range s.Quotes {
		if q.ID == id {
			return q, true
		}
	}
	return model.Quote{}, false
}

// BySymbol finds the first quote whose symbol matches case-insensitively.
func (s Snapshot) BySymbol(symbol string) (model.Quote, bool) {
	for _, q := range s.Quotes {
		if strings.EqualFold(q.Symbol, symbol) {
			return q, true
		}
	}
	return model.Quote{}, false
}

// Live returns the quotes only if they came from the upstream source. The
// built-in dataset is not a market price.
func (s Snapshot) Live() []model.Quote {
	if s.Fallback {
		return nil
	}
	return s.Quotes
}

// Cache holds the last good snapshot and when it was fetched.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	fetchMu sync.Mutex // serializes upstream fetches

	mu            sync.RWMutex
	snapshot      Snapshot
	lastFetchedAt time.Time
	fallback      []model.Quote
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithFallback replaces the built-in fallback dataset.
func WithFallback(quotes []model.Quote) Option {
	return func(c *Cache) { c.fallback = quotes }
}

// NewCache creates a cache over source. ttl <= 0 uses DefaultTTL. Until the
// first successful fetch the cache serves the built-in fallback dataset.
func NewCache(source Source, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{source: source, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.fallback == nil {
		fb, err := decodeMarkets(fallbackJSON)
		if err != nil {
			slog.Error("built-in fallback quotes unreadable", "err", err)
		}
		c.fallback = fb
	}
	c.snapshot = Snapshot{Quotes: c.fallback, Fallback: true}
	return c
}

// Current returns the latest snapshot without blocking on the network.
func (c *Cache) Current() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LastFetchedAt returns when the current data was fetched; zero if never.
func (c *Cache) LastFetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFetchedAt
}

// Refresh fetches a new snapshot if the current one is older than the TTL.
// On failure the previous snapshot is kept (marked stale, or the fallback
// dataset if nothing was ever fetched) and the error is returned alongside it.
func (c *Cache) Refresh(ctx context.Context) (Snapshot, error) {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	now := c.now()
	c.mu.RLock()
	fresh := !c.lastFetchedAt.IsZero() && !c.snapshot.Stale && now.Sub(c.lastFetchedAt) < c.ttl
	current := c.snapshot
	c.mu.RUnlock()
	if fresh {
		return current, nil
	}

	quotes, err := c.source.Quotes(ctx)
	if err == nil && len(quotes) == 0 {
		err = ErrUpstream
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if !c.snapshot.Fallback {
			c.snapshot.Stale = true
		}
		slog.Warn("quote refresh failed, serving previous snapshot",
			"err", err,
			"fallback", c.snapshot.Fallback,
			"last_fetched_at", c.lastFetchedAt,
		)
		return c.snapshot, err
	}

	c.snapshot = Snapshot{Quotes: quotes, FetchedAt: now}
	c.lastFetchedAt = now
	slog.Debug("quotes refreshed", "count", len(quotes))
	return c.snapshot, nil
}

// Quotes implements Source: it refreshes if due and never fails.
func (c *Cache) Quotes(ctx context.Context) ([]model.Quote, error) {
	snap, _ := c.Refresh(ctx)
	return snap.Quotes, nil
}
