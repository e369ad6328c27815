package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/atmx/tactician/internal/metrics"
	"github.com/atmx/tactician/internal/model"
	"github.com/atmx/tactician/internal/quote"
	"github.com/atmx/tactician/internal/schedule"
)

// Job names registered with the scheduler.
const (
	JobRefreshQuotes = "refresh_quotes"
	JobSettleGames   = "settle_games"
)

// RegisterJobs schedules the quote refresh and game settlement jobs.
func (s *Service) RegisterJobs(sched *schedule.Scheduler, refresh, settle time.Duration) error {
	if err := sched.Every(JobRefreshQuotes, refresh, s.RefreshQuotes); err != nil {
		return err
	}
	return sched.Every(JobSettleGames, settle, s.SettleGames)
}

// RefreshQuotes refetches quotes if the cached snapshot has expired and
// notifies clients when new data arrived.
func (s *Service) RefreshQuotes(ctx context.Context, now time.Time) {
	prev := s.quotes.LastFetchedAt()
	snap, err := s.quotes.Refresh(ctx)

	switch {
	case errors.Is(err, quote.ErrRateLimited):
		metrics.QuoteRefreshes.WithLabelValues("rate_limited").Inc()
	case err != nil:
		metrics.QuoteRefreshes.WithLabelValues("error").Inc()
	case snap.FetchedAt.Equal(prev):
		metrics.QuoteRefreshes.WithLabelValues("cached").Inc()
	default:
		metrics.QuoteRefreshes.WithLabelValues("ok").Inc()
		s.hub.Broadcast(EventQuotesRefreshed, snap)
	}

	metrics.QuotesServed.Set(float64(len(snap.Quotes)))
	if !snap.FetchedAt.IsZero() {
		metrics.QuoteSnapshotAge.Set(now.Sub(snap.FetchedAt).Seconds())
	}
}

// SettleGames resolves every expired game against the live quotes. Nothing
// settles while only the built-in dataset is available.
func (s *Service) SettleGames(ctx context.Context, now time.Time) {
	res, err := s.games.Settle(ctx, now, s.quotes.Current().Live())
	if err != nil {
		slog.Error("settle games failed", "err", err)
		return
	}

	if res.Deferred > 0 {
		metrics.SettlementsDeferred.Add(float64(res.Deferred))
	}
	for _, g := range res.Settled {
		metrics.GamesSettled.WithLabelValues(string(g.Status)).Inc()
		s.hub.Broadcast(EventGameSettled, g)
		logSettled(g)
	}
}

func logSettled(g model.Game) {
	attrs := []any{"id", g.ID, "symbol", g.Symbol, "status", g.Status}
	if g.PnL != nil {
		attrs = append(attrs, "pnl", g.PnL.String())
	}
	slog.Info("game settled", attrs...)
}
