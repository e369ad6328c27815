package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atmx/tactician/internal/metrics"
)

// RequestTimeout bounds every non-WebSocket request.
const RequestTimeout = 30 * time.Second

// NewRouter builds the HTTP handler: middleware, health, metrics and the
// /api/v1 routes. hub may be nil, in which case /api/v1/ws is not served.
func NewRouter(svc *Service, hub *WSHub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for the local UI.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"tactician"}`))
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Real-time engine events. Registered outside the timeout group so
		// long-lived connections are not cut.
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(RequestTimeout))
			svc.Routes(r)
		})
	})

	return r
}

// Routes mounts the REST endpoints on r.
func (s *Service) Routes(r chi.Router) {
	// Market data.
	r.Get("/quotes", s.GetQuotes)
	r.Get("/quotes/search", s.SearchQuotes)

	// Stateless calculators.
	r.Post("/calc/position", s.CalcPosition)
	r.Post("/calc/average", s.CalcAverage)
	r.Post("/calc/target", s.CalcTarget)

	// Paper position ledger.
	r.Get("/positions", s.ListPositions)
	r.Post("/positions", s.SavePosition)
	r.Delete("/positions/{id}", s.DeletePosition)

	// Prediction game.
	r.Get("/predictions", s.ListPredictions)
	r.Post("/predictions", s.StartPrediction)
	r.Get("/predictions/stats", s.PredictionStats)

	// Persisted form inputs.
	r.Get("/settings/calculator", s.GetCalculatorSettings)
	r.Put("/settings/calculator", s.PutCalculatorSettings)
	r.Get("/settings/averaging", s.GetAveragingSettings)
	r.Put("/settings/averaging", s.PutAveragingSettings)
	r.Delete("/settings/averaging", s.ResetAveragingSettings)
}
