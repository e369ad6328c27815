// Package api exposes the tactician engines to the local UI over HTTP and
// WebSocket, and drives the periodic quote refresh and game settlement jobs.
//
// All monetary values use shopspring/decimal and are rendered as JSON
// strings.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/tactician/internal/averaging"
	"github.com/atmx/tactician/internal/calc"
	"github.com/atmx/tactician/internal/instrument"
	"github.com/atmx/tactician/internal/ledger"
	"github.com/atmx/tactician/internal/metrics"
	"github.com/atmx/tactician/internal/model"
	"github.com/atmx/tactician/internal/numfmt"
	"github.com/atmx/tactician/internal/prediction"
	"github.com/atmx/tactician/internal/prefs"
	"github.com/atmx/tactician/internal/quote"
	"github.com/atmx/tactician/internal/schedule"
)

// DefaultSearchLimit caps instrument search results.
const DefaultSearchLimit = 20

// Deps are the engines the service fronts. Hub and Clock are optional.
type Deps struct {
	Ledger *ledger.Ledger
	Games  *prediction.Engine
	Quotes *quote.Cache
	Prefs  *prefs.Store
	Hub    *WSHub
	Clock  schedule.Clock
}

// Service handles the HTTP API and the scheduled jobs.
type Service struct {
	ledger *ledger.Ledger
	games  *prediction.Engine
	quotes *quote.Cache
	prefs  *prefs.Store
	hub    *WSHub
	clock  schedule.Clock
}

// NewService creates the API service.
func NewService(d Deps) *Service {
	clock := d.Clock
	if clock == nil {
		clock = schedule.RealClock{}
	}
	metrics.SavedPositions.Set(float64(d.Ledger.Len()))
	return &Service{
		ledger: d.Ledger,
		games:  d.Games,
		quotes: d.Quotes,
		prefs:  d.Prefs,
		hub:    d.Hub,
		clock:  clock,
	}
}

// --- Request/Response types ---

// PositionParams are the calculator inputs. Numeric fields are raw text;
// unparseable values produce empty results, not errors.
type PositionParams struct {
	Mode           model.Mode  `json:"mode" default:"future" validate:"oneof=spot future"`
	Side           model.Side  `json:"side" default:"long" validate:"oneof=long short"`
	Unit           model.Unit  `json:"unit" default:"quote" validate:"oneof=quote base"`
	Basis          model.Basis `json:"basis" default:"principal" validate:"oneof=principal notional"`
	Leverage       int         `json:"leverage" default:"10"`
	EntryPrice     string      `json:"entry_price"`
	ExitPrice      string      `json:"exit_price"`
	Amount         string      `json:"amount"`
	TakeProfitRate string      `json:"take_profit_rate"`
	StopLossRate   string      `json:"stop_loss_rate"`
}

func (p PositionParams) calcParams() calc.Params {
	return calc.Params{
		Mode:           p.Mode,
		Side:           p.Side,
		Unit:           p.Unit,
		Basis:          p.Basis,
		Leverage:       p.Leverage,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      p.ExitPrice,
		Amount:         p.Amount,
		TakeProfitRate: p.TakeProfitRate,
		StopLossRate:   p.StopLossRate,
	}
}

// SavePositionRequest is the JSON body for POST /positions. Instrument is an
// instrument id, symbol or pair such as BTC/USDT.
type SavePositionRequest struct {
	Instrument string `json:"instrument" validate:"required,max=64"`
	PositionParams
}

// TargetRequest is the JSON body for POST /calc/target.
type TargetRequest struct {
	InitPrice  string `json:"init_price"`
	InitQty    string `json:"init_qty"`
	TargetAvg  string `json:"target_avg"`
	PlanInvest string `json:"plan_invest"`
}

// TargetResponse carries the required entry price and, when reachable, the
// blend that buying at it produces.
type TargetResponse struct {
	RequiredPrice decimal.NullDecimal    `json:"required_price"`
	Projected     *averaging.BlendResult `json:"projected,omitempty"`
}

// StartGameRequest is the JSON body for POST /predictions. An absent
// bet_amount means the default bet; a present one must parse as positive.
type StartGameRequest struct {
	Symbol          string          `json:"symbol" default:"BTC" validate:"max=64"`
	Direction       model.Direction `json:"direction" validate:"required,oneof=up down"`
	DurationMinutes int             `json:"duration_minutes" default:"1" validate:"oneof=1 5 15"`
	BetAmount       *string         `json:"bet_amount,omitempty"`
}

func (r StartGameRequest) bet() string {
	if r.BetAmount == nil {
		return prediction.DefaultBet.String()
	}
	return *r.BetAmount
}

// ActiveGame is an unsettled game with its countdown.
type ActiveGame struct {
	model.Game
	RemainingSeconds int64  `json:"remaining_seconds"`
	Countdown        string `json:"countdown"`
}

// PredictionsResponse is the body of GET /predictions.
type PredictionsResponse struct {
	Active     []ActiveGame    `json:"active"`
	History    []model.Game    `json:"history"`
	Stats      model.GameStats `json:"stats"`
	DefaultBet decimal.Decimal `json:"default_bet"`
	Durations  []int           `json:"durations"`
}

// CalculatorSettingsRequest is the JSON body for PUT /settings/calculator.
// Mode decides whether leverage is stored.
type CalculatorSettingsRequest struct {
	Mode           model.Mode  `json:"mode" default:"future" validate:"oneof=spot future"`
	Unit           model.Unit  `json:"unit" default:"quote" validate:"oneof=quote base"`
	Basis          model.Basis `json:"basis" default:"principal" validate:"oneof=principal notional"`
	Leverage       int         `json:"leverage" default:"10" validate:"gte=1,lte=125"`
	Amount         string      `json:"amount" validate:"max=64"`
	TakeProfitRate string      `json:"take_profit_rate" validate:"max=64"`
	StopLossRate   string      `json:"stop_loss_rate" validate:"max=64"`
}

// AveragingSettings is the body of GET/PUT /settings/averaging.
type AveragingSettings struct {
	Inputs averaging.Inputs `json:"inputs"`
	Result averaging.Result `json:"result"`
}

// --- HTTP Handlers: quotes ---

// GetQuotes handles GET /api/v1/quotes
func (s *Service) GetQuotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.quotes.Current())
}

// SearchQuotes handles GET /api/v1/quotes/search?q=&limit=
func (s *Service) SearchQuotes(w http.ResponseWriter, r *http.Request) {
	limit := DefaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	results := instrument.Search(s.quotes.Current().Quotes, r.URL.Query().Get("q"), limit)
	writeJSON(w, http.StatusOK, results)
}

// --- HTTP Handlers: calculators ---

// CalcPosition handles POST /api/v1/calc/position
func (s *Service) CalcPosition(w http.ResponseWriter, r *http.Request) {
	var req PositionParams
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, calc.ComputePositionMetrics(req.calcParams()))
}

// CalcAverage handles POST /api/v1/calc/average
func (s *Service) CalcAverage(w http.ResponseWriter, r *http.Request) {
	var req averaging.Inputs
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, averaging.Evaluate(req))
}

// CalcTarget handles POST /api/v1/calc/target
func (s *Service) CalcTarget(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := averaging.Evaluate(averaging.Inputs{
		InitPrice:  req.InitPrice,
		InitQty:    req.InitQty,
		TargetAvg:  req.TargetAvg,
		PlanInvest: req.PlanInvest,
	})
	resp := TargetResponse{RequiredPrice: res.RequiredPrice}
	if res.RequiredPrice.Valid {
		h := averaging.Holding{Price: numfmt.ParseOrZero(req.InitPrice), Qty: numfmt.ParseOrZero(req.InitQty)}
		blend := averaging.Blend(h, res.RequiredPrice.Decimal, numfmt.ParseOrZero(req.PlanInvest))
		resp.Projected = &blend
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- HTTP Handlers: ledger ---

// ListPositions handles GET /api/v1/positions
// Returns every saved position marked to the latest live quotes.
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	snap := s.quotes.Current()
	prices := quote.Snapshot{Quotes: snap.Live()}.Prices()
	writeJSON(w, http.StatusOK, s.ledger.MarkToMarket(prices))
}

// SavePosition handles POST /api/v1/positions
func (s *Service) SavePosition(w http.ResponseWriter, r *http.Request) {
	var req SavePositionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	inst, err := instrument.Resolve(s.quotes.Current().Quotes, req.Instrument)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	pos, err := s.ledger.Save(r.Context(), inst, req.calcParams())
	switch {
	case errors.Is(err, ledger.ErrNoInstrument), errors.Is(err, ledger.ErrInvalidParams):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		writeError(w, "failed to save position", http.StatusInternalServerError)
		return
	}

	metrics.SavedPositions.Set(float64(s.ledger.Len()))
	s.hub.Broadcast(EventPositionSaved, pos)
	writeJSON(w, http.StatusCreated, pos)
}

// DeletePosition handles DELETE /api/v1/positions/{id}
// Deleting an unknown id succeeds with deleted=false.
func (s *Service) DeletePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := s.ledger.Delete(r.Context(), id)
	if err != nil {
		writeError(w, "failed to delete position", http.StatusInternalServerError)
		return
	}
	if deleted {
		metrics.SavedPositions.Set(float64(s.ledger.Len()))
		s.hub.Broadcast(EventPositionDeleted, map[string]string{"id": id})
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": deleted})
}

// --- HTTP Handlers: predictions ---

// ListPredictions handles GET /api/v1/predictions
func (s *Service) ListPredictions(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()

	active := s.games.Active()
	views := make([]ActiveGame, 0, len(active))
	for _, g := range active {
		left := prediction.Remaining(g, now)
		views = append(views, ActiveGame{
			Game:             g,
			RemainingSeconds: int64(left / time.Second),
			Countdown:        numfmt.FormatCountdown(left),
		})
	}

	writeJSON(w, http.StatusOK, PredictionsResponse{
		Active:     views,
		History:    s.games.History(prediction.HistoryLimit),
		Stats:      s.games.Stats(),
		DefaultBet: prediction.DefaultBet,
		Durations:  prediction.Durations,
	})
}

// StartPrediction handles POST /api/v1/predictions
func (s *Service) StartPrediction(w http.ResponseWriter, r *http.Request) {
	var req StartGameRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	g, err := s.games.Start(r.Context(), prediction.StartRequest{
		Symbol:          req.Symbol,
		Direction:       req.Direction,
		DurationMinutes: req.DurationMinutes,
		BetAmount:       req.bet(),
	}, s.quotes.Current().Live())
	switch {
	case errors.Is(err, prediction.ErrInvalidBet),
		errors.Is(err, prediction.ErrInvalidDuration),
		errors.Is(err, prediction.ErrInvalidDirection),
		errors.Is(err, prediction.ErrNoQuote):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		writeError(w, "failed to start game", http.StatusInternalServerError)
		return
	}

	metrics.GamesStarted.WithLabelValues(string(g.Direction)).Inc()
	s.hub.Broadcast(EventGameStarted, g)
	writeJSON(w, http.StatusCreated, g)
}

// PredictionStats handles GET /api/v1/predictions/stats
func (s *Service) PredictionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.games.Stats())
}

// --- HTTP Handlers: settings ---

// GetCalculatorSettings handles GET /api/v1/settings/calculator
func (s *Service) GetCalculatorSettings(w http.ResponseWriter, r *http.Request) {
	c, err := s.prefs.LoadCalculator(r.Context())
	if err != nil {
		writeError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// PutCalculatorSettings handles PUT /api/v1/settings/calculator
func (s *Service) PutCalculatorSettings(w http.ResponseWriter, r *http.Request) {
	var req CalculatorSettingsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	err := s.prefs.SaveCalculator(ctx, req.Mode, prefs.Calculator{
		Unit:           req.Unit,
		Basis:          req.Basis,
		Leverage:       req.Leverage,
		Amount:         req.Amount,
		TakeProfitRate: req.TakeProfitRate,
		StopLossRate:   req.StopLossRate,
	})
	if err != nil {
		writeError(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	s.GetCalculatorSettings(w, r)
}

// GetAveragingSettings handles GET /api/v1/settings/averaging
// Returns the stored raw inputs together with their evaluation.
func (s *Service) GetAveragingSettings(w http.ResponseWriter, r *http.Request) {
	in, err := s.prefs.LoadAveraging(r.Context())
	if err != nil {
		writeError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, AveragingSettings{Inputs: in, Result: averaging.Evaluate(in)})
}

// PutAveragingSettings handles PUT /api/v1/settings/averaging
func (s *Service) PutAveragingSettings(w http.ResponseWriter, r *http.Request) {
	var in averaging.Inputs
	if err := decodeRequest(r, &in); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.prefs.SaveAveraging(r.Context(), in); err != nil {
		writeError(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, AveragingSettings{Inputs: in, Result: averaging.Evaluate(in)})
}

// ResetAveragingSettings handles DELETE /api/v1/settings/averaging
func (s *Service) ResetAveragingSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.prefs.ResetAveraging(r.Context()); err != nil {
		writeError(w, "failed to reset settings", http.StatusInternalServerError)
		return
	}
	slog.Info("averaging inputs reset")
	s.GetAveragingSettings(w, r)
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
