// Package prefs persists the calculator settings and the raw averaging form
// inputs as individual string keys in the KV store.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/atmx/tactician/internal/averaging"
	"github.com/atmx/tactician/internal/calc"
	"github.com/atmx/tactician/internal/model"
	"github.com/atmx/tactician/internal/store"
)

// Calculator setting keys.
const (
	KeyCalcUnit     = "calc_unit"
	KeyCalcBasis    = "calc_basis"
	KeyCalcLeverage = "calc_leverage"
	KeyCalcAmount   = "calc_amount"
	KeyCalcTPRate   = "calc_tp_rate"
	KeyCalcSLRate   = "calc_sl_rate"
)

// Averaging input keys.
const (
	KeyAvgInitPrice  = "avg_init_price"
	KeyAvgInitQty    = "avg_init_qty"
	KeyAvgNewPrice   = "avg_new_price"
	KeyAvgNewSpend   = "avg_new_usdt"
	KeyAvgTarget     = "avg_target_price"
	KeyAvgPlanInvest = "avg_plan_invest"
)

// DefaultLeverage is the futures leverage used until one is saved.
const DefaultLeverage = 10

// Calculator holds the persisted calculator settings.
type Calculator struct {
	Unit           model.Unit  `json:"unit"`
	Basis          model.Basis `json:"basis"`
	Leverage       int         `json:"leverage"`
	Amount         string      `json:"amount"`
	TakeProfitRate string      `json:"take_profit_rate"`
	StopLossRate   string      `json:"stop_loss_rate"`
}

// DefaultCalculator returns the settings used before anything is saved.
func DefaultCalculator() Calculator {
	return Calculator{
		Unit:     model.UnitQuote,
		Basis:    model.BasisPrincipal,
		Leverage: DefaultLeverage,
	}
}

// Store reads and writes preferences.
type Store struct {
	kv store.KV
}

// New creates a preference store over kv.
func New(kv store.KV) *Store {
	return &Store{kv: kv}
}

// --- Calculator ---

// LoadCalculator returns the saved settings, falling back to the default for
// every key that is missing or holds an unknown value.
func (s *Store) LoadCalculator(ctx context.Context) (Calculator, error) {
	c := DefaultCalculator()

	vals, err := s.getAll(ctx, KeyCalcUnit, KeyCalcBasis, KeyCalcLeverage,
		KeyCalcAmount, KeyCalcTPRate, KeyCalcSLRate)
	if err != nil {
		return c, err
	}

	if u := model.Unit(vals[KeyCalcUnit]); u == model.UnitQuote || u == model.UnitBase {
		c.Unit = u
	}
	if b := model.Basis(vals[KeyCalcBasis]); b == model.BasisPrincipal || b == model.BasisNotional {
		c.Basis = b
	}
	if lev, err := strconv.Atoi(vals[KeyCalcLeverage]); err == nil {
		c.Leverage = calc.EffectiveLeverage(model.ModeFuture, lev)
	}
	c.Amount = vals[KeyCalcAmount]
	c.TakeProfitRate = vals[KeyCalcTPRate]
	c.StopLossRate = vals[KeyCalcSLRate]
	return c, nil
}

// SaveCalculator writes c. Leverage is only written in futures mode, so the
// forced spot leverage of 1 never overwrites the user's futures choice.
func (s *Store) SaveCalculator(ctx context.Context, mode model.Mode, c Calculator) error {
	vals := map[string]string{
		KeyCalcUnit:   string(c.Unit),
		KeyCalcBasis:  string(c.Basis),
		KeyCalcAmount: c.Amount,
		KeyCalcTPRate: c.TakeProfitRate,
		KeyCalcSLRate: c.StopLossRate,
	}
	if mode == model.ModeFuture {
		vals[KeyCalcLeverage] = strconv.Itoa(calc.EffectiveLeverage(mode, c.Leverage))
	}
	return s.setAll(ctx, vals)
}

// --- Averaging ---

// LoadAveraging returns the raw averaging inputs. Missing keys are empty.
func (s *Store) LoadAveraging(ctx context.Context) (averaging.Inputs, error) {
	vals, err := s.getAll(ctx, KeyAvgInitPrice, KeyAvgInitQty, KeyAvgNewPrice,
		KeyAvgNewSpend, KeyAvgTarget, KeyAvgPlanInvest)
	if err != nil {
		return averaging.Inputs{}, err
	}
	return averaging.Inputs{
		InitPrice:  vals[KeyAvgInitPrice],
		InitQty:    vals[KeyAvgInitQty],
		NewPrice:   vals[KeyAvgNewPrice],
		NewSpend:   vals[KeyAvgNewSpend],
		TargetAvg:  vals[KeyAvgTarget],
		PlanInvest: vals[KeyAvgPlanInvest],
	}, nil
}

// SaveAveraging writes the inputs verbatim; they are not validated.
func (s *Store) SaveAveraging(ctx context.Context, in averaging.Inputs) error {
	return s.setAll(ctx, map[string]string{
		KeyAvgInitPrice:  in.InitPrice,
		KeyAvgInitQty:    in.InitQty,
		KeyAvgNewPrice:   in.NewPrice,
		KeyAvgNewSpend:   in.NewSpend,
		KeyAvgTarget:     in.TargetAvg,
		KeyAvgPlanInvest: in.PlanInvest,
	})
}

// ResetAveraging removes every averaging input.
func (s *Store) ResetAveraging(ctx context.Context) error {
	for _, k := range []string{KeyAvgInitPrice, KeyAvgInitQty, KeyAvgNewPrice,
		KeyAvgNewSpend, KeyAvgTarget, KeyAvgPlanInvest} {
		if err := s.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("reset averaging: %w", err)
		}
	}
	return nil
}

// --- Helpers ---

func (s *Store) getAll(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := s.kv.Get(ctx, k)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (s *Store) setAll(ctx context.Context, vals map[string]string) error {
	for k, v := range vals {
		if err := s.kv.Set(ctx, k, v); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return nil
}
