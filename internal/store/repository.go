package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atmx/tactician/internal/model"
)

// PositionRepository persists the saved-position list as one JSON array.
type PositionRepository struct {
	kv KV
}

// NewPositionRepository creates a position repository over kv.
func NewPositionRepository(kv KV) *PositionRepository {
	return &PositionRepository{kv: kv}
}

// Load returns the stored positions. A missing key is an empty list; an
// undecodable value returns ErrCorruptState.
func (r *PositionRepository) Load(ctx context.Context) ([]model.Position, error) {
	return loadList[model.Position](ctx, r.kv, KeyPositions)
}

// Save replaces the stored list.
func (r *PositionRepository) Save(ctx context.Context, positions []model.Position) error {
	return saveList(ctx, r.kv, KeyPositions, positions)
}

// GameRepository persists the prediction-game list as one JSON array.
type GameRepository struct {
	kv KV
}

// NewGameRepository creates a game repository over kv.
func NewGameRepository(kv KV) *GameRepository {
	return &GameRepository{kv: kv}
}

// Load returns the stored games, with the same semantics as PositionRepository.Load.
func (r *GameRepository) Load(ctx context.Context) ([]model.Game, error) {
	return loadList[model.Game](ctx, r.kv, KeyGames)
}

// Save replaces the stored list.
func (r *GameRepository) Save(ctx context.Context, games []model.Game) error {
	return saveList(ctx, r.kv, KeyGames, games)
}

func loadList[T any](ctx context.Context, kv KV, key string) ([]T, error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func saveList[T any](ctx context.Context, kv KV, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
