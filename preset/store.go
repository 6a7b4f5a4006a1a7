package preset

import (
	"context"
	"fmt"
	"sort"
)

// Store keeps presets by ID. Implementations are safe for concurrent use.
type Store interface {
	// List returns every preset ordered by ID.
	List(ctx context.Context) ([]Preset, error)
	// Get returns ErrNotFound when id is unknown.
	Get(ctx context.Context, id string) (Preset, error)
	// Save inserts or replaces the preset with p.ID.
	Save(ctx context.Context, p Preset) error
	// Delete returns ErrNotFound when id is unknown.
	Delete(ctx context.Context, id string) error
}

func sortByID(ps []Preset) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}

func checkPreset(p Preset) error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	return checkMessages(p.Messages)
}
