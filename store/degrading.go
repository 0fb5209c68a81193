package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/language"
)

// Degrading wraps a primary Store and guarantees that persistence failures
// never reach the caller: reads fall back to an in-memory mirror, writes
// always land in the mirror and are attempted against the primary on a
// best-effort basis. Failures are logged.
type Degrading struct {
	primary Store
	mirror  *Memory
	logger  *slog.Logger
}

// NewDegrading wraps primary. A nil primary degenerates to a pure in-memory
// store.
func NewDegrading(primary Store, logger *slog.Logger) *Degrading {
	if logger == nil {
		logger = slog.Default()
	}
	return &Degrading{
		primary: primary,
		mirror:  NewMemory(),
		logger:  logger.With("component", "store"),
	}
}

// Analysis loads from the primary, falling back to the mirror on failure.
func (d *Degrading) Analysis(ctx context.Context, endpointID string) (*endpoint.Analysis, error) {
	if d.primary == nil {
		return d.mirror.Analysis(ctx, endpointID)
	}

	a, err := d.primary.Analysis(ctx, endpointID)
	if err == nil {
		return a, nil
	}
	if errors.Is(err, ErrNotFound) {
		return d.mirror.Analysis(ctx, endpointID)
	}

	d.logger.Warn("analysis load failed, serving in-memory copy",
		"endpoint", endpointID, "error", err)
	return d.mirror.Analysis(ctx, endpointID)
}

// SaveAnalysis writes to the mirror and then, best effort, the primary.
func (d *Degrading) SaveAnalysis(ctx context.Context, endpointID string, a *endpoint.Analysis) error {
	_ = d.mirror.SaveAnalysis(ctx, endpointID, a) // memory store cannot fail
	if d.primary == nil {
		return nil
	}
	if err := d.primary.SaveAnalysis(ctx, endpointID, a); err != nil {
		d.logger.Warn("analysis save failed, kept in memory only",
			"endpoint", endpointID, "error", err)
	}
	return nil
}

// Priorities loads from the primary, falling back to the mirror on failure.
func (d *Degrading) Priorities(ctx context.Context, endpointID string) (*language.PriorityList, error) {
	if d.primary == nil {
		return d.mirror.Priorities(ctx, endpointID)
	}

	p, err := d.primary.Priorities(ctx, endpointID)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, ErrNotFound) {
		return d.mirror.Priorities(ctx, endpointID)
	}

	d.logger.Warn("priority list load failed, serving in-memory copy",
		"endpoint", endpointID, "error", err)
	return d.mirror.Priorities(ctx, endpointID)
}

// SavePriorities writes to the mirror and then, best effort, the primary.
func (d *Degrading) SavePriorities(ctx context.Context, endpointID string, p *language.PriorityList) error {
	_ = d.mirror.SavePriorities(ctx, endpointID, p)
	if d.primary == nil {
		return nil
	}
	if err := d.primary.SavePriorities(ctx, endpointID, p); err != nil {
		d.logger.Warn("priority list save failed, kept in memory only",
			"endpoint", endpointID, "error", err)
	}
	return nil
}
