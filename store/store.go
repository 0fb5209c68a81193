// Package store persists per-endpoint analysis snapshots and language
// priority lists. The backing store is NATS JetStream KV in production and
// an in-memory map in tests and degraded mode; a degrading wrapper keeps
// store failures away from callers, as persistence problems must never fail
// an analysis run.
package store

import (
	"context"
	"errors"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/language"
)

// ErrNotFound is returned for endpoints without a persisted entry.
var ErrNotFound = errors.New("store: entry not found")

// Store is the persistence contract: load-on-startup, save-on-change,
// keyed by endpoint id.
type Store interface {
	Analysis(ctx context.Context, endpointID string) (*endpoint.Analysis, error)
	SaveAnalysis(ctx context.Context, endpointID string, a *endpoint.Analysis) error

	Priorities(ctx context.Context, endpointID string) (*language.PriorityList, error)
	SavePriorities(ctx context.Context, endpointID string, p *language.PriorityList) error
}

const (
	analysisKeyPrefix   = "analysis."
	prioritiesKeyPrefix = "priorities."
)
