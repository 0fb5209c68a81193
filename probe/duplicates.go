package probe

import (
	"context"

	"github.com/c360/skosprobe/endpoint"
)

// DuplicateDetector checks whether the same triples are asserted in more
// than one named graph.
type DuplicateDetector struct {
	q    Querier
	opts Options
}

// NewDuplicateDetector creates a duplicate-triples detector.
func NewDuplicateDetector(q Querier, opts Options) *DuplicateDetector {
	return &DuplicateDetector{q: q, opts: opts}
}

// Detect samples for one triple asserted in two different graphs. The
// target is "is duplication common enough to affect query semantics", not
// exhaustive proof, so a single bounded existence check suffices.
//
// Callers must only invoke this when the graph count exceeds one; with zero
// or one graph the answer is a definite false without a network call, which
// the orchestrator short-circuits.
func (d *DuplicateDetector) Detect(ctx context.Context, ep endpoint.Endpoint) (bool, error) {
	res, err := d.q.Select(ctx, ep, queryDuplicateTriples, d.opts.Request)
	if err != nil {
		return false, err
	}
	return !res.Empty(), nil
}
