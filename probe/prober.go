// Package probe implements the capability probes that interrogate an
// unknown SPARQL endpoint: connectivity, named-graph support, cross-graph
// duplicate detection, and the label language census.
//
// Every probe is a pure decision procedure over the transport client's
// results. Capability answers are values, never errors; only transport
// failures propagate as errors.
package probe

import (
	"context"
	"time"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/sparql"
)

// Querier is the slice of the transport client the probes need.
type Querier interface {
	Select(ctx context.Context, ep endpoint.Endpoint, query string, opts sparql.Options) (*sparql.Results, error)
}

// Options bound the cost of a probe run.
type Options struct {
	Request sparql.Options // per-request timeout and retry budget

	// GraphEnumLimit caps graph enumeration in the fallback strategy. A hit
	// cap makes the reported count a lower bound.
	GraphEnumLimit int

	// LanguageLimit caps the census size. Downstream use is ranking, not
	// enumeration, so a top-N is sufficient.
	LanguageLimit int
}

// DefaultOptions returns the probing defaults.
func DefaultOptions() Options {
	return Options{
		Request:        sparql.DefaultOptions(),
		GraphEnumLimit: 1000,
		LanguageLimit:  50,
	}
}

// ConnectivityResult is the verdict of a single reachability round trip.
// Err, when set, is the transport client's classified error, forwarded
// verbatim.
type ConnectivityResult struct {
	Success      bool
	ResponseTime time.Duration
	Err          error
}

// Prober performs the connectivity check.
type Prober struct {
	q    Querier
	opts Options
}

// NewProber creates a connectivity prober.
func NewProber(q Querier, opts Options) *Prober {
	return &Prober{q: q, opts: opts}
}

// Test issues one minimal query and records wall-clock latency. An empty
// result set still counts as success: reachability is about the round trip,
// not the data.
func (p *Prober) Test(ctx context.Context, ep endpoint.Endpoint) ConnectivityResult {
	start := time.Now()
	_, err := p.q.Select(ctx, ep, queryConnectivity, p.opts.Request)
	elapsed := time.Since(start)

	if err != nil {
		return ConnectivityResult{Success: false, ResponseTime: elapsed, Err: err}
	}
	return ConnectivityResult{Success: true, ResponseTime: elapsed}
}
