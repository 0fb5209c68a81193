package probe

import (
	"context"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/errors"
)

// GraphResult is the graph-support verdict for one endpoint.
//
// Count is nil when support is unknown. Exact=false means enumeration hit
// its cap or was cut short: the count is a true lower bound, never an
// over-count.
type GraphResult struct {
	Support endpoint.Capability
	Count   *int
	Exact   bool
	Method  endpoint.QueryMethod
}

// detectState accumulates evidence across strategies within one detection.
type detectState struct {
	emptyPatternTried bool
	syntaxAccepted    bool
}

// graphStrategy is one probing strategy in the cascade. Each declares its
// own applicability so the cascade loop carries no per-strategy branching.
type graphStrategy struct {
	method  endpoint.QueryMethod
	query   string
	applies func(s *detectState) bool
	record  func(s *detectState)
}

// GraphDetector determines whether an endpoint supports named graphs and,
// if so, an exact or lower-bound graph count.
type GraphDetector struct {
	q          Querier
	opts       Options
	strategies []graphStrategy
}

// NewGraphDetector creates a graph-support detector.
func NewGraphDetector(q Querier, opts Options) *GraphDetector {
	return &GraphDetector{
		q:    q,
		opts: opts,
		strategies: []graphStrategy{
			{
				method:  endpoint.QueryMethodEmptyPattern,
				query:   queryGraphEmptyPattern,
				applies: func(s *detectState) bool { return !s.emptyPatternTried },
				record:  func(s *detectState) { s.emptyPatternTried = true; s.syntaxAccepted = true },
			},
			{
				method:  endpoint.QueryMethodBlankNodePattern,
				query:   queryGraphTriplePattern,
				applies: func(s *detectState) bool { return s.emptyPatternTried && s.syntaxAccepted },
				record:  func(s *detectState) {},
			},
		},
	}
}

// Detect cascades through the probing strategies, first decisive answer
// wins.
//
// An endpoint that errors on graph syntax (explicit rejection, not merely
// an empty result) yields CapabilityUnknown with no error: absence of the
// feature is a valid capability answer and must stay distinguishable from
// "syntax accepted, zero graphs". Timeouts and network failures are
// transport errors and propagate.
func (d *GraphDetector) Detect(ctx context.Context, ep endpoint.Endpoint) (GraphResult, error) {
	unknown := GraphResult{Support: endpoint.CapabilityUnknown, Method: endpoint.QueryMethodNone}

	state := &detectState{}
	lastMethod := endpoint.QueryMethodNone
	for _, strat := range d.strategies {
		if !strat.applies(state) {
			continue
		}

		res, err := d.q.Select(ctx, ep, strat.query, d.opts.Request)
		if err != nil {
			if isRejection(err) {
				return unknown, nil
			}
			return unknown, err
		}

		strat.record(state)
		lastMethod = strat.method
		if !res.Empty() {
			return d.count(ctx, ep, strat.method)
		}
	}

	// Every strategy was accepted and returned zero evidence: graph syntax
	// works, the dataset just has no named graphs.
	return GraphResult{
		Support: endpoint.CapabilityUnsupported,
		Count:   endpoint.IntPtr(0),
		Exact:   true,
		Method:  lastMethod,
	}, nil
}

// count resolves the graph count once support is established, preferring a
// cheap aggregate and falling back to capped enumeration when the endpoint
// cannot aggregate over graphs.
func (d *GraphDetector) count(ctx context.Context, ep endpoint.Endpoint, method endpoint.QueryMethod) (GraphResult, error) {
	supported := func(count *int, exact bool, m endpoint.QueryMethod) GraphResult {
		return GraphResult{Support: endpoint.CapabilitySupported, Count: count, Exact: exact, Method: m}
	}

	res, err := d.q.Select(ctx, ep, queryGraphCount, d.opts.Request)
	if err == nil {
		if v, ok := res.First("count"); ok {
			if n, perr := v.Int(); perr == nil && n > 0 {
				return supported(endpoint.IntPtr(n), true, method), nil
			}
		}
		// Aggregate accepted but produced no usable number; enumerate.
	} else if !isRejection(err) {
		return GraphResult{Support: endpoint.CapabilityUnknown, Method: endpoint.QueryMethodNone}, err
	}

	limit := d.opts.GraphEnumLimit
	if limit <= 0 {
		limit = DefaultOptions().GraphEnumLimit
	}
	res, err = d.q.Select(ctx, ep, graphEnumQuery(limit), d.opts.Request)
	if err != nil {
		if isRejection(err) {
			// Support is already established from pattern evidence; report
			// the one graph we saw as a lower bound.
			return supported(endpoint.IntPtr(1), false, method), nil
		}
		return GraphResult{Support: endpoint.CapabilityUnknown, Method: endpoint.QueryMethodNone}, err
	}

	n := len(res.Bindings)
	if n == 0 {
		// Contradicts the pattern evidence; keep the lower bound we proved.
		n = 1
	}
	return supported(endpoint.IntPtr(n), n < limit && len(res.Bindings) > 0, endpoint.QueryMethodFallbackLimit), nil
}

// isRejection reports whether a transport failure counts as the endpoint
// explicitly rejecting the query (HTTP error status or a response that is
// not SPARQL results). Those are capability evidence; timeouts, network
// failures and CORS blocks are not.
func isRejection(err error) bool {
	te, ok := errors.AsTransport(err)
	if !ok {
		return false
	}
	return te.Kind == errors.KindHTTP || te.Kind == errors.KindMalformed
}
