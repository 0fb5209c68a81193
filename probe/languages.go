package probe

import (
	"context"
	"sort"

	"github.com/c360/skosprobe/endpoint"
)

// LanguageCensus aggregates the distinct language tags found on SKOS
// prefLabels, with occurrence counts.
type LanguageCensus struct {
	q    Querier
	opts Options
}

// NewLanguageCensus creates a language census probe.
func NewLanguageCensus(q Querier, opts Options) *LanguageCensus {
	return &LanguageCensus{q: q, opts: opts}
}

// Detect runs the census, most frequent tag first. graphScoped adds the
// same-graph constraint between concept and label; the orchestrator sets it
// whenever cross-graph duplicates were found, so duplicated assertions do
// not inflate counts.
//
// Tags with an empty language are excluded. The result is capped at
// Options.LanguageLimit.
func (c *LanguageCensus) Detect(ctx context.Context, ep endpoint.Endpoint, graphScoped bool) ([]endpoint.LanguageCount, error) {
	limit := c.opts.LanguageLimit
	if limit <= 0 {
		limit = DefaultOptions().LanguageLimit
	}

	res, err := c.q.Select(ctx, ep, languageCensusQuery(limit, graphScoped), c.opts.Request)
	if err != nil {
		return nil, err
	}

	census := make([]endpoint.LanguageCount, 0, len(res.Bindings))
	for _, row := range res.Bindings {
		lang, ok := row["lang"]
		if !ok || lang.Value == "" {
			continue
		}
		count := 0
		if v, ok := row["count"]; ok {
			if n, err := v.Int(); err == nil {
				count = n
			}
		}
		census = append(census, endpoint.LanguageCount{Tag: lang.Value, Count: count})
	}

	// Endpoints are asked to order by count, but not all honor ORDER BY
	// with aggregates.
	sort.SliceStable(census, func(i, j int) bool {
		return census[i].Count > census[j].Count
	})

	if len(census) > limit {
		census = census[:limit]
	}
	return census, nil
}
