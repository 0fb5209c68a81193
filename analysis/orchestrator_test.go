package analysis

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/errors"
	"github.com/c360/skosprobe/language"
	"github.com/c360/skosprobe/probe"
	"github.com/c360/skosprobe/sparql"
	"github.com/c360/skosprobe/store"
)

var testEP = endpoint.Endpoint{ID: "ep1", URL: "http://example.org/sparql"}

// fakeQuerier routes queries to canned results by substring match. An
// optional blocking hook lets tests interleave concurrent runs.
type fakeQuerier struct {
	mu      sync.Mutex
	routes  []route
	queries []string
	block   func(query string)
}

type route struct {
	contains string
	result   *sparql.Results
	err      error
}

func (f *fakeQuerier) Select(_ context.Context, _ endpoint.Endpoint, query string, _ sparql.Options) (*sparql.Results, error) {
	if f.block != nil {
		f.block(query)
	}
	f.mu.Lock()
	f.queries = append(f.queries, query)
	routes := f.routes
	f.mu.Unlock()

	for _, r := range routes {
		if strings.Contains(query, r.contains) {
			return r.result, r.err
		}
	}
	return &sparql.Results{}, nil
}

func (f *fakeQuerier) on(contains string, result *sparql.Results, err error) *fakeQuerier {
	f.routes = append(f.routes, route{contains: contains, result: result, err: err})
	return f
}

func (f *fakeQuerier) sawQuery(contains string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.queries {
		if strings.Contains(q, contains) {
			return true
		}
	}
	return false
}

func rows(bindings ...sparql.Binding) *sparql.Results {
	return &sparql.Results{Bindings: bindings}
}

func uriRow(v, iri string) sparql.Binding {
	return sparql.Binding{v: {Type: "uri", Value: iri}}
}

func countRow(n string) *sparql.Results {
	return rows(sparql.Binding{"count": {Type: "literal", Value: n}})
}

func langRow(tag, count string) sparql.Binding {
	return sparql.Binding{
		"lang":  {Type: "literal", Value: tag},
		"count": {Type: "literal", Value: count},
	}
}

// healthyQuerier scripts an endpoint with three graphs, cross-graph
// duplicates, and an en/fr census.
func healthyQuerier() *fakeQuerier {
	return (&fakeQuerier{}).
		on2("?s ?p ?o } LIMIT 1", rows(uriRow("s", "urn:x"))).
		on2("GRAPH ?g { }", rows(uriRow("g", "urn:g1"))).
		on2("COUNT(DISTINCT ?g)", countRow("3")).
		on2("FILTER(?g1 != ?g2)", rows(uriRow("s", "urn:dup"))).
		on2("skos:prefLabel", rows(langRow("en", "450"), langRow("fr", "120")))
}

func (f *fakeQuerier) on2(contains string, result *sparql.Results) *fakeQuerier {
	return f.on(contains, result, nil)
}

func newOrchestrator(q probe.Querier, st store.Store, opts ...Option) *Orchestrator {
	return New(q, st, probe.DefaultOptions(), opts...)
}

func TestRunAnalysis_FullPipeline(t *testing.T) {
	q := healthyQuerier()
	st := store.NewMemory()
	o := newOrchestrator(q, st)

	run, err := o.RunAnalysis(context.Background(), testEP)
	require.NoError(t, err)
	require.False(t, run.Failed())

	a := run.Analysis
	require.NotNil(t, a)
	assert.Equal(t, endpoint.CapabilitySupported, a.SupportsNamedGraphs)
	assert.Equal(t, 3, a.GraphCountValue())
	assert.True(t, a.GraphCountExact)
	assert.Equal(t, endpoint.QueryMethodEmptyPattern, a.QueryMethod)
	require.NotNil(t, a.HasDuplicateTriples)
	assert.True(t, *a.HasDuplicateTriples)
	assert.Equal(t, "en", a.Languages[0].Tag)
	assert.False(t, a.AnalyzedAt.IsZero())

	// Snapshot persisted.
	stored, err := st.Analysis(context.Background(), testEP.ID)
	require.NoError(t, err)
	assert.Equal(t, a.GraphCountValue(), stored.GraphCountValue())

	// Census merged into the priority list: empty list plus en/fr puts
	// English first.
	p, err := st.Priorities(context.Background(), testEP.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "fr"}, p.Tags)
}

func TestRunAnalysis_DuplicatesForceGraphScopedCensus(t *testing.T) {
	q := healthyQuerier()
	o := newOrchestrator(q, store.NewMemory())

	_, err := o.RunAnalysis(context.Background(), testEP)
	require.NoError(t, err)

	// The census query must carry the same-graph constraint.
	f := q
	f.mu.Lock()
	defer f.mu.Unlock()
	var censusQuery string
	for _, qs := range f.queries {
		if strings.Contains(qs, "skos:prefLabel") {
			censusQuery = qs
		}
	}
	require.NotEmpty(t, censusQuery)
	assert.Contains(t, censusQuery, "GRAPH ?g {")
}

func TestRunAnalysis_NoDuplicatesKeepsCensusUnscoped(t *testing.T) {
	q := (&fakeQuerier{}).
		on2("GRAPH ?g { }", rows(uriRow("g", "urn:g1"))).
		on2("COUNT(DISTINCT ?g)", countRow("2")).
		on2("FILTER(?g1 != ?g2)", rows()).
		on2("skos:prefLabel", rows(langRow("en", "10")))

	o := newOrchestrator(q, store.NewMemory())
	run, err := o.RunAnalysis(context.Background(), testEP)
	require.NoError(t, err)

	require.NotNil(t, run.Analysis.HasDuplicateTriples)
	assert.False(t, *run.Analysis.HasDuplicateTriples)

	for _, qs := range q.queries {
		if strings.Contains(qs, "skos:prefLabel") {
			assert.NotContains(t, qs, "GRAPH")
		}
	}
}

func TestRunAnalysis_SingleGraphSkipsDuplicateCheck(t *testing.T) {
	q := (&fakeQuerier{}).
		on2("GRAPH ?g { }", rows(uriRow("g", "urn:g1"))).
		on2("COUNT(DISTINCT ?g)", countRow("1")).
		on2("skos:prefLabel", rows(langRow("en", "10")))

	o := newOrchestrator(q, store.NewMemory())
	run, err := o.RunAnalysis(context.Background(), testEP)
	require.NoError(t, err)

	require.NotNil(t, run.Analysis.HasDuplicateTriples)
	assert.False(t, *run.Analysis.HasDuplicateTriples, "single graph is a definite false")
	assert.False(t, q.sawQuery("FILTER(?g1 != ?g2)"), "no network call for the derived answer")

	var found bool
	for _, e := range run.Log {
		if strings.Contains(e.Message, "Duplicate check skipped") {
			found = true
			assert.Equal(t, LogInfo, e.Status)
		}
	}
	assert.True(t, found)
}

func TestRunAnalysis_ZeroGraphs(t *testing.T) {
	q := (&fakeQuerier{}).
		on2("GRAPH ?g { }", rows()).
		on2("GRAPH ?g { ?s ?p ?o } } LIMIT 1", rows()).
		on2("skos:prefLabel", rows(langRow("en", "10")))

	o := newOrchestrator(q, store.NewMemory())
	run, err := o.RunAnalysis(context.Background(), testEP)
	require.NoError(t, err)

	a := run.Analysis
	assert.Equal(t, endpoint.CapabilityUnsupported, a.SupportsNamedGraphs)
	require.NotNil(t, a.HasDuplicateTriples)
	assert.False(t, *a.HasDuplicateTriples, "zero graphs is false, not unknown")
}

func TestRunAnalysis_UnknownGraphSupport(t *testing.T) {
	q := (&fakeQuerier{}).
		on("GRAPH ?g { }", nil, errors.HTTPStatus(400, testEP.URL, "send")).
		on2("skos:prefLabel", rows(langRow("en", "10")))

	o := newOrchestrator(q, store.NewMemory())
	run, err := o.RunAnalysis(context.Background(), testEP)
	require.NoError(t, err)
	require.False(t, run.Failed())

	a := run.Analysis
	assert.Equal(t, endpoint.CapabilityUnknown, a.SupportsNamedGraphs)
	assert.Nil(t, a.GraphCount)
	assert.Nil(t, a.HasDuplicateTriples, "duplicates are not applicable with unknown topology")
	assert.Equal(t, endpoint.QueryMethodNone, a.QueryMethod)
}

func TestRunAnalysis_CORSFailureAtTesting(t *testing.T) {
	st := store.NewMemory()

	// Seed a prior snapshot that the failed run must not clobber.
	prior := &endpoint.Analysis{
		SupportsNamedGraphs: endpoint.CapabilitySupported,
		GraphCount:          endpoint.IntPtr(7),
		GraphCountExact:     true,
		QueryMethod:         endpoint.QueryMethodEmptyPattern,
		HasDuplicateTriples: endpoint.BoolPtr(false),
		AnalyzedAt:          time.Now().UTC(),
	}
	require.NoError(t, st.SaveAnalysis(context.Background(), testEP.ID, prior))

	q := (&fakeQuerier{}).on("?s ?p ?o", nil, errors.CORSBlocked(testEP.URL, "send"))
	o := newOrchestrator(q, st)

	run, err := o.RunAnalysis(context.Background(), testEP)
	require.NoError(t, err)

	assert.True(t, run.Failed())
	assert.Nil(t, run.Analysis)
	assert.ErrorIs(t, run.Err, errors.ErrAnalysisAborted)
	assert.True(t, errors.IsTransport(run.Err, errors.KindCORSBlocked))

	// Exactly one entry, flipped to error in place.
	require.Len(t, run.Log, 1)
	assert.Equal(t, LogError, run.Log[0].Status)

	// Prior snapshot retained.
	stored, err := st.Analysis(context.Background(), testEP.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.GraphCountValue())
}

func TestRunAnalysis_MidRunFailureDiscardsPartialResults(t *testing.T) {
	q := (&fakeQuerier{}).
		on2("GRAPH ?g { }", rows(uriRow("g", "urn:g1"))).
		on2("COUNT(DISTINCT ?g)", countRow("3")).
		on("FILTER(?g1 != ?g2)", nil, errors.Timeout(nil, testEP.URL, "send"))

	st := store.NewMemory()
	o := newOrchestrator(q, st)

	run, err := o.RunAnalysis(context.Background(), testEP)
	require.NoError(t, err)

	assert.True(t, run.Failed())
	assert.Nil(t, run.Analysis, "partial graph results must be discarded")
	_, serr := st.Analysis(context.Background(), testEP.ID)
	assert.ErrorIs(t, serr, store.ErrNotFound)

	last := run.Log[len(run.Log)-1]
	assert.Equal(t, LogError, last.Status)
}

func TestRunAnalysis_ReanalyzeResetsLog(t *testing.T) {
	q := healthyQuerier()
	o := newOrchestrator(q, store.NewMemory())
	ctx := context.Background()

	first, err := o.RunAnalysis(ctx, testEP)
	require.NoError(t, err)
	second, err := o.RunAnalysis(ctx, testEP)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Greater(t, second.Generation, first.Generation)
	assert.Equal(t, len(first.Log), len(second.Log), "log starts fresh each run")

	got := o.Log(testEP.ID)
	assert.Equal(t, second.Log, got)
}

func TestRunAnalysis_SupersededRunIsNotPersisted(t *testing.T) {
	release := make(chan struct{})
	var first atomic.Bool
	first.Store(true)

	q := healthyQuerier()
	q.block = func(query string) {
		// Park only the first run's census so a later run can overtake it.
		if strings.Contains(query, "skos:prefLabel") && first.CompareAndSwap(true, false) {
			<-release
		}
	}

	saves := &savingSpy{Store: store.NewMemory()}
	o := newOrchestrator(q, saves)
	ctx := context.Background()

	var slow *Run
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slow, _ = o.RunAnalysis(ctx, testEP) // generation 1, parked at census
	}()

	// Give the slow run time to reach the census gate, then supersede it.
	time.Sleep(50 * time.Millisecond)
	fast, err := o.RunAnalysis(ctx, testEP) // generation 2
	require.NoError(t, err)
	require.False(t, fast.Failed())

	close(release)
	wg.Wait()

	require.NotNil(t, slow)
	assert.ErrorIs(t, slow.Err, errors.ErrAnalysisSuperseded)
	assert.Nil(t, slow.Analysis)
	assert.Equal(t, 1, saves.analysisSaves, "only the later-generation run persists")
}

// savingSpy counts SaveAnalysis calls.
type savingSpy struct {
	store.Store
	mu            sync.Mutex
	analysisSaves int
}

func (s *savingSpy) SaveAnalysis(ctx context.Context, id string, a *endpoint.Analysis) error {
	s.mu.Lock()
	s.analysisSaves++
	s.mu.Unlock()
	return s.Store.SaveAnalysis(ctx, id, a)
}

func TestRunAnalysis_StillRunningEvent(t *testing.T) {
	release := make(chan struct{})
	q := healthyQuerier()
	q.block = func(query string) {
		if strings.Contains(query, "skos:prefLabel") {
			<-release
		}
	}

	var mu sync.Mutex
	var kinds []EventKind
	o := newOrchestrator(q, store.NewMemory(),
		WithStillRunningAfter(20*time.Millisecond),
		WithEventHandler(func(ev Event) {
			mu.Lock()
			kinds = append(kinds, ev.Kind)
			mu.Unlock()
		}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.RunAnalysis(context.Background(), testEP)
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, k := range kinds {
			if k == EventStillRunning {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	assert.True(t, o.Running(testEP.ID))
	close(release)
	<-done
	assert.False(t, o.Running(testEP.ID))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventRunFinished, kinds[len(kinds)-1])
}

func TestRunAnalysis_InvalidEndpoint(t *testing.T) {
	o := newOrchestrator(&fakeQuerier{}, store.NewMemory())
	_, err := o.RunAnalysis(context.Background(), endpoint.Endpoint{ID: "x"})
	assert.Error(t, err)
}

func TestLog_UnknownEndpoint(t *testing.T) {
	o := newOrchestrator(&fakeQuerier{}, store.NewMemory())
	assert.Nil(t, o.Log("nope"))
	_, ok := o.LastRun("nope")
	assert.False(t, ok)
}

func TestRunAnalysis_MergePreservesUserOrdering(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	// User already ordered fr before en.
	require.NoError(t, st.SavePriorities(ctx, testEP.ID,
		&language.PriorityList{Tags: []string{"fr", "en"}}))

	o := newOrchestrator(healthyQuerier(), st)
	_, err := o.RunAnalysis(ctx, testEP)
	require.NoError(t, err)

	p, err := st.Priorities(ctx, testEP.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"fr", "en"}, p.Tags, "re-analysis never reorders the user's list")
}
