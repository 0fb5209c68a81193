// Package analysis sequences the capability probes into one analysis run:
// connectivity, graph-support detection, conditional duplicate detection,
// and the language census. Each run produces an immutable Run value with
// its own log; results commit last-write-wins under a monotonic generation
// counter so a superseding re-analyze discards slower in-flight results.
package analysis

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/errors"
	"github.com/c360/skosprobe/language"
	"github.com/c360/skosprobe/metric"
	"github.com/c360/skosprobe/probe"
	"github.com/c360/skosprobe/store"
)

const defaultStillRunningAfter = 2 * time.Second

// Orchestrator drives analysis runs. Safe for concurrent use; independent
// endpoints may be analyzed in parallel, and re-analyzing an endpoint while
// a prior run is in flight supersedes the prior run's commit.
type Orchestrator struct {
	prober     *probe.Prober
	graphs     *probe.GraphDetector
	duplicates *probe.DuplicateDetector
	census     *probe.LanguageCensus

	store   store.Store
	metrics *metric.Metrics
	logger  *slog.Logger

	stillRunningAfter time.Duration
	onEvent           func(Event)

	generation atomic.Uint64

	mu        sync.Mutex
	committed map[string]uint64 // endpoint id -> highest finished generation
	lastRun   map[string]*Run
	active    map[string]int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger.With("component", "analysis") }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithEventHandler installs a progress event handler. The handler is called
// synchronously from the running goroutine and must not block.
func WithEventHandler(fn func(Event)) Option {
	return func(o *Orchestrator) { o.onEvent = fn }
}

// WithStillRunningAfter overrides the delay before the still-running event.
func WithStillRunningAfter(d time.Duration) Option {
	return func(o *Orchestrator) { o.stillRunningAfter = d }
}

// New creates an orchestrator over the given transport and store.
func New(q probe.Querier, st store.Store, probeOpts probe.Options, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		prober:            probe.NewProber(q, probeOpts),
		graphs:            probe.NewGraphDetector(q, probeOpts),
		duplicates:        probe.NewDuplicateDetector(q, probeOpts),
		census:            probe.NewLanguageCensus(q, probeOpts),
		store:             st,
		logger:            slog.Default().With("component", "analysis"),
		stillRunningAfter: defaultStillRunningAfter,
		committed:         make(map[string]uint64),
		lastRun:           make(map[string]*Run),
		active:            make(map[string]int),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunAnalysis executes a full analysis of ep. It may be called repeatedly
// ("re-analyze"); every call starts a fresh run with a cleared log and, on
// success, fully replaces the persisted snapshot. The returned Run always
// carries the complete log; Run.Err is set when the run aborted or was
// superseded.
//
// The returned error is non-nil only for invalid input. Step failures are
// reported through Run.Err so callers still receive the log.
func (o *Orchestrator) RunAnalysis(ctx context.Context, ep endpoint.Endpoint) (*Run, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}

	run := &Run{
		ID:         uuid.NewString(),
		Generation: o.generation.Add(1),
		Endpoint:   ep,
		StartedAt:  time.Now(),
	}

	o.mu.Lock()
	o.active[ep.ID]++
	o.mu.Unlock()

	stopTimer := o.startStillRunningTimer(run)
	defer func() {
		stopTimer()
		o.mu.Lock()
		o.active[ep.ID]--
		o.mu.Unlock()
	}()

	o.logger.Info("analysis started", "endpoint", ep.ID, "run", run.ID, "generation", run.Generation)

	a, runErr := o.executeSteps(ctx, run)
	run.Elapsed = time.Since(run.StartedAt)

	if runErr != nil {
		run.Err = runErr
		o.recordTransportError(runErr)
		o.finish(run, "failed")
		return run, nil
	}

	if !o.commit(ctx, run, a) {
		run.Err = errors.ErrAnalysisSuperseded
		o.finish(run, "superseded")
		return run, nil
	}

	run.Analysis = a
	o.observeAnalysis(ep.ID, a)
	o.finish(run, "success")
	return run, nil
}

// executeSteps walks the probe state machine. A step failure aborts the
// remaining steps; partial results are discarded so a snapshot is
// all-or-nothing.
func (o *Orchestrator) executeSteps(ctx context.Context, run *Run) (*endpoint.Analysis, error) {
	ep := run.Endpoint

	// Testing.
	o.stepStart(run, StepConnectivity, "Testing endpoint connection")
	done := o.stepTimer(StepConnectivity)
	conn := o.prober.Test(ctx, ep)
	done()
	if !conn.Success {
		o.stepFail(run, StepConnectivity, conn.Err)
		return nil, errors.Aborted(conn.Err, string(StepConnectivity))
	}
	o.stepDone(run, StepConnectivity, LogSuccess,
		fmt.Sprintf("Endpoint reachable (%d ms)", conn.ResponseTime.Milliseconds()))

	// GraphDetect.
	o.stepStart(run, StepGraphDetect, "Detecting named graph support")
	done = o.stepTimer(StepGraphDetect)
	graphs, graphErr := o.graphs.Detect(ctx, ep)
	done()
	if graphErr != nil {
		o.stepFail(run, StepGraphDetect, graphErr)
		return nil, errors.Aborted(graphErr, string(StepGraphDetect))
	}
	o.stepDone(run, StepGraphDetect, graphVerdictStatus(graphs), graphVerdictMessage(graphs))

	// DuplicateDetect: only with more than one confirmed graph; otherwise
	// the answer is derived without a network call.
	hasDuplicates := duplicateDefault(graphs)
	if graphs.Support == endpoint.CapabilitySupported && graphs.Count != nil && *graphs.Count > 1 {
		o.stepStart(run, StepDuplicateDetect, "Checking for cross-graph duplicates")
		done = o.stepTimer(StepDuplicateDetect)
		dup, dupErr := o.duplicates.Detect(ctx, ep)
		done()
		if dupErr != nil {
			o.stepFail(run, StepDuplicateDetect, dupErr)
			return nil, errors.Aborted(dupErr, string(StepDuplicateDetect))
		}
		hasDuplicates = endpoint.BoolPtr(dup)
		if dup {
			o.stepDone(run, StepDuplicateDetect, LogWarning, "Duplicate triples found across graphs")
		} else {
			o.stepDone(run, StepDuplicateDetect, LogSuccess, "No cross-graph duplicates")
		}
	} else {
		o.appendEntry(run, LogEntry{Message: "Duplicate check skipped (fewer than two graphs)", Status: LogInfo})
	}

	// LanguageCensus: graph-scoped whenever duplicates were found, so
	// duplicated assertions do not inflate counts.
	graphScoped := hasDuplicates != nil && *hasDuplicates
	o.stepStart(run, StepLanguageCensus, "Counting label languages")
	done = o.stepTimer(StepLanguageCensus)
	langs, censusErr := o.census.Detect(ctx, ep, graphScoped)
	done()
	if censusErr != nil {
		o.stepFail(run, StepLanguageCensus, censusErr)
		return nil, errors.Aborted(censusErr, string(StepLanguageCensus))
	}
	o.stepDone(run, StepLanguageCensus, LogSuccess,
		fmt.Sprintf("Found %d label language(s)", len(langs)))

	return &endpoint.Analysis{
		SupportsNamedGraphs: graphs.Support,
		GraphCount:          graphs.Count,
		GraphCountExact:     graphs.Exact,
		QueryMethod:         graphs.Method,
		HasDuplicateTriples: hasDuplicates,
		Languages:           langs,
		AnalyzedAt:          time.Now().UTC(),
	}, nil
}

// commit persists the snapshot unless a later-generation run already
// finished for this endpoint. Returns false when superseded.
func (o *Orchestrator) commit(ctx context.Context, run *Run, a *endpoint.Analysis) bool {
	o.mu.Lock()
	if o.committed[run.Endpoint.ID] >= run.Generation {
		o.mu.Unlock()
		return false
	}
	o.committed[run.Endpoint.ID] = run.Generation
	o.mu.Unlock()

	if err := o.store.SaveAnalysis(ctx, run.Endpoint.ID, a); err != nil {
		// The degrading store never errors; any other store's failure is
		// logged and the run still succeeds with its in-memory snapshot.
		o.logger.Warn("snapshot save failed", "endpoint", run.Endpoint.ID, "error", err)
	}

	o.mergePriorities(ctx, run.Endpoint.ID, a.Languages)
	return true
}

// mergePriorities folds the census into the endpoint's priority list
// without disturbing user ordering.
func (o *Orchestrator) mergePriorities(ctx context.Context, endpointID string, census []endpoint.LanguageCount) {
	current, err := o.store.Priorities(ctx, endpointID)
	if err != nil {
		if !stderrors.Is(err, store.ErrNotFound) {
			o.logger.Warn("priority list load failed", "endpoint", endpointID, "error", err)
		}
		current = &language.PriorityList{}
	}

	merged := language.Merge(*current, census)
	if err := o.store.SavePriorities(ctx, endpointID, &merged); err != nil {
		o.logger.Warn("priority list save failed", "endpoint", endpointID, "error", err)
	}
}

// finish records the terminal state, updates the per-endpoint last run used
// by Log, and emits the final event. A superseded run does not replace the
// last run: the user is already looking at the newer one.
func (o *Orchestrator) finish(run *Run, outcome string) {
	o.mu.Lock()
	if outcome != "superseded" {
		if cur, ok := o.lastRun[run.Endpoint.ID]; !ok || cur.Generation <= run.Generation {
			o.lastRun[run.Endpoint.ID] = run
		}
	}
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.AnalysisRuns.WithLabelValues(outcome).Inc()
		o.metrics.AnalysisDuration.Observe(run.Elapsed.Seconds())
	}

	o.logger.Info("analysis finished",
		"endpoint", run.Endpoint.ID,
		"run", run.ID,
		"outcome", outcome,
		"elapsed", run.Elapsed)

	o.emit(run, Event{Kind: EventRunFinished, EndpointID: run.Endpoint.ID, RunID: run.ID})
}

// Log returns a copy of the most recent run's log for an endpoint. The log
// is reset each run; while a run is in flight this returns its entries so
// far.
func (o *Orchestrator) Log(endpointID string) []LogEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, ok := o.lastRun[endpointID]
	if !ok {
		return nil
	}
	return append([]LogEntry(nil), run.Log...)
}

// LastRun returns the most recent finished run for an endpoint.
func (o *Orchestrator) LastRun(endpointID string) (*Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.lastRun[endpointID]
	return run, ok
}

// Running reports whether an analysis is currently in flight for the
// endpoint.
func (o *Orchestrator) Running(endpointID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[endpointID] > 0
}

// --- log/step helpers -------------------------------------------------

func (o *Orchestrator) stepStart(run *Run, step Step, message string) {
	o.appendEntry(run, LogEntry{Message: message, Status: LogPending})
	o.emit(run, Event{Kind: EventStepStarted, EndpointID: run.Endpoint.ID, RunID: run.ID, Step: step})
}

// stepDone resolves the step's own pending entry.
func (o *Orchestrator) stepDone(run *Run, step Step, status LogStatus, message string) {
	o.updateLastEntry(run, LogEntry{Message: message, Status: status})
	o.emit(run, Event{Kind: EventStepFinished, EndpointID: run.Endpoint.ID, RunID: run.ID, Step: step})
}

// stepFail flips the step's existing entry to error; it never appends, so
// the failed step stays unambiguous.
func (o *Orchestrator) stepFail(run *Run, step Step, err error) {
	o.updateLastEntry(run, LogEntry{Message: err.Error(), Status: LogError})
	o.emit(run, Event{Kind: EventStepFinished, EndpointID: run.Endpoint.ID, RunID: run.ID, Step: step})
	o.logger.Error("analysis step failed",
		"endpoint", run.Endpoint.ID,
		"step", string(step),
		"error", err)
}

func (o *Orchestrator) appendEntry(run *Run, entry LogEntry) {
	o.mu.Lock()
	run.Log = append(run.Log, entry)
	if _, ok := o.lastRun[run.Endpoint.ID]; !ok || o.lastRun[run.Endpoint.ID].Generation <= run.Generation {
		o.lastRun[run.Endpoint.ID] = run
	}
	o.mu.Unlock()
}

func (o *Orchestrator) updateLastEntry(run *Run, entry LogEntry) {
	o.mu.Lock()
	if len(run.Log) > 0 {
		run.Log[len(run.Log)-1] = entry
	}
	o.mu.Unlock()
}

func (o *Orchestrator) emit(run *Run, ev Event) {
	if o.onEvent == nil {
		return
	}
	o.mu.Lock()
	ev.Log = append([]LogEntry(nil), run.Log...)
	o.mu.Unlock()
	ev.Elapsed = time.Since(run.StartedAt)
	o.onEvent(ev)
}

func (o *Orchestrator) startStillRunningTimer(run *Run) func() {
	if o.stillRunningAfter <= 0 {
		return func() {}
	}
	timer := time.AfterFunc(o.stillRunningAfter, func() {
		o.emit(run, Event{Kind: EventStillRunning, EndpointID: run.Endpoint.ID, RunID: run.ID})
	})
	return func() { timer.Stop() }
}

// stepTimer returns a func that records the step duration when called.
func (o *Orchestrator) stepTimer(step Step) func() {
	start := time.Now()
	return func() {
		if o.metrics != nil {
			o.metrics.ObserveStep(string(step), time.Since(start))
		}
	}
}

func (o *Orchestrator) recordTransportError(err error) {
	if o.metrics == nil {
		return
	}
	if te, ok := errors.AsTransport(err); ok {
		o.metrics.TransportErrors.WithLabelValues(te.Kind.String()).Inc()
	}
}

func (o *Orchestrator) observeAnalysis(endpointID string, a *endpoint.Analysis) {
	if o.metrics == nil {
		return
	}
	o.metrics.LanguagesFound.WithLabelValues(endpointID).Set(float64(len(a.Languages)))
	if a.GraphCount != nil {
		o.metrics.GraphCount.WithLabelValues(endpointID).Set(float64(*a.GraphCount))
	}
}

// duplicateDefault derives the duplicate verdict when the detector is not
// invoked: a definite false with known topology and fewer than two graphs,
// nil (not applicable) when graph support is unknown.
func duplicateDefault(g probe.GraphResult) *bool {
	if g.Support == endpoint.CapabilityUnknown {
		return nil
	}
	return endpoint.BoolPtr(false)
}

func graphVerdictStatus(g probe.GraphResult) LogStatus {
	if g.Support == endpoint.CapabilityUnknown {
		return LogWarning
	}
	return LogSuccess
}

func graphVerdictMessage(g probe.GraphResult) string {
	switch g.Support {
	case endpoint.CapabilitySupported:
		suffix := ""
		if !g.Exact {
			suffix = " (at least)"
		}
		count := 0
		if g.Count != nil {
			count = *g.Count
		}
		return fmt.Sprintf("Found %d named graph(s)%s", count, suffix)
	case endpoint.CapabilityUnsupported:
		return "No named graphs found"
	default:
		return "Named graph support could not be determined"
	}
}
