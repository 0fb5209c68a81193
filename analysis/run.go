package analysis

import (
	"time"

	"github.com/c360/skosprobe/endpoint"
)

// Step names the stages of one analysis run, in execution order.
type Step string

const (
	StepConnectivity    Step = "connectivity"
	StepGraphDetect     Step = "graph-detect"
	StepDuplicateDetect Step = "duplicate-detect"
	StepLanguageCensus  Step = "language-census"
)

// LogStatus is the display status of one log entry.
type LogStatus string

const (
	LogPending LogStatus = "pending"
	LogSuccess LogStatus = "success"
	LogWarning LogStatus = "warning"
	LogError   LogStatus = "error"
	LogInfo    LogStatus = "info"
)

// LogEntry is one human-readable line of the analysis log. Entries are
// appended per step; a failing step flips its own entry to error rather
// than appending a new one, so the failed step is unambiguous in the UI.
type LogEntry struct {
	Message string    `json:"message"`
	Status  LogStatus `json:"status"`
}

// Run is the value object one analysis produces. Each run owns its log, so
// concurrent runs cannot cross-contaminate entries. After RunAnalysis
// returns, the value is immutable.
type Run struct {
	ID         string            `json:"id"`
	Generation uint64            `json:"generation"`
	Endpoint   endpoint.Endpoint `json:"endpoint"`

	// Analysis is the committed snapshot; nil when the run failed or was
	// superseded by a later run.
	Analysis *endpoint.Analysis `json:"analysis,omitempty"`

	Log       []LogEntry    `json:"log"`
	Err       error         `json:"-"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Failed reports whether the run terminated on a step failure.
func (r *Run) Failed() bool {
	return r.Err != nil
}

// EventKind classifies progress events emitted during a run.
type EventKind string

const (
	// EventStepStarted fires when a step's pending log entry is appended.
	EventStepStarted EventKind = "step-started"
	// EventStepFinished fires when a step's entry is resolved.
	EventStepFinished EventKind = "step-finished"
	// EventStillRunning fires once when a run exceeds the configured delay,
	// so the UI can switch to a long-running affordance.
	EventStillRunning EventKind = "still-running"
	// EventRunFinished fires exactly once per run.
	EventRunFinished EventKind = "run-finished"
)

// Event is one progress notification. Log is a snapshot copy; receivers may
// keep it.
type Event struct {
	Kind       EventKind     `json:"kind"`
	EndpointID string        `json:"endpoint_id"`
	RunID      string        `json:"run_id"`
	Step       Step          `json:"step,omitempty"`
	Log        []LogEntry    `json:"log"`
	Elapsed    time.Duration `json:"elapsed"`
}
