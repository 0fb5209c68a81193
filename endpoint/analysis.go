package endpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// Capability is the tri-state answer to "does the endpoint support named
// graphs". The zero value is Unknown so an unprobed endpoint never reads as
// a definite answer.
type Capability int

const (
	// CapabilityUnknown means the endpoint rejected graph-syntax probes
	// outright; support could not be established either way.
	CapabilityUnknown Capability = iota
	// CapabilitySupported means graph syntax was accepted and at least one
	// named graph was observed.
	CapabilitySupported
	// CapabilityUnsupported means graph syntax was accepted but the dataset
	// holds zero named graphs.
	CapabilityUnsupported
)

// String returns the wire name of the capability.
func (c Capability) String() string {
	switch c {
	case CapabilitySupported:
		return "supported"
	case CapabilityUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the capability as its string name.
func (c Capability) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes the string name back to a Capability.
func (c *Capability) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "supported":
		*c = CapabilitySupported
	case "unsupported":
		*c = CapabilityUnsupported
	case "unknown":
		*c = CapabilityUnknown
	default:
		return fmt.Errorf("unknown capability %q", s)
	}
	return nil
}

// QueryMethod records which probing strategy established the graph verdict.
type QueryMethod string

const (
	QueryMethodEmptyPattern     QueryMethod = "empty-pattern"
	QueryMethodBlankNodePattern QueryMethod = "blank-node-pattern"
	QueryMethodFallbackLimit    QueryMethod = "fallback-limit"
	QueryMethodNone             QueryMethod = "none"
)

// LanguageCount is one entry of the language census: a label language tag
// and how many primary labels carry it.
type LanguageCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Analysis is the immutable output snapshot of one probe run. It is created
// once per run and fully replaced on re-analysis, never mutated field by
// field.
//
// GraphCount is nil when graph support is unknown. HasDuplicateTriples is
// nil only when graph support is unknown; with known topology and fewer
// than two graphs it is a definite false.
type Analysis struct {
	SupportsNamedGraphs Capability      `json:"supports_named_graphs"`
	GraphCount          *int            `json:"graph_count"`
	GraphCountExact     bool            `json:"graph_count_exact"`
	QueryMethod         QueryMethod     `json:"query_method"`
	HasDuplicateTriples *bool           `json:"has_duplicate_triples"`
	Languages           []LanguageCount `json:"languages"`
	AnalyzedAt          time.Time       `json:"analyzed_at"`
}

// GraphCountValue returns the graph count, or 0 when the count is unknown.
func (a *Analysis) GraphCountValue() int {
	if a.GraphCount == nil {
		return 0
	}
	return *a.GraphCount
}

// DuplicatesDetected returns the duplicate verdict as a plain bool, treating
// not-applicable as false.
func (a *Analysis) DuplicatesDetected() bool {
	return a.HasDuplicateTriples != nil && *a.HasDuplicateTriples
}

// IntPtr returns a pointer to v, for building Analysis values.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v, for building Analysis values.
func BoolPtr(v bool) *bool { return &v }
