package sparql

import (
	"encoding/json"
	"strconv"

	"github.com/c360/skosprobe/errors"
)

// Value is one bound RDF term in a results row, following the SPARQL 1.1
// Query Results JSON Format.
type Value struct {
	Type     string `json:"type"` // uri, literal, bnode
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Int parses the value as an integer literal.
func (v Value) Int() (int, error) {
	n, err := strconv.Atoi(v.Value)
	if err != nil {
		return 0, errors.Wrap(err, "Value", "Int", "integer literal parse")
	}
	return n, nil
}

// Binding is one results row: variable name to bound value. Unbound
// variables are absent from the map.
type Binding map[string]Value

// Results is a parsed SPARQL query result. Boolean is set for ASK queries,
// Bindings for SELECT queries.
type Results struct {
	Vars     []string
	Boolean  *bool
	Bindings []Binding
}

// Empty reports whether a SELECT result holds no rows.
func (r *Results) Empty() bool {
	return len(r.Bindings) == 0
}

// First returns the value bound to name in the first row.
func (r *Results) First(name string) (Value, bool) {
	if len(r.Bindings) == 0 {
		return Value{}, false
	}
	v, ok := r.Bindings[0][name]
	return v, ok
}

// resultsDocument mirrors the wire format. Results is a pointer so that a
// response missing both a results object and a boolean can be told apart
// from an empty result set.
type resultsDocument struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Boolean *bool `json:"boolean"`
	Results *struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

// parseResults decodes a SPARQL JSON results payload. A payload that decodes
// as JSON but carries neither bindings nor a boolean is malformed: an
// endpoint answering probes with arbitrary JSON is indistinguishable from
// one not speaking the protocol at all.
func parseResults(data []byte, endpointURL, operation string) (*Results, error) {
	var doc resultsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Malformed(err, endpointURL, operation)
	}
	if doc.Results == nil && doc.Boolean == nil {
		return nil, errors.Malformed(errors.ErrMalformedResults, endpointURL, operation)
	}

	res := &Results{Vars: doc.Head.Vars, Boolean: doc.Boolean}
	if doc.Results != nil {
		res.Bindings = doc.Results.Bindings
	}
	return res, nil
}
