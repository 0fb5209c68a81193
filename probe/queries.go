package probe

import (
	"fmt"
	"strings"
)

// Probe queries are all LIMIT-bounded so a single probe can never trigger an
// unbounded scan on the remote endpoint.

const (
	// queryConnectivity is the minimal round trip: any triple at all.
	queryConnectivity = `SELECT ?s WHERE { ?s ?p ?o } LIMIT 1`

	// queryGraphEmptyPattern asks whether any named graph exists using an
	// empty group pattern inside the graph clause. Cheapest possible graph
	// probe, but some stores return nothing for empty patterns even when
	// graphs exist.
	queryGraphEmptyPattern = `SELECT ?g WHERE { GRAPH ?g { } } LIMIT 1`

	// queryGraphTriplePattern matches any triple inside any graph. Used when
	// the empty pattern was accepted but produced no evidence, to separate
	// "zero graphs populated" from "empty patterns not matched".
	queryGraphTriplePattern = `SELECT ?g WHERE { GRAPH ?g { ?s ?p ?o } } LIMIT 1`

	// queryGraphCount counts distinct named graphs with an aggregate. Not
	// every endpoint supports aggregates over graphs; failures fall back to
	// enumeration.
	queryGraphCount = `SELECT (COUNT(DISTINCT ?g) AS ?count) WHERE { GRAPH ?g { ?s ?p ?o } }`

	// queryDuplicateTriples checks whether any single triple is asserted in
	// two different graphs. LIMIT 1 keeps this an existence check rather
	// than a cross-product scan.
	queryDuplicateTriples = `SELECT ?s WHERE {
  GRAPH ?g1 { ?s ?p ?o }
  GRAPH ?g2 { ?s ?p ?o }
  FILTER(?g1 != ?g2)
} LIMIT 1`
)

// graphEnumQuery enumerates distinct graph identifiers up to limit. Hitting
// the limit means the real count is at least limit.
func graphEnumQuery(limit int) string {
	return fmt.Sprintf(`SELECT DISTINCT ?g WHERE { GRAPH ?g { ?s ?p ?o } } LIMIT %d`, limit)
}

// languageCensusQuery aggregates distinct language tags on SKOS prefLabels,
// most frequent first. Untagged labels are filtered out at the endpoint.
//
// When graphScoped is set, concept and label are constrained to the same
// graph so that duplicated cross-graph assertions do not inflate counts.
func languageCensusQuery(limit int, graphScoped bool) string {
	pattern := `?concept a skos:Concept .
  ?concept skos:prefLabel ?label .`
	if graphScoped {
		pattern = `GRAPH ?g {
    ?concept a skos:Concept .
    ?concept skos:prefLabel ?label .
  }`
	}

	var b strings.Builder
	b.WriteString("PREFIX skos: <http://www.w3.org/2004/02/skos/core#>\n")
	b.WriteString("SELECT ?lang (COUNT(?label) AS ?count) WHERE {\n  ")
	b.WriteString(pattern)
	b.WriteString("\n  BIND(LANG(?label) AS ?lang)\n")
	b.WriteString("  FILTER(?lang != \"\")\n")
	b.WriteString("} GROUP BY ?lang ORDER BY DESC(?count)")
	fmt.Fprintf(&b, " LIMIT %d", limit)
	return b.String()
}
