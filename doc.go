// Package skosprobe probes remote SPARQL endpoints serving SKOS vocabularies
// and resolves display labels by language priority.
//
// # Probe Pipeline
//
// An analysis run interrogates one endpoint in four steps:
//
//   - Connectivity: one minimal query establishes reachability and latency.
//   - Graph detection: cascading query strategies decide whether the
//     endpoint supports named graphs and count them. Endpoints that reject
//     graph syntax outright yield an explicit "unknown" verdict rather than
//     a failure.
//   - Duplicate detection: with two or more graphs, a single existence
//     query checks for triples asserted in multiple graphs.
//   - Language census: counts skos:prefLabel language tags, graph-scoped
//     when duplicates would otherwise inflate the counts.
//
// Results commit last-write-wins under a generation counter, so re-analyzing
// an endpoint while a prior run is in flight discards the slower result. A
// successful run fully replaces the persisted snapshot and folds newly seen
// languages into the endpoint's language priority list.
//
// # Layout
//
//   - sparql: SPARQL 1.1 Protocol transport with error classification
//   - probe: the individual capability probes
//   - analysis: run orchestration, logging, progress events
//   - language: priority list merging and label resolution
//   - store: persistence on NATS JetStream KV with in-memory fallback
//   - gateway/http: HTTP and WebSocket API for the browser UI
//
// The skosprobe binary under cmd wires these into a single service.
package skosprobe
