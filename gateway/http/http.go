// Package http exposes the probe service to the browser UI: analysis runs,
// analysis snapshots and logs, language priority lists, label resolution,
// and a WebSocket stream of run progress events.
package http

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/skosprobe/analysis"
	"github.com/c360/skosprobe/endpoint"
	"github.com/c360/skosprobe/errors"
	"github.com/c360/skosprobe/language"
	"github.com/c360/skosprobe/store"
)

const maxRequestSize = 1 << 20 // 1 MiB

// Analyzer is the orchestrator surface the gateway needs.
type Analyzer interface {
	RunAnalysis(ctx context.Context, ep endpoint.Endpoint) (*analysis.Run, error)
	Log(endpointID string) []analysis.LogEntry
	Running(endpointID string) bool
}

// Server handles the HTTP and WebSocket API.
type Server struct {
	analyzer Analyzer
	store    store.Store
	logger   *slog.Logger
	origins  []string
	upgrader websocket.Upgrader

	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger.With("component", "gateway") }
}

// WithAllowedOrigins sets the origins allowed for CORS and WebSocket
// upgrades. An entry of "*" allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer creates a gateway over the given analyzer and store.
func NewServer(a Analyzer, st store.Store, opts ...Option) *Server {
	s := &Server{
		analyzer: a,
		store:    st,
		logger:   slog.Default().With("component", "gateway"),
		clients:  make(map[*websocket.Conn]chan []byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	return s
}

// SetAnalyzer installs the analyzer after construction. The gateway and
// orchestrator reference each other (the orchestrator emits events the
// gateway streams), so one side has to be wired late. Call before serving.
func (s *Server) SetAnalyzer(a Analyzer) {
	s.analyzer = a
}

// Register installs all routes on the mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze", s.wrap(s.handleAnalyze))
	mux.HandleFunc("GET /api/endpoints/{id}/analysis", s.wrap(s.handleGetAnalysis))
	mux.HandleFunc("GET /api/endpoints/{id}/log", s.wrap(s.handleGetLog))
	mux.HandleFunc("GET /api/endpoints/{id}/priorities", s.wrap(s.handleGetPriorities))
	mux.HandleFunc("PUT /api/endpoints/{id}/priorities", s.wrap(s.handlePutPriorities))
	mux.HandleFunc("POST /api/endpoints/{id}/resolve", s.wrap(s.handleResolve))
	mux.HandleFunc("OPTIONS /api/", s.wrap(s.handlePreflight))
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// wrap counts requests and applies CORS headers.
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requestsTotal.Add(1)
		s.applyCORS(w, r)
		h(w, r)
	}
}

// --- analysis ---------------------------------------------------------

type analyzeRequest struct {
	Endpoint endpoint.Endpoint `json:"endpoint"`
}

type analyzeResponse struct {
	RunID    string              `json:"run_id"`
	Analysis *endpoint.Analysis  `json:"analysis,omitempty"`
	Log      []analysis.LogEntry `json:"log"`
	Error    string              `json:"error,omitempty"`
}

// handleAnalyze runs a full analysis synchronously and returns the run.
// Progress is streamed over the WebSocket while the request is in flight.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req) {
		return
	}

	run, err := s.analyzer.RunAnalysis(r.Context(), req.Endpoint)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := analyzeResponse{RunID: run.ID, Analysis: run.Analysis, Log: run.Log}
	status := http.StatusOK
	if run.Err != nil {
		resp.Error = run.Err.Error()
		if !stderrors.Is(run.Err, errors.ErrAnalysisSuperseded) {
			status = statusForError(run.Err)
		}
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.store.Analysis(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "no analysis for endpoint")
			return
		}
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

type logResponse struct {
	Running bool                `json:"running"`
	Log     []analysis.LogEntry `json:"log"`
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.writeJSON(w, http.StatusOK, logResponse{
		Running: s.analyzer.Running(id),
		Log:     s.analyzer.Log(id),
	})
}

// --- priorities and resolution ----------------------------------------

func (s *Server) handleGetPriorities(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	list, err := s.store.Priorities(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			s.writeJSON(w, http.StatusOK, &language.PriorityList{})
			return
		}
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePutPriorities(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var list language.PriorityList
	if !s.decode(w, r, &list) {
		return
	}
	if err := s.store.SavePriorities(r.Context(), id, &list); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &list)
}

type resolveRequest struct {
	Labels                 []language.LabelValue `json:"labels"`
	AlwaysShowPreferredTag bool                  `json:"always_show_preferred_tag"`
}

type resolveResponse struct {
	Text        string `json:"text"`
	Lang        string `json:"lang"`
	Found       bool   `json:"found"`
	ShowLangTag bool   `json:"show_lang_tag"`
}

// handleResolve picks a display label from the submitted literals using the
// endpoint's stored priority list.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req resolveRequest
	if !s.decode(w, r, &req) {
		return
	}

	list, err := s.store.Priorities(r.Context(), id)
	if err != nil {
		if !stderrors.Is(err, store.ErrNotFound) {
			s.fail(w, err)
			return
		}
		list = &language.PriorityList{}
	}

	resolver := language.Resolver{List: *list, AlwaysShowPreferredTag: req.AlwaysShowPreferredTag}
	label, found := resolver.Resolve(req.Labels)
	s.writeJSON(w, http.StatusOK, resolveResponse{
		Text:        label.Text,
		Lang:        label.Lang,
		Found:       found,
		ShowLangTag: found && resolver.ShouldShowLangTag(label.Lang),
	})
}

// --- events -----------------------------------------------------------

// HandleEvent fans an analysis event out to all connected WebSocket
// clients. Install it on the orchestrator with WithEventHandler. Slow
// clients drop events rather than block the running analysis.
func (s *Server) HandleEvent(ev analysis.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("event marshal failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- payload:
		default:
			s.logger.Warn("dropping event for slow client", "remote", conn.RemoteAddr())
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.requestsFailed.Add(1)
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := make(chan []byte, 64)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()
	s.logger.Info("websocket client connected", "remote", conn.RemoteAddr())

	go s.writePump(conn, ch)

	// Read loop only detects close; clients do not send messages.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.dropClient(conn)
}

func (s *Server) writePump(conn *websocket.Conn, ch chan []byte) {
	for payload := range ch {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.dropClient(conn)
			return
		}
	}
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	ch, ok := s.clients[conn]
	if ok {
		delete(s.clients, conn)
	}
	s.mu.Unlock()
	if ok {
		close(ch)
		conn.Close()
		s.logger.Info("websocket client disconnected", "remote", conn.RemoteAddr())
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects all WebSocket clients.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		s.dropClient(conn)
	}
}

// --- health -----------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"requests_total":  s.requestsTotal.Load(),
		"requests_failed": s.requestsFailed.Load(),
		"ws_clients":      s.ClientCount(),
	})
}

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ----------------------------------------------------------

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.originAllowed(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// decode reads a bounded JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(body) > maxRequestSize {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", maxRequestSize))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// statusForError maps transport failures onto gateway status codes.
func statusForError(err error) int {
	te, ok := errors.AsTransport(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if te.Kind == errors.KindTimeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.requestsFailed.Add(1)
	s.writeJSON(w, status, map[string]any{"error": message, "status": status})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
