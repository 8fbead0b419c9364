// Package api implements the HTTP API for querying course materials.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ylzuimeng/rag-chatbot/internal/agent"
	"github.com/ylzuimeng/rag-chatbot/internal/buildinfo"
	"github.com/ylzuimeng/rag-chatbot/internal/llm"
	"github.com/ylzuimeng/rag-chatbot/internal/tools"
)

// Answerer runs the answer loop for one query. Implemented by
// *agent.Orchestrator.
type Answerer interface {
	Answer(ctx context.Context, query string, history []llm.Message) (*agent.Result, error)
}

// SessionStore persists conversation sessions.
type SessionStore interface {
	Create(ctx context.Context) (string, error)
	Exists(ctx context.Context, id string) (bool, error)
	History(ctx context.Context, id string) ([]llm.Message, error)
	AddExchange(ctx context.Context, sessionID, query, answer string, outcomes []agent.ToolOutcome) error
	Delete(ctx context.Context, id string) error
}

// CourseCatalog exposes course statistics.
type CourseCatalog interface {
	CourseCount(ctx context.Context) (int, error)
	CourseTitles(ctx context.Context) ([]string, error)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	listen   string
	answerer Answerer
	sessions SessionStore
	catalog  CourseCatalog
	logger   *slog.Logger
	server   *http.Server
	stats    *QueryStats
}

// QueryStats tracks usage since startup.
type QueryStats struct {
	mu                sync.Mutex
	totalQueries      int64
	totalLLMCalls     int64
	totalInputTokens  int64
	totalOutputTokens int64
}

func (s *QueryStats) Record(res *agent.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalQueries++
	s.totalLLMCalls += int64(res.LLMCalls)
	s.totalInputTokens += int64(res.InputTokens)
	s.totalOutputTokens += int64(res.OutputTokens)
}

// QueryStatsSnapshot is a copy-safe snapshot of query stats.
type QueryStatsSnapshot struct {
	TotalQueries      int64 `json:"total_queries"`
	TotalLLMCalls     int64 `json:"total_llm_calls"`
	TotalInputTokens  int64 `json:"total_input_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
}

func (s *QueryStats) Snapshot() QueryStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QueryStatsSnapshot{
		TotalQueries:      s.totalQueries,
		TotalLLMCalls:     s.totalLLMCalls,
		TotalInputTokens:  s.totalInputTokens,
		TotalOutputTokens: s.totalOutputTokens,
	}
}

// NewServer creates a new API server.
func NewServer(listen string, answerer Answerer, sessions SessionStore, catalog CourseCatalog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listen:   listen,
		answerer: answerer,
		sessions: sessions,
		catalog:  catalog,
		logger:   logger,
		stats:    &QueryStats{},
	}
}

// Handler builds the route table. Exposed separately so tests can drive
// it without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/courses", s.handleCourses)

	mux.HandleFunc("POST /api/sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionDelete)

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // multi-round answers take a while
	}

	s.logger.Info("starting API server", "listen", s.listen)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "ragchat",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.stats.Snapshot(), s.logger)
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// QueryResponse is the answer to one query.
type QueryResponse struct {
	Answer      string         `json:"answer"`
	Sources     []tools.Source `json:"sources"`
	SessionID   string         `json:"session_id"`
	Termination string         `json:"termination"`
	Rounds      int            `json:"rounds"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.errorResponse(w, http.StatusBadRequest, "query is required")
		return
	}

	ctx := r.Context()

	sessionID := req.SessionID
	var history []llm.Message
	if sessionID == "" {
		id, err := s.sessions.Create(ctx)
		if err != nil {
			s.logger.Error("session create failed", "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "session error")
			return
		}
		sessionID = id
	} else {
		h, err := s.sessions.History(ctx, sessionID)
		if err != nil {
			s.logger.Error("history load failed", "session", sessionID, "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "session error")
			return
		}
		history = h
	}

	res, err := s.answerer.Answer(ctx, req.Query, history)
	if err != nil {
		s.logger.Error("answer failed", "session", sessionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "answer error: "+err.Error())
		return
	}

	s.stats.Record(res)

	if err := s.sessions.AddExchange(ctx, sessionID, req.Query, res.Content, res.ToolOutcomes); err != nil {
		// The answer is already computed; losing the audit trail is not
		// worth failing the request over.
		s.logger.Warn("failed to persist exchange", "session", sessionID, "error", err)
	}

	sources := res.Sources
	if sources == nil {
		sources = []tools.Source{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, QueryResponse{
		Answer:      res.Content,
		Sources:     sources,
		SessionID:   sessionID,
		Termination: res.Termination,
		Rounds:      res.Rounds,
	}, s.logger)
}

// CoursesResponse is the body of GET /api/courses.
type CoursesResponse struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := s.catalog.CourseCount(ctx)
	if err != nil {
		s.logger.Error("course count failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "catalog error")
		return
	}
	titles, err := s.catalog.CourseTitles(ctx)
	if err != nil {
		s.logger.Error("course titles failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "catalog error")
		return
	}
	if titles == nil {
		titles = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, CoursesResponse{
		TotalCourses: count,
		CourseTitles: titles,
	}, s.logger)
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.Create(r.Context())
	if err != nil {
		s.logger.Error("session create failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "session error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"session_id": id}, s.logger)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	ok, err := s.sessions.Exists(ctx, id)
	if err != nil {
		s.logger.Error("session lookup failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "session error")
		return
	}
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}

	history, err := s.sessions.History(ctx, id)
	if err != nil {
		s.logger.Error("history load failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "session error")
		return
	}
	if history == nil {
		history = []llm.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"session_id": id,
		"messages":   history,
	}, s.logger)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	ok, err := s.sessions.Exists(ctx, id)
	if err != nil {
		s.logger.Error("session lookup failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "session error")
		return
	}
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		s.logger.Error("session delete failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "session error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
