// Package httpapi exposes the dialogue service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/dialoggraph/dialogue"
	"github.com/dshills/dialoggraph/graph/store"
)

// maxBodyBytes limits the size of a query request.
const maxBodyBytes = 64 << 10

// retryAfterSeconds is sent with 503 and 409 responses.
const retryAfterSeconds = "1"

// TurnHandler runs one conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, t dialogue.Turn) (dialogue.Reply, error)
}

// QueryRequest is the body of POST /chatbot/query.
type QueryRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
	Resume   bool   `json:"resume"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to a TurnHandler.
type Server struct {
	turns    TurnHandler
	pinger   store.Pinger
	gatherer prometheus.Gatherer
	graph    string
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithPinger makes GET /healthz probe the checkpoint store.
func WithPinger(p store.Pinger) Option {
	return func(s *Server) {
		s.pinger = p
	}
}

// WithGatherer exposes g at GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithGraph serves a rendered workflow diagram at GET /graph.
func WithGraph(mermaid string) Option {
	return func(s *Server) {
		s.graph = mermaid
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHandler returns the HTTP handler for turns.
func NewHandler(turns TurnHandler, opts ...Option) http.Handler {
	s := &Server{
		turns:  turns,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/chatbot/query", s.query)
	r.Get("/healthz", s.health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.graph != "" {
		r.Get("/graph", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(s.graph))
		})
	}
	return r
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	reply, err := s.turns.HandleTurn(r.Context(), dialogue.Turn{
		ThreadID: req.ThreadID,
		Text:     req.Message,
		IsResume: req.Resume,
	})
	if err != nil {
		s.writeTurnError(w, r, req.ThreadID, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) writeTurnError(w http.ResponseWriter, r *http.Request, threadID string, err error) {
	switch {
	case errors.Is(err, dialogue.ErrInvalidTurn):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, dialogue.ErrConcurrentTurn):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeJSON(w, http.StatusConflict, errorResponse{Error: "another message for this conversation is being processed"})
	case errors.Is(err, dialogue.ErrStoreUnavailable):
		s.logger.Error("turn failed", "thread_id", threadID, "err", err)
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "conversation storage is unavailable"})
	case r.Context().Err() != nil:
		// The client went away; nobody reads the response.
		s.logger.Info("turn cancelled", "thread_id", threadID, "err", err)
	default:
		s.logger.Error("turn failed", "thread_id", threadID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
