// Package transport carries sync protocol messages over HTTP: a Server
// hosts one or more responder sessions behind a chi router, and a Client
// drives an initiator session against a remote Server. Message bodies are
// the raw frames protocol.EncodeRound1/EncodeRound2/etc. already produce;
// this package's job is only to get those bytes from one peer to the
// other and back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"

	"github.com/riftsync/riftsync/protocol"
)

// ServerConfig fixes the knobs a Server needs beyond the sync parameters
// each session already carries.
type ServerConfig struct {
	ListenAddr               string
	Log                      *slog.Logger
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
	GracefulShutdownDuration time.Duration
}

// SessionFactory builds a fresh responder session for an incoming sync,
// reading whatever file content that session should sync. The caller
// chooses what "sessionID" resolves to; the server treats it as an opaque
// routing key.
type SessionFactory func(ctx context.Context, sessionID string) (*protocol.ResponderSession, error)

// Server hosts one HTTP endpoint per protocol round, dispatching each
// request to the ResponderSession named by the URL's session ID.
type Server struct {
	cfg     ServerConfig
	factory SessionFactory

	isReady atomic.Bool
	log     *slog.Logger
	srv     *http.Server

	mu       sync.Mutex
	sessions map[string]*protocol.ResponderSession

	// History, if set, receives one record per session that reaches
	// StateReconstructed. Left nil, no history is recorded.
	History *HistoryStore
}

// New builds a Server. Routes are registered immediately; call
// RunInBackground to start listening.
func New(cfg ServerConfig, factory SessionFactory) *Server {
	s := &Server{
		cfg:      cfg,
		factory:  factory,
		log:      cfg.Log,
		sessions: make(map[string]*protocol.ResponderSession),
	}
	s.isReady.Store(true)

	router := s.router()
	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"POST", "GET"}}))
	r.Use(s.httpLogger)

	r.Post("/v1/sync/{sessionID}/round1", s.handleRound1)
	r.Post("/v1/sync/{sessionID}/round2", s.handleRound2)
	r.Get("/livez", s.handleLivez)
	r.Get("/readyz", s.handleReadyz)
	return r
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

func (s *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) sessionFor(ctx context.Context, sessionID string) (*protocol.ResponderSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess, nil
	}
	sess, err := s.factory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.sessions[sessionID] = sess
	return sess, nil
}

func (s *Server) forgetSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *Server) handleRound1(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("reading body: %v", err), http.StatusBadRequest)
		return
	}
	sess, err := s.sessionFor(r.Context(), sessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("opening session: %v", err), http.StatusInternalServerError)
		return
	}
	reply, err := sess.HandleRound1(body)
	if err != nil {
		s.log.Error("round1 failed", "session", sessionID, "err", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(reply)
}

func (s *Server) handleRound2(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("reading body: %v", err), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	reply, err := sess.HandleRound2(body)
	if err != nil {
		s.log.Error("round2 failed", "session", sessionID, "err", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if sess.State() == protocol.StateReconstructed {
		s.recordHistory(sessionID, body, reply)
		s.forgetSession(sessionID)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(reply)
}

// recordHistory logs a best-effort outcome row: the responder side never
// computes D_hat for itself (only the initiator does), so it logs what it
// can observe directly from the wire exchange it just handled.
func (s *Server) recordHistory(sessionID string, round2, round2Reply []byte) {
	if s.History == nil {
		return
	}
	parsed, err := protocol.DecodeRound2Reply(round2Reply)
	if err != nil {
		s.log.Warn("history: decoding own round2 reply", "session", sessionID, "err", err)
		return
	}
	report := protocol.Report{
		BytesReceivedRound2: len(round2),
		BytesSentRound2:     len(round2Reply),
		OnlyBBlocks:         len(parsed.OnlyB),
		Synchronized:        parsed.Status == protocol.DecodeOK,
	}
	if err := s.History.RecordSession(sessionID, report); err != nil {
		s.log.Warn("history: recording session", "session", sessionID, "err", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrOutOfOrder):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrSizeMismatch), errors.Is(err, protocol.ErrHashSeedMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RunInBackground starts the HTTP listener in a goroutine.
func (s *Server) RunInBackground() {
	go func() {
		s.log.Info("starting sync transport server", "addr", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("sync transport server failed", "err", err)
		}
	}()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown() error {
	s.isReady.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulShutdownDuration)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
