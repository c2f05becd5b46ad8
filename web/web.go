// Package web provides the HTTP API of the import and letterage pipeline.
//
// The server accepts uploads, lists stored lines, runs and reverts
// letterage, serves the status report and the strict ledger export, and
// streams pipeline events to browsers over Server-Sent Events. Prometheus
// metrics are served on /metrics.
//
// SECURITY WARNING: This server has no authentication and should only be
// bound to localhost (127.0.0.1). Do not expose it to untrusted networks.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/robinvdvleuten/lettrage/events"
	"github.com/robinvdvleuten/lettrage/importer"
	"github.com/robinvdvleuten/lettrage/inbox"
	"github.com/robinvdvleuten/lettrage/letterage"
	"github.com/robinvdvleuten/lettrage/metrics"
	"github.com/robinvdvleuten/lettrage/store"
	"github.com/robinvdvleuten/lettrage/telemetry"
)

// DefaultMaxUpload bounds the size of an uploaded file.
const DefaultMaxUpload = 64 << 20

type Server struct {
	Host      string
	Port      int
	Version   string
	CommitSHA string
	ReadOnly  bool

	importer  *importer.Importer
	engine    *letterage.Engine
	store     store.Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	inbox     *inbox.Watcher
	logger    *slog.Logger
	maxUpload int64
	now       func() time.Time

	// SSE clients for broadcasting pipeline events
	sseClients map[chan []byte]struct{}
	sseMu      sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithAddress sets the listen address.
func WithAddress(host string, port int) Option {
	return func(s *Server) {
		s.Host = host
		s.Port = port
	}
}

// WithVersion sets the build reported by /api/health.
func WithVersion(version, commitSHA string) Option {
	return func(s *Server) {
		s.Version = version
		s.CommitSHA = commitSHA
	}
}

// WithReadOnly rejects every request that writes to the store.
func WithReadOnly() Option {
	return func(s *Server) {
		s.ReadOnly = true
	}
}

// WithPublisher sends pipeline events to p as well as to SSE clients.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		s.publisher = events.Tee(s, p)
	}
}

// WithMetrics records requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithInbox runs w alongside the server.
func WithInbox(w *inbox.Watcher) Option {
	return func(s *Server) {
		s.inbox = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock sets the clock used for reports.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a server over the given pipeline.
func New(imp *importer.Importer, engine *letterage.Engine, st store.Store, opts ...Option) *Server {
	s := &Server{
		Host:       "127.0.0.1",
		Port:       8080,
		importer:   imp,
		engine:     engine,
		store:      st,
		logger:     slog.New(slog.DiscardHandler),
		maxUpload:  DefaultMaxUpload,
		now:        time.Now,
		sseClients: make(map[chan []byte]struct{}),
	}
	s.publisher = s
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	collector := telemetry.FromContext(ctx)
	timer := collector.Start(fmt.Sprintf("web.start %s", s.Addr()))

	setupTimer := timer.Child("web.setup_router")
	mux := s.setupRouter()
	setupTimer.End()

	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.inbox != nil {
		go func() {
			if err := s.inbox.Run(ctx); err != nil {
				s.logger.Error("inbox watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	timer.End()
	s.logger.Info("listening", "addr", s.Addr(), "read_only", s.ReadOnly)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) setupRouter() *http.ServeMux {
	mux := http.NewServeMux()

	s.handle(mux, "GET /api/health", s.handleHealth)
	s.handle(mux, "POST /api/analyze", s.handleAnalyze)
	s.handle(mux, "POST /api/imports", s.handleImport)
	s.handle(mux, "GET /api/lines", s.handleGetLines)
	s.handle(mux, "GET /api/export", s.handleExport)
	s.handle(mux, "GET /api/report", s.handleReport)
	s.handle(mux, "POST /api/letterage/run", s.handleRun)
	s.handle(mux, "POST /api/letterage/apply", s.requireWritable(s.handleApply))
	s.handle(mux, "DELETE /api/letterage/{code}", s.requireWritable(s.handleUnletter))
	mux.HandleFunc("GET /api/events", s.handleSSE)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.Middleware(pattern, h))
}

// requireWritable is middleware that rejects write requests in read-only mode.
func (s *Server) requireWritable(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.ReadOnly {
			http.Error(w, "Server is in read-only mode", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter.
// If encoding fails, it writes an error response.
func writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeError maps pipeline errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, letterage.ErrNoRules):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyLettered), errors.Is(err, store.ErrDuplicateID):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSONResponse(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", "type", e.Type, "error", err)
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	CommitSHA string `json:"commit,omitempty"`
	ReadOnly  bool   `json:"read_only"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.Version,
		CommitSHA: s.CommitSHA,
		ReadOnly:  s.ReadOnly,
	})
}

// Publish broadcasts events to every connected SSE client. It makes the
// server usable as an events.Publisher.
func (s *Server) Publish(ctx context.Context, evs ...events.Event) error {
	for _, e := range evs {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", e.Type, err)
		}
		s.broadcast(data)
	}
	return nil
}

// Close is a no-op; clients disconnect with their requests.
func (s *Server) Close() error {
	return nil
}

// handleSSE handles Server-Sent Events connections for real-time updates.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	clientChan := make(chan []byte, 10)

	s.sseMu.Lock()
	s.sseClients[clientChan] = struct{}{}
	s.sseMu.Unlock()

	defer func() {
		s.sseMu.Lock()
		delete(s.sseClients, clientChan)
		s.sseMu.Unlock()
	}()

	_, _ = fmt.Fprintf(w, "data: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-clientChan:
			_, _ = fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()
		}
	}
}

// broadcast sends an event to all connected SSE clients.
func (s *Server) broadcast(event []byte) {
	s.sseMu.Lock()
	defer s.sseMu.Unlock()

	for clientChan := range s.sseClients {
		select {
		case clientChan <- event:
		default:
			// Client buffer full, skip
		}
	}
}
