package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"assetflow/internal/confirm"
	"assetflow/internal/logging"
	"assetflow/internal/metrics"
	"assetflow/internal/pipeline"
	"assetflow/internal/scene"
	"assetflow/internal/services"
	"assetflow/internal/stage"
)

// Pipeline is the orchestrator surface the server reads.
type Pipeline interface {
	Active() (pipeline.SessionStatus, bool)
	Queued() int
	LastError() error
	Rate() float64
}

// Gate is the confirmation surface the server reads and answers.
type Gate interface {
	Pending() (confirm.Prompt, bool)
	Approve() bool
	Decline() bool
}

// Scenes is the scene machine surface the server reads.
type Scenes interface {
	Status() scene.Status
}

// HealthFunc reports collaborator readiness.
type HealthFunc func(ctx context.Context) []stage.Health

// Options wires the server to its collaborators. Only Bind and Pipeline are
// required.
type Options struct {
	Bind     string
	Token    string
	Pipeline Pipeline
	Gate     Gate
	Scenes   Scenes
	Health   HealthFunc
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Server is the status and confirmation HTTP server.
type Server struct {
	opts   Options
	logger *slog.Logger
	router chi.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// New builds a server. It returns nil when no bind address is configured.
func New(opts Options) *Server {
	if strings.TrimSpace(opts.Bind) == "" || opts.Pipeline == nil {
		return nil
	}
	s := &Server{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(metrics.RequestMiddleware(s.opts.Metrics))

	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.opts.Token))
		r.Get("/api/status", s.handleStatus)
		r.Post("/api/confirm/approve", s.handleApprove)
		r.Post("/api/confirm/decline", s.handleDecline)
		if s.opts.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler(s.refreshGauges))
		}
	})
	return r
}

// Start listens on the configured address and serves until ctx ends or Stop
// is called.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "api", "listen", s.opts.Bind, err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var reported []stage.Health
	if s.opts.Health != nil {
		reported = s.opts.Health(r.Context())
	}
	status := http.StatusOK
	if !stage.AllReady(reported) {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{"ok": status == http.StatusOK, "health": toStageHealth(reported)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Pipeline: s.pipelineStatus(),
		Health:   s.health(r),
	}
	if s.opts.Gate != nil {
		if prompt, ok := s.opts.Gate.Pending(); ok {
			resp.Confirm = ConfirmStatus{Pending: true, EstimatedBytes: prompt.EstimatedBytes, MB: prompt.MB}
		}
	}
	if s.opts.Scenes != nil {
		st := s.opts.Scenes.Status()
		resp.Scene = &SceneStatus{
			State:          st.State.String(),
			Current:        st.Current,
			Next:           st.Next,
			PendingLoaders: st.PendingLoaders,
			Progress:       st.Progress,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) pipelineStatus() PipelineStatus {
	p := s.opts.Pipeline
	status := PipelineStatus{Queued: p.Queued(), Rate: p.Rate()}
	if err := p.LastError(); err != nil {
		status.LastError = err.Error()
	}
	active, ok := p.Active()
	if !ok {
		return status
	}
	status.Running = true
	payload := &SessionPayload{
		ID:         active.ID,
		Stage:      string(active.Stage),
		Asset:      active.Sample.Name,
		Index:      active.Sample.Index,
		Count:      active.Sample.Count,
		Bytes:      active.Sample.CumulativeBytes,
		TotalBytes: active.Sample.TotalBytes,
		Percent:    active.Sample.Ratio() * 100,
		Paths:      active.Paths,
		Remote:     active.RemoteBase,
		StartedAt:  formatTime(active.Started),
	}
	if active.Stage.Transfers() && active.Sample.Count > 0 {
		payload.Message = pipeline.FormatProgress(active.Stage, active.Sample, status.Rate)
	}
	status.Session = payload
	return status
}

func (s *Server) health(r *http.Request) []StageHealth {
	if s.opts.Health == nil {
		return nil
	}
	return toStageHealth(s.opts.Health(r.Context()))
}

func toStageHealth(reported []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(reported))
	for _, h := range reported {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, "approve")
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, "decline")
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, action string) {
	if s.opts.Gate == nil {
		s.writeError(w, http.StatusNotFound, "confirmation is not available")
		return
	}
	var resolved bool
	if action == "approve" {
		resolved = s.opts.Gate.Approve()
	} else {
		resolved = s.opts.Gate.Decline()
	}
	if !resolved {
		s.writeError(w, http.StatusConflict, "no confirmation is pending")
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("confirmation answered remotely",
		logging.String(logging.FieldEventType, "confirm_"+action),
	)
	s.writeJSON(w, http.StatusOK, ConfirmResponse{Resolved: true})
}

func (s *Server) refreshGauges() {
	if s.opts.Scenes == nil || s.opts.Metrics == nil {
		return
	}
	s.opts.Metrics.LoadersPending(s.opts.Scenes.Status().PendingLoaders)
	s.opts.Metrics.Throughput(s.opts.Pipeline.Rate())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
