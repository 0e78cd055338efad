package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/solarwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/metrics"
	"github.com/nerrad567/solarwatch-core/internal/ingest"
	"github.com/nerrad567/solarwatch-core/internal/notify"
	"github.com/nerrad567/solarwatch-core/internal/telemetry"
	"github.com/nerrad567/solarwatch-core/internal/timeseries"
	"github.com/nerrad567/solarwatch-core/internal/watchdog"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// defaultMaxBodyBytes applies when Deps.MaxBodyBytes is unset.
const defaultMaxBodyBytes = 64 << 10

// HealthCheck reports the health of one dependency.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies of the API server.
type Deps struct {
	Config       config.APIConfig
	MetricsPath  string // empty disables /metrics
	MaxBodyBytes int64
	Logger       *logging.Logger
	Metrics      *metrics.Metrics

	Ingest     *ingest.Service
	Registry   ingest.RegistrySource
	Series     *timeseries.Store
	Snapshots  *telemetry.SnapshotStore
	States     *watchdog.StateStore
	Recipients *notify.RecipientStore

	// Checks are reported by /api/v1/health, keyed by component name.
	Checks  map[string]HealthCheck
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg          config.APIConfig
	metricsPath  string
	maxBodyBytes int64
	logger       *logging.Logger
	metrics      *metrics.Metrics

	ingest     *ingest.Service
	registry   ingest.RegistrySource
	series     *timeseries.Store
	snapshots  *telemetry.SnapshotStore
	states     *watchdog.StateStore
	recipients *notify.RecipientStore
	checks     map[string]HealthCheck
	version    string

	now    func() time.Time
	server *http.Server
}

// New creates a server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Ingest == nil:
		return nil, errors.New("ingest service is required")
	case deps.Registry == nil:
		return nil, errors.New("device registry is required")
	case deps.Series == nil || deps.Snapshots == nil || deps.States == nil:
		return nil, errors.New("record stores are required")
	case deps.Recipients == nil:
		return nil, errors.New("recipient store is required")
	}

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Server{
		cfg:          deps.Config,
		metricsPath:  deps.MetricsPath,
		maxBodyBytes: maxBody,
		logger:       deps.Logger.With("component", "api"),
		metrics:      deps.Metrics,
		ingest:       deps.Ingest,
		registry:     deps.Registry,
		series:       deps.Series,
		snapshots:    deps.Snapshots,
		states:       deps.States,
		recipients:   deps.Recipients,
		checks:       deps.Checks,
		version:      deps.Version,
		now:          time.Now,
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background. Bind errors are
// returned; later serve errors are logged.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close waits up to gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
