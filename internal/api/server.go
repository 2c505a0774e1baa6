package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/cdl-core/internal/audit"
	"github.com/nerrad567/cdl-core/internal/auth"
	"github.com/nerrad567/cdl-core/internal/experiment"
	"github.com/nerrad567/cdl-core/internal/infrastructure/config"
	"github.com/nerrad567/cdl-core/internal/infrastructure/logging"
	"github.com/nerrad567/cdl-core/internal/result"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by database.DB and the optional brokers.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	DB          HealthChecker
	Accounts    *auth.AccountService
	Experiments *experiment.Service
	Results     *result.Service
	AuditRepo   audit.Repository
	AuditWriter *audit.Writer
	Hub         *Hub     // shared with the event fan-out; created if nil
	Metrics     *Metrics // shared with the domain services; created if nil
	Version     string
}

// Server is the HTTP API server for CDL Core.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	db          HealthChecker
	accounts    *auth.AccountService
	experiments *experiment.Service
	results     *result.Service
	auditRepo   audit.Repository
	auditWriter *audit.Writer
	hub         *Hub
	metrics     *Metrics
	tickets     *ticketStore
	version     string
	startTime   time.Time
	server      *http.Server
	cancel      context.CancelFunc
}

// New creates an API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Accounts == nil {
		return nil, fmt.Errorf("account service is required")
	}
	if deps.Experiments == nil || deps.Results == nil {
		return nil, fmt.Errorf("experiment and result services are required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		db:          deps.DB,
		accounts:    deps.Accounts,
		experiments: deps.Experiments,
		results:     deps.Results,
		auditRepo:   deps.AuditRepo,
		auditWriter: deps.AuditWriter,
		hub:         deps.Hub,
		metrics:     deps.Metrics,
		tickets:     newTicketStore(),
		version:     deps.Version,
		startTime:   time.Now(),
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	s.hub.setGauge(s.metrics.WSClients)
	return s, nil
}

// Hub returns the WebSocket hub so it can be added to the event fan-out.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the hub, the ticket janitor and the HTTP listener in the
// background. Stop everything with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close stops background goroutines and waits up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
