package service

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ethereum/go-ethereum/log"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-selenese/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = 8080
)

// Config selects where the side endpoints listen.
type Config struct {
	HealthzAddr string
	Metrics     opmetrics.CLIConfig
}

// DefaultConfig serves /healthz on 0.0.0.0:8080 and metrics per the
// op-service defaults.
func DefaultConfig() Config {
	return Config{
		HealthzAddr: net.JoinHostPort(HealthzHost, fmt.Sprint(HealthzPort)),
		Metrics:     opmetrics.DefaultCLIConfig(),
	}
}

// Service runs the health and metrics endpoints next to test runs.
type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	cfg Config
	log log.Logger
}

func New(cfg Config, logger log.Logger) *Service {
	logger = logger.New("component", "service")
	return &Service{
		Healthz: NewHealthzServer(logger),
		Metrics: NewMetricsServer(cfg.Metrics, logger),
		cfg:     cfg,
		log:     logger,
	}
}

// Start brings up both endpoints. A failing endpoint is logged and counted
// but does not stop test runs.
func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	if s.cfg.HealthzAddr != "" {
		s.log.Info("starting healthz server", "addr", s.cfg.HealthzAddr)
		if err := s.Healthz.Start(ctx, s.cfg.HealthzAddr); err != nil {
			s.log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}

	if err := s.Metrics.Start(); err != nil {
		s.log.Error("error starting metrics server", "err", err)
		metrics.RecordErrorDetails("error starting metrics server", err)
	}

	s.log.Info("service started")
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")

	var result error
	if err := s.Healthz.Shutdown(ctx); err != nil {
		result = errors.Join(result, fmt.Errorf("healthz: %w", err))
	}
	s.log.Info("healthz stopped")

	if err := s.Metrics.Shutdown(ctx); err != nil {
		result = errors.Join(result, fmt.Errorf("metrics: %w", err))
	}
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
	return result
}
