package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/httputil"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-selenese/metrics"
)

// MetricsServer exposes the selenese collectors on the op-service metrics
// listener.
type MetricsServer struct {
	cfg    opmetrics.CLIConfig
	log    log.Logger
	server *httputil.HTTPServer
}

func NewMetricsServer(cfg opmetrics.CLIConfig, logger log.Logger) *MetricsServer {
	return &MetricsServer{cfg: cfg, log: logger}
}

func (m *MetricsServer) Start() error {
	if !m.cfg.Enabled {
		m.log.Info("Metrics server disabled")
		return nil
	}
	registry := opmetrics.NewRegistry()
	registry.MustRegister(metrics.Collectors()...)

	m.log.Info("Starting metrics server", "addr", m.cfg.ListenAddr, "port", m.cfg.ListenPort)
	server, err := opmetrics.StartServer(registry, m.cfg.ListenAddr, m.cfg.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	m.log.Info("Started metrics server", "endpoint", server.Addr())
	m.server = server
	return nil
}

// Endpoint returns the bound address, or "" when not serving.
func (m *MetricsServer) Endpoint() string {
	if m.server == nil {
		return ""
	}
	return m.server.Addr().String()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Stop(ctx)
}
