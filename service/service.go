package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-narrator/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

// Config selects the listen addresses of the auxiliary servers
type Config struct {
	HealthzAddr    string
	MetricsEnabled bool
	MetricsAddr    string
}

// DefaultConfig listens on the default healthz and metrics ports
func DefaultConfig() Config {
	return Config{
		HealthzAddr:    net.JoinHostPort(HealthzHost, HealthzPort),
		MetricsEnabled: true,
		MetricsAddr:    net.JoinHostPort(MetricsHost, MetricsPort),
	}
}

// MetricsAddr formats a metrics listen address from host and port
func MetricsAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

type Service struct {
	cfg     Config
	log     log.Logger
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(cfg Config, logger log.Logger) *Service {
	return &Service{
		cfg:     cfg,
		log:     logger.New("component", "service"),
		Healthz: NewHealthzServer(),
		Metrics: NewMetricsServer(nil),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	if s.cfg.HealthzAddr != "" {
		go func() {
			addr := s.cfg.HealthzAddr
			s.log.Info("starting healthz server", "addr", addr)
			if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting healthz server", "err", err)
				metrics.RecordErrorDetails("error starting healthz server", err)
			}
		}()
	}

	if s.cfg.MetricsEnabled {
		go func() {
			addr := s.cfg.MetricsAddr
			s.log.Info("starting metrics server", "addr", addr)
			if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("error starting metrics server", err)
			}
		}()
	}

	s.log.Info("service started")
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
}
