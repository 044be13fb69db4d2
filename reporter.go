package narrator

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"

	"github.com/ethereum-optimism/infra/op-narrator/metrics"
	"github.com/ethereum-optimism/infra/op-narrator/reporting"
	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// MetricsReporter is responsible for reporting metrics from session results
type MetricsReporter interface {
	ReportSession(session *types.Session)
}

// DefaultMetricsReporter implements the MetricsReporter interface
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportSession records the session outcome
func (r *DefaultMetricsReporter) ReportSession(session *types.Session) {
	metrics.RecordSession(
		filepath.Base(session.Plan),
		string(session.Status()),
		session.Counts(),
		session.Duration(),
	)
}

// sinks holds the connections of the reporters that talk to external systems
type sinks struct {
	closers []func() error
}

func (s *sinks) Close() error {
	var result *multierror.Error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	return result.ErrorOrNil()
}

// buildCatalog returns the file reporters plus the external reporters the
// configuration selects. Connections are only opened for selected reporters.
func buildCatalog(ctx context.Context, cfg *Config, logger log.Logger) (*reporting.Catalog, *sinks, error) {
	catalog := reporting.NewCatalog()
	s := &sinks{}

	if slices.Contains(cfg.Reporters, reporting.PostgresReporterName) {
		pool, err := reporting.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres reporter: %w", err)
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		if err := reporting.EnsurePostgresSchema(ctx, pool); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("postgres reporter: %w", err)
		}
		catalog.Register(reporting.PostgresReporterName, func() (reporting.Reporter, error) {
			return reporting.NewPostgresReporter(pool), nil
		})
		logger.Info("Postgres reporter enabled")
	}

	if slices.Contains(cfg.Reporters, reporting.AMQPReporterName) {
		conn, ch, err := reporting.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("amqp reporter: %w", err)
		}
		s.closers = append(s.closers, conn.Close)
		exchange := cfg.AMQPExchange
		catalog.Register(reporting.AMQPReporterName, func() (reporting.Reporter, error) {
			return reporting.NewAMQPReporter(ch, exchange), nil
		})
		logger.Info("AMQP reporter enabled", "exchange", exchange)
	}

	if slices.Contains(cfg.Reporters, reporting.S3ReporterName) {
		client, err := reporting.NewMinIOClient(cfg.S3)
		if err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("s3 reporter: %w", err)
		}
		if err := reporting.EnsureBucket(ctx, client, cfg.S3); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("s3 reporter: %w", err)
		}
		bucket, prefix := cfg.S3.Bucket, cfg.S3.Prefix
		catalog.Register(reporting.S3ReporterName, func() (reporting.Reporter, error) {
			return reporting.NewS3Reporter(client, bucket, prefix), nil
		})
		logger.Info("S3 reporter enabled", "bucket", bucket)
	}

	for _, name := range cfg.Reporters {
		if !catalog.Has(name) {
			_ = s.Close()
			return nil, nil, fmt.Errorf("unknown reporter %q, available: %v", name, catalog.Names())
		}
	}
	return catalog, s, nil
}
