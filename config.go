package narrator

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-narrator/flags"
	"github.com/ethereum-optimism/infra/op-narrator/reporting"
	"github.com/ethereum-optimism/infra/op-narrator/resource"
)

// Config holds the application configuration
type Config struct {
	PlanFile         string
	Cases            []string            // Case titles to run; empty runs every case
	OutputDir        string              // Directory for reports and step artifacts
	Driver           resource.DriverType // Resource backend of every run
	Reporters        []string            // Reporters every run starts with
	IsolateReporters bool                // Keep dispatching after a reporter fails
	Parallelism      int                 // Number of concurrent runs (0 = auto-determine)
	BaseURL          string              // Overrides the base URL of every case
	RunInterval      time.Duration       // Interval between sessions
	RunOnce          bool                // Indicates if the service should exit after one session
	HTTPTimeout      time.Duration
	UserAgent        string
	ShowProgress     bool          // Whether to log periodic progress updates
	ProgressInterval time.Duration // Interval between progress updates when ShowProgress is 'true'

	PostgresDSN  string
	AMQPURL      string
	AMQPExchange string
	S3           reporting.S3Config

	MetricsConfig opmetrics.CLIConfig
	Log           log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	planFile := ctx.String(flags.Plan.Name)
	if planFile == "" {
		return nil, errors.New("plan file is required")
	}
	absPlan, err := filepath.Abs(planFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan '%s': %w", planFile, err)
	}

	outputDir := ctx.String(flags.OutputDir.Name)
	if outputDir == "" {
		outputDir = "reports"
	}
	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for output directory '%s': %w", outputDir, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	cfg := &Config{
		PlanFile:         absPlan,
		Cases:            ctx.StringSlice(flags.Cases.Name),
		OutputDir:        outputDir,
		Driver:           resource.DriverType(ctx.String(flags.Driver.Name)),
		Reporters:        ctx.StringSlice(flags.Reporters.Name),
		IsolateReporters: ctx.Bool(flags.IsolateReporters.Name),
		Parallelism:      ctx.Int(flags.Parallelism.Name),
		BaseURL:          ctx.String(flags.BaseURL.Name),
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		HTTPTimeout:      ctx.Duration(flags.HTTPTimeout.Name),
		UserAgent:        ctx.String(flags.UserAgent.Name),
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		PostgresDSN:      ctx.String(flags.PostgresDSN.Name),
		AMQPURL:          ctx.String(flags.AMQPURL.Name),
		AMQPExchange:     ctx.String(flags.AMQPExchange.Name),
		S3: reporting.S3Config{
			Endpoint:  ctx.String(flags.S3Endpoint.Name),
			AccessKey: ctx.String(flags.S3AccessKey.Name),
			SecretKey: ctx.String(flags.S3SecretKey.Name),
			Region:    ctx.String(flags.S3Region.Name),
			Bucket:    ctx.String(flags.S3Bucket.Name),
			Prefix:    ctx.String(flags.S3Prefix.Name),
			UseSSL:    ctx.Bool(flags.S3UseSSL.Name),
		},
		MetricsConfig: opmetrics.ReadCLIConfig(ctx),
		Log:           log,
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates settings that depend on each other
func (c *Config) Check() error {
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism cannot be negative: %d", c.Parallelism)
	}
	if c.RunInterval < 0 {
		return fmt.Errorf("run interval cannot be negative: %s", c.RunInterval)
	}
	for _, name := range c.Reporters {
		switch name {
		case reporting.PostgresReporterName:
			if c.PostgresDSN == "" {
				return fmt.Errorf("reporter %s requires --%s", name, flags.PostgresDSN.Name)
			}
		case reporting.AMQPReporterName:
			if c.AMQPURL == "" {
				return fmt.Errorf("reporter %s requires --%s", name, flags.AMQPURL.Name)
			}
		case reporting.S3ReporterName:
			if err := c.S3.Validate(); err != nil {
				return fmt.Errorf("reporter %s: %w", name, err)
			}
		}
	}
	return c.MetricsConfig.Check()
}
