package narrator

import (
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-narrator/flags"
	"github.com/ethereum-optimism/infra/op-narrator/reporting"
	"github.com/ethereum-optimism/infra/op-narrator/resource"
)

func newCLIContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range flags.Flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestNewConfig(t *testing.T) {
	dir := t.TempDir()
	ctx := newCLIContext(t,
		"--plan", filepath.Join(dir, "plan.yaml"),
		"--case", "Home page",
		"--output-dir", filepath.Join(dir, "out"),
		"--driver", "noop",
		"--reporter", "json",
		"--parallelism", "4",
		"--base-url", "http://staging.local/",
	)

	cfg, err := NewConfig(ctx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "plan.yaml"), cfg.PlanFile)
	assert.Equal(t, []string{"Home page"}, cfg.Cases)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.OutputDir)
	assert.Equal(t, resource.DriverNoop, cfg.Driver)
	assert.Equal(t, []string{"json"}, cfg.Reporters)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, "http://staging.local/", cfg.BaseURL)
	assert.True(t, cfg.RunOnce, "no interval means run once")
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "narrator", cfg.AMQPExchange)
	assert.Equal(t, "narrator-reports", cfg.S3.Bucket)
	assert.True(t, cfg.S3.UseSSL)
}

func TestNewConfig_Continuous(t *testing.T) {
	ctx := newCLIContext(t, "--plan", "plan.yaml", "--run-interval", "5m")
	cfg, err := NewConfig(ctx, testLogger())
	require.NoError(t, err)
	assert.False(t, cfg.RunOnce)
	assert.Equal(t, 5*time.Minute, cfg.RunInterval)
	assert.True(t, filepath.IsAbs(cfg.PlanFile))
	assert.True(t, filepath.IsAbs(cfg.OutputDir))
}

func TestNewConfig_MissingPlan(t *testing.T) {
	_, err := NewConfig(newCLIContext(t), testLogger())
	assert.ErrorContains(t, err, "missing required flags")
}

func TestConfig_Check(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"negative parallelism", func(c *Config) { c.Parallelism = -1 }, "parallelism cannot be negative"},
		{"negative interval", func(c *Config) { c.RunInterval = -time.Second }, "run interval cannot be negative"},
		{"postgres without dsn", func(c *Config) { c.Reporters = []string{reporting.PostgresReporterName} }, "requires --postgres.dsn"},
		{"amqp without url", func(c *Config) { c.Reporters = []string{reporting.AMQPReporterName} }, "requires --amqp.url"},
		{"s3 without endpoint", func(c *Config) { c.Reporters = []string{reporting.S3ReporterName} }, "reporter s3"},
		{"postgres with dsn", func(c *Config) {
			c.Reporters = []string{reporting.PostgresReporterName}
			c.PostgresDSN = "postgres://localhost/narrator"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Reporters: []string{"json"}, Log: testLogger()}
			tt.mutate(cfg)
			err := cfg.Check()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
