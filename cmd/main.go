package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	narrator "github.com/ethereum-optimism/infra/op-narrator"
	"github.com/ethereum-optimism/infra/op-narrator/exitcodes"
	"github.com/ethereum-optimism/infra/op-narrator/flags"
	"github.com/ethereum-optimism/infra/op-narrator/service"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-narrator"
	app.Usage = "Scenario runner for web applications"
	app.Description = "op-narrator runs the cases of a plan against a live site and reports every run"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
			return
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCodeFor(err)))
	}

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// exitCodeFor maps an application error to the process exit code
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case narrator.IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case narrator.IsTestFailureError(err):
		return exitcodes.TestFailure
	default:
		// For other unspecified errors, default to exit code 1
		return exitcodes.TestFailure
	}
}

// serviceConfig derives the auxiliary server addresses from the metrics flags
func serviceConfig(cfg *narrator.Config) service.Config {
	svcCfg := service.DefaultConfig()
	svcCfg.MetricsEnabled = cfg.MetricsConfig.Enabled
	if cfg.MetricsConfig.ListenAddr != "" {
		svcCfg.MetricsAddr = service.MetricsAddr(cfg.MetricsConfig.ListenAddr, cfg.MetricsConfig.ListenPort)
	}
	return svcCfg
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := narrator.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, narrator.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	svc := service.New(serviceConfig(cfg), log)
	n, err := narrator.New(ctx.Context, cfg, Version, closeApp, narrator.WithService(svc))
	if err != nil {
		return nil, narrator.NewRuntimeError(fmt.Errorf("failed to create narrator: %w", err))
	}

	return n, nil
}
