package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/dispatch/pkg/cli"
	"mercator-hq/dispatch/pkg/config"
	"mercator-hq/dispatch/pkg/dispatch"
	"mercator-hq/dispatch/pkg/signals"
	"mercator-hq/dispatch/pkg/telemetry/logging"
	"mercator-hq/dispatch/pkg/telemetry/metrics"
	"mercator-hq/dispatch/pkg/telemetry/status"
	"mercator-hq/dispatch/pkg/telemetry/tracing"
)

var runFlags struct {
	ownerFD      int
	output       string
	appGroupName string
	appRoot      string
	concurrency  int
	logLevel     string
	analytics    bool
	dryRun       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the request handler",
	Long: `Start the request handler and serve until the owner pipe closes.

The owner pipe is inherited from the parent process (stdin by default). When
the parent dies the pipe closes and the handler exits after interrupting its
workers. SIGUSR1 starts a soft shutdown instead: the handler detaches from the
process pool, waits for its workers to go idle, lingers and exits.

Once the sockets are ready they are advertised on stdout:

  !> socket: main;unix:/tmp/dispatch.42/backends/backend.1f2e;session;1
  !> socket: http;tcp://127.0.0.1:40123;http;1
  !>

Examples:
  # Serve ./public
  dispatch run --app-group-name /srv/app

  # Four workers, owner pipe on fd 3
  dispatch run --config config.yaml --concurrency 4 --owner-fd 3

  # Validate config and provisioning without serving
  dispatch run --config config.yaml --dry-run`,
	RunE: runHandler,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runFlags.ownerFD, "owner-fd", 0, "file descriptor of the owner pipe")
	runCmd.Flags().StringVarP(&runFlags.output, "output", "o", "text", "endpoint advertisement format: text, json")
	runCmd.Flags().StringVar(&runFlags.appGroupName, "app-group-name", "", "override handler.app_group_name")
	runCmd.Flags().StringVar(&runFlags.appRoot, "app-root", "", "override handler.app_root")
	runCmd.Flags().IntVar(&runFlags.concurrency, "concurrency", 0, "override handler.concurrency")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.analytics, "analytics", false, "log one analytics record per request")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and exit before serving")
}

// flagOverrides maps command line flags onto DISPATCH_* variables so that
// they survive configuration reloads.
func flagOverrides() map[string]string {
	env := make(map[string]string)
	if runFlags.appGroupName != "" {
		env["HANDLER_APP_GROUP_NAME"] = runFlags.appGroupName
	}
	if runFlags.appRoot != "" {
		env["HANDLER_APP_ROOT"] = runFlags.appRoot
	}
	if runFlags.concurrency > 0 {
		env["HANDLER_CONCURRENCY"] = strconv.Itoa(runFlags.concurrency)
	}
	switch {
	case runFlags.logLevel != "":
		env["TELEMETRY_LOGGING_LEVEL"] = runFlags.logLevel
	case verbose:
		env["TELEMETRY_LOGGING_LEVEL"] = "debug"
	}
	return env
}

func runHandler(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(runFlags.output)
	if err != nil {
		return cli.NewConfigError("--output", err.Error())
	}

	for key, val := range flagOverrides() {
		if err := os.Setenv(config.EnvPrefix+key, val); err != nil {
			return cli.NewCommandError("run", err)
		}
	}
	if err := config.Initialize(cfgFile); err != nil {
		return cli.WrapConfigError(cfgFile, err)
	}
	cfg := config.GetConfig()

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
	if err != nil {
		return cli.WrapConfigError("telemetry.logging", err)
	}
	slog.SetDefault(logger.Logger)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.WrapConfigError("telemetry.tracing", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Tracing.Timeout)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	router := signals.NewRouter(logger.Logger)
	defer router.Stop()
	ctx, stopInterrupt, err := cli.InterruptContext(router)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer stopInterrupt()

	owner := os.NewFile(uintptr(runFlags.ownerFD), "owner-pipe")
	if owner == nil {
		return cli.NewConfigError("--owner-fd", fmt.Sprintf("invalid file descriptor %d", runFlags.ownerFD))
	}

	opts := handlerOptions(cfg)
	opts.Logger = logger.Logger
	opts.Metrics = collector
	opts.Tracer = tracer
	opts.Router = router
	if runFlags.analytics {
		opts.Analytics = logger.With("component", "analytics")
	}

	h, err := dispatch.New(owner, opts)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer h.Cleanup()

	if err := cli.AdvertiseEndpoints(cmd.OutOrStdout(), format, h.Endpoints()); err != nil {
		return cli.NewCommandError("run", err)
	}
	if runFlags.dryRun {
		logger.Info("dry run, not serving")
		return nil
	}

	scheduler := status.NewScheduler(cfg.Telemetry.StatusReport.Schedule, h, logger.Logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Warn("failed to start status scheduler", "error", err)
	}
	defer scheduler.Stop()

	if cfgFile != "" {
		watcher, err := config.NewWatcher(cfgFile, config.DefaultDebounceInterval, logger.Logger)
		if err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		} else {
			defer watcher.Stop()
			go func() {
				if err := watcher.Watch(ctx, reloadFunc(logger, h)); err != nil {
					logger.Error("config watcher failed", "error", err)
				}
			}()
		}
	}

	logger.Info("request handler started",
		"app_group", cfg.Handler.AppGroupName,
		"concurrency", cfg.Handler.Concurrency,
		"version", Version,
	)

	reason, err := h.MainLoop(ctx)
	if err != nil {
		logger.Error("request handler failed", "error", err)
		return cli.NewCommandError("run", err)
	}
	logger.Info("request handler stopped", "reason", reason.Describe())
	return nil
}

// handlerOptions maps the configuration onto dispatch options.
func handlerOptions(cfg *config.Config) dispatch.Options {
	return dispatch.Options{
		App:                       http.FileServer(http.Dir(cfg.Handler.AppRoot)),
		AppGroupName:              cfg.Handler.AppGroupName,
		ConnectPassword:           cfg.Handler.ConnectPassword,
		DetachKey:                 cfg.Handler.DetachKey,
		PoolAccountUsername:       cfg.Pool.AccountUsername,
		PoolAccountPasswordBase64: cfg.Pool.AccountPasswordBase64,
		PoolAdminAddress:          cfg.Pool.AdminAddress,
		PoolTimeout:               cfg.Pool.Timeout,
		MemoryLimit:               cfg.Handler.MemoryLimit,
		Concurrency:               cfg.Handler.Concurrency,
		LingerTime:                cfg.Handler.SoftTerminationLingerTime,
		UseUnixSockets:            cfg.Handler.UnixSockets(),
		RuntimeDir:                cfg.Handler.RuntimeDir,
		Version:                   Version,
	}
}

// reloadFunc applies the settings that can change without a restart.
func reloadFunc(logger *logging.Logger, h *dispatch.RequestHandler) func(*config.Config) {
	return func(cfg *config.Config) {
		if err := logger.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
			logger.Warn("invalid log level in reloaded config", "error", err)
		}
		h.SetLingerTime(cfg.Handler.SoftTerminationLingerTime)
		logger.Info("runtime settings updated",
			"log_level", cfg.Telemetry.Logging.Level,
			"linger_time", h.LingerTime(),
		)
	}
}
