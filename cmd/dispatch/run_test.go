package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/dispatch/pkg/config"
	"mercator-hq/dispatch/pkg/dispatch"
	"mercator-hq/dispatch/pkg/telemetry/logging"
)

func TestFlagOverrides(t *testing.T) {
	orig, origVerbose := runFlags, verbose
	t.Cleanup(func() {
		runFlags, verbose = orig, origVerbose
	})

	tests := []struct {
		name    string
		set     func()
		wantKey string
		wantVal string
		absent  string
	}{
		{
			name:    "app group",
			set:     func() { runFlags.appGroupName = "/srv/app" },
			wantKey: "HANDLER_APP_GROUP_NAME",
			wantVal: "/srv/app",
		},
		{
			name:    "concurrency",
			set:     func() { runFlags.concurrency = 4 },
			wantKey: "HANDLER_CONCURRENCY",
			wantVal: "4",
		},
		{
			name:    "verbose implies debug",
			set:     func() { verbose = true },
			wantKey: "TELEMETRY_LOGGING_LEVEL",
			wantVal: "debug",
		},
		{
			name: "log level wins over verbose",
			set: func() {
				verbose = true
				runFlags.logLevel = "warn"
			},
			wantKey: "TELEMETRY_LOGGING_LEVEL",
			wantVal: "warn",
		},
		{
			name:   "zero concurrency is not an override",
			set:    func() {},
			absent: "HANDLER_CONCURRENCY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runFlags = orig
			verbose = false
			tt.set()

			env := flagOverrides()
			if tt.wantKey != "" && env[tt.wantKey] != tt.wantVal {
				t.Errorf("env[%s] = %q, want %q", tt.wantKey, env[tt.wantKey], tt.wantVal)
			}
			if tt.absent != "" {
				if _, ok := env[tt.absent]; ok {
					t.Errorf("env[%s] should be unset", tt.absent)
				}
			}
		})
	}
}

func TestHandlerOptions(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Handler.AppGroupName = "/srv/app"
	cfg.Handler.Concurrency = 3
	cfg.Handler.DetachKey = "key"
	cfg.Pool.AccountUsername = "admin"
	cfg.Pool.AccountPasswordBase64 = "czNjcmV0"
	cfg.Pool.AdminAddress = "unix:/run/pool.sock"

	opts := handlerOptions(cfg)

	if opts.AppGroupName != "/srv/app" || opts.Concurrency != 3 {
		t.Errorf("opts = %+v", opts)
	}
	if !opts.UseUnixSockets {
		t.Error("UseUnixSockets should default to true")
	}
	if opts.LingerTime != config.DefaultSoftTerminationLingerTime {
		t.Errorf("LingerTime = %v", opts.LingerTime)
	}
	if opts.PoolAdminAddress != "unix:/run/pool.sock" || opts.DetachKey != "key" {
		t.Errorf("pool options = %+v", opts)
	}
	if opts.App == nil {
		t.Error("App should serve the app root")
	}
}

func TestReloadFunc(t *testing.T) {
	logger, err := logging.New(logging.Config{Level: "info", Format: "json", Writer: io.Discard})
	if err != nil {
		t.Fatal(err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	h, err := dispatch.New(r, dispatch.Options{
		AppGroupName: "/srv/app",
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Cleanup()

	cfg := config.NewDefaultConfig()
	cfg.Telemetry.Logging.Level = "debug"
	cfg.Handler.SoftTerminationLingerTime = 7 * time.Second

	reloadFunc(logger, h)(cfg)

	if logger.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", logger.Level())
	}
	if h.LingerTime() != 7*time.Second {
		t.Errorf("LingerTime() = %v, want 7s", h.LingerTime())
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`handler:
  app_group_name: /srv/app
  connect_password: hunter2
  concurrency: 2
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	origCfg, origOut := cfgFile, validateFlags.output
	t.Cleanup(func() { cfgFile, validateFlags.output = origCfg, origOut })
	cfgFile = path

	tests := []struct {
		output  string
		want    string
		notWant string
	}{
		{output: "text", want: "concurrency:  2"},
		{output: "json", want: `"ConnectPassword": "***"`, notWant: "hunter2"},
	}
	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			validateFlags.output = tt.output
			var buf bytes.Buffer
			validateCmd.SetOut(&buf)

			if err := validateConfig(validateCmd, nil); err != nil {
				t.Fatalf("validateConfig() error = %v", err)
			}
			if !bytes.Contains(buf.Bytes(), []byte(tt.want)) {
				t.Errorf("output missing %q:\n%s", tt.want, buf.String())
			}
			if tt.notWant != "" && bytes.Contains(buf.Bytes(), []byte(tt.notWant)) {
				t.Errorf("output leaks %q", tt.notWant)
			}
		})
	}
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("handler:\n  concurrency: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	origCfg := cfgFile
	t.Cleanup(func() { cfgFile = origCfg })
	cfgFile = path
	t.Setenv(config.EnvPrefix+"HANDLER_APP_GROUP_NAME", "")

	err := validateConfig(validateCmd, nil)
	if err == nil {
		t.Fatal("expected validation error for missing app group name")
	}
}
