package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	inbound "github.com/grahame/gubinge/internal/adapter/inbound/http"
	auditsink "github.com/grahame/gubinge/internal/adapter/outbound/audit"
	"github.com/grahame/gubinge/internal/adapter/outbound/cel"
	"github.com/grahame/gubinge/internal/adapter/outbound/state"
	"github.com/grahame/gubinge/internal/adapter/outbound/unixagent"
	"github.com/grahame/gubinge/internal/config"
	"github.com/grahame/gubinge/internal/domain/policy"
	"github.com/grahame/gubinge/internal/metrics"
	"github.com/grahame/gubinge/internal/service"
	"github.com/grahame/gubinge/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy, accepting client connections on its bind socket",
	Long: `serve binds the proxy's client-facing Unix socket, dials the configured
upstream ssh-agent once per accepted connection, and runs until
interrupted. It removes a stale socket file left at the bind path by a
previous unclean shutdown before binding, and takes an advisory lock on
the bind path so two instances never race to serve the same socket.`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "enable development-mode defaults (debug logging, text log format)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Set before loading so SetDefaults sees DevMode when it fills in the
	// log level and format.
	if devMode {
		viper.Set("dev_mode", true)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	bootID := uuid.NewString()
	logger = logger.With("boot_id", bootID)

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	lock, err := state.Acquire(cfg.Bind.Path + ".lock")
	if err != nil {
		return fmt.Errorf("acquire bind lock: %w", err)
	}
	defer lock.Release()

	compiledOverlay, err := buildOverlay(cfg.Overlay)
	if err != nil {
		return fmt.Errorf("build policy overlay: %w", err)
	}
	// compiledOverlay is a concrete *cel.Overlay; only assign it to the
	// policy.Overlay interface field below when non-nil, otherwise a
	// typed-nil pointer would make that interface value compare != nil.
	var overlay policy.Overlay
	if compiledOverlay != nil {
		overlay = compiledOverlay
		logger.Info("policy overlay loaded", "rules", len(cfg.Overlay), "fingerprint", compiledOverlay.Fingerprint())
	}

	identityFilter := policy.IdentityFilter(policy.DefaultIdentityFilter)
	if len(cfg.IdentityDenylist) > 0 {
		identityFilter = policy.DenylistIdentityFilter(cfg.IdentityDenylist)
	}

	audit, err := auditsink.NewSinkFromOutput(cfg.Audit.Output, cfg.Audit.RetentionDays, cfg.Audit.MaxFileSizeMB, logger)
	if err != nil {
		return fmt.Errorf("build audit sink: %w", err)
	}
	defer audit.Close()

	reg := prometheus.NewRegistry()
	mtr := metrics.New(reg)

	tp, err := telemetry.New(os.Stderr, "gubinge")
	if err != nil {
		return fmt.Errorf("build tracer: %w", err)
	}
	defer tp.Shutdown(context.Background())

	ln := service.NewListener(service.ListenerConfig{
		Path:           cfg.Bind.Path,
		BootID:         bootID,
		QueueCapacity:  cfg.Queue.Capacity,
		Overlay:        overlay,
		IdentityFilter: identityFilter,
		Dialer:         unixagent.NewDialer(cfg.Upstream.Path),
		Audit:          audit,
		Metrics:        mtr,
		Tracer:         tp.Tracer("gubinge/connection"),
		Logger:         logger,
	})

	var metricsSrv *inbound.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = inbound.NewServer(cfg.Metrics.Addr, reg)
		go func() {
			if err := metricsSrv.Run(ctx); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
	}

	// Children of this process should talk to the proxy, not the real
	// agent. The bind path also goes to stdout so shell wrappers can
	// export it: export SSH_AUTH_SOCK=$(gubinge serve ... &).
	_ = os.Setenv("SSH_AUTH_SOCK", cfg.Bind.Path)
	fmt.Println(cfg.Bind.Path)

	logger.Info("gubinge starting",
		"bind", cfg.Bind.Path,
		"upstream", cfg.Upstream.Path,
		"queue_capacity", cfg.Queue.Capacity,
		"audit_output", cfg.Audit.Output,
	)

	if err := ln.Run(ctx); err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	logger.Info("gubinge stopped")
	return nil
}

// buildOverlay compiles the configured CEL rules into a policy.Overlay,
// or returns nil if none are configured.
func buildOverlay(rules []config.OverlayRuleConfig) (*cel.Overlay, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	compiled := make([]cel.Rule, 0, len(rules))
	for _, r := range rules {
		action, ok := policy.ParseActionKind(r.Action)
		if !ok {
			return nil, fmt.Errorf("overlay rule %q: unknown action %q", r.Name, r.Action)
		}
		compiled = append(compiled, cel.Rule{Expression: r.Expression, Action: action})
	}
	return cel.NewOverlay(compiled)
}

// newLogger builds the process-wide structured logger per cfg.Log.
func newLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// info for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
