package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"vidflow/internal/app"
	"vidflow/internal/config"
	"vidflow/internal/daemon"
	"vidflow/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the vidflow daemon and blocks until SIGINT/SIGTERM or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stdout", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	pidPath := filepath.Join(cfg.Paths.DataDir, "vidflowd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	a, err := app.Build(signalCtx, cfg, logger, app.WithStatusPublisher())
	if err != nil {
		logger.Error("build components", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, a, logger)
	if err != nil {
		_ = a.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, directory permissions, and the api bind address"),
			logging.String(logging.FieldImpact, "uploads and change records are not processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("vidflow daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("appsync_endpoint", cfg.AppSync.Endpoint),
		logging.Bool("appsync_key_present", strings.TrimSpace(cfg.AppSync.APIKey) != ""),
		logging.String("stages", strings.Join(cfg.StageNames(), ",")),
		logging.String("trigger_bucket", cfg.Trigger.Bucket),
		logging.Bool("inspect_objects", cfg.Trigger.InspectObjects),
		logging.String("delivery", cfg.Notifier.Delivery),
		logging.String("dead_letter", cfg.Notifier.DeadLetter),
		logging.Bool("amqp_enabled", cfg.AMQP.Enabled),
		logging.Bool("jetstream_enabled", cfg.JetStream.Enabled),
		logging.Bool("ntfy_enabled", cfg.Notifications.NtfyTopic != ""),
		logging.String("api_bind", cfg.API.Bind),
		logging.Bool("api_token_present", cfg.API.Token != ""),
	)
}
