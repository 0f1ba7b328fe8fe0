package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vidflow/internal/app"
	"vidflow/internal/broker"
	"vidflow/internal/changestream"
	"vidflow/internal/config"
	"vidflow/internal/logging"
	"vidflow/internal/pipeline"
	"vidflow/internal/preflight"
)

const transportRestartDelay = 5 * time.Second

// Daemon coordinates the API server and transports around one pipeline and
// enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	app    *app.App
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	api        *apiServer
	transports []*transport

	mu      sync.Mutex
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type transport struct {
	name    string
	enabled bool
	run     func(context.Context) error
	active  atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StorePath    string
	LockFilePath string
	APIBind      string
	Pipeline     pipeline.StatusSummary
	Archived     map[pipeline.Status]int
	DeadLetters  int
	Transports   []TransportStatus
}

// TransportStatus reports one optional event source.
type TransportStatus struct {
	Name    string
	Enabled bool
	Active  bool
}

// New constructs a daemon around an already wired App.
func New(cfg *config.Config, a *app.App, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || a == nil || logger == nil {
		return nil, errors.New("daemon requires config, app, and logger")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		app:      a,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.transports = []*transport{
		{
			name:    "amqp",
			enabled: cfg.AMQP.Enabled,
			run:     broker.NewConsumer(cfg.AMQP, a.Router, logger).Run,
		},
		{
			name:    "jetstream",
			enabled: cfg.JetStream.Enabled,
			run:     changestream.NewConsumer(cfg.JetStream, a.Notifier, logger).Run,
		},
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, and launches the API
// server and enabled transports.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidflow daemon instance is already running")
	}

	if failed := preflight.Failed(preflight.RunAll(ctx, d.cfg)); len(failed) > 0 {
		_ = d.lock.Unlock()
		parts := make([]string, 0, len(failed))
		for _, result := range failed {
			parts = append(parts, result.Name+": "+result.Detail)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
	}

	if marked, err := d.app.Store.MarkAbandoned(ctx, "daemon restarted before execution finished"); err != nil {
		logging.WarnWithContext(d.logger, "failed to close interrupted executions", "store_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the execution archive database"),
		)
	} else if marked > 0 {
		logging.WarnWithContext(d.logger, "interrupted executions marked failed", "executions_abandoned",
			logging.Int64("count", marked),
			logging.String(logging.FieldImpact, "uploads from before the restart were not fully processed"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		d.cancel()
		d.ctx, d.cancel = nil, nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}
	for _, t := range d.transports {
		if !t.enabled {
			continue
		}
		d.wg.Add(1)
		go d.runTransport(d.ctx, t)
	}

	d.running.Store(true)
	d.logger.Info("vidflow daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.api.address()),
	)
	return nil
}

// runTransport restarts a transport loop after errors until ctx ends.
func (d *Daemon) runTransport(ctx context.Context, t *transport) {
	defer d.wg.Done()
	for ctx.Err() == nil {
		t.active.Store(true)
		err := t.run(ctx)
		t.active.Store(false)
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(d.logger, "transport stopped", "transport_stopped",
			logging.String("transport", t.name),
			logging.Duration("retry_in", transportRestartDelay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the "+t.name+" connection settings"),
		)
		timer := time.NewTimer(transportRestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop stops intake, drains in-flight executions, and releases the lock.
// The orchestrator stays closed afterwards.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.app.Orchestrator.Close()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), d.cfg.DrainTimeout())
	if err := d.app.Orchestrator.Wait(drainCtx); err != nil {
		logging.WarnWithContext(d.logger, "executions still running at shutdown", "drain_timeout",
			logging.Int("in_flight", len(d.app.Orchestrator.Active())),
			logging.Duration("drain_timeout", d.cfg.DrainTimeout()),
			logging.String(logging.FieldImpact, "unfinished executions are marked failed on next start"),
		)
	}
	cancel()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("vidflow daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.app.Close()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StorePath:    d.app.Store.Path(),
		LockFilePath: d.lockPath,
		APIBind:      d.api.address(),
		Pipeline:     d.app.Orchestrator.Status(ctx),
	}
	if stats, err := d.app.Store.ExecutionStats(ctx); err == nil {
		status.Archived = stats
	} else {
		d.logger.Warn("execution stats unavailable", logging.Error(err))
	}
	if count, err := d.app.Store.CountDeadLetters(ctx); err == nil {
		status.DeadLetters = count
	}
	for _, t := range d.transports {
		status.Transports = append(status.Transports, TransportStatus{
			Name:    t.name,
			Enabled: t.enabled,
			Active:  t.active.Load(),
		})
	}
	return status
}
