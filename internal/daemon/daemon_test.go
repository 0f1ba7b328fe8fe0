package daemon_test

import (
	"context"
	"testing"
	"time"

	"vidflow/internal/app"
	"vidflow/internal/cdc"
	"vidflow/internal/config"
	"vidflow/internal/daemon"
	"vidflow/internal/logging"
	"vidflow/internal/pipeline"
	"vidflow/internal/stage"
	"vidflow/internal/testsupport"
)

type nopDownstream struct{}

func (nopDownstream) CreateVideo(_ context.Context, in cdc.VideoInput) (string, error) {
	return in.ID, nil
}

func (nopDownstream) CreateVideoNotification(_ context.Context, in cdc.NotificationInput) (string, error) {
	return in.ID, nil
}

func newDaemon(t *testing.T, cfg *config.Config, handlers ...stage.Handler) (*daemon.Daemon, *app.App) {
	t.Helper()
	if len(handlers) == 0 {
		handlers = app.PassthroughHandlers(cfg)
	}
	a, err := app.Build(context.Background(), cfg, logging.NewNop(),
		app.WithHandlers(handlers...),
		app.WithDownstream(nopDownstream{}),
	)
	if err != nil {
		t.Fatalf("app.Build: %v", err)
	}
	d, err := daemon.New(cfg, a, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d, a
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if len(status.Transports) != 2 || status.Transports[0].Enabled || status.Transports[1].Enabled {
		t.Fatalf("expected transports disabled by default, got %+v", status.Transports)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	other := *cfg
	other.API.Bind = "127.0.0.1:0"
	second, _ := newDaemon(t, &other)
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected lock contention error")
	}
}

func TestStartMarksInterruptedExecutions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	stale := pipeline.Execution{
		ID:        "stale-1",
		Status:    pipeline.StatusRunning,
		Input:     stage.Payload(`{}`),
		StartedAt: time.Now().Add(-time.Hour).UTC(),
		Deadline:  time.Now().Add(-50 * time.Minute).UTC(),
	}
	if err := st.CreateExecution(context.Background(), stale); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	d, a := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got, err := a.Store.GetExecution(context.Background(), "stale-1")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got == nil || got.Status != pipeline.StatusFailed {
		t.Fatalf("expected interrupted execution marked FAILED, got %+v", got)
	}
}

func TestStopDrainsInFlightExecutions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	release := make(chan struct{})
	slow := stage.NewFunc("slow", func(ctx context.Context, in stage.Payload) (stage.Payload, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return in, nil
	})
	d, a := newDaemon(t, cfg, slow)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	id, err := a.Orchestrator.Start(context.Background(), stage.Payload(`{"key":"a.mp4"}`))
	if err != nil {
		t.Fatalf("Orchestrator.Start: %v", err)
	}
	time.AfterFunc(50*time.Millisecond, func() { close(release) })

	d.Stop()

	exec, err := a.Store.GetExecution(context.Background(), id)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if exec == nil || exec.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected drained execution to succeed, got %+v", exec)
	}
	if _, err := a.Orchestrator.Start(context.Background(), stage.Payload(`{}`)); err == nil {
		t.Fatal("expected orchestrator to reject work after stop")
	}
}
