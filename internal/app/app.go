package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidflow/internal/appsync"
	"vidflow/internal/broker"
	"vidflow/internal/cdc"
	"vidflow/internal/config"
	"vidflow/internal/delivery"
	"vidflow/internal/logging"
	"vidflow/internal/metrics"
	"vidflow/internal/notifications"
	"vidflow/internal/pipeline"
	"vidflow/internal/router"
	"vidflow/internal/stage"
	"vidflow/internal/store"
)

// ObjectStore is the S3 surface the router inspector and dead-letter sink need.
type ObjectStore interface {
	router.HeadObjectAPI
	delivery.ObjectPutter
}

// App holds the wired component graph shared by the daemon and the CLI.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *store.Store
	Metrics      *metrics.Metrics
	Alerts       notifications.Service
	AppSync      *appsync.Client
	Handlers     []stage.Handler
	Orchestrator *pipeline.Orchestrator
	Router       *router.Router
	Notifier     *cdc.Notifier
	Strategy     delivery.Strategy
	Publisher    *broker.Publisher

	closers []func() error
}

type options struct {
	handlers      []stage.Handler
	downstream    cdc.Downstream
	objects       ObjectStore
	alerts        notifications.Service
	metrics       *metrics.Metrics
	publishStatus bool
}

// Option customizes Build.
type Option func(*options)

// WithHandlers replaces the configured HTTP stages, e.g. with passthrough
// stages for dry runs.
func WithHandlers(handlers ...stage.Handler) Option {
	return func(o *options) { o.handlers = handlers }
}

// WithDownstream replaces the AppSync client as the notifier target.
func WithDownstream(downstream cdc.Downstream) Option {
	return func(o *options) { o.downstream = downstream }
}

// WithObjectStore supplies the S3 client instead of loading AWS config.
func WithObjectStore(objects ObjectStore) Option {
	return func(o *options) { o.objects = objects }
}

// WithAlerts replaces the ntfy service.
func WithAlerts(svc notifications.Service) Option {
	return func(o *options) { o.alerts = svc }
}

// WithMetrics supplies the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithStatusPublisher dials the AMQP status exchange when amqp.enabled is set.
func WithStatusPublisher() Option {
	return func(o *options) { o.publishStatus = true }
}

// Build opens the store and wires every component from cfg. The caller owns
// the returned App and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	built := false
	defer func() {
		if !built {
			_ = a.Close()
		}
	}()

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	a.Metrics = o.metrics
	if a.Metrics == nil {
		a.Metrics = metrics.New(true)
	}
	a.Alerts = o.alerts
	if a.Alerts == nil {
		a.Alerts = notifications.NewService(cfg)
	}
	a.AppSync = appsync.NewFromConfig(cfg)

	objects := o.objects
	if objects == nil && needsObjectStore(cfg) {
		client, err := NewS3Client(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		objects = client
	}

	a.Strategy, err = a.buildStrategy(objects)
	if err != nil {
		return nil, err
	}

	policy, err := cdc.PolicyFromActions(cfg.Notifier.NotifyActions)
	if err != nil {
		return nil, fmt.Errorf("notifier policy: %w", err)
	}
	downstream := o.downstream
	if downstream == nil {
		downstream = a.AppSync
	}
	a.Notifier = cdc.New(downstream,
		cdc.WithStrategy(a.Strategy),
		cdc.WithPolicy(policy),
		cdc.WithLogger(logger),
		cdc.WithCallObserver(a.Metrics.ObserveCall),
	)

	a.Handlers = o.handlers
	if len(a.Handlers) == 0 {
		a.Handlers = StageHandlers(cfg)
	}
	def, err := pipeline.NewDefinition(cfg.Pipeline.OutputField, a.Handlers...)
	if err != nil {
		return nil, fmt.Errorf("pipeline definition: %w", err)
	}

	observers := []pipeline.Observer{st.Archive(), a.Metrics.Observer()}
	if cfg.Notifications.ExecutionFailures {
		observers = append(observers, notifications.ExecutionAlerts(a.Alerts, def.Names()))
	}
	if o.publishStatus && cfg.AMQP.Enabled {
		publisher, closer, err := broker.DialPublisher(cfg.AMQP, logger)
		if err != nil {
			logging.WarnWithContext(logger, "status publisher unavailable", "status_publisher_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check amqp.url and broker availability"),
				logging.String(logging.FieldImpact, "execution status events will not be published"),
			)
		} else {
			a.Publisher = publisher
			a.closers = append(a.closers, closer)
			observers = append(observers, publisher.Observer(def.Names()))
		}
	}

	a.Orchestrator, err = pipeline.NewOrchestrator(def,
		pipeline.WithTimeout(cfg.PipelineTimeout()),
		pipeline.WithObservers(observers...),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline orchestrator: %w", err)
	}

	routerOpts := []router.Option{
		router.WithLogger(logger),
		router.WithDecisionObserver(a.Metrics.ObserveRoute),
	}
	if cfg.Trigger.InspectObjects && objects != nil {
		routerOpts = append(routerOpts, router.WithInspector(router.NewS3Inspector(objects)))
	}
	a.Router = router.New(router.RuleFromConfig(cfg.Trigger), a.Orchestrator, routerOpts...)

	built = true
	return a, nil
}

// StageHandlers builds one HTTP stage per configured pipeline stage.
func StageHandlers(cfg *config.Config) []stage.Handler {
	handlers := make([]stage.Handler, 0, len(cfg.Pipeline.Stages))
	for _, stg := range cfg.Pipeline.Stages {
		handlers = append(handlers, stage.NewHTTPHandler(stg.Name, stg.URL, stg.APIKey, nil))
	}
	return handlers
}

// PassthroughHandlers returns in-process stages that echo their input.
func PassthroughHandlers(cfg *config.Config) []stage.Handler {
	handlers := make([]stage.Handler, 0, len(cfg.Pipeline.Stages))
	for _, stg := range cfg.Pipeline.Stages {
		handlers = append(handlers, stage.Passthrough(stg.Name))
	}
	return handlers
}

func (a *App) buildStrategy(objects ObjectStore) (delivery.Strategy, error) {
	cfg := a.Config
	var strategy delivery.Strategy = delivery.BestEffort{}
	if cfg.Notifier.Delivery == config.DeliveryRetry {
		strategy = delivery.NewRetry(
			cfg.Notifier.MaxAttempts,
			time.Duration(cfg.Notifier.InitialBackoffMillis)*time.Millisecond,
			time.Duration(cfg.Notifier.MaxBackoffMillis)*time.Millisecond,
			cfg.Notifier.BackoffFactor,
			a.Logger,
		)
	}

	var sink delivery.Sink
	switch cfg.Notifier.DeadLetter {
	case config.DeadLetterNone:
		return strategy, nil
	case config.DeadLetterSQLite:
		sink = a.Store
	case config.DeadLetterS3:
		if objects == nil {
			return nil, errors.New("s3 dead-letter sink requires an object store client")
		}
		sink = delivery.NewS3Sink(objects, cfg.Notifier.DeadLetterBucket, cfg.Notifier.DeadLetterPrefix)
	default:
		return nil, fmt.Errorf("unknown dead-letter sink %q", cfg.Notifier.DeadLetter)
	}

	listeners := []func(context.Context, delivery.Letter){a.Metrics.ObserveDeadLetter}
	if cfg.Notifications.DeadLetters {
		listeners = append(listeners, notifications.DeadLetterAlerts(a.Alerts, a.Logger))
	}
	return delivery.NewDeadLetter(strategy, sink, a.Logger, listeners...), nil
}

func needsObjectStore(cfg *config.Config) bool {
	return cfg.Trigger.InspectObjects || cfg.Notifier.DeadLetter == config.DeadLetterS3
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
