package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"marketslip/internal/auth"
	"marketslip/internal/events"
	"marketslip/internal/objectstore"
	"marketslip/internal/platform/config"
	"marketslip/internal/platform/logger"
	"marketslip/internal/platform/metrics"
	"marketslip/internal/platform/postgres"
	"marketslip/internal/platform/redis"
	"marketslip/internal/reconcile"
	"marketslip/internal/slip/service"
	"marketslip/internal/slip/store"
)

type recordStore interface {
	service.RecordStore
	reconcile.RecordChecker
}

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	objects   service.ObjectStore
	records   recordStore
	ledger    reconcile.Ledger
	publisher events.Publisher
	notifier  *events.StatusNotifier
	closers   []func() error
}

// newApp connects every backend named in cfg. Unset backends fall back to
// in-memory implementations so the service runs on a laptop.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger.New(cfg.Log.Level, cfg.Log.Format),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	steps := []func(context.Context) error{
		a.initObjectStore,
		a.initRecordStore,
		a.initLedger,
		a.initPublisher,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	a.notifier = events.NewStatusNotifier(a.publisher)
	return a, nil
}

func (a *app) initObjectStore(ctx context.Context) error {
	if a.cfg.Storage.Bucket == "" {
		a.logger.WarnContext(ctx, "S3_BUCKET_NAME not set, slip images are kept in memory")
		a.objects = objectstore.NewMemoryStore("slips")
		return nil
	}
	awsCfg, err := objectstore.LoadAWSConfig(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	a.objects = objectstore.NewS3Store(awsCfg, a.cfg.Storage.Bucket, a.cfg.Storage.Endpoint, objectstore.WithLogger(a.logger))
	return nil
}

func (a *app) initRecordStore(ctx context.Context) error {
	db, err := postgres.Open(ctx, a.cfg.Database.URL)
	if err != nil {
		return err
	}
	if db == nil {
		a.logger.WarnContext(ctx, "DATABASE_URL not set, slip records are kept in memory")
		a.records = store.NewInMemory()
		return nil
	}
	a.closers = append(a.closers, db.Close)

	pg := store.NewPostgres(db, a.cfg.Database.Table)
	if err := pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure slip schema: %w", err)
	}
	a.records = pg
	return nil
}

func (a *app) initLedger(ctx context.Context) error {
	client, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	if client == nil {
		a.ledger = reconcile.NewMemoryLedger()
		return nil
	}
	a.closers = append(a.closers, client.Close)
	a.ledger = reconcile.NewRedisLedger(client.Client, a.logger)
	return nil
}

func (a *app) initPublisher(_ context.Context) error {
	opts := []events.Option{events.WithLogger(a.logger), events.WithMetrics(a.metrics)}
	switch a.cfg.Broker.Driver {
	case "kafka":
		publisher, err := events.NewKafkaPublisher(a.cfg.Broker.KafkaBrokers, opts...)
		if err != nil {
			return err
		}
		a.publisher = publisher
	case "amqp", "":
		conns := events.NewConnectionManager(a.cfg.Broker.AMQPURL, events.DialAMQP)
		a.publisher = events.NewAMQPPublisher(conns, opts...)
	default:
		return fmt.Errorf("unknown BROKER_DRIVER %q", a.cfg.Broker.Driver)
	}
	a.closers = append(a.closers, a.publisher.Close)
	return nil
}

func (a *app) authClient() *auth.Client {
	return auth.NewClient(auth.NewLocator(a.cfg.Auth),
		auth.WithLogger(a.logger),
		auth.WithMetrics(a.metrics),
		auth.WithTimeout(a.cfg.Auth.Timeout),
		auth.WithBypass(a.cfg.Auth.Bypass),
	)
}

func (a *app) slipService() (*service.Service, error) {
	return service.New(a.authClient(), a.objects, a.records, a.notifier,
		service.WithLogger(a.logger),
		service.WithMetrics(a.metrics),
		service.WithLedger(a.ledger),
		service.WithURLTTL(a.cfg.Storage.URLTTL),
	)
}

func (a *app) sweeper() *reconcile.Sweeper {
	return reconcile.NewSweeper(a.ledger, a.records, a.objects, a.notifier,
		reconcile.WithLogger(a.logger),
		reconcile.WithMetrics(a.metrics),
		reconcile.WithGrace(a.cfg.Sweep.Grace),
	)
}

// Close releases backends in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
