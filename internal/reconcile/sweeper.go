package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"marketslip/internal/platform/metrics"
	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/platform/sentinel"
)

const (
	DefaultGrace     = 10 * time.Minute
	defaultBatchSize = 100
)

// RecordChecker reports whether a slip record references a storage key.
type RecordChecker interface {
	ExistsByStorageKey(ctx context.Context, key string) (bool, error)
}

// ObjectDeleter removes stored objects.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// EventRepublisher sends an encoded event again.
type EventRepublisher interface {
	Republish(ctx context.Context, routingKey string, payload []byte) error
}

// Report summarizes one sweep.
type Report struct {
	OrphansDeleted    int
	OrphansAdopted    int
	OrphansFailed     int
	EventsRepublished int
	EventsFailed      int
}

// Sweeper removes orphaned objects and republishes pending events.
type Sweeper struct {
	ledger  Ledger
	records RecordChecker
	objects ObjectDeleter
	events  EventRepublisher
	grace   time.Duration
	batch   int
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

func WithLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// WithGrace sets how old an orphan must be before its object is deleted. It
// must exceed the longest create request so in-flight uploads are left alone.
func WithGrace(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.grace = d
		}
	}
}

func WithBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSweeper(ledger Ledger, records RecordChecker, objects ObjectDeleter, events EventRepublisher, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		ledger:  ledger,
		records: records,
		objects: objects,
		events:  events,
		grace:   DefaultGrace,
		batch:   defaultBatchSize,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Sweep runs one pass over orphans and pending events. Individual failures
// are counted and left in the ledger for the next pass; only ledger read
// errors are returned.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var orphans, events Report

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orphans, err = s.sweepOrphans(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.sweepEvents(ctx)
		return err
	})
	err := g.Wait()

	report := Report{
		OrphansDeleted:    orphans.OrphansDeleted,
		OrphansAdopted:    orphans.OrphansAdopted,
		OrphansFailed:     orphans.OrphansFailed,
		EventsRepublished: events.EventsRepublished,
		EventsFailed:      events.EventsFailed,
	}
	s.logger.InfoContext(ctx, "reconciliation sweep finished",
		"orphans_deleted", report.OrphansDeleted,
		"orphans_adopted", report.OrphansAdopted,
		"orphans_failed", report.OrphansFailed,
		"events_republished", report.EventsRepublished,
		"events_failed", report.EventsFailed,
	)
	return report, err
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
			}
		}
	}
}

func (s *Sweeper) sweepOrphans(ctx context.Context) (Report, error) {
	var report Report
	due, err := s.ledger.DueOrphans(ctx, s.now().Add(-s.grace), s.batch)
	if err != nil {
		return report, err
	}
	for _, orphan := range due {
		referenced, err := s.records.ExistsByStorageKey(ctx, orphan.StorageKey)
		if err != nil {
			report.OrphansFailed++
			s.metrics.IncrementSweeperAction("orphan", "error")
			s.logger.WarnContext(ctx, "orphan check failed", "storage_key", orphan.StorageKey, "error", err)
			continue
		}
		if referenced {
			// A record points at the object after all.
			report.OrphansAdopted++
			s.metrics.IncrementSweeperAction("orphan", "adopted")
			s.forgetOrphan(ctx, orphan.StorageKey)
			continue
		}

		err = s.objects.Delete(ctx, orphan.StorageKey)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			report.OrphansFailed++
			s.metrics.IncrementSweeperAction("orphan", "error")
			s.logger.WarnContext(ctx, "orphan delete failed", "storage_key", orphan.StorageKey, "error", err)
			continue
		}
		report.OrphansDeleted++
		s.metrics.IncrementSweeperAction("orphan", "deleted")
		s.forgetOrphan(ctx, orphan.StorageKey)
	}
	return report, nil
}

func (s *Sweeper) sweepEvents(ctx context.Context) (Report, error) {
	var report Report
	pending, err := s.ledger.PendingEvents(ctx, s.batch)
	if err != nil {
		return report, err
	}
	for _, ev := range pending {
		if err := s.events.Republish(ctx, ev.RoutingKey, ev.Payload); err != nil {
			report.EventsFailed++
			s.metrics.IncrementSweeperAction("event", "error")
			s.logger.WarnContext(ctx, "event republish failed", "event_id", ev.ID, "error", err)
			continue
		}
		report.EventsRepublished++
		s.metrics.IncrementSweeperAction("event", "republished")
		if err := s.ledger.ForgetPendingEvent(ctx, ev.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to clear pending event", "event_id", ev.ID, "error", err)
		}
	}
	return report, nil
}

func (s *Sweeper) forgetOrphan(ctx context.Context, key string) {
	if err := s.ledger.ForgetOrphan(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to clear orphan", "storage_key", key, "error", err)
	}
}
