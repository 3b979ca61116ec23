// Package service implements the slip workflows: create, list, get and delete.
//
// Create is a saga without compensation. Once the image is stored, a failed
// record write or event publish is not rolled back; the storage key or the
// event is written to the reconciliation ledger and the sweeper settles it
// later.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks AuthClient,ObjectStore,RecordStore,StatusPublisher,Ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"marketslip/internal/auth"
	"marketslip/internal/events"
	"marketslip/internal/platform/metrics"
	"marketslip/internal/reconcile"
	"marketslip/internal/slip/models"
)

// AuthClient resolves and authorizes callers.
type AuthClient interface {
	RequireRole(ctx context.Context, token string, required auth.Role) (*auth.Identity, error)
	ResolveIdentity(ctx context.Context, token string) (*auth.Identity, error)
	OptionalIdentity(ctx context.Context, token string) *auth.Identity
}

// ObjectStore holds slip images.
type ObjectStore interface {
	Put(ctx context.Context, data []byte, key, contentType string) (string, error)
	PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// RecordStore holds slip metadata.
type RecordStore interface {
	Create(ctx context.Context, storageKey, marketID, reservationID string) (*models.SlipRecord, error)
	Get(ctx context.Context, id string) (*models.SlipRecord, error)
	ListByReservation(ctx context.Context, reservationID string) ([]*models.SlipRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// StatusPublisher announces reservation status changes.
type StatusPublisher interface {
	PublishStatusChange(ctx context.Context, change events.StatusChange, override map[string]any) error
}

// Ledger remembers partial failures for the sweeper.
type Ledger interface {
	RecordOrphan(ctx context.Context, storageKey string, at time.Time) error
	RecordPendingEvent(ctx context.Context, event reconcile.PendingEvent) error
}

// Service runs the slip workflows.
type Service struct {
	auth      AuthClient
	objects   ObjectStore
	records   RecordStore
	publisher StatusPublisher
	ledger    Ledger
	urlTTL    time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLedger enables recording of orphaned objects and unpublished events.
func WithLedger(l Ledger) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

// WithURLTTL sets the lifetime of presigned links. Zero keeps the store default.
func WithURLTTL(d time.Duration) Option {
	return func(s *Service) {
		s.urlTTL = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func New(authClient AuthClient, objects ObjectStore, records RecordStore, publisher StatusPublisher, opts ...Option) (*Service, error) {
	if authClient == nil {
		return nil, errors.New("auth client is required")
	}
	if objects == nil {
		return nil, errors.New("object store is required")
	}
	if records == nil {
		return nil, errors.New("record store is required")
	}
	if publisher == nil {
		return nil, errors.New("status publisher is required")
	}
	s := &Service{
		auth:      authClient,
		objects:   objects,
		records:   records,
		publisher: publisher,
		now:       time.Now,
		logger:    slog.Default(),
		tracer:    otel.Tracer("marketslip/slip"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}
