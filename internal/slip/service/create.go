package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"marketslip/internal/auth"
	"marketslip/internal/events"
	"marketslip/internal/reconcile"
	"marketslip/internal/slip/imagecheck"
	"marketslip/internal/slip/models"
	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/requestcontext"
)

const defaultFilename = "slip"

// AuthorizeUpload resolves token to a vendor identity. Callers that read the
// upload from a request body run it first so auth errors win over form errors.
func (s *Service) AuthorizeUpload(ctx context.Context, token string) (*auth.Identity, error) {
	return s.auth.RequireRole(ctx, token, auth.RoleVendor)
}

// CreateSlip authorizes token and then runs CreateSlipAs.
func (s *Service) CreateSlip(ctx context.Context, token string, upload models.Upload) (*models.SlipRecord, error) {
	identity, err := s.AuthorizeUpload(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.CreateSlipAs(ctx, identity, upload)
}

// CreateSlipAs stores a slip image for an identity already authorized by
// AuthorizeUpload, records it and announces that the reservation awaits slip
// validation. Failures after validation surface as a single upload_failed
// error.
func (s *Service) CreateSlipAs(ctx context.Context, identity *auth.Identity, upload models.Upload) (*models.SlipRecord, error) {
	ctx, span := s.tracer.Start(ctx, "slip.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("slip.reservation_id", upload.ReservationID),
		attribute.String("slip.market_id", upload.MarketID),
	)

	if identity == nil {
		span.SetStatus(codes.Error, "unauthorized")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token")
	}

	if _, err := imagecheck.Validate(upload.Data, upload.ContentType); err != nil {
		span.SetStatus(codes.Error, "invalid image")
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, err.Error())
	}

	now := s.now()
	key := storageKey(uuid.New(), now, upload.Filename)

	if _, err := s.objects.Put(ctx, upload.Data, key, upload.ContentType); err != nil {
		return nil, s.createFailed(ctx, span, "upload", err)
	}

	record, err := s.records.Create(ctx, key, upload.MarketID, upload.ReservationID)
	if err != nil {
		s.recordOrphan(ctx, key, now)
		return nil, s.createFailed(ctx, span, "record", err)
	}

	change := events.StatusChange{
		MarketID:      record.MarketID,
		ReservationID: record.ReservationID,
		SlipID:        record.ID,
		Status:        models.StatusValidateSlip,
	}
	if err := s.publisher.PublishStatusChange(ctx, change, nil); err != nil {
		s.recordPendingEvent(ctx, change, now)
		return nil, s.createFailed(ctx, span, "publish", err)
	}

	s.metrics.IncrementSlipsCreated()
	s.logger.InfoContext(ctx, "slip created",
		"slip_id", record.ID,
		"storage_key", record.StorageKey,
		"reservation_id", record.ReservationID,
		"market_id", record.MarketID,
		"user_id", identity.UserID,
		"client", requestcontext.ClientDevice(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	span.SetAttributes(attribute.String("slip.id", record.ID))
	return record, nil
}

func (s *Service) createFailed(ctx context.Context, span trace.Span, stage string, err error) error {
	s.metrics.IncrementCreateFailure(stage)
	s.logger.ErrorContext(ctx, "slip create failed",
		"stage", stage,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, stage+" failed")
	return dErrors.Wrap(err, dErrors.CodeUploadFailed, "failed to upload slip")
}

func (s *Service) recordOrphan(ctx context.Context, key string, at time.Time) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.RecordOrphan(ctx, key, at); err != nil {
		s.logger.ErrorContext(ctx, "failed to record orphaned object",
			"storage_key", key,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (s *Service) recordPendingEvent(ctx context.Context, change events.StatusChange, at time.Time) {
	if s.ledger == nil {
		return
	}
	payload, err := json.Marshal(events.BuildStatusEvent(change))
	if err == nil {
		err = s.ledger.RecordPendingEvent(ctx, reconcile.PendingEvent{
			ID:         uuid.NewString(),
			RoutingKey: events.RoutingKeyReservationStatus,
			Payload:    payload,
			RecordedAt: at,
		})
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record pending event",
			"slip_id", change.SlipID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// storageKey builds "<uuid>_<unix nanos>_<base filename>". When the result
// would exceed the column limit the filename loses characters from its head.
func storageKey(id uuid.UUID, now time.Time, filename string) string {
	prefix := fmt.Sprintf("%s_%d_", id, now.UnixNano())
	name := baseName(filename)
	if room := models.MaxStorageKeyLen - len(prefix); len(name) > room {
		name = name[len(name)-room:]
		for len(name) > 0 && !utf8.RuneStart(name[0]) {
			name = name[1:]
		}
	}
	return prefix + name
}

func baseName(filename string) string {
	name := strings.TrimSpace(filename)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return defaultFilename
	}
	return name
}
