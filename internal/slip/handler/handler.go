package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	"github.com/ulule/limiter/v3"

	"marketslip/internal/auth"
	"marketslip/internal/platform/middleware"
	"marketslip/internal/slip/imagecheck"
	"marketslip/internal/slip/models"
	"marketslip/internal/slip/service"
	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/platform/httputil"
)

// Form field names of POST /slip/create.
const (
	FieldFile          = "slipFile"
	FieldReservationID = "reservationId"
	FieldMarketID      = "marketId"
)

// Room for the multipart envelope and text fields on top of the image.
const formOverhead = 1 << 20

// Service defines the slip workflows the handler drives.
type Service interface {
	AuthorizeUpload(ctx context.Context, token string) (*auth.Identity, error)
	CreateSlipAs(ctx context.Context, identity *auth.Identity, upload models.Upload) (*models.SlipRecord, error)
	ListSlipsForReservation(ctx context.Context, token, reservationID string) ([]string, error)
	GetSlip(ctx context.Context, token, id string) (*service.SlipView, error)
	DeleteSlip(ctx context.Context, token, id string) error
}

// Handler serves the slip endpoints.
type Handler struct {
	slips   Service
	limiter *limiter.Limiter
	logger  *slog.Logger
}

// New creates a slip Handler. A nil limiter disables upload rate limiting.
func New(slips Service, uploadLimiter *limiter.Limiter, logger *slog.Logger) *Handler {
	return &Handler{
		slips:   slips,
		limiter: uploadLimiter,
		logger:  logger,
	}
}

// Register registers the slip routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.handleHealth)

	r.Route("/slip", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireBearer(h.logger))
			if h.limiter != nil {
				r.With(middleware.RateLimit(h.limiter, h.logger)).Post("/create", h.handleCreate)
			} else {
				r.Post("/create", h.handleCreate)
			}
			r.Get("/reservation/{reservation_id}", h.handleListForReservation)
			r.Delete("/{slip_id}", h.handleDelete)
		})
		r.With(middleware.OptionalBearer).Get("/{slip_id}", h.handleGet)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.slips.AuthorizeUpload(ctx, middleware.GetBearerToken(ctx))
	if err != nil {
		h.writeError(ctx, w, "slip upload not authorized", err)
		return
	}

	upload, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(ctx, w, "invalid slip upload", err)
		return
	}

	record, err := h.slips.CreateSlipAs(ctx, identity, upload)
	if err != nil {
		h.writeError(ctx, w, "failed to create slip", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, models.CreateSlipResponse{
		Message:       "Slip uploaded successfully",
		ID:            record.ID,
		StorageKey:    record.StorageKey,
		MarketID:      record.MarketID,
		ReservationID: record.ReservationID,
	})
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (models.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, imagecheck.MaxSize+formOverhead)
	if err := r.ParseMultipartForm(imagecheck.MaxSize + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.Upload{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, imagecheck.ErrTooLarge.Error())
		}
		return models.Upload{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	reservationID := r.FormValue(FieldReservationID)
	marketID := r.FormValue(FieldMarketID)
	if !govalidator.StringLength(reservationID, "1", "200") {
		return models.Upload{}, dErrors.New(dErrors.CodeInvalidInput, "reservationId must be 1 to 200 characters")
	}
	if !govalidator.StringLength(marketID, "1", "100") {
		return models.Upload{}, dErrors.New(dErrors.CodeInvalidInput, "marketId must be 1 to 100 characters")
	}

	file, header, err := r.FormFile(FieldFile)
	if err != nil {
		return models.Upload{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "slipFile is required")
	}
	defer file.Close()

	data, err := readFile(file)
	if err != nil {
		return models.Upload{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read slipFile")
	}
	return models.Upload{
		Data:          data,
		ContentType:   header.Header.Get("Content-Type"),
		Filename:      header.Filename,
		ReservationID: reservationID,
		MarketID:      marketID,
	}, nil
}

// readFile reads at most one byte past the size limit so oversized files are
// still rejected by validation.
func readFile(file multipart.File) ([]byte, error) {
	return io.ReadAll(io.LimitReader(file, imagecheck.MaxSize+1))
}

func (h *Handler) handleListForReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reservationID := chi.URLParam(r, "reservation_id")

	urls, err := h.slips.ListSlipsForReservation(ctx, middleware.GetBearerToken(ctx), reservationID)
	if err != nil {
		h.writeError(ctx, w, "failed to list slips", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.SlipURLsResponse{SlipURLs: urls})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := h.slips.GetSlip(ctx, middleware.GetBearerToken(ctx), chi.URLParam(r, "slip_id"))
	if err != nil {
		h.writeError(ctx, w, "failed to get slip", err)
		return
	}
	if view.Detail != nil {
		httputil.WriteJSON(w, http.StatusOK, view.Detail)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view.Receipt)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.slips.DeleteSlip(ctx, middleware.GetBearerToken(ctx), chi.URLParam(r, "slip_id")); err != nil {
		h.writeError(ctx, w, "failed to delete slip", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status := dErrors.ToHTTPStatus(dErrors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg,
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
