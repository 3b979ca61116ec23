package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"marketslip/internal/auth"
	"marketslip/internal/platform/middleware"
	"marketslip/internal/slip/handler/mocks"
	"marketslip/internal/slip/imagecheck"
	"marketslip/internal/slip/models"
	"marketslip/internal/slip/service"
	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	slips  *mocks.MockService
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.slips = mocks.NewMockService(s.ctrl)
	s.router = s.newRouter(New(s.slips, nil, slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *HandlerSuite) newRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	h.Register(r)
	return r
}

func (s *HandlerSuite) createRequest(fields map[string]string, files ...testutil.FilePart) *http.Request {
	req := testutil.NewMultipartRequest(s.T(), http.MethodPost, "/slip/create", fields, files...)
	return testutil.WithBearer(req, "tok")
}

var uploader = &auth.Identity{UserID: "v-1", Role: auth.RoleVendor, Token: "tok"}

func (s *HandlerSuite) expectAuthorized() {
	s.slips.EXPECT().AuthorizeUpload(gomock.Any(), "tok").Return(uploader, nil)
}

func validFields() map[string]string {
	return map[string]string{FieldReservationID: "R1", FieldMarketID: "M1"}
}

func slipFile(data []byte) testutil.FilePart {
	return testutil.FilePart{Field: FieldFile, Filename: "receipt.jpg", ContentType: "image/jpeg", Data: data}
}

func (s *HandlerSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))
	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"status":"ok"}`, rr.Body.String())
}

func (s *HandlerSuite) TestCreate() {
	s.Run("passes the upload through and answers 201", func() {
		data := []byte("jpeg bytes")
		s.expectAuthorized()
		s.slips.EXPECT().CreateSlipAs(gomock.Any(), uploader, models.Upload{
			Data:          data,
			ContentType:   "image/jpeg",
			Filename:      "receipt.jpg",
			ReservationID: "R1",
			MarketID:      "M1",
		}).Return(&models.SlipRecord{ID: "S1", StorageKey: "u_1_receipt.jpg", MarketID: "M1", ReservationID: "R1"}, nil)

		rr := testutil.DoRequest(s.router, s.createRequest(validFields(), slipFile(data)))
		s.Equal(http.StatusCreated, rr.Code)
		resp := testutil.UnmarshalResponse[models.CreateSlipResponse](s.T(), rr)
		s.Equal("S1", resp.ID)
		s.Equal("u_1_receipt.jpg", resp.StorageKey)
		s.Equal("M1", resp.MarketID)
		s.Equal("R1", resp.ReservationID)
	})

	s.Run("missing bearer token is 401", func() {
		req := testutil.NewMultipartRequest(s.T(), http.MethodPost, "/slip/create", validFields(), slipFile([]byte("x")))
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusUnauthorized, "unauthorized")
	})

	s.Run("rejected token wins over a malformed form", func() {
		s.slips.EXPECT().AuthorizeUpload(gomock.Any(), "tok").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))

		req := testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodPost, "/slip/create"), "tok")
		req.Header.Set("Content-Type", "multipart/form-data; boundary=nope")
		req.Body = io.NopCloser(strings.NewReader("garbage"))
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusUnauthorized, "unauthorized")
	})

	s.Run("missing file is 400", func() {
		s.expectAuthorized()
		rr := testutil.DoRequest(s.router, s.createRequest(validFields()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("overlong market id is rejected", func() {
		fields := validFields()
		fields[FieldMarketID] = strings.Repeat("m", 101)
		s.expectAuthorized()
		rr := testutil.DoRequest(s.router, s.createRequest(fields, slipFile([]byte("x"))))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("missing reservation id is rejected", func() {
		s.expectAuthorized()
		rr := testutil.DoRequest(s.router, s.createRequest(map[string]string{FieldMarketID: "M1"}, slipFile([]byte("x"))))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("file one byte over the limit reaches validation intact", func() {
		data := bytes.Repeat([]byte{0}, imagecheck.MaxSize+1)
		s.expectAuthorized()
		s.slips.EXPECT().CreateSlipAs(gomock.Any(), uploader, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *auth.Identity, upload models.Upload) (*models.SlipRecord, error) {
				s.Len(upload.Data, imagecheck.MaxSize+1)
				return nil, dErrors.New(dErrors.CodeInvalidInput, imagecheck.ErrTooLarge.Error())
			})

		rr := testutil.DoRequest(s.router, s.createRequest(validFields(), slipFile(data)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("upload failure hides the cause", func() {
		s.expectAuthorized()
		s.slips.EXPECT().CreateSlipAs(gomock.Any(), uploader, gomock.Any()).
			Return(nil, dErrors.Wrap(dErrors.New(dErrors.CodeStorageFailure, "s3 exploded"), dErrors.CodeUploadFailed, "failed to upload slip"))

		rr := testutil.DoRequest(s.router, s.createRequest(validFields(), slipFile([]byte("x"))))
		s.Equal(http.StatusInternalServerError, rr.Code)
		s.JSONEq(`{"error":"upload_failed","error_description":"failed to upload slip"}`, rr.Body.String())
	})
}

func (s *HandlerSuite) TestCreateRateLimited() {
	limiter, err := middleware.NewRateLimiter("1-M")
	s.Require().NoError(err)
	router := s.newRouter(New(s.slips, limiter, slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.expectAuthorized()
	s.slips.EXPECT().CreateSlipAs(gomock.Any(), uploader, gomock.Any()).
		Return(&models.SlipRecord{ID: "S1"}, nil)

	first := testutil.DoRequest(router, s.createRequest(validFields(), slipFile([]byte("x"))))
	s.Equal(http.StatusCreated, first.Code)

	second := testutil.DoRequest(router, s.createRequest(validFields(), slipFile([]byte("x"))))
	testutil.AssertStatusAndError(s.T(), second, http.StatusTooManyRequests, "rate_limited")
}

func (s *HandlerSuite) TestListForReservation() {
	s.Run("returns slip urls", func() {
		s.slips.EXPECT().ListSlipsForReservation(gomock.Any(), "tok", "R1").Return([]string{"https://x/1"}, nil)

		req := testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodGet, "/slip/reservation/R1"), "tok")
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"slip_urls":["https://x/1"]}`, rr.Body.String())
	})

	s.Run("empty list is an empty array", func() {
		s.slips.EXPECT().ListSlipsForReservation(gomock.Any(), "tok", "R0").Return([]string{}, nil)

		req := testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodGet, "/slip/reservation/R0"), "tok")
		rr := testutil.DoRequest(s.router, req)
		s.JSONEq(`{"slip_urls":[]}`, rr.Body.String())
	})

	s.Run("forbidden maps to 403", func() {
		s.slips.EXPECT().ListSlipsForReservation(gomock.Any(), "tok", "R1").
			Return(nil, dErrors.New(dErrors.CodeForbidden, "You don't have permission to view these slips"))

		req := testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodGet, "/slip/reservation/R1"), "tok")
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusForbidden, "forbidden")
	})

	s.Run("auth service down maps to 503", func() {
		s.slips.EXPECT().ListSlipsForReservation(gomock.Any(), "tok", "R1").
			Return(nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "Authentication service is currently unavailable"))

		req := testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodGet, "/slip/reservation/R1"), "tok")
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusServiceUnavailable, "upstream_unavailable")
	})
}

func (s *HandlerSuite) TestGet() {
	s.Run("anonymous caller gets the receipt", func() {
		s.slips.EXPECT().GetSlip(gomock.Any(), "", "S1").Return(&service.SlipView{
			Receipt: models.SlipReceipt{ID: "S1", ReservationID: "R1"},
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/slip/S1"))
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"id":"S1","reservation_id":"R1"}`, rr.Body.String())
	})

	s.Run("token is forwarded and detail returned", func() {
		s.slips.EXPECT().GetSlip(gomock.Any(), "tok", "S1").Return(&service.SlipView{
			Receipt: models.SlipReceipt{ID: "S1", ReservationID: "R1"},
			Detail: &models.SlipDetail{
				SlipRecord: models.SlipRecord{ID: "S1", StorageKey: "k", MarketID: "M1", ReservationID: "R1"},
				SlipURL:    "https://x/k",
			},
		}, nil)

		req := testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodGet, "/slip/S1"), "tok")
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusOK, rr.Code)
		detail := testutil.UnmarshalResponse[models.SlipDetail](s.T(), rr)
		s.Equal("https://x/k", detail.SlipURL)
		s.Equal("M1", detail.MarketID)
	})

	s.Run("unknown slip is 404", func() {
		s.slips.EXPECT().GetSlip(gomock.Any(), "", "nope").Return(nil, dErrors.New(dErrors.CodeNotFound, "Slip not found"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/slip/nope"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestDelete() {
	s.Run("answers 204", func() {
		s.slips.EXPECT().DeleteSlip(gomock.Any(), "tok", "S1").Return(nil)

		req := testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodDelete, "/slip/S1"), "tok")
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusNoContent, rr.Code)
	})

	s.Run("requires a token", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/slip/S1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})
}
