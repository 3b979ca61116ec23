package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/platform/httputil"
	"marketslip/pkg/requestcontext"
)

// NewRateLimiter builds an in-process limiter from a formatted rate such as
// "30-M".
func NewRateLimiter(formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	return limiter.New(memory.NewStore(), rate), nil
}

// RateLimit keys on the client IP recorded by ClientMetadata. Limiter store
// errors fail open.
func RateLimit(l *limiter.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := requestcontext.ClientIP(ctx)
			if key == "" {
				key = ClientIPFromRequest(r)
			}

			limiterCtx, err := l.Get(ctx, key)
			if err != nil {
				logger.ErrorContext(ctx, "rate limiter unavailable",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limiterCtx.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(limiterCtx.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(limiterCtx.Reset, 10))

			if limiterCtx.Reached {
				logger.WarnContext(ctx, "rate limit reached",
					"client_ip", key,
					"request_id", GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many uploads, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
