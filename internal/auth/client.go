package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketslip/internal/platform/metrics"
	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/requestcontext"
)

const (
	defaultTimeout = 10 * time.Second
	// maxBodyBytes bounds how much of an auth response is read.
	maxBodyBytes = 1 << 20
)

// Outcome labels for slip_auth_attempts_total.
const (
	outcomeOK          = "ok"
	outcomeUnreachable = "unreachable"
	outcomeSkipped     = "skipped"
	outcomeRejected    = "rejected"
	outcomeMalformed   = "malformed"
)

var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   2 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:          50,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   2 * time.Second,
	ExpectContinueTimeout: time.Second,
}

// Client talks to the user-management service. Every call walks the
// Locator's candidates in order and stops at the first definitive answer.
type Client struct {
	locator    *Locator
	httpClient *http.Client
	timeout    time.Duration
	bypass     bool
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-candidate timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBypass enables degraded mode: when no candidate answers, identity
// resolution returns the bypass identity and role checks pass.
func WithBypass(enabled bool) Option {
	return func(c *Client) {
		c.bypass = enabled
	}
}

// NewClient constructs a Client.
func NewClient(locator *Locator, opts ...Option) *Client {
	c := &Client{
		locator:    locator,
		httpClient: &http.Client{Transport: sharedTransport},
		timeout:    defaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ResolveIdentity maps a bearer token to the caller's identity.
//
// A 200 carrying id and role succeeds. A 200 object missing either is
// malformed, and a 401 is an invalid token; both stop the walk. Any other
// status, an unparseable body, or a transport failure moves on to the next
// candidate.
func (c *Client) ResolveIdentity(ctx context.Context, token string) (*Identity, error) {
	for _, url := range c.locator.Candidates(PathUserInfo) {
		if err := ctx.Err(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "Authentication service is currently unavailable")
		}

		status, data, err := c.call(ctx, http.MethodGet, url, token, nil)
		if err != nil {
			c.logUnreachable(ctx, PathUserInfo, url, err)
			continue
		}

		switch {
		case status == http.StatusOK && data != nil:
			userID := stringField(data, "id")
			rawRole := stringField(data, "role")
			if userID == "" || rawRole == "" {
				c.metrics.IncrementAuthAttempt(PathUserInfo, outcomeMalformed)
				c.logger.ErrorContext(ctx, "auth service returned malformed user info",
					"url", url,
					"request_id", requestcontext.RequestID(ctx),
				)
				return nil, dErrors.New(dErrors.CodeUpstreamMalformed, "Malformed user info from auth service")
			}
			role, _ := ParseRole(rawRole)
			c.metrics.IncrementAuthAttempt(PathUserInfo, outcomeOK)
			return &Identity{UserID: userID, Role: role, Token: token}, nil

		case status == http.StatusUnauthorized:
			c.metrics.IncrementAuthAttempt(PathUserInfo, outcomeRejected)
			c.logRejected(ctx, PathUserInfo, url, token)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token")

		default:
			c.logSkipped(ctx, PathUserInfo, url, status)
		}
	}

	if c.bypass {
		c.metrics.IncrementAuthBypass(PathUserInfo)
		c.logger.WarnContext(ctx, "auth service unreachable, using bypass identity",
			"user_id", BypassUserID,
			"role", BypassRole,
			"token_fp", TokenFingerprint(token),
			"request_id", requestcontext.RequestID(ctx),
		)
		return &Identity{UserID: BypassUserID, Role: BypassRole, Token: token}, nil
	}
	return nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "Authentication service is currently unavailable")
}

// VerifyRole asks the auth service whether userID holds required. A 200
// answer is definitive either way. 401 and 403 stop the walk with an error;
// everything else moves on to the next candidate.
func (c *Client) VerifyRole(ctx context.Context, token, userID string, required Role) (bool, error) {
	body, err := json.Marshal(verifyRequest{ID: userID, RequiredRole: required.String()})
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode verify request")
	}

	for _, url := range c.locator.Candidates(PathVerify) {
		if err := ctx.Err(); err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "Authentication service is currently unavailable")
		}

		status, data, err := c.call(ctx, http.MethodPost, url, token, body)
		if err != nil {
			c.logUnreachable(ctx, PathVerify, url, err)
			continue
		}

		switch {
		case status == http.StatusOK && data != nil:
			c.metrics.IncrementAuthAttempt(PathVerify, outcomeOK)
			return truthy(data["verify"]), nil
		case status == http.StatusUnauthorized:
			c.metrics.IncrementAuthAttempt(PathVerify, outcomeRejected)
			c.logRejected(ctx, PathVerify, url, token)
			return false, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token")
		case status == http.StatusForbidden:
			c.metrics.IncrementAuthAttempt(PathVerify, outcomeRejected)
			c.logRejected(ctx, PathVerify, url, token)
			return false, dErrors.New(dErrors.CodeForbidden, "Insufficient permissions")
		default:
			c.logSkipped(ctx, PathVerify, url, status)
		}
	}

	if c.bypass {
		c.metrics.IncrementAuthBypass(PathVerify)
		c.logger.WarnContext(ctx, "auth service unreachable, bypassing role verification",
			"required_role", required,
			"token_fp", TokenFingerprint(token),
			"request_id", requestcontext.RequestID(ctx),
		)
		return true, nil
	}
	return false, dErrors.New(dErrors.CodeUpstreamUnavailable, "Authentication service is currently unavailable")
}

// call performs one request under its own timeout. The returned map is nil
// when the body is not a JSON object, whatever its declared content type.
func (c *Client) call(ctx context.Context, method, url, token string, body []byte) (int, map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, parseLenient(raw), nil
}

func (c *Client) logUnreachable(ctx context.Context, endpoint, url string, err error) {
	c.metrics.IncrementAuthAttempt(endpoint, outcomeUnreachable)
	c.logger.DebugContext(ctx, "auth candidate unreachable",
		"url", url,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (c *Client) logSkipped(ctx context.Context, endpoint, url string, status int) {
	c.metrics.IncrementAuthAttempt(endpoint, outcomeSkipped)
	c.logger.DebugContext(ctx, "auth candidate gave no usable answer",
		"url", url,
		"status", status,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (c *Client) logRejected(ctx context.Context, endpoint, url, token string) {
	c.logger.WarnContext(ctx, "auth service rejected token",
		"endpoint", endpoint,
		"url", url,
		"token_fp", TokenFingerprint(token),
		"request_id", requestcontext.RequestID(ctx),
	)
}

func parseLenient(raw []byte) map[string]any {
	var data map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &data); err != nil {
		return nil
	}
	return data
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// truthy accepts JSON booleans, non-zero numbers and boolean-like strings.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return false
	}
}
