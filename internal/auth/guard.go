package auth

import (
	"context"

	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/requestcontext"
)

// RequireRole resolves the caller and confirms required with the auth service.
// A negative verification becomes a forbidden error naming the role.
func (c *Client) RequireRole(ctx context.Context, token string, required Role) (*Identity, error) {
	identity, err := c.ResolveIdentity(ctx, token)
	if err != nil {
		return nil, err
	}
	ok, err := c.VerifyRole(ctx, token, identity.UserID, required)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.WarnContext(ctx, "role verification denied",
			"user_id", identity.UserID,
			"required_role", required,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeForbidden, required.Title()+" role required")
	}
	return identity, nil
}

// OptionalIdentity resolves the caller when possible. Any failure, including
// a missing token, yields nil.
func (c *Client) OptionalIdentity(ctx context.Context, token string) *Identity {
	if token == "" {
		return nil
	}
	identity, err := c.ResolveIdentity(ctx, token)
	if err != nil {
		c.logger.DebugContext(ctx, "optional identity not resolved",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil
	}
	return identity
}
