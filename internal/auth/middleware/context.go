package auth

import (
	"context"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// Identity is the caller as established from a verified token.
type Identity struct {
	UserID string
	Email  string
	Role   rbac.Role
}

type ctxKey struct{}

// WithIdentity stores id and its role on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, ctxKey{}, id)
	return rbac.WithRole(ctx, id.Role)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
