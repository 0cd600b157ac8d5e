package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Role is the closed set of caller roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStudent
}

func (r Role) String() string { return string(r) }

// ParseRole validates a role coming from a token, a request body or a DB row.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// ---- role in context ----

type ctxKey struct{}

var ctxKeyRole = ctxKey{}

func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, ctxKeyRole, role)
}

func RoleFromContext(ctx context.Context) Role {
	if v := ctx.Value(ctxKeyRole); v != nil {
		if r, ok := v.(Role); ok {
			return r
		}
	}
	return ""
}
