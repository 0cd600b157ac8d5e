package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// ErrUnknownUser is returned by a RoleSource when the account no longer exists.
var ErrUnknownUser = errors.New("unknown user")

// RoleSource reports the stored role of a user.
type RoleSource interface {
	RoleOf(ctx context.Context, userID string) (rbac.Role, error)
}

// AttachRoleFromStore replaces the token role with the stored one so a role
// change takes effect before the token expires. Deleted accounts get 401.
func AttachRoleFromStore(src RoleSource, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, ok := IdentityFromContext(ctx)
			if !ok {
				rbac.WriteDetail(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			role, err := src.RoleOf(ctx, id.UserID)
			switch {
			case errors.Is(err, ErrUnknownUser):
				rbac.WriteDetail(w, http.StatusUnauthorized, "unauthorized")
				return
			case err != nil:
				log.Error("role lookup failed", zap.String("user_id", id.UserID), zap.Error(err))
				rbac.WriteDetail(w, http.StatusInternalServerError, "internal error")
				return
			}
			if role != id.Role {
				id.Role = role
				ctx = WithIdentity(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
