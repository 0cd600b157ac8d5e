package rbac

import (
	"encoding/json"
	"net/http"
	"strings"
)

var defaultChecker = NewChecker(nil)

// WriteDetail writes the API error shape {"detail": msg}.
func WriteDetail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Detail string `json:"detail"`
	}{msg})
}

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return guard(perm, func(role Role) bool { return defaultChecker.Has(role, perm) })
}

// RequireAny enforces that the role has at least one of the permissions.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return guard(strings.Join(perms, " or "), func(role Role) bool { return defaultChecker.Any(role, perms...) })
}

// guard rejects requests with no role in context (401) or a role that fails
// allowed (403).
func guard(need string, allowed func(Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" {
				WriteDetail(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !allowed(role) {
				WriteDetail(w, http.StatusForbidden, "forbidden: requires "+need)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
