package http

import (
	"net/http"

	"go.uber.org/zap"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

type tokenResponse struct {
	Token string     `json:"token"`
	User  users.User `json:"user"`
}

func issue(a *authmw.AuthService, u users.User) (tokenResponse, error) {
	tok, err := a.IssueJWT(authmw.Identity{UserID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{Token: tok, User: u}, nil
}

// POST /auth/register
func RegisterHandler(svc *users.Service, a *authmw.AuthService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req users.RegisterInput
		if err := decode(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		u, err := svc.Register(r.Context(), req)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		out, err := issue(a, u)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /auth/login
func LoginHandler(svc *users.Service, a *authmw.AuthService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if err := decode(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		u, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		out, err := issue(a, u)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /auth/me
func MeHandler(svc *users.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		u, err := svc.Get(r.Context(), c.ID)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

type changePasswordReq struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// POST /users/change-password
func ChangePasswordHandler(svc *users.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		var req changePasswordReq
		if err := decode(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		if err := svc.ChangePassword(r.Context(), c.ID, req.OldPassword, req.NewPassword); err != nil {
			writeError(w, log, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
