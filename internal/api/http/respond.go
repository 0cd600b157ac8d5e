package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

var validate = validator.New()

const maxBody = 1 << 20

// decode reads a JSON body into dst and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: bad json: %v", exam.ErrInvalid, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", exam.ErrInvalid, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Detail string `json:"detail"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exam.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, exam.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, exam.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, users.ErrInvalidCredentials),
		errors.Is(err, authmw.ErrUnauthorized),
		errors.Is(err, authmw.ErrTokenExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps domain errors to status codes. Unmapped errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Detail: msg})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// callerFrom returns the authenticated caller. Routes using it sit behind
// the JWT middleware.
func callerFrom(r *http.Request) (exam.Caller, error) {
	id, ok := authmw.IdentityFromContext(r.Context())
	if !ok {
		return exam.Caller{}, authmw.ErrUnauthorized
	}
	return exam.Caller{ID: id.UserID, Role: id.Role}, nil
}
