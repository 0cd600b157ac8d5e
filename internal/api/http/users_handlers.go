package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

// GET /users?role=student
func ListUsersHandler(svc *users.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var role rbac.Role
		if q := r.URL.Query().Get("role"); q != "" {
			parsed, err := rbac.ParseRole(q)
			if err != nil {
				writeError(w, log, r, fmt.Errorf("%w: %v", exam.ErrInvalid, err))
				return
			}
			role = parsed
		}
		list, err := svc.List(r.Context(), role)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

const maxImport = 8 * maxBody

// POST /users/import accepts a multipart file= (CSV or JSON array) or a raw
// JSON array body.
func ImportUsersHandler(svc *users.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImport)
		var rows []users.RegisterInput
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(maxImport); err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "upload too large"})
					return
				}
				writeError(w, log, r, fmt.Errorf("%w: bad multipart form: %v", exam.ErrInvalid, err))
				return
			}
			defer r.MultipartForm.RemoveAll()
			f, _, err := r.FormFile("file")
			if err != nil {
				writeError(w, log, r, fmt.Errorf("%w: file required", exam.ErrInvalid))
				return
			}
			defer f.Close()
			body, err := io.ReadAll(f)
			if err != nil {
				writeError(w, log, r, err)
				return
			}
			trimmed := strings.TrimSpace(string(body))
			if strings.HasPrefix(trimmed, "[") {
				if err := json.Unmarshal(body, &rows); err != nil {
					writeError(w, log, r, fmt.Errorf("%w: bad json: %v", exam.ErrInvalid, err))
					return
				}
			} else if rows, err = users.ParseCSV(strings.NewReader(trimmed)); err != nil {
				writeError(w, log, r, err)
				return
			}
		} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			writeError(w, log, r, fmt.Errorf("%w: expected JSON array or multipart file", exam.ErrInvalid))
			return
		}
		for i := range rows {
			if rows[i].Role == "" {
				rows[i].Role = rbac.RoleStudent.String()
			}
			if err := validate.Struct(rows[i]); err != nil {
				writeError(w, log, r, fmt.Errorf("%w: row %d: %v", exam.ErrInvalid, i+1, err))
				return
			}
		}
		res, err := svc.Import(r.Context(), rows)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type updateUserRoleReq struct {
	Role string `json:"role" validate:"required,oneof=admin student"`
}

// PATCH /users/{userID}/role
func UpdateUserRoleHandler(svc *users.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateUserRoleReq
		if err := decode(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		if err := svc.SetRole(r.Context(), chi.URLParam(r, "userID"), rbac.Role(req.Role)); err != nil {
			writeError(w, log, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
