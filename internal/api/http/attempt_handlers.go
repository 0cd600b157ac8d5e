package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

// POST /exams/{examID}/start
func StartExamHandler(life *exam.Lifecycle, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		a, err := life.Start(r.Context(), chi.URLParam(r, "examID"), c)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

type submitReq struct {
	Answers []exam.Answer `json:"answers"`
}

// POST /exams/{examID}/submit
func SubmitExamHandler(life *exam.Lifecycle, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		var req submitReq
		if err := decode(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		res, err := life.Submit(r.Context(), chi.URLParam(r, "examID"), c, req.Answers)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /exams/history
func HistoryHandler(life *exam.Lifecycle, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		list, err := life.History(r.Context(), c)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /exams/{examID}/results
func ResultsHandler(life *exam.Lifecycle, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		list, err := life.Results(r.Context(), chi.URLParam(r, "examID"), c)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(life *exam.Lifecycle, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		a, err := life.Attempt(r.Context(), chi.URLParam(r, "attemptID"), c)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /dashboard/admin
func AdminDashboardHandler(life *exam.Lifecycle, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		d, err := life.AdminDashboard(r.Context(), c)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// GET /dashboard/student
func StudentDashboardHandler(life *exam.Lifecycle, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		d, err := life.StudentDashboard(r.Context(), c)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// GET /events?after=0&limit=100
func EventsHandler(events syncx.Log, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
		list, err := events.Since(r.Context(), after, limit)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
