package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/metrics"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

type Deps struct {
	Catalog   *exam.Catalog
	Lifecycle *exam.Lifecycle
	Users     *users.Service
	Auth      *authmw.AuthService
	Events    syncx.Log
	Metrics   *metrics.Metrics
	Log       *zap.Logger

	CORSOrigins     []string
	LoginRatePerMin int
	Ready           func(context.Context) error // nil means always ready
}

// NewRouter mounts the service routes. ctx bounds background work such as
// the rate limiter janitor.
func NewRouter(ctx context.Context, d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, AccessLog(log), middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				log.Warn("not ready", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "not ready"})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	rate := d.LoginRatePerMin
	if rate <= 0 {
		rate = 30
	}

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", RegisterHandler(d.Users, d.Auth, log))
		api.With(RateLimiter(ctx, rate, time.Minute)).
			Post("/auth/login", LoginHandler(d.Users, d.Auth, log))

		api.Group(func(pr chi.Router) {
			pr.Use(authmw.JWTMiddleware(d.Auth))
			pr.Use(authmw.AttachRoleFromStore(d.Users, log))

			pr.Get("/auth/me", MeHandler(d.Users, log))
			pr.With(rbac.Require("user:change_password")).
				Post("/users/change-password", ChangePasswordHandler(d.Users, log))
			pr.With(rbac.Require("users:list")).
				Get("/users", ListUsersHandler(d.Users, log))
			pr.With(rbac.Require("users:import")).
				Post("/users/import", ImportUsersHandler(d.Users, log))
			pr.With(rbac.Require("users:role")).
				Patch("/users/{userID}/role", UpdateUserRoleHandler(d.Users, log))

			pr.With(rbac.Require("subject:view")).
				Get("/subjects", ListSubjectsHandler(d.Catalog, log))
			pr.With(rbac.Require("subject:create")).
				Post("/subjects", CreateSubjectHandler(d.Catalog, log))
			pr.With(rbac.Require("subject:delete")).
				Delete("/subjects/{subjectID}", DeleteSubjectHandler(d.Catalog, log))

			pr.With(rbac.Require("exam:view")).
				Get("/exams", ListExamsHandler(d.Catalog, d.Users, log))
			pr.With(rbac.Require("exam:create")).
				Post("/exams", CreateExamHandler(d.Catalog, log))
			pr.With(rbac.Require("attempt:history")).
				Get("/exams/history", HistoryHandler(d.Lifecycle, log))
			pr.With(rbac.Require("exam:view")).
				Get("/exams/{examID}", GetExamHandler(d.Catalog, log))
			pr.With(rbac.Require("exam:delete")).
				Delete("/exams/{examID}", DeleteExamHandler(d.Catalog, log))

			pr.With(rbac.Require("exam:view")).
				Get("/exams/{examID}/questions", ListQuestionsHandler(d.Catalog, log))
			pr.With(rbac.Require("question:create")).
				Post("/exams/{examID}/questions", CreateQuestionHandler(d.Catalog, log))
			pr.With(rbac.Require("question:delete")).
				Delete("/questions/{questionID}", DeleteQuestionHandler(d.Catalog, log))

			pr.With(rbac.Require("attempt:start")).
				Post("/exams/{examID}/start", StartExamHandler(d.Lifecycle, log))
			pr.With(rbac.Require("attempt:submit")).
				Post("/exams/{examID}/submit", SubmitExamHandler(d.Lifecycle, log))
			pr.With(rbac.Require("attempt:view-all")).
				Get("/exams/{examID}/results", ResultsHandler(d.Lifecycle, log))
			pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
				Get("/attempts/{attemptID}", GetAttemptHandler(d.Lifecycle, log))

			pr.With(rbac.Require("dashboard:admin")).
				Get("/dashboard/admin", AdminDashboardHandler(d.Lifecycle, log))
			pr.With(rbac.Require("dashboard:student")).
				Get("/dashboard/student", StudentDashboardHandler(d.Lifecycle, log))

			if d.Events != nil {
				pr.With(rbac.Require("events:read")).
					Get("/events", EventsHandler(d.Events, log))
			}
		})
	})
	return r
}
