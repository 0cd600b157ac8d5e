package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

// GET /subjects
func ListSubjectsHandler(cat *exam.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cat.ListSubjects(r.Context())
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /subjects
func CreateSubjectHandler(cat *exam.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exam.SubjectInput
		if err := decode(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		s, err := cat.CreateSubject(r.Context(), req)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// DELETE /subjects/{subjectID}
func DeleteSubjectHandler(cat *exam.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cat.DeleteSubject(r.Context(), chi.URLParam(r, "subjectID")); err != nil {
			writeError(w, log, r, err)
			return
		}
		writeMessage(w, "Subject deleted")
	}
}

// GET /exams lists every exam for admins and the available ones for students.
func ListExamsHandler(cat *exam.Catalog, svc *users.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		var class *string
		if c.Role != rbac.RoleAdmin {
			u, err := svc.Get(r.Context(), c.ID)
			if err != nil {
				writeError(w, log, r, err)
				return
			}
			class = u.ClassName
		}
		list, err := cat.ListAvailable(r.Context(), c.Role, class, time.Now())
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /exams
func CreateExamHandler(cat *exam.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		var req exam.ExamInput
		if err := decode(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		e, err := cat.CreateExam(r.Context(), c.ID, req)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// GET /exams/{examID}
func GetExamHandler(cat *exam.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := cat.ResolveExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// DELETE /exams/{examID}
func DeleteExamHandler(cat *exam.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cat.DeleteExam(r.Context(), chi.URLParam(r, "examID")); err != nil {
			writeError(w, log, r, err)
			return
		}
		writeMessage(w, "Exam deleted")
	}
}

// GET /exams/{examID}/questions returns the role's view of each question.
func ListQuestionsHandler(cat *exam.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		views, err := cat.ListQuestions(r.Context(), chi.URLParam(r, "examID"), c.Role)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// POST /exams/{examID}/questions
func CreateQuestionHandler(cat *exam.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exam.QuestionInput
		if err := decode(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		v, err := cat.CreateQuestion(r.Context(), chi.URLParam(r, "examID"), req)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// DELETE /questions/{questionID}
func DeleteQuestionHandler(cat *exam.Catalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cat.DeleteQuestion(r.Context(), chi.URLParam(r, "questionID")); err != nil {
			writeError(w, log, r, err)
			return
		}
		writeMessage(w, "Question deleted")
	}
}
