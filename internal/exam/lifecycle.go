package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-exams/internal/grading"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// Caller is the authenticated identity performing an operation.
type Caller struct {
	ID   string
	Role rbac.Role
}

// Student is the profile data the lifecycle needs about a student.
type Student struct {
	ID    string
	Name  string
	Class *string
}

// StudentDirectory resolves student profiles owned by the user records.
type StudentDirectory interface {
	LookupStudent(ctx context.Context, id string) (Student, error)
	CountStudents(ctx context.Context) (int, error)
}

// EventSink records lifecycle transitions after they are committed.
type EventSink interface {
	Append(ctx context.Context, typ, key string, payload any) error
}

// Observer receives lifecycle outcomes, e.g. for metrics.
type Observer interface {
	AttemptStarted()
	AttemptGraded(score float64, totalPoints int)
	AttemptRejected(op, reason string)
}

const (
	EventAttemptStarted = "AttemptStarted"
	EventAttemptGraded  = "AttemptGraded"
)

// Lifecycle owns the per (exam, student) attempt state machine:
// none -> in_progress -> graded.
type Lifecycle struct {
	store    Store
	catalog  *Catalog
	students StudentDirectory
	grader   *grading.Grader
	events   EventSink
	observer Observer
	log      *zap.Logger
	now      func() time.Time
	newID    func() string

	enforceEligibility bool
}

type Option func(*Lifecycle)

func WithEvents(e EventSink) Option {
	return func(l *Lifecycle) { l.events = e }
}

func WithObserver(o Observer) Option {
	return func(l *Lifecycle) { l.observer = o }
}

func WithLogger(lg *zap.Logger) Option {
	return func(l *Lifecycle) { l.log = lg }
}

func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

func WithIDs(f func() string) Option {
	return func(l *Lifecycle) { l.newID = f }
}

// WithEligibility makes Start refuse students outside the exam's target class
// or schedule window with ErrForbidden. Off by default.
func WithEligibility(on bool) Option {
	return func(l *Lifecycle) { l.enforceEligibility = on }
}

func NewLifecycle(store Store, catalog *Catalog, students StudentDirectory, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:    store,
		catalog:  catalog,
		students: students,
		grader:   grading.NewDefaultGrader(),
		observer: nopObserver{},
		log:      zap.NewNop(),
		now:      time.Now,
		newID:    newID,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Start admits a student to an exam. A second start for the same pair fails
// with ErrConflict whatever the state of the first attempt.
func (l *Lifecycle) Start(ctx context.Context, examID string, caller Caller) (Attempt, error) {
	if caller.Role != rbac.RoleStudent {
		return Attempt{}, l.reject("start", "role", fmt.Errorf("only students can take exams: %w", ErrForbidden))
	}
	e, err := l.catalog.ResolveExam(ctx, examID)
	if err != nil {
		return Attempt{}, l.reject("start", reason(err), err)
	}
	st, err := l.students.LookupStudent(ctx, caller.ID)
	if err != nil {
		return Attempt{}, l.reject("start", reason(err), err)
	}
	now := l.now().UTC()
	if l.enforceEligibility {
		if err := eligible(e, st, now); err != nil {
			return Attempt{}, l.reject("start", "eligibility", err)
		}
	}

	a := Attempt{
		ID:          l.newID(),
		ExamID:      e.ID,
		StudentID:   st.ID,
		StudentName: st.Name,
		ExamTitle:   e.Title,
		SubjectName: e.SubjectName,
		Answers:     []Answer{},
		TotalPoints: e.TotalPoints,
		StartedAt:   now,
		Status:      StatusInProgress,
	}
	if err := l.store.InsertAttempt(ctx, a); err != nil {
		if errors.Is(err, ErrConflict) {
			err = fmt.Errorf("exam already started or completed: %w", err)
		}
		return Attempt{}, l.reject("start", reason(err), err)
	}

	l.observer.AttemptStarted()
	l.emit(ctx, EventAttemptStarted, a.ID, map[string]any{
		"exam_id":    a.ExamID,
		"student_id": a.StudentID,
		"started_at": a.StartedAt,
	})
	l.log.Info("attempt started",
		zap.String("attempt_id", a.ID), zap.String("exam_id", a.ExamID), zap.String("student_id", a.StudentID))
	return a, nil
}

// Submit grades the caller's in_progress attempt. Answers, score, submit time
// and status are persisted together; a second submit fails with ErrNotFound.
func (l *Lifecycle) Submit(ctx context.Context, examID string, caller Caller, answers []Answer) (SubmitResult, error) {
	if caller.Role != rbac.RoleStudent {
		return SubmitResult{}, l.reject("submit", "role", fmt.Errorf("only students can submit exams: %w", ErrForbidden))
	}
	a, err := l.store.FindAttempt(ctx, examID, caller.ID, StatusInProgress)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("exam not started or already submitted: %w", err)
		}
		return SubmitResult{}, l.reject("submit", reason(err), err)
	}
	bank, err := l.store.ListQuestions(ctx, examID)
	if err != nil {
		return SubmitResult{}, err
	}

	sum := l.grader.Score(toResponses(answers), toGradingBank(bank))
	if answers == nil {
		answers = []Answer{}
	}
	graded, err := l.store.GradeAttempt(ctx, a.ID, Grade{
		Answers:     answers,
		Score:       sum.Score,
		SubmittedAt: l.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("exam not started or already submitted: %w", err)
		}
		return SubmitResult{}, l.reject("submit", reason(err), err)
	}

	l.observer.AttemptGraded(sum.Score, graded.TotalPoints)
	l.emit(ctx, EventAttemptGraded, graded.ID, map[string]any{
		"exam_id":      graded.ExamID,
		"student_id":   graded.StudentID,
		"score":        sum.Score,
		"total_points": graded.TotalPoints,
		"needs_manual": sum.NeedsManual,
	})
	l.log.Info("attempt graded",
		zap.String("attempt_id", graded.ID), zap.String("exam_id", graded.ExamID),
		zap.Float64("score", sum.Score), zap.Int("needs_manual", sum.NeedsManual), zap.Int("unknown", sum.Unknown))
	return SubmitResult{Score: sum.Score, TotalPoints: graded.TotalPoints}, nil
}

// History lists the caller's attempts (students) or all attempts (admins), newest first.
func (l *Lifecycle) History(ctx context.Context, caller Caller) ([]Attempt, error) {
	opts := AttemptListOpts{}
	if caller.Role != rbac.RoleAdmin {
		opts.StudentID = caller.ID
	}
	return l.store.ListAttempts(ctx, opts)
}

// Results lists every attempt of an exam. Admins only.
func (l *Lifecycle) Results(ctx context.Context, examID string, caller Caller) ([]Attempt, error) {
	if caller.Role != rbac.RoleAdmin {
		return nil, fmt.Errorf("results are admin only: %w", ErrForbidden)
	}
	if _, err := l.catalog.ResolveExam(ctx, examID); err != nil {
		return nil, err
	}
	return l.store.ListAttempts(ctx, AttemptListOpts{ExamID: examID})
}

// Attempt returns one attempt to its owner or to an admin.
func (l *Lifecycle) Attempt(ctx context.Context, id string, caller Caller) (Attempt, error) {
	a, err := l.store.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if caller.Role != rbac.RoleAdmin && a.StudentID != caller.ID {
		return Attempt{}, fmt.Errorf("attempt %q belongs to another student: %w", id, ErrForbidden)
	}
	return a, nil
}

// eligible checks the schedule window and the target class.
func eligible(e Exam, st Student, now time.Time) error {
	if e.TargetClass != nil && (st.Class == nil || *st.Class != *e.TargetClass) {
		return fmt.Errorf("exam targets class %q: %w", *e.TargetClass, ErrForbidden)
	}
	if e.OpensAt != nil && now.Before(*e.OpensAt) {
		return fmt.Errorf("exam opens at %s: %w", e.OpensAt.Format(time.RFC3339), ErrForbidden)
	}
	if e.ClosesAt != nil && now.After(*e.ClosesAt) {
		return fmt.Errorf("exam closed at %s: %w", e.ClosesAt.Format(time.RFC3339), ErrForbidden)
	}
	return nil
}

func (l *Lifecycle) reject(op, why string, err error) error {
	l.observer.AttemptRejected(op, why)
	l.log.Warn("attempt "+op+" rejected", zap.String("reason", why), zap.Error(err))
	return err
}

func (l *Lifecycle) emit(ctx context.Context, typ, key string, payload any) {
	if l.events == nil {
		return
	}
	if err := l.events.Append(ctx, typ, key, payload); err != nil {
		l.log.Error("event append failed", zap.String("type", typ), zap.String("key", key), zap.Error(err))
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

func toResponses(answers []Answer) []grading.Response {
	out := make([]grading.Response, 0, len(answers))
	for _, a := range answers {
		out = append(out, grading.Response{QuestionID: a.QuestionID, Text: a.Text})
	}
	return out
}

func toGradingBank(qs []Question) []grading.Q {
	out := make([]grading.Q, 0, len(qs))
	for _, q := range qs {
		gq := grading.Q{ID: q.ID, Kind: string(q.Kind), Points: float64(q.Points)}
		if q.Kind == KindMultipleChoice && q.CorrectAnswer != nil {
			gq.AnswerKey = *q.CorrectAnswer
		}
		out = append(out, gq)
	}
	return out
}

type nopObserver struct{}

func (nopObserver) AttemptStarted()                {}
func (nopObserver) AttemptGraded(float64, int)     {}
func (nopObserver) AttemptRejected(string, string) {}
