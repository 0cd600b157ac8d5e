package exam

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ExamFilter narrows ListExams. Zero value lists everything.
type ExamFilter struct {
	// ClassScope, when set, keeps exams with no target class or with this target class.
	ClassScope *string
	// OpenAt, when set, keeps exams with no close time or a close time >= OpenAt.
	OpenAt *time.Time
}

type AttemptListOpts struct {
	ExamID    string
	StudentID string
	Statuses  []AttemptStatus
}

// Store is the record store consumed by the catalog and the lifecycle manager.
// Implementations must make InsertAttempt fail with ErrConflict when an active
// attempt already exists for the pair, and GradeAttempt must only match an
// in_progress attempt, writing all grade fields in one step.
type Store interface {
	PutSubject(ctx context.Context, s Subject) error
	GetSubject(ctx context.Context, id string) (Subject, error)
	ListSubjects(ctx context.Context) ([]Subject, error)
	DeleteSubject(ctx context.Context, id string) error

	PutExam(ctx context.Context, e Exam) error
	GetExam(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context, f ExamFilter) ([]Exam, error)
	DeleteExam(ctx context.Context, id string) error

	PutQuestion(ctx context.Context, q Question) error
	ListQuestions(ctx context.Context, examID string) ([]Question, error) // insertion order
	DeleteQuestion(ctx context.Context, id string) error

	InsertAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	FindAttempt(ctx context.Context, examID, studentID string, status AttemptStatus) (Attempt, error)
	GradeAttempt(ctx context.Context, attemptID string, g Grade) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) // newest first

	Counts(ctx context.Context) (Counts, error)
}

// Counts backs the admin dashboard.
type Counts struct {
	Exams       int `json:"total_exams"`
	Subjects    int `json:"total_subjects"`
	Submissions int `json:"total_submissions"`
}

type memoryStore struct {
	mu        sync.RWMutex
	subjects  map[string]Subject
	exams     map[string]Exam
	examOrder []string
	questions []Question // insertion order
	attempts  []Attempt  // insertion order
}

// NewInMemoryStore returns a Store for tests and single-process dev runs.
func NewInMemoryStore() Store {
	return &memoryStore{
		subjects: map[string]Subject{},
		exams:    map[string]Exam{},
	}
}

func (m *memoryStore) PutSubject(_ context.Context, s Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[s.ID] = s
	return nil
}

func (m *memoryStore) GetSubject(_ context.Context, id string) (Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return Subject{}, fmt.Errorf("subject %q: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *memoryStore) ListSubjects(_ context.Context) ([]Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) DeleteSubject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[id]; !ok {
		return fmt.Errorf("subject %q: %w", id, ErrNotFound)
	}
	delete(m.subjects, id)
	return nil
}

func (m *memoryStore) PutExam(_ context.Context, e Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[e.ID]; !ok {
		m.examOrder = append(m.examOrder, e.ID)
	}
	m.exams[e.ID] = cloneExam(e)
	return nil
}

func (m *memoryStore) GetExam(_ context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}
	return cloneExam(e), nil
}

func (m *memoryStore) ListExams(_ context.Context, f ExamFilter) ([]Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Exam{}
	for i := len(m.examOrder) - 1; i >= 0; i-- {
		e := m.exams[m.examOrder[i]]
		if f.ClassScope != nil && e.TargetClass != nil && *e.TargetClass != *f.ClassScope {
			continue
		}
		if f.OpenAt != nil && e.ClosesAt != nil && e.ClosesAt.Before(*f.OpenAt) {
			continue
		}
		out = append(out, cloneExam(e))
	}
	return out, nil
}

func (m *memoryStore) DeleteExam(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[id]; !ok {
		return fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}
	delete(m.exams, id)
	for i, eid := range m.examOrder {
		if eid == id {
			m.examOrder = append(m.examOrder[:i], m.examOrder[i+1:]...)
			break
		}
	}
	qs := m.questions[:0]
	for _, q := range m.questions {
		if q.ExamID != id {
			qs = append(qs, q)
		}
	}
	m.questions = qs
	as := m.attempts[:0]
	for _, a := range m.attempts {
		if a.ExamID != id {
			as = append(as, a)
		}
	}
	m.attempts = as
	return nil
}

func (m *memoryStore) PutQuestion(_ context.Context, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[q.ExamID]; !ok {
		return fmt.Errorf("exam %q: %w", q.ExamID, ErrNotFound)
	}
	for i := range m.questions {
		if m.questions[i].ID == q.ID {
			m.questions[i] = cloneQuestion(q)
			return nil
		}
	}
	m.questions = append(m.questions, cloneQuestion(q))
	return nil
}

func (m *memoryStore) ListQuestions(_ context.Context, examID string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Question{}
	for _, q := range m.questions {
		if q.ExamID == examID {
			out = append(out, cloneQuestion(q))
		}
	}
	return out, nil
}

func (m *memoryStore) DeleteQuestion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, q := range m.questions {
		if q.ID == id {
			m.questions = append(m.questions[:i], m.questions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("question %q: %w", id, ErrNotFound)
}

// InsertAttempt checks and inserts under one lock, so concurrent starts for the
// same pair resolve to exactly one success.
func (m *memoryStore) InsertAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[a.ExamID]; !ok {
		return fmt.Errorf("exam %q: %w", a.ExamID, ErrNotFound)
	}
	for _, x := range m.attempts {
		if x.ID == a.ID {
			return fmt.Errorf("attempt %q exists: %w", a.ID, ErrConflict)
		}
		if x.ExamID == a.ExamID && x.StudentID == a.StudentID && isActive(x.Status) {
			return fmt.Errorf("active attempt for exam %q: %w", a.ExamID, ErrConflict)
		}
	}
	m.attempts = append(m.attempts, cloneAttempt(a))
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.ID == id {
			return cloneAttempt(a), nil
		}
	}
	return Attempt{}, fmt.Errorf("attempt %q: %w", id, ErrNotFound)
}

func (m *memoryStore) FindAttempt(_ context.Context, examID, studentID string, status AttemptStatus) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.Status == status {
			return cloneAttempt(a), nil
		}
	}
	return Attempt{}, fmt.Errorf("%s attempt for exam %q: %w", status, examID, ErrNotFound)
}

func (m *memoryStore) GradeAttempt(_ context.Context, attemptID string, g Grade) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.attempts {
		a := &m.attempts[i]
		if a.ID != attemptID || a.Status != StatusInProgress {
			continue
		}
		score := g.Score
		at := g.SubmittedAt
		a.Answers = append(make([]Answer, 0, len(g.Answers)), g.Answers...)
		a.Score = &score
		a.SubmittedAt = &at
		a.Status = StatusGraded
		return cloneAttempt(*a), nil
	}
	return Attempt{}, fmt.Errorf("in_progress attempt %q: %w", attemptID, ErrNotFound)
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if opts.ExamID != "" && a.ExamID != opts.ExamID {
			continue
		}
		if opts.StudentID != "" && a.StudentID != opts.StudentID {
			continue
		}
		if len(opts.Statuses) > 0 && !containsStatus(opts.Statuses, a.Status) {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *memoryStore) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := Counts{Exams: len(m.exams), Subjects: len(m.subjects)}
	for _, a := range m.attempts {
		if a.Status.Completed() {
			c.Submissions++
		}
	}
	return c, nil
}

func isActive(s AttemptStatus) bool { return containsStatus(ActiveStatuses, s) }

func containsStatus(list []AttemptStatus, s AttemptStatus) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func cloneExam(e Exam) Exam {
	if e.TargetClass != nil {
		c := *e.TargetClass
		e.TargetClass = &c
	}
	if e.OpensAt != nil {
		t := *e.OpensAt
		e.OpensAt = &t
	}
	if e.ClosesAt != nil {
		t := *e.ClosesAt
		e.ClosesAt = &t
	}
	return e
}

func cloneQuestion(q Question) Question {
	q.Options = append([]string(nil), q.Options...)
	if q.CorrectAnswer != nil {
		c := *q.CorrectAnswer
		q.CorrectAnswer = &c
	}
	return q
}

func cloneAttempt(a Attempt) Attempt {
	a.Answers = append(make([]Answer, 0, len(a.Answers)), a.Answers...)
	if a.Score != nil {
		s := *a.Score
		a.Score = &s
	}
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		a.SubmittedAt = &t
	}
	return a
}
