package exam

import (
	"fmt"
	"time"
)

// QuestionKind is the closed set of question kinds.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindEssay          QuestionKind = "essay"
)

func ParseQuestionKind(s string) (QuestionKind, error) {
	switch k := QuestionKind(s); k {
	case KindMultipleChoice, KindEssay:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown question kind %q", ErrInvalid, s)
}

// AttemptStatus is the closed set of attempt states. StatusSubmitted is a legal
// stored value but the lifecycle never leaves an attempt resting in it.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusSubmitted  AttemptStatus = "submitted"
	StatusGraded     AttemptStatus = "graded"
)

// ActiveStatuses block a second start for the same (exam, student).
var ActiveStatuses = []AttemptStatus{StatusInProgress, StatusSubmitted, StatusGraded}

func ParseAttemptStatus(s string) (AttemptStatus, error) {
	switch st := AttemptStatus(s); st {
	case StatusInProgress, StatusSubmitted, StatusGraded:
		return st, nil
	}
	return "", fmt.Errorf("unknown attempt status %q", s)
}

func (s AttemptStatus) Completed() bool {
	return s == StatusSubmitted || s == StatusGraded
}

type Subject struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Exam is the exam definition owned by the catalog.
type Exam struct {
	ID              string     `json:"id"`
	SubjectID       string     `json:"subject_id"`
	SubjectName     string     `json:"subject_name"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalPoints     int        `json:"total_points"`
	TargetClass     *string    `json:"class_name"` // nil: all classes
	OpensAt         *time.Time `json:"start_time"` // nil: unbounded
	ClosesAt        *time.Time `json:"end_time"`   // nil: unbounded
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Question is the internal model. It is never serialised directly to callers;
// see AdminQuestionView and StudentQuestionView.
type Question struct {
	ID            string
	ExamID        string
	Text          string
	Kind          QuestionKind
	Options       []string
	CorrectAnswer *string // option index as string; multiple_choice only
	Points        int
	Order         int
}

type Answer struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"answer_text"`
}

// Attempt is one student's try at one exam. Exam metadata is copied at start.
type Attempt struct {
	ID          string        `json:"id"`
	ExamID      string        `json:"exam_id"`
	StudentID   string        `json:"student_id"`
	StudentName string        `json:"student_name"`
	ExamTitle   string        `json:"exam_title"`
	SubjectName string        `json:"subject_name"`
	Answers     []Answer      `json:"answers"`
	Score       *float64      `json:"score"`
	TotalPoints int           `json:"total_points"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at"`
	Status      AttemptStatus `json:"status"`
}

// Grade is the atomic field set written on submit.
type Grade struct {
	Answers     []Answer
	Score       float64
	SubmittedAt time.Time
}

// SubmitResult is returned to the submitting student.
type SubmitResult struct {
	Score       float64 `json:"score"`
	TotalPoints int     `json:"total_points"`
}

const (
	DefaultDurationMinutes = 60
	DefaultTotalPoints     = 100
	DefaultQuestionPoints  = 10
)
