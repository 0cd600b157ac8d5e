package exam

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type SubjectInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type ExamInput struct {
	Title           string     `json:"title" validate:"required"`
	SubjectID       string     `json:"subject_id" validate:"required"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"duration_minutes" validate:"gte=0"`
	TotalPoints     int        `json:"total_points" validate:"gte=0"`
	ClassName       *string    `json:"class_name"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
}

type QuestionInput struct {
	Text          string   `json:"question_text" validate:"required"`
	Kind          string   `json:"question_type" validate:"required,oneof=multiple_choice essay"`
	Options       []string `json:"options"`
	CorrectAnswer *string  `json:"correct_answer"`
	Points        *int     `json:"points" validate:"omitempty,gte=0"`
	Order         int      `json:"order"`
}

func (c *Catalog) CreateSubject(ctx context.Context, in SubjectInput) (Subject, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Subject{}, fmt.Errorf("%w: subject name required", ErrInvalid)
	}
	s := Subject{
		ID:          c.newID(),
		Name:        name,
		Description: in.Description,
		Icon:        in.Icon,
		CreatedAt:   c.now().UTC(),
	}
	if err := c.store.PutSubject(ctx, s); err != nil {
		return Subject{}, err
	}
	return s, nil
}

func (c *Catalog) ListSubjects(ctx context.Context) ([]Subject, error) {
	return c.store.ListSubjects(ctx)
}

func (c *Catalog) DeleteSubject(ctx context.Context, id string) error {
	return c.store.DeleteSubject(ctx, id)
}

// CreateExam denormalises the subject name and applies defaults. An empty
// class name means the exam targets all classes.
func (c *Catalog) CreateExam(ctx context.Context, creatorID string, in ExamInput) (Exam, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Exam{}, fmt.Errorf("%w: title required", ErrInvalid)
	}
	if in.StartTime != nil && in.EndTime != nil && in.EndTime.Before(*in.StartTime) {
		return Exam{}, fmt.Errorf("%w: end_time before start_time", ErrInvalid)
	}
	sub, err := c.store.GetSubject(ctx, in.SubjectID)
	if err != nil {
		return Exam{}, err
	}

	e := Exam{
		ID:              c.newID(),
		SubjectID:       sub.ID,
		SubjectName:     sub.Name,
		Title:           title,
		Description:     in.Description,
		DurationMinutes: in.DurationMinutes,
		TotalPoints:     in.TotalPoints,
		CreatedBy:       creatorID,
		CreatedAt:       c.now().UTC(),
	}
	if e.DurationMinutes == 0 {
		e.DurationMinutes = DefaultDurationMinutes
	}
	if e.TotalPoints == 0 {
		e.TotalPoints = DefaultTotalPoints
	}
	if in.ClassName != nil {
		if cls := strings.TrimSpace(*in.ClassName); cls != "" {
			e.TargetClass = &cls
		}
	}
	if in.StartTime != nil {
		t := in.StartTime.UTC()
		e.OpensAt = &t
	}
	if in.EndTime != nil {
		t := in.EndTime.UTC()
		e.ClosesAt = &t
	}
	if err := c.store.PutExam(ctx, e); err != nil {
		return Exam{}, err
	}
	c.log.Info("exam created", zap.String("exam_id", e.ID), zap.String("subject", e.SubjectName))
	return e, nil
}

// DeleteExam cascades to the exam's questions and attempts.
func (c *Catalog) DeleteExam(ctx context.Context, id string) error {
	if err := c.store.DeleteExam(ctx, id); err != nil {
		return err
	}
	c.forget(ctx, id)
	c.log.Info("exam deleted", zap.String("exam_id", id))
	return nil
}

func (c *Catalog) CreateQuestion(ctx context.Context, examID string, in QuestionInput) (AdminQuestionView, error) {
	if _, err := c.ResolveExam(ctx, examID); err != nil {
		return AdminQuestionView{}, err
	}
	q, err := c.buildQuestion(examID, in)
	if err != nil {
		return AdminQuestionView{}, err
	}
	if err := c.store.PutQuestion(ctx, q); err != nil {
		return AdminQuestionView{}, err
	}
	return Redact(q, rbac.RoleAdmin).(AdminQuestionView), nil
}

func (c *Catalog) DeleteQuestion(ctx context.Context, id string) error {
	return c.store.DeleteQuestion(ctx, id)
}

func (c *Catalog) buildQuestion(examID string, in QuestionInput) (Question, error) {
	kind, err := ParseQuestionKind(in.Kind)
	if err != nil {
		return Question{}, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Question{}, fmt.Errorf("%w: question_text required", ErrInvalid)
	}
	q := Question{
		ID:     c.newID(),
		ExamID: examID,
		Text:   text,
		Kind:   kind,
		Points: DefaultQuestionPoints,
		Order:  in.Order,
	}
	if in.Points != nil {
		if *in.Points < 0 {
			return Question{}, fmt.Errorf("%w: points must be >= 0", ErrInvalid)
		}
		q.Points = *in.Points
	}

	// essays carry neither options nor a key
	if kind == KindEssay {
		return q, nil
	}

	if len(in.Options) < 2 {
		return Question{}, fmt.Errorf("%w: multiple_choice needs at least 2 options", ErrInvalid)
	}
	for i, o := range in.Options {
		if strings.TrimSpace(o) == "" {
			return Question{}, fmt.Errorf("%w: option %d is empty", ErrInvalid, i)
		}
	}
	if in.CorrectAnswer == nil {
		return Question{}, fmt.Errorf("%w: multiple_choice needs correct_answer", ErrInvalid)
	}
	idx, err := strconv.Atoi(*in.CorrectAnswer)
	if err != nil || idx < 0 || idx >= len(in.Options) || strconv.Itoa(idx) != *in.CorrectAnswer {
		return Question{}, fmt.Errorf("%w: correct_answer %q is not an option index", ErrInvalid, *in.CorrectAnswer)
	}
	q.Options = append([]string(nil), in.Options...)
	key := *in.CorrectAnswer
	q.CorrectAnswer = &key
	return q, nil
}
