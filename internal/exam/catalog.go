package exam

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// ExamCache is an optional read-through cache for exam definitions.
type ExamCache interface {
	Get(ctx context.Context, id string) (Exam, bool, error)
	Set(ctx context.Context, e Exam) error
	Delete(ctx context.Context, id string) error
}

// Catalog resolves exams and questions and owns their administrative writes.
type Catalog struct {
	store Store
	cache ExamCache
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

type CatalogOption func(*Catalog)

func WithExamCache(c ExamCache) CatalogOption {
	return func(k *Catalog) { k.cache = c }
}

func WithCatalogLogger(l *zap.Logger) CatalogOption {
	return func(k *Catalog) { k.log = l }
}

func WithCatalogClock(now func() time.Time) CatalogOption {
	return func(k *Catalog) { k.now = now }
}

func WithCatalogIDs(newID func() string) CatalogOption {
	return func(k *Catalog) { k.newID = newID }
}

func NewCatalog(store Store, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		store: store,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: newID,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ResolveExam returns the exam definition or ErrNotFound.
func (c *Catalog) ResolveExam(ctx context.Context, id string) (Exam, error) {
	if c.cache != nil {
		e, ok, err := c.cache.Get(ctx, id)
		switch {
		case err != nil:
			c.log.Warn("exam cache get failed", zap.String("exam_id", id), zap.Error(err))
		case ok:
			return e, nil
		}
	}
	e, err := c.store.GetExam(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, e); err != nil {
			c.log.Warn("exam cache set failed", zap.String("exam_id", id), zap.Error(err))
		}
	}
	return e, nil
}

// ListAvailable lists every exam for admins. Students get exams whose target
// class is unset or equal to class, AND whose close time is unset or not
// before now.
func (c *Catalog) ListAvailable(ctx context.Context, role rbac.Role, class *string, now time.Time) ([]Exam, error) {
	if role == rbac.RoleAdmin {
		return c.store.ListExams(ctx, ExamFilter{})
	}
	scope := ""
	if class != nil {
		scope = *class
	}
	return c.store.ListExams(ctx, ExamFilter{ClassScope: &scope, OpenAt: &now})
}

// ListQuestions returns the exam's questions sorted by display order (stable
// on insertion order) and redacted for role.
func (c *Catalog) ListQuestions(ctx context.Context, examID string, role rbac.Role) ([]QuestionView, error) {
	bank, err := c.questionBank(ctx, examID)
	if err != nil {
		return nil, err
	}
	out := make([]QuestionView, 0, len(bank))
	for _, q := range bank {
		out = append(out, Redact(q, role))
	}
	return out, nil
}

// questionBank is the unredacted, ordered question set. It never leaves the package.
func (c *Catalog) questionBank(ctx context.Context, examID string) ([]Question, error) {
	if _, err := c.ResolveExam(ctx, examID); err != nil {
		return nil, err
	}
	qs, err := c.store.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
	return qs, nil
}

func (c *Catalog) forget(ctx context.Context, examID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, examID); err != nil && !errors.Is(err, ErrNotFound) {
		c.log.Warn("exam cache delete failed", zap.String("exam_id", examID), zap.Error(err))
	}
}
