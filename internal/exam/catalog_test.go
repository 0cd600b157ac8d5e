package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

func TestListAvailable(t *testing.T) {
	for name, mk := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := mk()
			now := t0
			cat := NewCatalog(store, WithCatalogClock(func() time.Time { return now }), WithCatalogIDs(seqIDs("x")))
			sub, err := cat.CreateSubject(ctx, SubjectInput{Name: "Science"})
			if err != nil {
				t.Fatal(err)
			}
			create := func(title string, class *string, end *time.Time) string {
				now = now.Add(time.Minute)
				e, err := cat.CreateExam(ctx, admin.ID, ExamInput{Title: title, SubjectID: sub.ID, ClassName: class, EndTime: end})
				if err != nil {
					t.Fatalf("create %s: %v", title, err)
				}
				return e.ID
			}
			all := create("all classes", nil, nil)
			sevenA := create("7A only", strptr("7A"), nil)
			create("7B only", strptr("7B"), nil)
			create("closed", nil, timeptr(t0.Add(-time.Hour)))
			closesLater := create("closes at query time", nil, timeptr(t0.Add(time.Hour)))

			at := t0.Add(time.Hour)
			got, err := cat.ListAvailable(ctx, rbac.RoleStudent, strptr("7A"), at)
			if err != nil {
				t.Fatal(err)
			}
			wantIDs(t, got, closesLater, sevenA, all)

			got, err = cat.ListAvailable(ctx, rbac.RoleStudent, nil, at)
			if err != nil {
				t.Fatal(err)
			}
			wantIDs(t, got, closesLater, all)

			got, err = cat.ListAvailable(ctx, rbac.RoleAdmin, nil, at)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 5 {
				t.Fatalf("admin sees %d exams, want 5", len(got))
			}
		})
	}
}

func wantIDs(t *testing.T, got []Exam, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d exams, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("exam[%d] = %s (%s), want %s", i, got[i].ID, got[i].Title, want[i])
		}
	}
}

func TestListQuestions_OrderStable(t *testing.T) {
	for name, mk := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t, mk())
			for _, text := range []string{"third", "fourth"} {
				if _, err := e.catalog.CreateQuestion(ctx, e.exam.ID, QuestionInput{Text: text, Kind: "essay", Order: 1}); err != nil {
					t.Fatal(err)
				}
			}
			views, err := e.catalog.ListQuestions(ctx, e.exam.ID, rbac.RoleStudent)
			if err != nil {
				t.Fatal(err)
			}
			var texts []string
			for _, v := range views {
				texts = append(texts, v.(StudentQuestionView).Text)
			}
			want := []string{"2+0?", "third", "fourth", "Explain zero."}
			for i := range want {
				if texts[i] != want[i] {
					t.Fatalf("order = %v, want %v", texts, want)
				}
			}
		})
	}
}

func TestListQuestions_MissingExam(t *testing.T) {
	cat := NewCatalog(NewInMemoryStore())
	if _, err := cat.ListQuestions(context.Background(), "nope", rbac.RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateExam_Defaults(t *testing.T) {
	e := newEnv(t, NewInMemoryStore())
	if e.exam.DurationMinutes != DefaultDurationMinutes || e.exam.TotalPoints != DefaultTotalPoints {
		t.Fatalf("defaults not applied: %+v", e.exam)
	}
	if e.exam.SubjectName != "Math" {
		t.Fatalf("subject name = %q", e.exam.SubjectName)
	}
	if e.exam.TargetClass != nil {
		t.Fatalf("target class = %v, want nil", *e.exam.TargetClass)
	}
}

func TestCreateExam_Invalid(t *testing.T) {
	e := newEnv(t, NewInMemoryStore())
	ctx := context.Background()
	cases := map[string]struct {
		in   ExamInput
		want error
	}{
		"blank title":     {ExamInput{Title: " ", SubjectID: e.exam.SubjectID}, ErrInvalid},
		"unknown subject": {ExamInput{Title: "t", SubjectID: "nope"}, ErrNotFound},
		"end before start": {ExamInput{
			Title: "t", SubjectID: e.exam.SubjectID,
			StartTime: timeptr(t0), EndTime: timeptr(t0.Add(-time.Second)),
		}, ErrInvalid},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := e.catalog.CreateExam(ctx, admin.ID, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateQuestion_Validation(t *testing.T) {
	e := newEnv(t, NewInMemoryStore())
	ctx := context.Background()
	neg := -1
	cases := map[string]QuestionInput{
		"unknown kind":      {Text: "x", Kind: "true_false"},
		"one option":        {Text: "x", Kind: "multiple_choice", Options: []string{"a"}, CorrectAnswer: strptr("0")},
		"blank option":      {Text: "x", Kind: "multiple_choice", Options: []string{"a", " "}, CorrectAnswer: strptr("0")},
		"missing key":       {Text: "x", Kind: "multiple_choice", Options: []string{"a", "b"}},
		"key out of range":  {Text: "x", Kind: "multiple_choice", Options: []string{"a", "b"}, CorrectAnswer: strptr("2")},
		"non canonical key": {Text: "x", Kind: "multiple_choice", Options: []string{"a", "b"}, CorrectAnswer: strptr("01")},
		"negative points":   {Text: "x", Kind: "essay", Points: &neg},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := e.catalog.CreateQuestion(ctx, e.exam.ID, in); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestCreateQuestion_EssayDropsKey(t *testing.T) {
	e := newEnv(t, NewInMemoryStore())
	v, err := e.catalog.CreateQuestion(context.Background(), e.exam.ID, QuestionInput{
		Text: "why", Kind: "essay", Options: []string{"a", "b"}, CorrectAnswer: strptr("1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.Options != nil || v.CorrectAnswer != nil || v.Points != DefaultQuestionPoints {
		t.Fatalf("essay view = %+v", v)
	}
}

type mapCache struct {
	m       map[string]Exam
	deletes int
}

func (c *mapCache) Get(_ context.Context, id string) (Exam, bool, error) {
	e, ok := c.m[id]
	return e, ok, nil
}

func (c *mapCache) Set(_ context.Context, e Exam) error {
	c.m[e.ID] = e
	return nil
}

func (c *mapCache) Delete(_ context.Context, id string) error {
	delete(c.m, id)
	c.deletes++
	return nil
}

func TestResolveExam_ReadThroughCache(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	cache := &mapCache{m: map[string]Exam{}}
	cat := NewCatalog(store, WithExamCache(cache))
	sub, _ := cat.CreateSubject(ctx, SubjectInput{Name: "Art"})
	ex, err := cat.CreateExam(ctx, admin.ID, ExamInput{Title: "Color", SubjectID: sub.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.ResolveExam(ctx, ex.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.m[ex.ID]; !ok {
		t.Fatalf("exam not cached after resolve")
	}
	if err := cat.DeleteExam(ctx, ex.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.m[ex.ID]; ok || cache.deletes != 1 {
		t.Fatalf("cache not invalidated on delete")
	}
	if _, err := cat.ResolveExam(ctx, ex.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
