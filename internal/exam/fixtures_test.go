package exam

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func strptr(s string) *string        { return &s }
func timeptr(t time.Time) *time.Time { return &t }

type fakeStudents struct {
	mu sync.Mutex
	m  map[string]Student
}

func newFakeStudents(ss ...Student) *fakeStudents {
	f := &fakeStudents{m: map[string]Student{}}
	for _, s := range ss {
		f.m[s.ID] = s
	}
	return f
}

func (f *fakeStudents) LookupStudent(_ context.Context, id string) (Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.m[id]
	if !ok {
		return Student{}, fmt.Errorf("student %q: %w", id, ErrNotFound)
	}
	return s, nil
}

func (f *fakeStudents) CountStudents(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m), nil
}

type recordingEvents struct {
	mu   sync.Mutex
	typs []string
}

func (r *recordingEvents) Append(_ context.Context, typ, _ string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typs = append(r.typs, typ)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.typs...)
}

func seqIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s-%d", prefix, n.Add(1)) }
}

// storeFactories lets table tests run against both Store implementations.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": NewInMemoryStore,
		"sqlite": func() Store { return newSQLiteStore(t) },
	}
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "exams.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	return NewSQLStore(dbh)
}

type env struct {
	store    Store
	catalog  *Catalog
	life     *Lifecycle
	students *fakeStudents
	events   *recordingEvents
	now      time.Time
	exam     Exam
	qs       []AdminQuestionView
}

var (
	admin = Caller{ID: "admin-1", Role: rbac.RoleAdmin}
	alice = Caller{ID: "alice", Role: rbac.RoleStudent}
	bob   = Caller{ID: "bob", Role: rbac.RoleStudent}
)

// newEnv seeds one subject and one exam with a multiple-choice question worth
// 10 (key "2") and an essay worth 20.
func newEnv(t *testing.T, store Store) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{
		store: store,
		students: newFakeStudents(
			Student{ID: "alice", Name: "Alice", Class: strptr("7A")},
			Student{ID: "bob", Name: "Bob", Class: strptr("7A")},
		),
		events: &recordingEvents{},
		now:    t0,
	}
	clock := func() time.Time { return e.now }
	e.catalog = NewCatalog(store, WithCatalogClock(clock), WithCatalogIDs(seqIDs("c")))
	e.life = NewLifecycle(store, e.catalog, e.students,
		WithClock(clock), WithIDs(seqIDs("a")), WithEvents(e.events))

	sub, err := e.catalog.CreateSubject(ctx, SubjectInput{Name: "Math"})
	if err != nil {
		t.Fatalf("create subject: %v", err)
	}
	e.exam, err = e.catalog.CreateExam(ctx, admin.ID, ExamInput{Title: "Algebra", SubjectID: sub.ID})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	ten, twenty := 10, 20
	for _, in := range []QuestionInput{
		{Text: "2+0?", Kind: "multiple_choice", Options: []string{"0", "1", "2"}, CorrectAnswer: strptr("2"), Points: &ten, Order: 1},
		{Text: "Explain zero.", Kind: "essay", Points: &twenty, Order: 2},
	} {
		v, err := e.catalog.CreateQuestion(ctx, e.exam.ID, in)
		if err != nil {
			t.Fatalf("create question: %v", err)
		}
		e.qs = append(e.qs, v)
	}
	return e
}
