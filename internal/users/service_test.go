package users

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "users.db") + "?_pragma=busy_timeout(5000)"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dbh.Close() })
	return map[string]Store{"memory": NewInMemoryStore(), "sqlite": NewSQLStore(dbh)}
}

func strptr(s string) *string { return &s }

func TestRegisterLogin(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(st, WithBcryptCost(bcrypt.MinCost))
			u, err := svc.Register(ctx, RegisterInput{
				Email: " Alice@School.Test ", Password: "secret1", Name: "Alice", Role: "student", ClassName: strptr("7A"),
			})
			if err != nil {
				t.Fatal(err)
			}
			if u.Email != "alice@school.test" || u.Role != rbac.RoleStudent || *u.ClassName != "7A" {
				t.Fatalf("user = %+v", u)
			}

			_, err = svc.Register(ctx, RegisterInput{Email: "alice@school.test", Password: "other12", Name: "A2", Role: "student"})
			if !errors.Is(err, exam.ErrConflict) {
				t.Fatalf("duplicate err = %v", err)
			}

			got, err := svc.Login(ctx, "ALICE@school.test", "secret1")
			if err != nil || got.ID != u.ID {
				t.Fatalf("login = %+v, %v", got, err)
			}
			if _, err := svc.Login(ctx, "alice@school.test", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("wrong password err = %v", err)
			}
			if _, err := svc.Login(ctx, "nobody@school.test", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("unknown email err = %v", err)
			}

			stu, err := svc.LookupStudent(ctx, u.ID)
			if err != nil || stu.Name != "Alice" || *stu.Class != "7A" {
				t.Fatalf("lookup = %+v, %v", stu, err)
			}
			if n, _ := svc.CountStudents(ctx); n != 1 {
				t.Fatalf("students = %d", n)
			}
		})
	}
}

func TestRegister_AdminGate(t *testing.T) {
	ctx := context.Background()
	in := RegisterInput{Email: "root@school.test", Password: "secret1", Name: "Root", Role: "admin"}

	closed := NewService(NewInMemoryStore(), WithBcryptCost(bcrypt.MinCost))
	if _, err := closed.Register(ctx, in); !errors.Is(err, exam.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, err := closed.Create(ctx, in); err != nil {
		t.Fatalf("create bypasses gate: %v", err)
	}

	open := NewService(NewInMemoryStore(), WithBcryptCost(bcrypt.MinCost), WithAdminSignup(true))
	if u, err := open.Register(ctx, in); err != nil || u.Role != rbac.RoleAdmin {
		t.Fatalf("register admin = %+v, %v", u, err)
	}
	if _, err := open.Register(ctx, RegisterInput{Email: "t@s.test", Password: "secret1", Name: "T", Role: "parent"}); !errors.Is(err, exam.ErrInvalid) {
		t.Fatalf("unknown role err = %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore(), WithBcryptCost(bcrypt.MinCost))
	u, err := svc.Register(ctx, RegisterInput{Email: "b@s.test", Password: "secret1", Name: "B", Role: "student"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.ChangePassword(ctx, u.ID, "nope", "secret2"); !errors.Is(err, exam.ErrForbidden) {
		t.Fatalf("wrong old err = %v", err)
	}
	if err := svc.ChangePassword(ctx, u.ID, "secret1", "secret2"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, "b@s.test", "secret2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestRoleOf(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore(), WithBcryptCost(bcrypt.MinCost))
	u, _ := svc.Create(ctx, RegisterInput{Email: "a@s.test", Password: "secret1", Name: "A", Role: "admin"})
	if r, err := svc.RoleOf(ctx, u.ID); err != nil || r != rbac.RoleAdmin {
		t.Fatalf("role = %q, %v", r, err)
	}
	if _, err := svc.RoleOf(ctx, "ghost"); !errors.Is(err, authmw.ErrUnknownUser) {
		t.Fatalf("ghost err = %v", err)
	}
}

func TestImportCSV(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore(), WithBcryptCost(bcrypt.MinCost))
	if _, err := svc.Create(ctx, RegisterInput{Email: "dup@s.test", Password: "secret1", Name: "Dup", Role: "student"}); err != nil {
		t.Fatal(err)
	}
	csv := "email,name,password,class_name\n" +
		"c1@s.test,Carol,secret1,7A\n" +
		"dup@s.test,Dup,secret1,\n" +
		"c2@s.test,Chris,secret1,\n"
	rows, err := ParseCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Import(ctx, rows)
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 2 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
	students, _ := svc.List(ctx, rbac.RoleStudent)
	if len(students) != 3 || students[0].Email != "c1@s.test" || students[1].ClassName != nil {
		t.Fatalf("students = %+v", students)
	}

	if _, err := ParseCSV(strings.NewReader("email,name\nx@s.test,X\n")); !errors.Is(err, exam.ErrInvalid) {
		t.Fatalf("missing column err = %v", err)
	}
}

func TestSetRole_LastAdmin(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewService(st, WithBcryptCost(bcrypt.MinCost))
			a1, _ := svc.Create(ctx, RegisterInput{Email: "a1@s.test", Password: "secret1", Name: "A1", Role: "admin"})
			if err := svc.SetRole(ctx, a1.ID, rbac.RoleStudent); !errors.Is(err, ErrLastAdmin) || !errors.Is(err, exam.ErrInvalid) {
				t.Fatalf("demote last admin err = %v", err)
			}
			a2, _ := svc.Create(ctx, RegisterInput{Email: "a2@s.test", Password: "secret1", Name: "A2", Role: "admin"})
			if err := svc.SetRole(ctx, a2.ID, rbac.RoleStudent); err != nil {
				t.Fatal(err)
			}
			if r, _ := svc.RoleOf(ctx, a2.ID); r != rbac.RoleStudent {
				t.Fatalf("role = %q", r)
			}
			if err := svc.SetRole(ctx, "ghost", rbac.RoleAdmin); !errors.Is(err, exam.ErrNotFound) {
				t.Fatalf("ghost err = %v", err)
			}
		})
	}
}

func TestSetRole_ConcurrentDemotionsKeepOneAdmin(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewService(st, WithBcryptCost(bcrypt.MinCost))
			var ids []string
			for _, email := range []string{"a1@s.test", "a2@s.test"} {
				u, err := svc.Create(ctx, RegisterInput{Email: email, Password: "secret1", Name: "A", Role: "admin"})
				if err != nil {
					t.Fatal(err)
				}
				ids = append(ids, u.ID)
			}

			errs := make([]error, len(ids))
			var wg sync.WaitGroup
			for i, id := range ids {
				wg.Add(1)
				go func(i int, id string) {
					defer wg.Done()
					errs[i] = svc.SetRole(ctx, id, rbac.RoleStudent)
				}(i, id)
			}
			wg.Wait()

			ok, refused := 0, 0
			for _, err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrLastAdmin):
					refused++
				default:
					t.Fatalf("unexpected err = %v", err)
				}
			}
			if ok != 1 || refused != 1 {
				t.Fatalf("ok = %d, refused = %d", ok, refused)
			}
			if n, _ := st.CountByRole(ctx, rbac.RoleAdmin); n != 1 {
				t.Fatalf("admins left = %d", n)
			}
		})
	}
}
