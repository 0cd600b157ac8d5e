package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChecker_Has(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role Role
		perm string
		want bool
	}{
		{RoleStudent, "attempt:start", true},
		{RoleStudent, "exam:create", false},
		{RoleStudent, "dashboard:admin", false},
		{RoleAdmin, "exam:create", true},
		{RoleAdmin, "anything:at-all", true},
		{Role("parent"), "exam:view", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestMatchPerm_PrefixWildcard(t *testing.T) {
	if !matchPerm("exam:*", "exam:delete") {
		t.Fatalf("expected exam:* to match exam:delete")
	}
	if matchPerm("exam:*", "attempt:start") {
		t.Fatalf("did not expect exam:* to match attempt:start")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" Student "); err != nil || r != RoleStudent {
		t.Fatalf("ParseRole(Student) = %q, %v", r, err)
	}
	if _, err := ParseRole("parent"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require("exam:create")(ok)

	cases := []struct {
		role Role
		want int
	}{
		{RoleAdmin, http.StatusNoContent},
		{RoleStudent, http.StatusForbidden},
		{"", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/exams", nil)
		if tc.role != "" {
			req = req.WithContext(WithRole(context.Background(), tc.role))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("role %q: status %d, want %d", tc.role, rec.Code, tc.want)
		}
	}
}

func TestRequire_JSONDetail(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	for name, h := range map[string]http.Handler{
		"require":     Require("exam:create")(ok),
		"require any": RequireAny("attempt:view-all", "dashboard:admin")(ok),
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(context.Background(), RoleStudent))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: status %d", name, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%s: content type %q", name, ct)
		}
		var body struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Detail == "" {
			t.Fatalf("%s: body %q: %v", name, rec.Body.String(), err)
		}
	}
}
