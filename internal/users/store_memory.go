package users

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type memUser struct {
	u    User
	hash string
}

type memoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*memUser
	byEmail map[string]*memUser
}

func NewInMemoryStore() Store {
	return &memoryStore{byID: map[string]*memUser{}, byEmail: map[string]*memUser{}}
}

func (m *memoryStore) Insert(_ context.Context, u User, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return fmt.Errorf("email %q already registered: %w", u.Email, exam.ErrConflict)
	}
	if _, ok := m.byID[u.ID]; ok {
		return fmt.Errorf("user %q exists: %w", u.ID, exam.ErrConflict)
	}
	rec := &memUser{u: cloneUser(u), hash: hash}
	m.byID[u.ID] = rec
	m.byEmail[u.Email] = rec
	return nil
}

func (m *memoryStore) ByID(_ context.Context, id string) (User, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return User{}, "", fmt.Errorf("user %q: %w", id, exam.ErrNotFound)
	}
	return cloneUser(rec.u), rec.hash, nil
}

func (m *memoryStore) ByEmail(_ context.Context, email string) (User, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byEmail[email]
	if !ok {
		return User{}, "", fmt.Errorf("user %q: %w", email, exam.ErrNotFound)
	}
	return cloneUser(rec.u), rec.hash, nil
}

func (m *memoryStore) List(_ context.Context, role rbac.Role) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []User{}
	for _, rec := range m.byID {
		if role == "" || rec.u.Role == role {
			out = append(out, cloneUser(rec.u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memoryStore) CountByRole(_ context.Context, role rbac.Role) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.byID {
		if rec.u.Role == role {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) SetPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("user %q: %w", id, exam.ErrNotFound)
	}
	rec.hash = hash
	return nil
}

func (m *memoryStore) SetRole(_ context.Context, id string, role rbac.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("user %q: %w", id, exam.ErrNotFound)
	}
	if rec.u.Role == rbac.RoleAdmin && role != rbac.RoleAdmin {
		admins := 0
		for _, other := range m.byID {
			if other.u.Role == rbac.RoleAdmin {
				admins++
			}
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}
	rec.u.Role = role
	return nil
}

func cloneUser(u User) User {
	if u.ClassName != nil {
		c := *u.ClassName
		u.ClassName = &c
	}
	return u
}
