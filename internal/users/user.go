package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrLastAdmin          = fmt.Errorf("%w: cannot demote the last admin", exam.ErrInvalid)
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      rbac.Role `json:"role"`
	ClassName *string   `json:"class_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists users. Email is unique; Insert on a taken email returns
// exam.ErrConflict, lookups of absent users exam.ErrNotFound.
type Store interface {
	Insert(ctx context.Context, u User, passwordHash string) error
	ByID(ctx context.Context, id string) (User, string, error)
	ByEmail(ctx context.Context, email string) (User, string, error)
	List(ctx context.Context, role rbac.Role) ([]User, error) // role "" lists all
	CountByRole(ctx context.Context, role rbac.Role) (int, error)
	SetPassword(ctx context.Context, id, passwordHash string) error
	// SetRole refuses with ErrLastAdmin when the change would leave no admin.
	// The check and the write are atomic.
	SetRole(ctx context.Context, id string, role rbac.Role) error
}
