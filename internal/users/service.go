package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

const DefaultBcryptCost = 12

type RegisterInput struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=6"`
	Name      string  `json:"name" validate:"required"`
	Role      string  `json:"role" validate:"required,oneof=admin student"`
	ClassName *string `json:"class_name"`
}

// Service owns accounts. It also answers the student and role lookups the
// exam lifecycle and the auth middleware need.
type Service struct {
	store            Store
	allowAdminSignup bool
	cost             int
	log              *zap.Logger
	now              func() time.Time
}

var (
	_ exam.StudentDirectory = (*Service)(nil)
	_ authmw.RoleSource     = (*Service)(nil)
)

type Option func(*Service)

func WithAdminSignup(allow bool) Option {
	return func(s *Service) { s.allowAdminSignup = allow }
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, cost: DefaultBcryptCost, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register creates a self-service account. Admin accounts are refused
// unless admin signup is enabled.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	role, err := rbac.ParseRole(in.Role)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", exam.ErrInvalid, err)
	}
	if role == rbac.RoleAdmin && !s.allowAdminSignup {
		return User{}, fmt.Errorf("admin self-registration disabled: %w", exam.ErrForbidden)
	}
	return s.Create(ctx, in)
}

// Create inserts a user without the signup policy check. Used by bootstrap
// tooling and bulk import.
func (s *Service) Create(ctx context.Context, in RegisterInput) (User, error) {
	role, err := rbac.ParseRole(in.Role)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", exam.ErrInvalid, err)
	}
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" || strings.TrimSpace(in.Name) == "" {
		return User{}, fmt.Errorf("%w: email, password and name required", exam.ErrInvalid)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if in.ClassName != nil {
		if c := strings.TrimSpace(*in.ClassName); c != "" {
			u.ClassName = &c
		}
	}
	if err := s.store.Insert(ctx, u, string(hash)); err != nil {
		return User{}, err
	}
	s.log.Info("user created", zap.String("user_id", u.ID), zap.String("role", u.Role.String()))
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	u, hash, err := s.store.ByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, exam.ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, _, err := s.store.ByID(ctx, id)
	return u, err
}

func (s *Service) List(ctx context.Context, role rbac.Role) ([]User, error) {
	return s.store.List(ctx, role)
}

// ChangePassword requires the current password.
func (s *Service) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return fmt.Errorf("%w: new password too short", exam.ErrInvalid)
	}
	_, hash, err := s.store.ByID(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)) != nil {
		return fmt.Errorf("incorrect old password: %w", exam.ErrForbidden)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return err
	}
	return s.store.SetPassword(ctx, id, string(b))
}

// SetRole changes a user's role. The last admin cannot be demoted.
func (s *Service) SetRole(ctx context.Context, id string, role rbac.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", exam.ErrInvalid, role)
	}
	if err := s.store.SetRole(ctx, id, role); err != nil {
		return err
	}
	s.log.Info("user role changed", zap.String("user_id", id), zap.String("role", role.String()))
	return nil
}

func (s *Service) LookupStudent(ctx context.Context, id string) (exam.Student, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return exam.Student{}, err
	}
	return exam.Student{ID: u.ID, Name: u.Name, Class: u.ClassName}, nil
}

func (s *Service) CountStudents(ctx context.Context) (int, error) {
	return s.store.CountByRole(ctx, rbac.RoleStudent)
}

func (s *Service) RoleOf(ctx context.Context, id string) (rbac.Role, error) {
	u, err := s.Get(ctx, id)
	if errors.Is(err, exam.ErrNotFound) {
		return "", authmw.ErrUnknownUser
	}
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }
