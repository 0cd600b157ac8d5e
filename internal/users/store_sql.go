package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type SQLStore struct{ db *sql.DB }

var _ Store = (*SQLStore)(nil)

func NewSQLStore(dbh *sql.DB) *SQLStore { return &SQLStore{db: dbh} }

const userCols = `id,email,name,role,class_name,password_hash,created_at`

func (s *SQLStore) Insert(ctx context.Context, u User, hash string) error {
	var class sql.NullString
	if u.ClassName != nil {
		class = sql.NullString{String: *u.ClassName, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (`+userCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.Name, string(u.Role), class, hash, u.CreatedAt.UnixMilli())
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("email %q already registered: %w", u.Email, exam.ErrConflict)
	}
	return err
}

func (s *SQLStore) ByID(ctx context.Context, id string) (User, string, error) {
	return s.one(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id)
}

func (s *SQLStore) ByEmail(ctx context.Context, email string) (User, string, error) {
	return s.one(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email)
}

func (s *SQLStore) one(ctx context.Context, q, arg string) (User, string, error) {
	u, hash, err := scanUser(s.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", fmt.Errorf("user %q: %w", arg, exam.ErrNotFound)
	}
	return u, hash, err
}

func (s *SQLStore) List(ctx context.Context, role rbac.Role) ([]User, error) {
	q := `SELECT ` + userCols + ` FROM users`
	var args []any
	if role != "" {
		q += ` WHERE role=$1`
		args = append(args, string(role))
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY email`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, _, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountByRole(ctx context.Context, role rbac.Role) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role=$1`, string(role)).Scan(&n)
	return n, err
}

func (s *SQLStore) SetPassword(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %q: %w", id, exam.ErrNotFound)
	}
	return nil
}

// SetRole first touches every admin row inside the transaction. That takes
// the row locks on postgres and the write lock on sqlite, so concurrent
// demotions see each other's result before counting.
func (s *SQLStore) SetRole(ctx context.Context, id string, role rbac.Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET role=role WHERE role=$1`, string(rbac.RoleAdmin))
	if err != nil {
		return err
	}
	admins, err := res.RowsAffected()
	if err != nil {
		return err
	}

	var current string
	err = tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %q: %w", id, exam.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if rbac.Role(current) == rbac.RoleAdmin && role != rbac.RoleAdmin && admins <= 1 {
		return ErrLastAdmin
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET role=$1 WHERE id=$2`, string(role), id); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface{ Scan(dest ...any) error }

func scanUser(r scanner) (User, string, error) {
	var (
		u       User
		role    string
		class   sql.NullString
		hash    string
		created int64
	)
	if err := r.Scan(&u.ID, &u.Email, &u.Name, &role, &class, &hash, &created); err != nil {
		return User{}, "", err
	}
	u.Role = rbac.Role(role)
	if class.Valid {
		c := class.String
		u.ClassName = &c
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	return u, hash, nil
}
