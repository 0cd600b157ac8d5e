package users

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type ImportResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"` // email already registered
}

// ParseCSV reads rows with a header naming at least email, name and password.
// Optional columns: role (default student) and class_name.
func ParseCSV(r io.Reader) ([]RegisterInput, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", exam.ErrInvalid, err)
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"email", "name", "password"} {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("%w: missing column: %s", exam.ErrInvalid, k)
		}
	}
	var rows []RegisterInput
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv line %d: %v", exam.ErrInvalid, line, err)
		}
		row := RegisterInput{
			Email:    rec[idx["email"]],
			Name:     rec[idx["name"]],
			Password: rec[idx["password"]],
			Role:     "student",
		}
		if i, ok := idx["role"]; ok && strings.TrimSpace(rec[i]) != "" {
			row.Role = strings.ToLower(strings.TrimSpace(rec[i]))
		}
		if i, ok := idx["class_name"]; ok {
			c := rec[i]
			row.ClassName = &c
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Import creates every row, skipping emails that are already registered.
// The first invalid row aborts the import; rows before it stay created.
func (s *Service) Import(ctx context.Context, rows []RegisterInput) (ImportResult, error) {
	var res ImportResult
	for i, row := range rows {
		_, err := s.Create(ctx, row)
		switch {
		case err == nil:
			res.Inserted++
		case errors.Is(err, exam.ErrConflict):
			res.Skipped++
		default:
			return res, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return res, nil
}
