package exam

import (
	"context"
	"fmt"
	"math"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type AdminDashboard struct {
	Counts
	Students int `json:"total_students"`
}

type StudentDashboard struct {
	Completed    int     `json:"completed_exams"`
	InProgress   int     `json:"in_progress"`
	AverageScore float64 `json:"average_score"`
}

func (l *Lifecycle) AdminDashboard(ctx context.Context, caller Caller) (AdminDashboard, error) {
	if caller.Role != rbac.RoleAdmin {
		return AdminDashboard{}, fmt.Errorf("admin dashboard: %w", ErrForbidden)
	}
	c, err := l.store.Counts(ctx)
	if err != nil {
		return AdminDashboard{}, err
	}
	n, err := l.students.CountStudents(ctx)
	if err != nil {
		return AdminDashboard{}, err
	}
	return AdminDashboard{Counts: c, Students: n}, nil
}

// StudentDashboard averages score/total_points as a percentage over graded
// attempts, rounded to two decimals.
func (l *Lifecycle) StudentDashboard(ctx context.Context, caller Caller) (StudentDashboard, error) {
	if caller.Role != rbac.RoleStudent {
		return StudentDashboard{}, fmt.Errorf("student dashboard: %w", ErrForbidden)
	}
	attempts, err := l.store.ListAttempts(ctx, AttemptListOpts{StudentID: caller.ID})
	if err != nil {
		return StudentDashboard{}, err
	}
	var d StudentDashboard
	var sum float64
	var graded int
	for _, a := range attempts {
		switch {
		case a.Status.Completed():
			d.Completed++
		case a.Status == StatusInProgress:
			d.InProgress++
		}
		if a.Status == StatusGraded && a.Score != nil && a.TotalPoints > 0 {
			sum += *a.Score / float64(a.TotalPoints) * 100
			graded++
		}
	}
	if graded > 0 {
		d.AverageScore = math.Round(sum/float64(graded)*100) / 100
	}
	return d, nil
}
