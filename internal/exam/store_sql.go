package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh}
}

// ---- timestamp codec: instants are stored as unix milliseconds ----

func toUnix(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromUnix(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ---- subjects ----

func (s *SQLStore) PutSubject(ctx context.Context, sub Subject) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO subjects (id,name,description,icon,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description, icon=EXCLUDED.icon`,
		sub.ID, sub.Name, sub.Description, sub.Icon, toUnix(sub.CreatedAt))
	return err
}

func (s *SQLStore) GetSubject(ctx context.Context, id string) (Subject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,description,icon,created_at FROM subjects WHERE id=$1`, id)
	sub, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, fmt.Errorf("subject %q: %w", id, ErrNotFound)
	}
	return sub, err
}

func (s *SQLStore) ListSubjects(ctx context.Context) ([]Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,description,icon,created_at FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Subject{}
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteSubject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Sprintf("subject %q", id))
}

func scanSubject(r rowScanner) (Subject, error) {
	var sub Subject
	var created int64
	if err := r.Scan(&sub.ID, &sub.Name, &sub.Description, &sub.Icon, &created); err != nil {
		return Subject{}, err
	}
	sub.CreatedAt = fromUnix(created)
	return sub, nil
}

// ---- exams ----

const examCols = `id,subject_id,subject_name,title,description,duration_minutes,total_points,target_class,opens_at,closes_at,created_by,created_at`

func (s *SQLStore) PutExam(ctx context.Context, e Exam) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO exams (`+examCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET subject_id=EXCLUDED.subject_id, subject_name=EXCLUDED.subject_name,
		  title=EXCLUDED.title, description=EXCLUDED.description, duration_minutes=EXCLUDED.duration_minutes,
		  total_points=EXCLUDED.total_points, target_class=EXCLUDED.target_class,
		  opens_at=EXCLUDED.opens_at, closes_at=EXCLUDED.closes_at`,
		e.ID, e.SubjectID, e.SubjectName, e.Title, e.Description, e.DurationMinutes, e.TotalPoints,
		toNullString(e.TargetClass), toNullUnix(e.OpensAt), toNullUnix(e.ClosesAt), e.CreatedBy, toUnix(e.CreatedAt))
	return err
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+examCols+` FROM exams WHERE id=$1`, id)
	e, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}
	return e, err
}

// ListExams applies the class scope and the open-at predicates as a conjunction.
func (s *SQLStore) ListExams(ctx context.Context, f ExamFilter) ([]Exam, error) {
	var (
		where []string
		args  []any
	)
	if f.ClassScope != nil {
		args = append(args, *f.ClassScope)
		where = append(where, fmt.Sprintf("(target_class IS NULL OR target_class = $%d)", len(args)))
	}
	if f.OpenAt != nil {
		args = append(args, toUnix(*f.OpenAt))
		where = append(where, fmt.Sprintf("(closes_at IS NULL OR closes_at >= $%d)", len(args)))
	}
	q := `SELECT ` + examCols + ` FROM exams`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteExam removes the exam together with its questions and attempts.
func (s *SQLStore) DeleteExam(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE exam_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE exam_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM exams WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, fmt.Sprintf("exam %q", id)); err != nil {
		return err
	}
	return tx.Commit()
}

func scanExam(r rowScanner) (Exam, error) {
	var (
		e             Exam
		target        sql.NullString
		opens, closes sql.NullInt64
		created       int64
	)
	if err := r.Scan(&e.ID, &e.SubjectID, &e.SubjectName, &e.Title, &e.Description, &e.DurationMinutes,
		&e.TotalPoints, &target, &opens, &closes, &e.CreatedBy, &created); err != nil {
		return Exam{}, err
	}
	e.TargetClass = fromNullString(target)
	e.OpensAt = fromNullUnix(opens)
	e.ClosesAt = fromNullUnix(closes)
	e.CreatedAt = fromUnix(created)
	return e, nil
}

// ---- questions ----

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	opts := q.Options
	if opts == nil {
		opts = []string{}
	}
	oj, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions (id,exam_id,text,kind,options_json,correct_answer,points,display_order)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET text=EXCLUDED.text, kind=EXCLUDED.kind, options_json=EXCLUDED.options_json,
		  correct_answer=EXCLUDED.correct_answer, points=EXCLUDED.points, display_order=EXCLUDED.display_order`,
		q.ID, q.ExamID, q.Text, string(q.Kind), string(oj), toNullString(q.CorrectAnswer), q.Points, q.Order)
	return err
}

func (s *SQLStore) ListQuestions(ctx context.Context, examID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,exam_id,text,kind,options_json,correct_answer,points,display_order
		FROM questions WHERE exam_id=$1 ORDER BY seq`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		var (
			q       Question
			kind    string
			ojson   string
			correct sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &kind, &ojson, &correct, &q.Points, &q.Order); err != nil {
			return nil, err
		}
		if q.Kind, err = ParseQuestionKind(kind); err != nil {
			return nil, fmt.Errorf("question %q: %w", q.ID, err)
		}
		if err := json.Unmarshal([]byte(ojson), &q.Options); err != nil {
			return nil, fmt.Errorf("question %q options: %w", q.ID, err)
		}
		q.CorrectAnswer = fromNullString(correct)
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Sprintf("question %q", id))
}

// ---- attempts ----

const attemptCols = `id,exam_id,student_id,student_name,exam_title,subject_name,answers_json,score,total_points,status,started_at,submitted_at`

// InsertAttempt relies on the attempts_active_pair unique index: of two racing
// starts for the same pair exactly one insert succeeds.
func (s *SQLStore) InsertAttempt(ctx context.Context, a Attempt) error {
	answers := a.Answers
	if answers == nil {
		answers = []Answer{}
	}
	aj, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	var score sql.NullFloat64
	if a.Score != nil {
		score = sql.NullFloat64{Float64: *a.Score, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts (`+attemptCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.ExamID, a.StudentID, a.StudentName, a.ExamTitle, a.SubjectName, string(aj), score,
		a.TotalPoints, string(a.Status), toUnix(a.StartedAt), toNullUnix(a.SubmittedAt))
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("active attempt for exam %q: %w", a.ExamID, ErrConflict)
	}
	return err
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("attempt %q: %w", id, ErrNotFound)
	}
	return a, err
}

func (s *SQLStore) FindAttempt(ctx context.Context, examID, studentID string, status AttemptStatus) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE exam_id=$1 AND student_id=$2 AND status=$3`, examID, studentID, string(status))
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("%s attempt for exam %q: %w", status, examID, ErrNotFound)
	}
	return a, err
}

// GradeAttempt writes answers, score, submitted_at and status in one statement,
// guarded on status so a second submit matches nothing.
func (s *SQLStore) GradeAttempt(ctx context.Context, attemptID string, g Grade) (Attempt, error) {
	answers := g.Answers
	if answers == nil {
		answers = []Answer{}
	}
	aj, err := json.Marshal(answers)
	if err != nil {
		return Attempt{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE attempts
		SET answers_json=$1, score=$2, submitted_at=$3, status=$4
		WHERE id=$5 AND status=$6`,
		string(aj), g.Score, toUnix(g.SubmittedAt), string(StatusGraded), attemptID, string(StatusInProgress))
	if err != nil {
		return Attempt{}, err
	}
	if err := requireAffected(res, fmt.Sprintf("in_progress attempt %q", attemptID)); err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	if opts.ExamID != "" {
		args = append(args, opts.ExamID)
		where = append(where, fmt.Sprintf("exam_id = $%d", len(args)))
	}
	if opts.StudentID != "" {
		args = append(args, opts.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(opts.Statuses) > 0 {
		ph := make([]string, 0, len(opts.Statuses))
		for _, st := range opts.Statuses {
			args = append(args, string(st))
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		where = append(where, "status IN ("+strings.Join(ph, ",")+")")
	}
	q := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(r rowScanner) (Attempt, error) {
	var (
		a         Attempt
		ajson     string
		score     sql.NullFloat64
		status    string
		started   int64
		submitted sql.NullInt64
	)
	if err := r.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StudentName, &a.ExamTitle, &a.SubjectName,
		&ajson, &score, &a.TotalPoints, &status, &started, &submitted); err != nil {
		return Attempt{}, err
	}
	if err := json.Unmarshal([]byte(ajson), &a.Answers); err != nil {
		return Attempt{}, fmt.Errorf("attempt %q answers: %w", a.ID, err)
	}
	st, err := ParseAttemptStatus(status)
	if err != nil {
		return Attempt{}, fmt.Errorf("attempt %q: %w", a.ID, err)
	}
	a.Status = st
	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	a.StartedAt = fromUnix(started)
	a.SubmittedAt = fromNullUnix(submitted)
	return a, nil
}

func (s *SQLStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM exams),
		(SELECT COUNT(*) FROM subjects),
		(SELECT COUNT(*) FROM attempts WHERE status IN ('submitted','graded'))`).
		Scan(&c.Exams, &c.Subjects, &c.Submissions)
	return c, err
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
