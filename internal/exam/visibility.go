package exam

import "github.com/mind-engage/mindengage-exams/internal/rbac"

// QuestionView is the serialised shape of a question for a given caller role.
// Only AdminQuestionView has a field for the answer key.
type QuestionView interface {
	questionView()
}

type AdminQuestionView struct {
	ID            string       `json:"id"`
	ExamID        string       `json:"exam_id"`
	Text          string       `json:"question_text"`
	Kind          QuestionKind `json:"question_type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer *string      `json:"correct_answer,omitempty"`
	Points        int          `json:"points"`
	Order         int          `json:"order"`
}

type StudentQuestionView struct {
	ID      string       `json:"id"`
	ExamID  string       `json:"exam_id"`
	Text    string       `json:"question_text"`
	Kind    QuestionKind `json:"question_type"`
	Options []string     `json:"options,omitempty"`
	Points  int          `json:"points"`
	Order   int          `json:"order"`
}

func (AdminQuestionView) questionView()   {}
func (StudentQuestionView) questionView() {}

// Redact builds the view of q for role. Any role other than admin gets the
// student view.
func Redact(q Question, role rbac.Role) QuestionView {
	q = cloneQuestion(q)
	if role == rbac.RoleAdmin {
		return AdminQuestionView{
			ID:            q.ID,
			ExamID:        q.ExamID,
			Text:          q.Text,
			Kind:          q.Kind,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Points:        q.Points,
			Order:         q.Order,
		}
	}
	return StudentQuestionView{
		ID:      q.ID,
		ExamID:  q.ExamID,
		Text:    q.Text,
		Kind:    q.Kind,
		Options: q.Options,
		Points:  q.Points,
		Order:   q.Order,
	}
}
