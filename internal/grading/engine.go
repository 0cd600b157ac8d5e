package grading

// Kinds understood by the default grader. They mirror exam.QuestionKind values.
const (
	KindMultipleChoice = "multiple_choice"
	KindEssay          = "essay"
)

// Q is a minimal view of a question needed for grading.
type Q struct {
	ID        string
	Kind      string
	Points    float64
	AnswerKey string // authoritative only for multiple_choice
}

// Response is one submitted (question id, answer text) pair.
type Response struct {
	QuestionID string
	Text       string
}

// Result is the outcome of grading a single question response.
type Result struct {
	AutoPoints  float64 // points awarded automatically
	MaxPoints   float64 // the question's max points
	NeedsManual bool    // true if the response cannot be auto-scored
}

// Strategy grades a single question.
type Strategy interface {
	Grade(q Q, response string) Result
}

// Summary aggregates a whole answer sheet.
type Summary struct {
	Score       float64 `json:"score"`
	Graded      int     `json:"graded"`       // responses matched to a known question
	Correct     int     `json:"correct"`      // responses that earned points
	NeedsManual int     `json:"needs_manual"` // e.g. essays
	Unknown     int     `json:"unknown"`      // responses for question ids not in the bank
}

type Grader struct {
	strategies map[string]Strategy
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader() *Grader {
	return &Grader{
		strategies: map[string]Strategy{
			KindMultipleChoice: multipleChoiceStrategy{},
			KindEssay:          essayStrategy{},
		},
	}
}

func (g *Grader) Grade(q Q, response string) Result {
	s, ok := g.strategies[q.Kind]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true}
	}
	return s.Grade(q, response)
}

// Score computes the total for a set of responses against a question bank.
// Unknown question ids and essays contribute zero; unanswered questions are
// simply absent. Every response is graded, so a question answered twice
// contributes once per matching response.
func (g *Grader) Score(responses []Response, bank []Q) Summary {
	byID := make(map[string]Q, len(bank))
	for _, q := range bank {
		byID[q.ID] = q
	}

	var sum Summary
	for _, r := range responses {
		q, ok := byID[r.QuestionID]
		if !ok {
			sum.Unknown++
			continue
		}
		res := g.Grade(q, r.Text)
		sum.Graded++
		if res.NeedsManual {
			sum.NeedsManual++
		}
		if res.AutoPoints > 0 {
			sum.Correct++
			sum.Score += res.AutoPoints
		}
	}
	return sum
}

// --- Strategies ---

// multipleChoiceStrategy compares the chosen option index verbatim; no trimming
// or case folding is applied.
type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(q Q, response string) Result {
	res := Result{MaxPoints: q.Points}
	if q.AnswerKey != "" && response == q.AnswerKey {
		res.AutoPoints = q.Points
	}
	return res
}

type essayStrategy struct{}

func (essayStrategy) Grade(q Q, _ string) Result {
	return Result{MaxPoints: q.Points, NeedsManual: true}
}
