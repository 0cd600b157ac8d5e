package grading

import "testing"

func sampleBank() []Q {
	return []Q{
		{ID: "q1", Kind: KindMultipleChoice, Points: 10, AnswerKey: "2"},
		{ID: "q2", Kind: KindEssay, Points: 20},
	}
}

func TestScore(t *testing.T) {
	g := NewDefaultGrader()
	cases := []struct {
		name      string
		responses []Response
		want      float64
	}{
		{"correct mc plus essay", []Response{{"q1", "2"}, {"q2", "anything"}}, 10},
		{"wrong mc plus essay", []Response{{"q1", "1"}, {"q2", "x"}}, 0},
		{"unknown id ignored", []Response{{"q1", "2"}, {"qUnknown", "x"}}, 10},
		{"no answers", nil, 0},
		{"no trimming", []Response{{"q1", " 2"}}, 0},
		{"repeated correct answer counts each time", []Response{{"q1", "2"}, {"q1", "2"}}, 20},
		{"wrong then right", []Response{{"q1", "1"}, {"q1", "2"}}, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := g.Score(tc.responses, sampleBank())
			if got.Score != tc.want {
				t.Fatalf("score = %v, want %v", got.Score, tc.want)
			}
		})
	}
}

func TestScore_SummaryCounts(t *testing.T) {
	g := NewDefaultGrader()
	got := g.Score([]Response{{"q1", "2"}, {"q2", "essay"}, {"nope", "x"}}, sampleBank())
	if got.Graded != 2 || got.Correct != 1 || got.NeedsManual != 1 || got.Unknown != 1 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestScore_Deterministic(t *testing.T) {
	g := NewDefaultGrader()
	resp := []Response{{"q1", "2"}, {"q2", "essay"}}
	a := g.Score(resp, sampleBank())
	b := g.Score(resp, sampleBank())
	if a != b {
		t.Fatalf("score not deterministic: %+v vs %+v", a, b)
	}
}

func TestGrade_UnknownKindNeedsManual(t *testing.T) {
	g := NewDefaultGrader()
	res := g.Grade(Q{ID: "x", Kind: "matching", Points: 5, AnswerKey: "a"}, "a")
	if !res.NeedsManual || res.AutoPoints != 0 {
		t.Fatalf("unexpected result for unknown kind: %+v", res)
	}
}

func TestMultipleChoice_EmptyKeyNeverMatches(t *testing.T) {
	res := multipleChoiceStrategy{}.Grade(Q{Kind: KindMultipleChoice, Points: 10}, "")
	if res.AutoPoints != 0 {
		t.Fatalf("empty key must not award points: %+v", res)
	}
}
