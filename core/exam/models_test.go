package exam

import (
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }

func TestAttemptScore(t *testing.T) {
	tst := Test{ID: "t1", PassingScore: 80}
	questions := []Question{
		{
			ID: "q1", Type: QuestionSingleChoice, Weight: 1,
			Options: []Option{{ID: "a"}, {ID: "b", IsCorrect: true}},
		},
		{
			ID: "q2", Type: QuestionMultipleChoice, Weight: 2,
			Options: []Option{{ID: "a", IsCorrect: true}, {ID: "b", IsCorrect: true}, {ID: "c"}},
		},
		{
			ID: "q3", Type: QuestionYesNo, Weight: 1,
			Options: []Option{{ID: "yes", IsCorrect: true}, {ID: "no"}},
		},
		{
			ID: "q4", Type: QuestionShortAnswer, Weight: 1,
			Options: []Option{{ID: "42", IsCorrect: true}},
		},
	}

	tests := []struct {
		name       string
		answers    Answers
		wantScore  float64
		wantPassed bool
	}{
		{
			"all correct",
			Answers{"q1": "b", "q2": []interface{}{"a", "b"}, "q3": "yes", "q4": "42"},
			100, true,
		},
		{
			"unanswered counts against",
			Answers{"q1": "b", "q2": []interface{}{"a", "b"}, "q3": "yes"},
			80, true,
		},
		{
			"partial multiple choice is wrong",
			Answers{"q1": "b", "q2": []interface{}{"a"}, "q3": "yes", "q4": "42"},
			60, false,
		},
		{
			"extra multiple choice selection is wrong",
			Answers{"q1": "b", "q2": []interface{}{"a", "b", "c"}, "q3": "yes", "q4": "42"},
			60, false,
		},
		{
			"multiple choice selection order irrelevant",
			Answers{"q1": "b", "q2": []interface{}{"b", "a"}, "q3": "yes", "q4": "42"},
			100, true,
		},
		{
			"no answers",
			Answers{},
			0, false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			att := Attempt{Answers: tc.answers}
			score, passed := att.Grade(tst, questions)
			if score != tc.wantScore {
				t.Errorf("score = %v; expected %v", score, tc.wantScore)
			}
			if passed != tc.wantPassed {
				t.Errorf("passed = %v; expected %v", passed, tc.wantPassed)
			}
		})
	}
}

func TestAttemptScoreNoQuestions(t *testing.T) {
	att := Attempt{Answers: Answers{"q1": "a"}}
	score, passed := att.Grade(Test{PassingScore: 0}, nil)
	if score != 0 || passed {
		t.Errorf("expected 0/false on empty test; got %v/%v", score, passed)
	}
}

func TestAttemptScoreWeights(t *testing.T) {
	// one heavy question dominates the score
	tst := Test{PassingScore: 70}
	questions := []Question{
		{ID: "q1", Type: QuestionSingleChoice, Weight: 9, Options: []Option{{ID: "a", IsCorrect: true}}},
		{ID: "q2", Type: QuestionSingleChoice, Weight: 1, Options: []Option{{ID: "a", IsCorrect: true}}},
	}
	att := Attempt{Answers: Answers{"q1": "a"}}
	score, passed := att.Grade(tst, questions)
	if score != 90 || !passed {
		t.Errorf("expected 90/true; got %v/%v", score, passed)
	}
}

func TestVerificationCodeActive(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name string
		vrf  Verification
		want bool
	}{
		{"active", Verification{OTPCode: "123456", OTPExpiresAt: now.Add(time.Minute)}, true},
		{"expired", Verification{OTPCode: "123456", OTPExpiresAt: now.Add(-time.Minute)}, false},
		{"never issued", Verification{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.vrf.CodeActive(now); got != tc.want {
				t.Errorf("CodeActive() = %v; expected %v", got, tc.want)
			}
		})
	}
}

func TestAttemptCompleted(t *testing.T) {
	att := Attempt{}
	if att.Completed() {
		t.Error("fresh attempt should not be completed")
	}
	att.CompletedAt = time.Now()
	if !att.Completed() {
		t.Error("attempt with CompletedAt should be completed")
	}
	att.Passed = boolPtr(true)
	if !att.HasPassed() {
		t.Error("expected HasPassed")
	}
}
