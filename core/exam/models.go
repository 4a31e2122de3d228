package exam

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
)

// QuestionType is the closed set of question kinds.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionYesNo          QuestionType = "yes_no"
	QuestionMatching       QuestionType = "matching"
	QuestionOrdering       QuestionType = "ordering"
	QuestionShortAnswer    QuestionType = "short_answer"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultipleChoice, QuestionYesNo,
		QuestionMatching, QuestionOrdering, QuestionShortAnswer:
		return true
	}
	return false
}

type Test struct {
	ID           string    `json:"id"`
	CourseID     string    `json:"course_id,omitempty"` // empty for standalone tests
	Title        string    `json:"title"`
	PassingScore int       `json:"passing_score"`
	TimeLimit    int       `json:"time_limit,omitempty"` // minutes, 0 = unlimited
	MaxAttempts  int       `json:"max_attempts"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Option is one answer choice of a question. Stored as JSON alongside the
// question; IsCorrect never leaves the backend.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

type Question struct {
	ID        string       `json:"id"`
	TestID    string       `json:"test_id"`
	Type      QuestionType `json:"type"`
	Text      string       `json:"text"`
	Options   []Option     `json:"options"`
	Order     int          `json:"order"`
	Weight    int          `json:"weight"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CorrectAnswers returns the IDs of the options flagged correct, in
// option order.
func (q *Question) CorrectAnswers() []string {
	var ids []string
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// Answers maps question ID to the submitted answer: a string for most
// question types, a list for multiple_choice. Values decoded from JSON
// arrive as string or []interface{}.
type Answers map[string]interface{}

type Attempt struct {
	ID          string    `json:"id"`
	TestID      string    `json:"test_id"`
	StudentID   string    `json:"student_id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Score       float64   `json:"score"`
	Passed      *bool     `json:"passed,omitempty"`
	Answers     Answers   `json:"answers"`
	IPAddress   string    `json:"-"`
	UserAgent   string    `json:"-"`
}

func (a *Attempt) Completed() bool { return !a.CompletedAt.IsZero() }

func (a *Attempt) HasPassed() bool { return a.Passed != nil && *a.Passed }

func (a *Attempt) setPassed(passed bool) { a.Passed = &passed }

// Verification is the one-time-code record gating standalone test
// completion; one row per attempt, created lazily on the first code
// request.
type Verification struct {
	ID           string    `json:"id"`
	AttemptID    string    `json:"attempt_id"`
	OTPCode      string    `json:"-"`
	OTPExpiresAt time.Time `json:"otp_expires_at"`
	Verified     bool      `json:"verified"`
	VerifiedAt   time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (v *Verification) CodeActive(now time.Time) bool {
	return v.OTPCode != "" && now.Before(v.OTPExpiresAt)
}

// Grade scores the attempt against the test's questions: the share of
// question weight answered correctly, as a percentage. Unanswered
// questions count against the score.
func (a *Attempt) Grade(test Test, questions []Question) (score float64, passed bool) {
	var totalWeight, correctWeight int
	for i := range questions {
		q := &questions[i]
		totalWeight += q.Weight

		ans, ok := a.Answers[q.ID]
		if !ok {
			continue
		}
		if answerCorrect(q, ans) {
			correctWeight += q.Weight
		}
	}
	if totalWeight == 0 {
		return 0, false
	}
	score = float64(correctWeight) / float64(totalWeight) * 100
	return score, score >= float64(test.PassingScore)
}

func answerCorrect(q *Question, ans interface{}) bool {
	correct := q.CorrectAnswers()

	switch q.Type {
	case QuestionSingleChoice, QuestionYesNo:
		given := stringify(ans)
		for _, c := range correct {
			if given == c {
				return true
			}
		}
	case QuestionMultipleChoice:
		given := stringSet(ans)
		if len(given) != len(correct) {
			return false
		}
		for _, c := range correct {
			if !given[c] {
				return false
			}
		}
		return true
	case QuestionMatching, QuestionOrdering, QuestionShortAnswer:
		if len(correct) == 0 {
			return false
		}
		return stringify(ans) == correct[0]
	}
	return false
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64: // JSON numbers
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// stringSet accepts a single value or a JSON-decoded list and returns the
// set of its string forms.
func stringSet(v interface{}) map[string]bool {
	set := make(map[string]bool)
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			set[stringify(e)] = true
		}
	case []string:
		for _, e := range t {
			set[e] = true
		}
	default:
		set[stringify(v)] = true
	}
	return set
}

// NewTest contains information needed to create a new Test.
type NewTest struct {
	CourseID     string `json:"course_id"`
	Title        string `json:"title" validate:"required"`
	PassingScore int    `json:"passing_score" validate:"gte=0,lte=100"`
	TimeLimit    int    `json:"time_limit" validate:"gte=0"`
	MaxAttempts  int    `json:"max_attempts" validate:"gte=0"`
}

func (nt *NewTest) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	if nt.PassingScore == 0 {
		nt.PassingScore = 80
	}
	if nt.MaxAttempts == 0 {
		nt.MaxAttempts = 3
	}
	return validate.Struct(nt)
}

// NewQuestion contains information needed to add a Question to a Test.
type NewQuestion struct {
	TestID  string       `json:"test_id" validate:"required"`
	Type    QuestionType `json:"type" validate:"required"`
	Text    string       `json:"text" validate:"required"`
	Options []Option     `json:"options"`
	Order   int          `json:"order" validate:"gte=0"`
	Weight  int          `json:"weight" validate:"gte=0"`
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.Text = core.CleanString(nq.Text)
	if nq.Weight == 0 {
		nq.Weight = 1
	}
	if err := validate.Struct(nq); err != nil {
		return err
	}
	if !nq.Type.Valid() {
		return core.NewValidationError(errors.New("unknown question type"),
			core.FieldError{Field: "type", Error: "unknown question type"})
	}
	return nil
}
