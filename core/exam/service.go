package exam

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/notification"
)

var (
	// errors
	ErrNotFound             = errors.New("test not found")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrVerificationNotFound = errors.New("verification not found")
	ErrPermission           = errors.New("attempt belongs to another student")
	ErrCompleted            = errors.New("attempt already completed")
)

type (
	Repository interface {
		// tests & questions
		CreateTest(ctx context.Context, tst Test, exec ...core.DBExecutor) (Test, error)
		GetTest(ctx context.Context, id string, exec ...core.DBExecutor) (Test, error)
		UpdateTest(ctx context.Context, tst Test, exec ...core.DBExecutor) (Test, error)
		CreateQuestion(ctx context.Context, qst Question, exec ...core.DBExecutor) (Question, error)
		// QueryQuestions returns a test's questions ordered by Order.
		QueryQuestions(ctx context.Context, testID string, exec ...core.DBExecutor) ([]Question, error)

		// attempts
		CreateAttempt(ctx context.Context, att Attempt, exec ...core.DBExecutor) (Attempt, error)
		GetAttempt(ctx context.Context, id string, exec ...core.DBExecutor) (Attempt, error)
		CountAttempts(ctx context.Context, studentID, testID string, exec ...core.DBExecutor) (int, error)
		// QueryAttempts returns a student's attempts, newest first;
		// testID narrows to one test when non-empty.
		QueryAttempts(ctx context.Context, studentID, testID string, exec ...core.DBExecutor) ([]Attempt, error)
		UpdateAttempt(ctx context.Context, att Attempt, exec ...core.DBExecutor) (Attempt, error)

		// standalone completion verification
		GetVerification(ctx context.Context, attemptID string, exec ...core.DBExecutor) (Verification, error)
		CreateVerification(ctx context.Context, vrf Verification, exec ...core.DBExecutor) (Verification, error)
		UpdateVerification(ctx context.Context, vrf Verification, exec ...core.DBExecutor) (Verification, error)
	}

	// EnrollmentUpdater advances a course enrollment when its final test
	// attempt completes.
	EnrollmentUpdater interface {
		MarkExamResult(ctx context.Context, studentID, courseID string, passed bool) error
	}

	Service interface {
		CreateTest(ctx context.Context, nt NewTest) (Test, error)
		GetTest(ctx context.Context, id string) (Test, error)
		AddQuestion(ctx context.Context, nq NewQuestion) (Question, error)
		Questions(ctx context.Context, testID string) ([]Question, error)

		Start(ctx context.Context, studentID, testID string) (Attempt, error)
		Save(ctx context.Context, studentID, attemptID string, answers Answers) (Attempt, error)
		Submit(ctx context.Context, studentID, attemptID string) (Attempt, error)
		Attempts(ctx context.Context, studentID, testID string) ([]Attempt, error)
		// PassedAttempt returns the student's most recent passed attempt
		// on the test.
		PassedAttempt(ctx context.Context, studentID, testID string) (Attempt, error)
	}

	service struct {
		repo        Repository
		enrollments EnrollmentUpdater
		notifSvc    notification.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, enrollments EnrollmentUpdater, notifSvc notification.Service) Service {
	return &service{repo: repo, enrollments: enrollments, notifSvc: notifSvc}
}

func (svc *service) CreateTest(ctx context.Context, nt NewTest) (Test, error) {
	now := time.Now().UTC()
	return svc.repo.CreateTest(ctx, Test{
		CourseID:     nt.CourseID,
		Title:        nt.Title,
		PassingScore: nt.PassingScore,
		TimeLimit:    nt.TimeLimit,
		MaxAttempts:  nt.MaxAttempts,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *service) GetTest(ctx context.Context, id string) (Test, error) {
	return svc.repo.GetTest(ctx, id)
}

func (svc *service) AddQuestion(ctx context.Context, nq NewQuestion) (Question, error) {
	if _, err := svc.repo.GetTest(ctx, nq.TestID); err != nil {
		return Question{}, errors.Wrap(err, "finding test")
	}
	now := time.Now().UTC()
	return svc.repo.CreateQuestion(ctx, Question{
		TestID:    nq.TestID,
		Type:      nq.Type,
		Text:      nq.Text,
		Options:   nq.Options,
		Order:     nq.Order,
		Weight:    nq.Weight,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) Questions(ctx context.Context, testID string) ([]Question, error) {
	return svc.repo.QueryQuestions(ctx, testID)
}

// Start opens a new attempt unless the student has exhausted the test's
// attempt allowance. Every started attempt counts, completed or not.
func (svc *service) Start(ctx context.Context, studentID, testID string) (Attempt, error) {
	tst, err := svc.repo.GetTest(ctx, testID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "finding test")
	}

	count, err := svc.repo.CountAttempts(ctx, studentID, tst.ID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "counting attempts")
	}
	if tst.MaxAttempts > 0 && count >= tst.MaxAttempts {
		return Attempt{}, core.NewNotEligibleError(
			fmt.Sprintf("maximum attempts (%d) reached", tst.MaxAttempts))
	}

	return svc.repo.CreateAttempt(ctx, Attempt{
		TestID:    tst.ID,
		StudentID: studentID,
		StartedAt: time.Now().UTC(),
		Answers:   Answers{},
	})
}

// Save replaces the attempt's draft answers. Completed attempts are
// immutable.
func (svc *service) Save(ctx context.Context, studentID, attemptID string, answers Answers) (Attempt, error) {
	att, err := svc.ownAttempt(ctx, studentID, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if att.Completed() {
		return Attempt{}, ErrCompleted
	}

	att.Answers = answers
	return svc.repo.UpdateAttempt(ctx, att)
}

// Submit grades and closes the attempt. Submitting an already completed
// attempt returns it unchanged.
func (svc *service) Submit(ctx context.Context, studentID, attemptID string) (Attempt, error) {
	att, err := svc.ownAttempt(ctx, studentID, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if att.Completed() {
		return att, nil
	}

	tst, err := svc.repo.GetTest(ctx, att.TestID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "finding test")
	}
	questions, err := svc.repo.QueryQuestions(ctx, tst.ID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "querying questions")
	}

	score, passed := att.Grade(tst, questions)
	att.Score = score
	att.setPassed(passed)
	att.CompletedAt = time.Now().UTC()

	att, err = svc.repo.UpdateAttempt(ctx, att)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "updating attempt")
	}

	if passed {
		svc.notifSvc.Notify(ctx, att.StudentID, notification.TypeExamPassed,
			"Test passed",
			fmt.Sprintf("You passed the test %q with a score of %.1f%%.", tst.Title, score))
	} else {
		svc.notifSvc.Notify(ctx, att.StudentID, notification.TypeExamFailed,
			"Test failed",
			fmt.Sprintf("You did not pass the test %q. Your score: %.1f%%.", tst.Title, score))
	}

	if tst.CourseID != "" {
		if err = svc.enrollments.MarkExamResult(ctx, att.StudentID, tst.CourseID, passed); err != nil {
			return Attempt{}, errors.Wrap(err, "advancing enrollment")
		}
	}
	return att, nil
}

func (svc *service) Attempts(ctx context.Context, studentID, testID string) ([]Attempt, error) {
	return svc.repo.QueryAttempts(ctx, studentID, testID)
}

func (svc *service) PassedAttempt(ctx context.Context, studentID, testID string) (Attempt, error) {
	attempts, err := svc.repo.QueryAttempts(ctx, studentID, testID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "querying attempts")
	}
	for _, att := range attempts {
		if att.Completed() && att.HasPassed() {
			return att, nil
		}
	}
	return Attempt{}, ErrAttemptNotFound
}

func (svc *service) ownAttempt(ctx context.Context, studentID, attemptID string) (Attempt, error) {
	att, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "finding attempt")
	}
	if att.StudentID != studentID {
		return Attempt{}, ErrPermission
	}
	return att, nil
}
