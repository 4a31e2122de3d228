package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/exam"
)

type examRepository struct {
	db *DB
}

var _ exam.Repository = (*examRepository)(nil)

func NewExamRepository(db *DB) *examRepository {
	return &examRepository{db: db}
}

func (repo *examRepository) CreateTest(ctx context.Context, tst exam.Test, exec ...core.DBExecutor) (exam.Test, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tst.ID = uuid.New().String()
	repo.db.tests[tst.ID] = &tst
	return tst, nil
}

func (repo *examRepository) GetTest(ctx context.Context, id string, exec ...core.DBExecutor) (exam.Test, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if tst, ok := repo.db.tests[id]; ok {
		return *tst, nil
	}
	return exam.Test{}, exam.ErrNotFound
}

func (repo *examRepository) UpdateTest(ctx context.Context, tst exam.Test, exec ...core.DBExecutor) (exam.Test, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.tests[tst.ID]; !ok {
		return exam.Test{}, exam.ErrNotFound
	}
	repo.db.tests[tst.ID] = &tst
	return tst, nil
}

func (repo *examRepository) CreateQuestion(ctx context.Context, qst exam.Question, exec ...core.DBExecutor) (exam.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	qst.ID = uuid.New().String()
	repo.db.questions[qst.ID] = &qst
	return qst, nil
}

func (repo *examRepository) QueryQuestions(ctx context.Context, testID string, exec ...core.DBExecutor) ([]exam.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var questions []exam.Question
	for _, qst := range repo.db.questions {
		if qst.TestID == testID {
			questions = append(questions, *qst)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	return questions, nil
}

func (repo *examRepository) CreateAttempt(ctx context.Context, att exam.Attempt, exec ...core.DBExecutor) (exam.Attempt, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	att.ID = uuid.New().String()
	repo.db.attempts[att.ID] = &att
	return att, nil
}

func (repo *examRepository) GetAttempt(ctx context.Context, id string, exec ...core.DBExecutor) (exam.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if att, ok := repo.db.attempts[id]; ok {
		return *att, nil
	}
	return exam.Attempt{}, exam.ErrAttemptNotFound
}

func (repo *examRepository) CountAttempts(ctx context.Context, studentID, testID string, exec ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, att := range repo.db.attempts {
		if att.StudentID == studentID && att.TestID == testID {
			count++
		}
	}
	return count, nil
}

func (repo *examRepository) QueryAttempts(ctx context.Context, studentID, testID string, exec ...core.DBExecutor) ([]exam.Attempt, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var attempts []exam.Attempt
	for _, att := range repo.db.attempts {
		if att.StudentID != studentID {
			continue
		}
		if testID != "" && att.TestID != testID {
			continue
		}
		attempts = append(attempts, *att)
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].StartedAt.After(attempts[j].StartedAt) })
	return attempts, nil
}

func (repo *examRepository) UpdateAttempt(ctx context.Context, att exam.Attempt, exec ...core.DBExecutor) (exam.Attempt, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.attempts[att.ID]; !ok {
		return exam.Attempt{}, exam.ErrAttemptNotFound
	}
	repo.db.attempts[att.ID] = &att
	return att, nil
}

func (repo *examRepository) GetVerification(ctx context.Context, attemptID string, exec ...core.DBExecutor) (exam.Verification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if vrf, ok := repo.db.attemptVerifications[attemptID]; ok {
		return *vrf, nil
	}
	return exam.Verification{}, exam.ErrVerificationNotFound
}

func (repo *examRepository) CreateVerification(ctx context.Context, vrf exam.Verification, exec ...core.DBExecutor) (exam.Verification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	vrf.ID = uuid.New().String()
	repo.db.attemptVerifications[vrf.AttemptID] = &vrf
	return vrf, nil
}

func (repo *examRepository) UpdateVerification(ctx context.Context, vrf exam.Verification, exec ...core.DBExecutor) (exam.Verification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.attemptVerifications[vrf.AttemptID]; !ok {
		return exam.Verification{}, exam.ErrVerificationNotFound
	}
	repo.db.attemptVerifications[vrf.AttemptID] = &vrf
	return vrf, nil
}
