package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/course"
	"github.com/unicover/lms/core/exam"
	"github.com/unicover/lms/core/notification"
	"github.com/unicover/lms/core/user"
)

// Course completion sign-off: a student who finished all required
// lessons (and passed the final test, when the course has one) confirms
// completion with a one-time code; the confirmed completion produces the
// PDEK protocol.

// CanRequestSignoff reports whether the enrollment qualifies for the
// completion code. The unmet condition comes back as a NotEligibleError.
func (svc *service) CanRequestSignoff(ctx context.Context, enrollmentID string) error {
	enr, err := svc.courseRepo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return errors.Wrap(err, "finding enrollment")
	}
	crs, err := svc.courseRepo.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return errors.Wrap(err, "finding course")
	}

	done, err := svc.requiredLessonsDone(ctx, enr)
	if err != nil {
		return err
	}
	if !done {
		return core.NewNotEligibleError("all required lessons must be completed")
	}

	if crs.HasFinalTest() {
		if _, err = svc.passedAttempt(ctx, enr.StudentID, crs.FinalTestID); err != nil {
			return core.NewNotEligibleError("the final test must be passed")
		}
	}
	return nil
}

// RequestCompletionCode sends the student a completion code for an
// eligible enrollment. A still-valid previously issued code is resent
// rather than replaced.
func (svc *service) RequestCompletionCode(ctx context.Context, studentID, enrollmentID string) (CodeDelivery, error) {
	enr, err := svc.ownEnrollment(ctx, studentID, enrollmentID)
	if err != nil {
		return CodeDelivery{}, err
	}
	if err = svc.CanRequestSignoff(ctx, enr.ID); err != nil {
		return CodeDelivery{}, err
	}

	now := time.Now().UTC()
	vrf, err := svc.courseRepo.GetVerification(ctx, enr.ID)
	if err != nil {
		if errors.Cause(err) != course.ErrVerificationNotFound {
			return CodeDelivery{}, errors.Wrap(err, "finding verification")
		}
		vrf, err = svc.courseRepo.CreateVerification(ctx, course.Verification{
			EnrollmentID: enr.ID,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return CodeDelivery{}, errors.Wrap(err, "creating verification")
		}
	}

	if !vrf.CodeActive(now) {
		vrf.OTPCode = core.GenerateOTP()
		vrf.OTPExpiresAt = now.Add(svc.conf.OTPTimeout)
		vrf.UpdatedAt = now
		if vrf, err = svc.courseRepo.UpdateVerification(ctx, vrf); err != nil {
			return CodeDelivery{}, errors.Wrap(err, "updating verification")
		}
	}

	student, err := svc.userRepo.GetUser(ctx, user.GetFilter{ID: studentID})
	if err != nil {
		return CodeDelivery{}, errors.Wrap(err, "finding student")
	}
	return svc.deliverCode(student.Phone, vrf.OTPCode, core.SMSPurposeCourseCompletion, vrf.OTPExpiresAt), nil
}

// ConfirmCompletion verifies the completion code and creates the PDEK
// protocol. Confirming an already verified enrollment again returns the
// existing protocol.
func (svc *service) ConfirmCompletion(ctx context.Context, studentID, enrollmentID, code string) (Protocol, error) {
	enr, err := svc.ownEnrollment(ctx, studentID, enrollmentID)
	if err != nil {
		return Protocol{}, err
	}

	vrf, err := svc.courseRepo.GetVerification(ctx, enr.ID)
	if err != nil {
		return Protocol{}, errors.Wrap(err, "finding verification")
	}

	if !vrf.Verified {
		if !core.OTPValid(code, vrf.OTPCode, vrf.OTPExpiresAt) {
			return Protocol{}, core.ErrInvalidOTP
		}
		now := time.Now().UTC()
		vrf.Verified = true
		vrf.VerifiedAt = now
		vrf.UpdatedAt = now
		if _, err = svc.courseRepo.UpdateVerification(ctx, vrf); err != nil {
			return Protocol{}, errors.Wrap(err, "updating verification")
		}
	}

	if prt, err := svc.repo.GetProtocolByEnrollment(ctx, enr.ID); err == nil {
		return prt, nil
	} else if errors.Cause(err) != ErrNotFound {
		return Protocol{}, errors.Wrap(err, "finding protocol")
	}
	return svc.createFromEnrollment(ctx, enr)
}

// RequestAttemptCompletionCode is the standalone-test branch of the
// completion code: the verification record hangs off the passed attempt
// instead of an enrollment.
func (svc *service) RequestAttemptCompletionCode(ctx context.Context, studentID, attemptID string) (CodeDelivery, error) {
	att, err := svc.ownPassedAttempt(ctx, studentID, attemptID)
	if err != nil {
		return CodeDelivery{}, err
	}

	now := time.Now().UTC()
	vrf, err := svc.examRepo.GetVerification(ctx, att.ID)
	if err != nil {
		if errors.Cause(err) != exam.ErrVerificationNotFound {
			return CodeDelivery{}, errors.Wrap(err, "finding verification")
		}
		vrf, err = svc.examRepo.CreateVerification(ctx, exam.Verification{
			AttemptID: att.ID,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return CodeDelivery{}, errors.Wrap(err, "creating verification")
		}
	}

	if !vrf.CodeActive(now) {
		vrf.OTPCode = core.GenerateOTP()
		vrf.OTPExpiresAt = now.Add(svc.conf.OTPTimeout)
		vrf.UpdatedAt = now
		if vrf, err = svc.examRepo.UpdateVerification(ctx, vrf); err != nil {
			return CodeDelivery{}, errors.Wrap(err, "updating verification")
		}
	}

	student, err := svc.userRepo.GetUser(ctx, user.GetFilter{ID: studentID})
	if err != nil {
		return CodeDelivery{}, errors.Wrap(err, "finding student")
	}
	return svc.deliverCode(student.Phone, vrf.OTPCode, core.SMSPurposeCourseCompletion, vrf.OTPExpiresAt), nil
}

func (svc *service) ConfirmAttemptCompletion(ctx context.Context, studentID, attemptID, code string) (Protocol, error) {
	att, err := svc.ownPassedAttempt(ctx, studentID, attemptID)
	if err != nil {
		return Protocol{}, err
	}

	vrf, err := svc.examRepo.GetVerification(ctx, att.ID)
	if err != nil {
		return Protocol{}, errors.Wrap(err, "finding verification")
	}

	if !vrf.Verified {
		if !core.OTPValid(code, vrf.OTPCode, vrf.OTPExpiresAt) {
			return Protocol{}, core.ErrInvalidOTP
		}
		now := time.Now().UTC()
		vrf.Verified = true
		vrf.VerifiedAt = now
		vrf.UpdatedAt = now
		if _, err = svc.examRepo.UpdateVerification(ctx, vrf); err != nil {
			return Protocol{}, errors.Wrap(err, "updating verification")
		}
	}

	if prt, err := svc.repo.GetProtocolByAttempt(ctx, att.ID); err == nil {
		return prt, nil
	} else if errors.Cause(err) != ErrNotFound {
		return Protocol{}, errors.Wrap(err, "finding protocol")
	}
	return svc.createFromAttempt(ctx, att)
}

// createFromEnrollment builds the protocol for a verified course
// completion: resolve the exam outcome, assign a unique number, snapshot
// the PDEK roster into signature slots, and park the enrollment until the
// commission signs.
func (svc *service) createFromEnrollment(ctx context.Context, enr course.Enrollment) (Protocol, error) {
	crs, err := svc.courseRepo.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return Protocol{}, errors.Wrap(err, "finding course")
	}

	prt := Protocol{
		StudentID:    enr.StudentID,
		CourseID:     crs.ID,
		EnrollmentID: enr.ID,
		PassingScore: float64(crs.PassingScore),
	}
	if crs.HasFinalTest() {
		att, err := svc.passedAttempt(ctx, enr.StudentID, crs.FinalTestID)
		if err != nil {
			return Protocol{}, core.NewNotEligibleError("the final test must be passed")
		}
		prt.TestID = crs.FinalTestID
		prt.AttemptID = att.ID
		prt.ExamDate = att.CompletedAt
		prt.Score = att.Score
	} else {
		// no final test: completion itself is the qualifying event
		prt.ExamDate = time.Now().UTC()
		prt.Score = 100
	}

	prt, err = svc.createProtocol(ctx, prt)
	if err != nil {
		return Protocol{}, err
	}

	enr.Status = course.EnrollmentPendingPDEK
	if _, err = svc.courseRepo.UpdateEnrollment(ctx, enr); err != nil {
		return Protocol{}, errors.Wrap(err, "updating enrollment")
	}
	return prt, nil
}

func (svc *service) createFromAttempt(ctx context.Context, att exam.Attempt) (Protocol, error) {
	tst, err := svc.examRepo.GetTest(ctx, att.TestID)
	if err != nil {
		return Protocol{}, errors.Wrap(err, "finding test")
	}

	return svc.createProtocol(ctx, Protocol{
		StudentID:    att.StudentID,
		CourseID:     tst.CourseID,
		TestID:       tst.ID,
		AttemptID:    att.ID,
		ExamDate:     att.CompletedAt,
		Score:        att.Score,
		PassingScore: float64(tst.PassingScore),
	})
}

func (svc *service) createProtocol(ctx context.Context, prt Protocol) (Protocol, error) {
	now := time.Now().UTC()

	number, err := svc.uniqueNumber(ctx, prt.ExamDate.Year())
	if err != nil {
		return Protocol{}, err
	}
	prt.Number = number
	prt.Result = ResultPassed
	prt.Status = StatusPendingPDEK
	prt.CreatedAt = now
	prt.UpdatedAt = now

	if prt, err = svc.repo.CreateProtocol(ctx, prt); err != nil {
		return Protocol{}, errors.Wrap(err, "creating protocol")
	}

	reviewers, err := svc.userRepo.QueryReviewers(ctx)
	if err != nil {
		return Protocol{}, errors.Wrap(err, "querying reviewers")
	}
	for _, rvw := range reviewers {
		if _, err = svc.repo.CreateSignature(ctx, Signature{
			ProtocolID: prt.ID,
			SignerID:   rvw.ID,
			Role:       signatureRole(rvw.Role),
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return Protocol{}, errors.Wrap(err, "creating signature")
		}

		svc.notifSvc.Notify(ctx, rvw.ID, notification.TypeProtocolCreated,
			"Protocol awaiting signature",
			fmt.Sprintf("Protocol %s is awaiting your signature.", prt.Number))
	}
	return prt, nil
}

func (svc *service) requiredLessonsDone(ctx context.Context, enr course.Enrollment) (bool, error) {
	lessons, err := svc.courseRepo.QueryLessons(ctx, enr.CourseID)
	if err != nil {
		return false, errors.Wrap(err, "querying lessons")
	}
	progress, err := svc.courseRepo.QueryLessonProgress(ctx, enr.ID)
	if err != nil {
		return false, errors.Wrap(err, "querying lesson progress")
	}

	done := make(map[string]bool, len(progress))
	for _, p := range progress {
		if p.Completed {
			done[p.LessonID] = true
		}
	}
	for _, lsn := range lessons {
		if lsn.Required && !done[lsn.ID] {
			return false, nil
		}
	}
	return true, nil
}

// passedAttempt returns the student's most recent passed attempt on the test.
func (svc *service) passedAttempt(ctx context.Context, studentID, testID string) (exam.Attempt, error) {
	attempts, err := svc.examRepo.QueryAttempts(ctx, studentID, testID)
	if err != nil {
		return exam.Attempt{}, errors.Wrap(err, "querying attempts")
	}
	for _, att := range attempts {
		if att.Completed() && att.HasPassed() {
			return att, nil
		}
	}
	return exam.Attempt{}, exam.ErrAttemptNotFound
}

func (svc *service) ownEnrollment(ctx context.Context, studentID, enrollmentID string) (course.Enrollment, error) {
	enr, err := svc.courseRepo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "finding enrollment")
	}
	if enr.StudentID != studentID {
		return course.Enrollment{}, course.ErrNotEnrolled
	}
	return enr, nil
}

func (svc *service) ownPassedAttempt(ctx context.Context, studentID, attemptID string) (exam.Attempt, error) {
	att, err := svc.examRepo.GetAttempt(ctx, attemptID)
	if err != nil {
		return exam.Attempt{}, errors.Wrap(err, "finding attempt")
	}
	if att.StudentID != studentID {
		return exam.Attempt{}, exam.ErrPermission
	}
	if !att.Completed() || !att.HasPassed() {
		return exam.Attempt{}, core.NewNotEligibleError("the test must be passed")
	}
	return att, nil
}
