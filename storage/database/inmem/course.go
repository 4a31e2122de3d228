package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs.ID = uuid.New().String()
	repo.db.courses[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var courses []course.Course
	for _, crs := range repo.db.courses {
		if filter != nil {
			if filter.Search != "" && !strings.Contains(strings.ToLower(crs.Title), strings.ToLower(filter.Search)) {
				continue
			}
			if filter.Status != "" && crs.Status != filter.Status {
				continue
			}
			if filter.CategoryID != "" && crs.CategoryID != filter.CategoryID {
				continue
			}
		}
		courses = append(courses, *crs)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[crs.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.db.courses[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) CreateModule(ctx context.Context, mod course.Module, exec ...core.DBExecutor) (course.Module, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	mod.ID = uuid.New().String()
	repo.db.modules[mod.ID] = &mod
	return mod, nil
}

func (repo *courseRepository) GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (course.Module, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if mod, ok := repo.db.modules[id]; ok {
		return *mod, nil
	}
	return course.Module{}, course.ErrNotFound
}

func (repo *courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	lsn.ID = uuid.New().String()
	repo.db.lessons[lsn.ID] = &lsn
	return lsn, nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if lsn, ok := repo.db.lessons[id]; ok {
		return *lsn, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	moduleOrder := make(map[string]int)
	for _, mod := range repo.db.modules {
		if mod.CourseID == courseID {
			moduleOrder[mod.ID] = mod.Order
		}
	}

	var lessons []course.Lesson
	for _, lsn := range repo.db.lessons {
		if _, ok := moduleOrder[lsn.ModuleID]; ok {
			lessons = append(lessons, *lsn)
		}
	}
	sort.Slice(lessons, func(i, j int) bool {
		mi, mj := moduleOrder[lessons[i].ModuleID], moduleOrder[lessons[j].ModuleID]
		if mi != mj {
			return mi < mj
		}
		return lessons[i].Order < lessons[j].Order
	})
	return lessons, nil
}

func (repo *courseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment, exec ...core.DBExecutor) (course.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	enr.ID = uuid.New().String()
	repo.db.enrollments[enr.ID] = &enr
	return enr, nil
}

func (repo *courseRepository) GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (course.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if enr, ok := repo.db.enrollments[id]; ok {
		return *enr, nil
	}
	return course.Enrollment{}, course.ErrEnrollmentNotFound
}

func (repo *courseRepository) GetEnrollmentByStudentAndCourse(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (course.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, enr := range repo.db.enrollments {
		if enr.StudentID == studentID && enr.CourseID == courseID {
			return *enr, nil
		}
	}
	return course.Enrollment{}, course.ErrEnrollmentNotFound
}

func (repo *courseRepository) QueryEnrollments(ctx context.Context, filter *course.EnrollmentFilter, exec ...core.DBExecutor) ([]course.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var enrollments []course.Enrollment
	for _, enr := range repo.db.enrollments {
		if filter != nil {
			if filter.StudentID != "" && enr.StudentID != filter.StudentID {
				continue
			}
			if filter.CourseID != "" && enr.CourseID != filter.CourseID {
				continue
			}
			if filter.Status != "" && enr.Status != filter.Status {
				continue
			}
		}
		enrollments = append(enrollments, *enr)
	}
	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.After(enrollments[j].EnrolledAt)
	})
	return enrollments, nil
}

func (repo *courseRepository) UpdateEnrollment(ctx context.Context, enr course.Enrollment, exec ...core.DBExecutor) (course.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.enrollments[enr.ID]; !ok {
		return course.Enrollment{}, course.ErrEnrollmentNotFound
	}
	repo.db.enrollments[enr.ID] = &enr
	return enr, nil
}

func (repo *courseRepository) UpsertLessonProgress(ctx context.Context, prg course.LessonProgress, exec ...core.DBExecutor) (course.LessonProgress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, cur := range repo.db.lessonProgress {
		if cur.EnrollmentID == prg.EnrollmentID && cur.LessonID == prg.LessonID {
			prg.ID = cur.ID
			repo.db.lessonProgress[cur.ID] = &prg
			return prg, nil
		}
	}
	prg.ID = uuid.New().String()
	repo.db.lessonProgress[prg.ID] = &prg
	return prg, nil
}

func (repo *courseRepository) QueryLessonProgress(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) ([]course.LessonProgress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var progress []course.LessonProgress
	for _, prg := range repo.db.lessonProgress {
		if prg.EnrollmentID == enrollmentID {
			progress = append(progress, *prg)
		}
	}
	return progress, nil
}

func (repo *courseRepository) GetVerification(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (course.Verification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if vrf, ok := repo.db.verifications[enrollmentID]; ok {
		return *vrf, nil
	}
	return course.Verification{}, course.ErrVerificationNotFound
}

func (repo *courseRepository) CreateVerification(ctx context.Context, vrf course.Verification, exec ...core.DBExecutor) (course.Verification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	vrf.ID = uuid.New().String()
	repo.db.verifications[vrf.EnrollmentID] = &vrf
	return vrf, nil
}

func (repo *courseRepository) UpdateVerification(ctx context.Context, vrf course.Verification, exec ...core.DBExecutor) (course.Verification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.verifications[vrf.EnrollmentID]; !ok {
		return course.Verification{}, course.ErrVerificationNotFound
	}
	repo.db.verifications[vrf.EnrollmentID] = &vrf
	return vrf, nil
}
