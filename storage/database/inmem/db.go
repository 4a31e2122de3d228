// Package inmemdb provides map-backed repositories used by tests and
// local development. Transactions are not supported; the exec arguments
// accepted by the repository methods are ignored.
package inmemdb

import (
	"sync"

	"github.com/unicover/lms/core/certificate"
	"github.com/unicover/lms/core/course"
	"github.com/unicover/lms/core/exam"
	"github.com/unicover/lms/core/notification"
	"github.com/unicover/lms/core/protocol"
	"github.com/unicover/lms/core/user"
)

type DB struct {
	mutex sync.RWMutex

	users map[string]*user.User

	courses        map[string]*course.Course
	modules        map[string]*course.Module
	lessons        map[string]*course.Lesson
	enrollments    map[string]*course.Enrollment
	lessonProgress map[string]*course.LessonProgress
	verifications  map[string]*course.Verification // keyed by enrollment ID

	tests                map[string]*exam.Test
	questions            map[string]*exam.Question
	attempts             map[string]*exam.Attempt
	attemptVerifications map[string]*exam.Verification // keyed by attempt ID

	protocols  map[string]*protocol.Protocol
	signatures map[string]*protocol.Signature

	certificates map[string]*certificate.Certificate

	notifications map[string]*notification.Notification
}

func NewDB() *DB {
	return &DB{
		users:                make(map[string]*user.User),
		courses:              make(map[string]*course.Course),
		modules:              make(map[string]*course.Module),
		lessons:              make(map[string]*course.Lesson),
		enrollments:          make(map[string]*course.Enrollment),
		lessonProgress:       make(map[string]*course.LessonProgress),
		verifications:        make(map[string]*course.Verification),
		tests:                make(map[string]*exam.Test),
		questions:            make(map[string]*exam.Question),
		attempts:             make(map[string]*exam.Attempt),
		attemptVerifications: make(map[string]*exam.Verification),
		protocols:            make(map[string]*protocol.Protocol),
		signatures:           make(map[string]*protocol.Signature),
		certificates:         make(map[string]*certificate.Certificate),
		notifications:        make(map[string]*notification.Notification),
	}
}
