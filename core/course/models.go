package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/unicover/lms/core"
)

// EnrollmentStatus is the closed set of enrollment states.
type EnrollmentStatus string

const (
	EnrollmentAssigned      EnrollmentStatus = "assigned"
	EnrollmentInProgress    EnrollmentStatus = "in_progress"
	EnrollmentExamAvailable EnrollmentStatus = "exam_available"
	EnrollmentExamPassed    EnrollmentStatus = "exam_passed"
	EnrollmentPendingPDEK   EnrollmentStatus = "pending_pdek"
	EnrollmentCompleted     EnrollmentStatus = "completed"
	EnrollmentFailed        EnrollmentStatus = "failed"
	EnrollmentAnnulled      EnrollmentStatus = "annulled"
)

func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentAssigned, EnrollmentInProgress, EnrollmentExamAvailable,
		EnrollmentExamPassed, EnrollmentPendingPDEK, EnrollmentCompleted,
		EnrollmentFailed, EnrollmentAnnulled:
		return true
	}
	return false
}

func (s EnrollmentStatus) String() string { return string(s) }

// CourseStatus is the publication state of a course.
type CourseStatus string

const (
	CourseInDevelopment CourseStatus = "in_development"
	CourseDraft         CourseStatus = "draft"
	CoursePublished     CourseStatus = "published"
)

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Order       int       `json:"order"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Course struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	CategoryID       string       `json:"category_id,omitempty"`
	Duration         int          `json:"duration"` // hours
	PassingScore     int          `json:"passing_score"`
	MaxAttempts      int          `json:"max_attempts"`
	PDEKCommission   string       `json:"pdek_commission,omitempty"`
	Status           CourseStatus `json:"status"`
	FinalTestID      string       `json:"final_test_id,omitempty"`
	IsStandaloneTest bool         `json:"is_standalone_test"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// HasFinalTest reports whether completing the course requires passing a test.
func (c *Course) HasFinalTest() bool { return c.FinalTestID != "" }

type Module struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LessonType is the content kind of a lesson.
type LessonType string

const (
	LessonText  LessonType = "text"
	LessonVideo LessonType = "video"
	LessonPDF   LessonType = "pdf"
	LessonQuiz  LessonType = "quiz"
)

type Lesson struct {
	ID        string     `json:"id"`
	ModuleID  string     `json:"module_id"`
	Title     string     `json:"title"`
	Type      LessonType `json:"type"`
	Content   string     `json:"content,omitempty"`
	VideoURL  string     `json:"video_url,omitempty"`
	PDFURL    string     `json:"pdf_url,omitempty"`
	Duration  int        `json:"duration"` // minutes
	Order     int        `json:"order"`
	Required  bool       `json:"required"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Enrollment struct {
	ID          string           `json:"id"`
	StudentID   string           `json:"student_id"`
	CourseID    string           `json:"course_id"`
	Progress    int              `json:"progress"` // 0-100
	Status      EnrollmentStatus `json:"status"`
	EnrolledAt  time.Time        `json:"enrolled_at"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
}

type LessonProgress struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	LessonID     string    `json:"lesson_id"`
	Completed    bool      `json:"completed"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
}

// Verification is the one-time-code record gating course completion.
// One row per enrollment for its whole lifetime; it is created lazily on
// the first code request and never deleted on failure.
type Verification struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	OTPCode      string    `json:"-"`
	OTPExpiresAt time.Time `json:"otp_expires_at"`
	Verified     bool      `json:"verified"`
	VerifiedAt   time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CodeActive reports whether a previously issued code is still usable,
// in which case a new request reuses it instead of replacing it.
func (v *Verification) CodeActive(now time.Time) bool {
	return v.OTPCode != "" && now.Before(v.OTPExpiresAt)
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title            string `json:"title" validate:"required"`
	Description      string `json:"description"`
	CategoryID       string `json:"category_id"`
	Duration         int    `json:"duration" validate:"gte=0"`
	PassingScore     int    `json:"passing_score" validate:"gte=0,lte=100"`
	MaxAttempts      int    `json:"max_attempts" validate:"gte=0"`
	FinalTestID      string `json:"final_test_id"`
	IsStandaloneTest bool   `json:"is_standalone_test"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	if nc.PassingScore == 0 {
		nc.PassingScore = 80
	}
	if nc.MaxAttempts == 0 {
		nc.MaxAttempts = 3
	}
	return validate.Struct(nc)
}

type QueryFilter struct {
	Search     string       `query:"search"`
	Status     CourseStatus `query:"status"`
	CategoryID string       `query:"category_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// NewModule contains information needed to add a Module to a Course.
type NewModule struct {
	CourseID    string `json:"course_id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Order       int    `json:"order" validate:"gte=0"`
}

func (nm *NewModule) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	return validate.Struct(nm)
}

// NewLesson contains information needed to add a Lesson to a Module.
// Lessons are required unless explicitly marked optional.
type NewLesson struct {
	ModuleID string     `json:"module_id" validate:"required"`
	Title    string     `json:"title" validate:"required"`
	Type     LessonType `json:"type" validate:"required,oneof=text video pdf quiz"`
	Content  string     `json:"content"`
	VideoURL string     `json:"video_url"`
	PDFURL   string     `json:"pdf_url"`
	Duration int        `json:"duration" validate:"gte=0"`
	Order    int        `json:"order" validate:"gte=0"`
	Required *bool      `json:"required"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	if nl.Required == nil {
		required := true
		nl.Required = &required
	}
	return validate.Struct(nl)
}

// EnrollmentFilter selects enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
}
