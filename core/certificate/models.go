package certificate

import (
	"crypto/rand"
	"fmt"
	"time"
)

type Certificate struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	StudentID    string    `json:"student_id"`
	CourseID     string    `json:"course_id"`
	ProtocolID   string    `json:"protocol_id,omitempty"`
	EnrollmentID string    `json:"enrollment_id,omitempty"`
	TemplateID   string    `json:"template_id,omitempty"`
	FileURL      string    `json:"file_url,omitempty"`
	UploadedByID string    `json:"uploaded_by_id,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ValidUntil   time.Time `json:"valid_until,omitempty"`
	QRCode       string    `json:"qr_code"` // verification URL encoded in the QR
}

// Template is a staff-managed certificate layout.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	FileURL     string    `json:"file_url"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const numberSuffixLen = 8

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CandidateNumber returns a "CERT-<year>-<8 chars>" candidate. Uniqueness
// is the caller's problem; collisions retry with a fresh candidate.
func CandidateNumber(year int) string {
	buf := make([]byte, numberSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	suffix := make([]byte, numberSuffixLen)
	for i, b := range buf {
		suffix[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	return fmt.Sprintf("CERT-%d-%s", year, suffix)
}

// VerificationURL is the payload encoded in the certificate's QR code;
// the frontend renders it as an image.
func VerificationURL(frontendBaseURL, number string) string {
	return fmt.Sprintf("%s/verify/%s", frontendBaseURL, number)
}
