package protocol

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Status is the closed set of protocol states.
type Status string

const (
	StatusGenerated      Status = "generated"
	StatusPendingPDEK    Status = "pending_pdek"
	StatusSignedMembers  Status = "signed_members"
	StatusSignedChairman Status = "signed_chairman"
	StatusRejected       Status = "rejected"
	StatusAnnulled       Status = "annulled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusGenerated, StatusPendingPDEK, StatusSignedMembers,
		StatusSignedChairman, StatusRejected, StatusAnnulled:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Result is the exam outcome the protocol records.
type Result string

const (
	ResultPassed Result = "passed"
	ResultFailed Result = "failed"
)

// SignatureRole distinguishes the chairman's signature slot from the
// ordinary members'.
type SignatureRole string

const (
	SignerMember   SignatureRole = "member"
	SignerChairman SignatureRole = "chairman"
)

// Protocol is the PDEK examination record for one student's completion
// of one course or standalone test.
type Protocol struct {
	ID              string    `json:"id"`
	Number          string    `json:"number"`
	StudentID       string    `json:"student_id"`
	CourseID        string    `json:"course_id,omitempty"`
	TestID          string    `json:"test_id,omitempty"`
	EnrollmentID    string    `json:"enrollment_id,omitempty"`
	AttemptID       string    `json:"attempt_id,omitempty"`
	ExamDate        time.Time `json:"exam_date"`
	Score           float64   `json:"score"`
	PassingScore    float64   `json:"passing_score"`
	Result          Result    `json:"result"`
	Status          Status    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Open reports whether the protocol still accepts signatures.
func (p *Protocol) Open() bool {
	switch p.Status {
	case StatusRejected, StatusAnnulled:
		return false
	}
	return true
}

// Signature is one reviewer's slot on a protocol, snapshotted from the
// PDEK roster at protocol creation.
type Signature struct {
	ID           string        `json:"id"`
	ProtocolID   string        `json:"protocol_id"`
	SignerID     string        `json:"signer_id"`
	Role         SignatureRole `json:"role"`
	OTPCode      string        `json:"-"`
	OTPExpiresAt time.Time     `json:"otp_expires_at,omitempty"`
	Verified     bool          `json:"verified"`
	SignedAt     time.Time     `json:"signed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

const numberSuffixLen = 6

// CandidateNumber returns a "PROT-<year>-<6 digits>" candidate; the
// caller retries on collision.
func CandidateNumber(year int) string {
	buf := make([]byte, numberSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	suffix := make([]byte, numberSuffixLen)
	for i, b := range buf {
		suffix[i] = '0' + b%10
	}
	return fmt.Sprintf("PROT-%d-%s", year, suffix)
}

// DeriveStatus recomputes the protocol status from its signature rows.
//
// All slots verified yield signed_chairman when the chairman's slot is
// among them, signed_members otherwise. A partially signed protocol is
// signed_members, except when only chairman slots have been verified.
// With no verified slot the protocol stays pending_pdek.
func DeriveStatus(sigs []Signature) Status {
	var verified, total, verifiedMembers int
	var chairmanVerified bool
	for i := range sigs {
		total++
		if !sigs[i].Verified {
			continue
		}
		verified++
		if sigs[i].Role == SignerChairman {
			chairmanVerified = true
		} else {
			verifiedMembers++
		}
	}

	switch {
	case verified == 0:
		return StatusPendingPDEK
	case verified == total:
		if chairmanVerified {
			return StatusSignedChairman
		}
		return StatusSignedMembers
	case verifiedMembers == 0: // only the chairman so far
		return StatusSignedChairman
	default:
		return StatusSignedMembers
	}
}

// FullySigned reports whether every signature slot has been verified.
func FullySigned(sigs []Signature) bool {
	if len(sigs) == 0 {
		return false
	}
	for i := range sigs {
		if !sigs[i].Verified {
			return false
		}
	}
	return true
}

// QueryFilter selects protocols.
type QueryFilter struct {
	Search    string `query:"search"`
	Status    Status `query:"status"`
	Result    Result `query:"result"`
	StudentID string `query:"student_id"`
}

// CodeDelivery reports a one-time-code dispatch to its requester. Code is
// populated only when SMS delivery could not be confirmed, so the flow
// remains usable without a gateway.
type CodeDelivery struct {
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code,omitempty"`
	Sent      bool      `json:"sent"`
}
