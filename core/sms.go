package core

import "strings"

// SMS purposes. They select the message wording sent with a code.
const (
	SMSPurposeCourseCompletion = "course_completion"
	SMSPurposeProtocolSign     = "protocol_sign"
	SMSPurposeVerification     = "verification"
)

type (
	// SMSResult reports the outcome of a gateway dispatch.
	SMSResult struct {
		Success bool
		SMSID   string
		Error   string
	}

	// SMSGateway is any service that can deliver one-time codes by SMS.
	// SendCode must not block the business operation on delivery failure;
	// it reports the failure in the result instead.
	SMSGateway interface {
		SendCode(phone, code, purpose string) SMSResult
	}
)

// NormalizePhone reduces a phone number to the canonical 11-digit
// "7"-prefixed form used by the gateway: strip non-digits, map a
// leading "8" to "7", prepend "7" when missing.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return digits
	}

	if strings.HasPrefix(digits, "8") {
		digits = "7" + digits[1:]
	}
	if !strings.HasPrefix(digits, "7") {
		digits = "7" + digits
	}
	return digits
}
