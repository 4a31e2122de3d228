package core

import (
	"crypto/rand"
	"strings"
	"time"
)

// OTPCodeLen is the number of digits in a one-time code.
const OTPCodeLen = 6

var nowFunc = time.Now // mockable

// GenerateOTP returns a random numeric one-time code of OTPCodeLen digits.
func GenerateOTP() string {
	buf := make([]byte, OTPCodeLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken
		panic(err)
	}
	code := make([]byte, OTPCodeLen)
	for i, b := range buf {
		code[i] = '0' + b%10
	}
	return string(code)
}

// OTPValid checks a submitted code against the stored code and expiry.
// Both codes are normalized (trimmed) before comparison. It returns false
// when no code is stored, the code has expired, or the codes differ.
func OTPValid(submitted, stored string, expiresAt time.Time) bool {
	stored = strings.TrimSpace(stored)
	submitted = strings.TrimSpace(submitted)

	if stored == "" || expiresAt.IsZero() {
		return false
	}
	if nowFunc().After(expiresAt) {
		return false
	}
	return submitted == stored
}
