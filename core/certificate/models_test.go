package certificate

import (
	"regexp"
	"testing"
)

func TestCandidateNumber(t *testing.T) {
	format := regexp.MustCompile(`^CERT-2026-[0-9A-Z]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		n := CandidateNumber(2026)
		if !format.MatchString(n) {
			t.Fatalf("malformed number %q", n)
		}
		if seen[n] {
			t.Fatalf("duplicate number %q after %d draws", n, i)
		}
		seen[n] = true
	}
}

func TestVerificationURL(t *testing.T) {
	got := VerificationURL("https://unicover.kz", "CERT-2026-ABCD1234")
	expected := "https://unicover.kz/verify/CERT-2026-ABCD1234"
	if got != expected {
		t.Errorf("VerificationURL() = %q; expected %q", got, expected)
	}
}
