package smssvc

import (
	"sync"

	"github.com/unicover/lms/core"
)

// SentCode records one console gateway dispatch for test inspection.
type SentCode struct {
	Phone   string
	Code    string
	Purpose string
}

type consoleGateway struct {
	logger core.Logger

	mu   sync.Mutex
	sent []SentCode
}

var _ core.SMSGateway = (*consoleGateway)(nil)

func NewConsoleGateway(logger core.Logger) *consoleGateway {
	return &consoleGateway{logger: logger}
}

func (gw *consoleGateway) SendCode(phone, code, purpose string) core.SMSResult {
	gw.mu.Lock()
	gw.sent = append(gw.sent, SentCode{Phone: core.NormalizePhone(phone), Code: code, Purpose: purpose})
	gw.mu.Unlock()

	if gw.logger != nil {
		gw.logger.Info("sms code dispatched",
			map[string]interface{}{"phone": phone, "purpose": purpose})
	}
	return core.SMSResult{Success: true, SMSID: "console"}
}

// SentCodes returns a copy of everything dispatched so far.
func (gw *consoleGateway) SentCodes() []SentCode {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	out := make([]SentCode, len(gw.sent))
	copy(out, gw.sent)
	return out
}

// LastCode returns the most recent code sent to phone, or "".
func (gw *consoleGateway) LastCode(phone string) string {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	phone = core.NormalizePhone(phone)
	for i := len(gw.sent) - 1; i >= 0; i-- {
		if gw.sent[i].Phone == phone {
			return gw.sent[i].Code
		}
	}
	return ""
}

// Reset clears the dispatch record.
func (gw *consoleGateway) Reset() {
	gw.mu.Lock()
	gw.sent = nil
	gw.mu.Unlock()
}
