// Package smssvc delivers one-time codes through the SMSC.kz HTTP API.
package smssvc

import (
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/unicover/lms/core"
)

// purposeMessages selects the SMS wording by code purpose.
var purposeMessages = map[string]string{
	core.SMSPurposeCourseCompletion: "Ваш код подтверждения завершения курса: %CODE%. Код действителен 10 минут.",
	core.SMSPurposeProtocolSign:     "Ваш код для подписания протокола: %CODE%. Код действителен 10 минут.",
	core.SMSPurposeVerification:     "Ваш код подтверждения: %CODE%. Код действителен 10 минут.",
}

// error markers the gateway may return in its response body
var errorPatterns = []string{
	"error", "ошибка", "неверный", "недостаточно", "отказано",
	"denied", "invalid", "insufficient", "balance", "баланс",
}

const rateLimitWindow = time.Minute

type smscGateway struct {
	login    string
	password string
	sender   string
	apiURL   string
	client   *http.Client
	logger   core.Logger

	// per-phone dispatch counters, max 3 per minute
	mu    sync.Mutex
	sends map[string][]time.Time
}

var _ core.SMSGateway = (*smscGateway)(nil)

func NewSMSCGateway(conf *core.Config, logger core.Logger) *smscGateway {
	return &smscGateway{
		login:    conf.SMS.Login,
		password: conf.SMS.Password,
		sender:   conf.SMS.Sender,
		apiURL:   conf.SMS.APIURL,
		client:   &http.Client{Timeout: conf.SMS.Timeout},
		logger:   logger,
		sends:    make(map[string][]time.Time),
	}
}

// Configured reports whether gateway credentials are present. An
// unconfigured gateway fails every dispatch, which callers surface by
// returning the raw code to the requester instead.
func (gw *smscGateway) Configured() bool {
	return gw.login != "" && gw.password != ""
}

func (gw *smscGateway) SendCode(phone, code, purpose string) core.SMSResult {
	message, ok := purposeMessages[purpose]
	if !ok {
		message = purposeMessages[core.SMSPurposeVerification]
	}
	message = strings.ReplaceAll(message, "%CODE%", code)
	return gw.send(phone, message)
}

func (gw *smscGateway) send(phone, message string) core.SMSResult {
	if !gw.Configured() {
		return core.SMSResult{Error: "sms gateway not configured"}
	}

	phone = core.NormalizePhone(phone)
	if !gw.allow(phone) {
		gw.logger.Warn("sms rate limit exceeded", map[string]interface{}{"phone": phone})
		return core.SMSResult{Error: "rate limit exceeded"}
	}

	params := url.Values{
		"login":   {gw.login},
		"psw":     {gw.password},
		"phones":  {phone},
		"mes":     {message},
		"charset": {"utf-8"},
		"coding":  {"8"}, // UCS-2, required for Cyrillic
		"fmt":     {"1"},
	}
	if gw.sender != "" {
		params.Set("sender", gw.sender)
	}

	res, err := gw.client.PostForm(gw.apiURL, params)
	if err != nil {
		gw.logger.Error("sending sms", err)
		return core.SMSResult{Error: err.Error()}
	}
	defer res.Body.Close()

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		gw.logger.Error("reading sms gateway response", err)
		return core.SMSResult{Error: err.Error()}
	}
	if res.StatusCode != http.StatusOK {
		return core.SMSResult{Error: "HTTP " + res.Status + ": " + string(body)}
	}
	return gw.parse(strings.TrimSpace(string(body)))
}

// parse handles the gateway's response grammar: "count,id", "ID=x",
// "OK", a bare numeric id, or an error description. An empty body
// counts as success.
func (gw *smscGateway) parse(body string) core.SMSResult {
	lower := strings.ToLower(body)
	for _, pattern := range errorPatterns {
		if strings.Contains(lower, pattern) {
			return core.SMSResult{Error: "gateway error: " + body}
		}
	}

	switch {
	case strings.Contains(body, ","):
		parts := strings.SplitN(body, ",", 2)
		if isNumeric(parts[0]) && isNumeric(strings.TrimPrefix(parts[1], "-")) {
			return core.SMSResult{Success: true, SMSID: strings.TrimSpace(parts[1])}
		}
	case strings.HasPrefix(body, "ID="):
		return core.SMSResult{Success: true, SMSID: strings.TrimPrefix(body, "ID=")}
	case strings.EqualFold(body, "OK"):
		return core.SMSResult{Success: true}
	case isNumeric(body):
		return core.SMSResult{Success: true, SMSID: body}
	}
	return core.SMSResult{Success: true, SMSID: body}
}

func (gw *smscGateway) allow(phone string) bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	cutoff := time.Now().Add(-rateLimitWindow)
	recent := gw.sends[phone][:0]
	for _, t := range gw.sends[phone] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= 3 {
		gw.sends[phone] = recent
		return false
	}
	gw.sends[phone] = append(recent, time.Now())
	return true
}

func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
