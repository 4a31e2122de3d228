package smssvc

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unicover/lms/core"
)

func TestParseResponse(t *testing.T) {
	gw := &smscGateway{}

	tests := []struct {
		name    string
		body    string
		success bool
		smsID   string
	}{
		{"count and id", "1,123456", true, "123456"},
		{"id prefix", "ID=987654", true, "987654"},
		{"ok", "OK", true, ""},
		{"bare numeric id", "123456", true, "123456"},
		{"empty body", "", true, ""},
		{"error code", "ERROR = 2", false, ""},
		{"russian error", "ошибка: неверный логин", false, ""},
		{"insufficient balance", "insufficient balance", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := gw.parse(tt.body)
			if res.Success != tt.success {
				t.Errorf("Success = %v; want %v", res.Success, tt.success)
			}
			if tt.smsID != "" && res.SMSID != tt.smsID {
				t.Errorf("SMSID = %q; want %q", res.SMSID, tt.smsID)
			}
		})
	}
}

func TestSendCode(t *testing.T) {
	var gotPhone, gotMes string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotPhone = r.Form.Get("phones")
		gotMes = r.Form.Get("mes")
		_, _ = fmt.Fprint(w, "1,42")
	}))
	defer srv.Close()

	conf := &core.Config{
		SMS: core.SMSConfig{
			Login: "unicover", Password: "secret", Sender: "UNICOVER",
			APIURL: srv.URL, Timeout: 5 * time.Second,
		},
	}
	gw := NewSMSCGateway(conf, nil)
	gw.logger = discardLogger{}

	res := gw.SendCode("+7 (700) 123-45-67", "123456", core.SMSPurposeProtocolSign)
	if !res.Success {
		t.Fatalf("Success = false; error = %q", res.Error)
	}
	if res.SMSID != "42" {
		t.Errorf("SMSID = %q; want %q", res.SMSID, "42")
	}
	if gotPhone != "77001234567" {
		t.Errorf("phones = %q; want normalized 77001234567", gotPhone)
	}
	if gotMes == "" || gotMes == "123456" {
		t.Errorf("mes = %q; want a worded message containing the code", gotMes)
	}
}

func TestSendCodeUnconfigured(t *testing.T) {
	gw := NewSMSCGateway(&core.Config{}, nil)
	gw.logger = discardLogger{}

	res := gw.SendCode("+77001234567", "123456", core.SMSPurposeVerification)
	if res.Success {
		t.Error("Success = true for an unconfigured gateway")
	}
}

func TestRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "OK")
	}))
	defer srv.Close()

	conf := &core.Config{
		SMS: core.SMSConfig{Login: "unicover", Password: "secret", APIURL: srv.URL, Timeout: 5 * time.Second},
	}
	gw := NewSMSCGateway(conf, nil)
	gw.logger = discardLogger{}

	for i := 0; i < 3; i++ {
		if res := gw.SendCode("+77001234567", "123456", core.SMSPurposeVerification); !res.Success {
			t.Fatalf("send %d failed: %q", i+1, res.Error)
		}
	}
	if res := gw.SendCode("+77001234567", "123456", core.SMSPurposeVerification); res.Success {
		t.Error("fourth send within a minute succeeded; want rate limited")
	}
	// other phones are unaffected
	if res := gw.SendCode("+77007654321", "123456", core.SMSPurposeVerification); !res.Success {
		t.Errorf("send to another phone failed: %q", res.Error)
	}
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) Fatal(string, ...interface{}) {}
