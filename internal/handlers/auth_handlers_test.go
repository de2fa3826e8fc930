package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/phonegate/phonegate/internal/config"
	"github.com/phonegate/phonegate/internal/middleware"
	"github.com/phonegate/phonegate/internal/ratelimit"
	"github.com/phonegate/phonegate/internal/service"
	"github.com/phonegate/phonegate/internal/store/memory"
	"github.com/phonegate/phonegate/internal/token"
	"github.com/sirupsen/logrus"
)

var codePattern = regexp.MustCompile(`\d{4}`)

type fakeTransport struct {
	mu    sync.Mutex
	sends []string
}

func (f *fakeTransport) Send(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, body)
	return nil
}

func (f *fakeTransport) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		t.Fatal("no SMS dispatched")
	}
	return codePattern.FindString(f.sends[len(f.sends)-1])
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeTransport) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	rs := memory.New(logger)
	limiter := ratelimit.New(ratelimit.NewMemoryCounters(), ratelimit.Config{
		PhoneMax:     3,
		IPMax:        10,
		GlobalMax:    100,
		Window:       time.Hour,
		FanoutMax:    5,
		FanoutWindow: 10 * time.Minute,
	}, logger)
	transport := &fakeTransport{}
	svc := service.New(rs, limiter, transport, &config.OTPConfig{
		CodeLength:  4,
		Expiry:      5 * time.Minute,
		MaxAttempts: 3,
	}, "PhoneGate", logger)

	issuer, err := token.NewIssuer(&config.JWTConfig{
		SecretKey: "0123456789abcdef0123456789abcdef",
		Expiry:    15 * time.Minute,
	}, logger)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	h := NewAuthHandlers(svc, issuer, logger)
	router := NewRouter(h, middleware.NewAuthMiddleware(issuer, logger), logger)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, transport
}

func postJSON(t *testing.T, srv *httptest.Server, path, ip string, payload interface{}) *http.Response {
	t.Helper()
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", ip)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func TestRequestVerifyFlow(t *testing.T) {
	srv, transport := newTestServer(t)

	resp := postJSON(t, srv, "/api/v1/auth/request-code", "1.2.3.4",
		RequestCodeRequest{PhoneNumber: "09012345678"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("request-code status = %d", resp.StatusCode)
	}
	var reqBody RequestCodeResponse
	json.NewDecoder(resp.Body).Decode(&reqBody)
	resp.Body.Close()
	if !reqBody.OK {
		t.Fatal("request-code ok = false")
	}

	code := transport.lastCode(t)
	if len(code) != 4 {
		t.Fatalf("dispatched code %q, want 4 digits", code)
	}

	resp = postJSON(t, srv, "/api/v1/auth/verify-code", "1.2.3.4",
		VerifyCodeRequest{PhoneNumber: "+819012345678", Code: code})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify-code status = %d", resp.StatusCode)
	}
	var verifyBody VerifyCodeResponse
	json.NewDecoder(resp.Body).Decode(&verifyBody)
	resp.Body.Close()

	if !verifyBody.OK || verifyBody.VerifiedIdentity != "+819012345678" {
		t.Errorf("verify response %+v", verifyBody)
	}
	if verifyBody.AccessToken == "" || verifyBody.TokenType != "Bearer" {
		t.Errorf("missing token in %+v", verifyBody)
	}

	// the issued token opens the protected surface
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+verifyBody.AccessToken)
	meResp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	defer meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", meResp.StatusCode)
	}
	var me map[string]string
	json.NewDecoder(meResp.Body).Decode(&me)
	if me["phone"] != "+819012345678" {
		t.Errorf("me = %v", me)
	}
}

func TestReasonStatusMapping(t *testing.T) {
	srv, transport := newTestServer(t)

	// invalid phone
	resp := postJSON(t, srv, "/api/v1/auth/request-code", "1.2.3.4",
		RequestCodeRequest{PhoneNumber: "garbage"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid phone status = %d, want 400", resp.StatusCode)
	}
	var failure FailureResponse
	json.NewDecoder(resp.Body).Decode(&failure)
	resp.Body.Close()
	if failure.OK || failure.Reason != "INVALID_FORMAT" {
		t.Errorf("failure body %+v", failure)
	}

	// verify without a pending code
	resp = postJSON(t, srv, "/api/v1/auth/verify-code", "1.2.3.4",
		VerifyCodeRequest{PhoneNumber: "09012345678", Code: "1234"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("no pending status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	// verification from a different origin
	postJSON(t, srv, "/api/v1/auth/request-code", "1.2.3.4",
		RequestCodeRequest{PhoneNumber: "09012345678"}).Body.Close()
	code := transport.lastCode(t)
	resp = postJSON(t, srv, "/api/v1/auth/verify-code", "9.9.9.9",
		VerifyCodeRequest{PhoneNumber: "09012345678", Code: code})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("origin mismatch status = %d, want 401", resp.StatusCode)
	}
	json.NewDecoder(resp.Body).Decode(&failure)
	resp.Body.Close()
	if failure.Reason != "ORIGIN_MISMATCH" {
		t.Errorf("reason = %q", failure.Reason)
	}
}

func TestRateLimitStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, srv, "/api/v1/auth/request-code", "1.2.3.4",
			RequestCodeRequest{PhoneNumber: "09012345678"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, resp.StatusCode)
		}
	}

	resp := postJSON(t, srv, "/api/v1/auth/request-code", "1.2.3.4",
		RequestCodeRequest{PhoneNumber: "09012345678"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("4th request status = %d, want 429", resp.StatusCode)
	}
	var failure FailureResponse
	json.NewDecoder(resp.Body).Decode(&failure)
	if failure.Reason != "PHONE_LIMIT_EXCEEDED" {
		t.Errorf("reason = %q", failure.Reason)
	}
}

func TestMeRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/api/v1/me")
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("me without token status = %d, want 401", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}
