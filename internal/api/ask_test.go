package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fleetquery/fleetquery/internal/guard"
	"github.com/fleetquery/fleetquery/internal/orchestrator"
	"github.com/fleetquery/fleetquery/internal/ratelimit"
)

func newAskRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(body))
	req.Header.Set("X-Tenant-ID", "factory-1")
	return req
}

func TestAskReturnsResult(t *testing.T) {
	ask := &fakeAskService{result: &orchestrator.Result{
		Question:       "how many tools were replaced today?",
		Answer:         "3 tools were replaced today.",
		SQL:            "SELECT COUNT(*) FROM tool_changes",
		Data:           []map[string]any{{"count": float64(3)}},
		SafetyScore:    95,
		ResponseTimeMs: 42,
	}}
	handler := NewHandler(testConfig(t), Dependencies{Ask: ask})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newAskRequest(`{"question":"how many tools were replaced today?"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var body askResponse
	decodeBody(t, rr, &body)
	if body.Answer != "3 tools were replaced today." {
		t.Fatalf("answer = %q", body.Answer)
	}
	if body.SafetyScore != 95 || body.Cached {
		t.Fatalf("body = %+v", body)
	}
	if ask.last.TenantID != "factory-1" {
		t.Fatalf("TenantID = %q", ask.last.TenantID)
	}
	if ask.last.SubjectID == "" {
		t.Fatal("SubjectID must be derived when auth is disabled")
	}
}

func TestAskRequiresTenant(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Ask: &fakeAskService{}})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"q"}`)))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAskRejectsInvalidBody(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Ask: &fakeAskService{}})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newAskRequest(`{"question":"q","bogus":true}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newAskRequest(`{"question":"  "}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank question status = %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["error_code"] != "VALIDATION_ERROR" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestAskMapsRateLimitTo429(t *testing.T) {
	resetAt := time.Now().Add(30 * time.Second)
	ask := &fakeAskService{err: &orchestrator.RateLimitError{
		Decision: ratelimit.Decision{Remaining: 0, ResetAt: resetAt},
	}}
	handler := NewHandler(testConfig(t), Dependencies{Ask: ask})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newAskRequest(`{"question":"how many tools?"}`))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["error_code"] != "RATE_LIMITED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	if body["retryable"] != true {
		t.Fatal("rate limited responses must be retryable")
	}
	extra, _ := body["context"].(map[string]any)
	if extra["reset_at"] == "" || extra["reset_at"] == nil {
		t.Fatalf("context = %v", extra)
	}
}

func TestAskMapsValidatorCodesTo400(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"forbidden pattern", &guard.ValidationError{Code: guard.CodeForbiddenPattern, Message: "matched deny pattern"}, "FORBIDDEN_PATTERN"},
		{"unauthorized table", &guard.ValidationError{Code: guard.CodeUnauthorizedTable, Message: "table not allowed"}, "UNAUTHORIZED_TABLE"},
		{"table not found", &guard.ValidationError{Code: guard.CodeTableNotFound, Message: "no such table"}, "TABLE_NOT_FOUND"},
		{"low safety score", &guard.ValidationError{Code: guard.CodeLowSafetyScore, Message: "score too low"}, "LOW_SAFETY_SCORE"},
		{"question shape", &orchestrator.InvalidQuestionError{Message: "question must be at least 3 characters"}, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(testConfig(t), Dependencies{Ask: &fakeAskService{err: tc.err}})
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, newAskRequest(`{"question":"how many tools?"}`))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			var body map[string]any
			decodeBody(t, rr, &body)
			if body["error_code"] != tc.code {
				t.Fatalf("error_code = %v, want %s", body["error_code"], tc.code)
			}
		})
	}
}

func TestAskMapsUpstreamFailuresTo502(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Ask: &fakeAskService{
		err: &orchestrator.TranslationError{Err: errors.New("status=503 overloaded")},
	}})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newAskRequest(`{"question":"how many tools?"}`))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("translation status = %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["error_code"] != "TRANSLATION_FAILED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}

	handler = NewHandler(testConfig(t), Dependencies{Ask: &fakeAskService{err: errors.New("connection reset")}})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newAskRequest(`{"question":"how many tools?"}`))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("store status = %d", rr.Code)
	}
	decodeBody(t, rr, &body)
	if body["error_code"] != "STORE_ERROR" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}
