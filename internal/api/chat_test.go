package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fleetquery/fleetquery/internal/askstore"
	"github.com/fleetquery/fleetquery/internal/orchestrator"
)

func newChatRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set("X-Tenant-ID", "factory-1")
	return req
}

func TestChatGeneratesSessionID(t *testing.T) {
	ask := &fakeAskService{result: &orchestrator.Result{Answer: "ok"}}
	handler := NewHandler(testConfig(t), Dependencies{Ask: ask})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newChatRequest(`{"question":"how many tools?"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var body chatResponse
	decodeBody(t, rr, &body)
	if body.SessionID == "" {
		t.Fatal("expected generated session id")
	}
	if ask.last.SessionID != body.SessionID {
		t.Fatalf("orchestrator SessionID = %q, response = %q", ask.last.SessionID, body.SessionID)
	}
}

func TestChatPassesHistoryToOrchestrator(t *testing.T) {
	ask := &fakeAskService{result: &orchestrator.Result{Answer: "ok"}}
	history := &fakeHistoryReader{messages: []askstore.Message{
		{Role: "user", Content: "show tool changes"},
		{Role: "assistant", Content: "There were 12."},
	}}
	handler := NewHandler(testConfig(t), Dependencies{Ask: ask, History: history})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newChatRequest(`{"question":"and yesterday?","session_id":"sess-1"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ask.last.SessionID != "sess-1" {
		t.Fatalf("SessionID = %q", ask.last.SessionID)
	}
	if len(ask.last.History) != 2 {
		t.Fatalf("history turns = %d, want 2", len(ask.last.History))
	}
	if ask.last.History[1].Role != "assistant" {
		t.Fatalf("turn role = %q", ask.last.History[1].Role)
	}
}

func TestChatSurvivesHistoryFailure(t *testing.T) {
	ask := &fakeAskService{result: &orchestrator.Result{Answer: "ok"}}
	handler := NewHandler(testConfig(t), Dependencies{
		Ask:     ask,
		History: &fakeHistoryReader{err: http.ErrServerClosed},
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newChatRequest(`{"question":"how many tools?","session_id":"sess-1"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(ask.last.History) != 0 {
		t.Fatal("history must be empty when the store fails")
	}
}
