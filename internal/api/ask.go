package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fleetquery/fleetquery/internal/guard"
	"github.com/fleetquery/fleetquery/internal/orchestrator"
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question       string           `json:"question"`
	Answer         string           `json:"answer"`
	SQLQuery       string           `json:"sql_query"`
	Data           []map[string]any `json:"data"`
	Cached         bool             `json:"cached"`
	SafetyScore    int              `json:"safety_score"`
	ResponseTimeMs int64            `json:"response_time_ms"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Ask == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask dependencies are not configured", false, nil)
		return
	}

	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, "ask_user"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_ERROR", "question is required", false, nil)
		return
	}

	result, err := deps.Ask.Ask(r.Context(), orchestrator.Request{
		SubjectID: subjectFromRequest(r, tenantID),
		TenantID:  tenantID,
		Question:  request.Question,
	})
	if err != nil {
		writeAskError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponseFromResult(result))
}

func askResponseFromResult(result *orchestrator.Result) askResponse {
	data := result.Data
	if data == nil {
		data = []map[string]any{}
	}
	return askResponse{
		Question:       result.Question,
		Answer:         result.Answer,
		SQLQuery:       result.SQL,
		Data:           data,
		Cached:         result.Cached,
		SafetyScore:    result.SafetyScore,
		ResponseTimeMs: result.ResponseTimeMs,
	}
}

func writeAskError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var questionErr *orchestrator.InvalidQuestionError
	if errors.As(err, &questionErr) {
		writeError(ctx, w, http.StatusBadRequest, "VALIDATION_ERROR", questionErr.Message, false, nil)
		return
	}

	var rateErr *orchestrator.RateLimitError
	if errors.As(err, &rateErr) {
		writeError(ctx, w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests in the current window", true, map[string]any{
			"remaining": rateErr.Decision.Remaining,
			"reset_at":  rateErr.Decision.ResetAt.UTC().Format(time.RFC3339),
		})
		return
	}

	var validationErr *guard.ValidationError
	if errors.As(err, &validationErr) {
		writeError(ctx, w, http.StatusBadRequest, validationErr.Code, validationErr.Message, false, validationErr.Details)
		return
	}

	var translateErr *orchestrator.TranslationError
	if errors.As(err, &translateErr) {
		writeError(ctx, w, http.StatusBadGateway, "TRANSLATION_FAILED", "failed to generate a query for the question", true, nil)
		return
	}

	writeError(ctx, w, http.StatusBadGateway, "STORE_ERROR", "query execution failed", true, nil)
}
