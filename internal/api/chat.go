package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetquery/fleetquery/internal/nl2sql"
	"github.com/fleetquery/fleetquery/internal/orchestrator"
)

const chatHistoryLimit = 20

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	askResponse
	SessionID string `json:"session_id"`
}

// handleChat is the conversational variant of ask: prior turns of the session
// feed the translator, and the exchange is persisted to the session log.
func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
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

	var request chatRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_ERROR", "question is required", false, nil)
		return
	}

	sessionID := strings.TrimSpace(request.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history := loadHistory(deps, r, tenantID, sessionID)

	result, err := deps.Ask.Ask(r.Context(), orchestrator.Request{
		SubjectID: subjectFromRequest(r, tenantID),
		TenantID:  tenantID,
		SessionID: sessionID,
		Question:  request.Question,
		History:   history,
	})
	if err != nil {
		writeAskError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		askResponse: askResponseFromResult(result),
		SessionID:   sessionID,
	})
}

// loadHistory is best-effort: a broken history store degrades the chat to a
// standalone question rather than failing it.
func loadHistory(deps Dependencies, r *http.Request, tenantID, sessionID string) []nl2sql.Turn {
	if deps.History == nil {
		return nil
	}
	messages, err := deps.History.ListMessages(r.Context(), tenantID, sessionID, chatHistoryLimit)
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "load conversation history failed",
				"tenant_id", tenantID, "session_id", sessionID, "error", err.Error())
		}
		return nil
	}
	turns := make([]nl2sql.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, nl2sql.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}
