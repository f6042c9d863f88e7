// Package nl2sql is the language-model boundary: it turns a tenant's natural
// language question into a single SQL query and, separately, turns query
// results back into a prose answer. Nothing in this package executes SQL or
// judges its safety.
package nl2sql

import "context"

type TableContext struct {
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns,omitempty"`
}

// Turn is one prior exchange in a conversation, oldest first.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	TenantID string         `json:"tenant_id"`
	Question string         `json:"question"`
	History  []Turn         `json:"history,omitempty"`
	Tables   []TableContext `json:"tables"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type AnswerRequest struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
	Rows     []map[string]any
}

// Answerer summarizes query results into a short natural language answer.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}
