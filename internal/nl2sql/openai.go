package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAITranslator speaks the OpenAI-compatible chat completions protocol,
// which also covers self-hosted gateways exposing the same surface.
type OpenAITranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAITranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	messages, err := buildTranslateMessages(req)
	if err != nil {
		return Result{}, err
	}
	content, err := t.complete(ctx, messages)
	if err != nil {
		return Result{}, err
	}

	sqlText := stripMarkdownSQL(content)
	if strings.TrimSpace(sqlText) == "" {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{
		SQL:      sqlText,
		Provider: "openai-compatible",
		Model:    t.model,
	}, nil
}

func (t *OpenAITranslator) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	rowsJSON, err := json.Marshal(req.Rows)
	if err != nil {
		return "", fmt.Errorf("marshal result rows: %w", err)
	}
	messages := []map[string]string{
		{"role": "system", "content": "You summarize SQL query results for factory operators. " +
			"Answer the user's question in one or two plain sentences using only the data given. " +
			"Do not mention SQL or the query."},
		{"role": "user", "content": fmt.Sprintf(
			"Question:\n%s\n\nQuery used:\n%s\n\nResult rows (JSON):\n%s",
			strings.TrimSpace(req.Question), req.SQL, string(rowsJSON),
		)},
	}
	content, err := t.complete(ctx, messages)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(content)
	if answer == "" {
		return "", fmt.Errorf("model returned empty answer")
	}
	return answer, nil
}

func (t *OpenAITranslator) complete(ctx context.Context, messages []map[string]string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":       t.model,
		"messages":    messages,
		"temperature": t.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func buildTranslateMessages(req Request) ([]map[string]string, error) {
	tablesJSON, err := json.Marshal(req.Tables)
	if err != nil {
		return nil, fmt.Errorf("marshal table context: %w", err)
	}
	systemPrompt := "You convert natural language questions about factory operations into a single PostgreSQL SELECT query. " +
		"Return ONLY SQL. No markdown, no explanation."
	userPrompt := fmt.Sprintf(
		"Tenant: %s\nAvailable tables (JSON):\n%s\n\nQuestion:\n%s\n\nRules:\n- Use only listed tables.\n- SELECT statements only.\n- Prefer explicit columns.\n- Add LIMIT 200 unless the question asks otherwise.\n- Output a single SQL query only.",
		req.TenantID,
		string(tablesJSON),
		strings.TrimSpace(req.Question),
	)

	messages := make([]map[string]string, 0, len(req.History)+2)
	messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	for _, turn := range req.History {
		role := turn.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, map[string]string{"role": role, "content": turn.Content})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})
	return messages, nil
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
