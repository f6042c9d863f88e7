package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

type GeminiTranslator struct {
	client *genai.Client
	model  string
}

// NewGeminiTranslator talks to Vertex AI when a project is configured and to
// the Gemini API directly otherwise.
func NewGeminiTranslator(ctx context.Context, cfg GeminiConfig) (*GeminiTranslator, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}

	clientConfig := &genai.ClientConfig{}
	if strings.TrimSpace(cfg.Project) != "" {
		clientConfig.Project = cfg.Project
		clientConfig.Location = cfg.Location
		clientConfig.Backend = genai.BackendVertexAI
	} else {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("api key is required")
		}
		clientConfig.APIKey = cfg.APIKey
		clientConfig.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiTranslator{client: client, model: model}, nil
}

func NewGeminiTranslatorFromClient(client *genai.Client, model string) *GeminiTranslator {
	return &GeminiTranslator{client: client, model: model}
}

func (t *GeminiTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	prompt, err := buildGeminiPrompt(req)
	if err != nil {
		return Result{}, err
	}
	content, err := t.generate(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	sqlText := stripMarkdownSQL(content)
	if strings.TrimSpace(sqlText) == "" {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{
		SQL:      sqlText,
		Provider: "gemini",
		Model:    t.model,
	}, nil
}

func (t *GeminiTranslator) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	rowsJSON, err := json.Marshal(req.Rows)
	if err != nil {
		return "", fmt.Errorf("marshal result rows: %w", err)
	}
	prompt := fmt.Sprintf(
		"You summarize SQL query results for factory operators. Answer in one or two plain sentences using only the data given. Do not mention SQL.\n\nQuestion:\n%s\n\nQuery used:\n%s\n\nResult rows (JSON):\n%s",
		strings.TrimSpace(req.Question), req.SQL, string(rowsJSON),
	)
	content, err := t.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(content)
	if answer == "" {
		return "", fmt.Errorf("model returned empty answer")
	}
	return answer, nil
}

func (t *GeminiTranslator) generate(ctx context.Context, prompt string) (string, error) {
	result, err := t.client.Models.GenerateContent(ctx, t.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty generation candidates")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func buildGeminiPrompt(req Request) (string, error) {
	tablesJSON, err := json.Marshal(req.Tables)
	if err != nil {
		return "", fmt.Errorf("marshal table context: %w", err)
	}

	var b strings.Builder
	b.WriteString("You convert natural language questions about factory operations into a single PostgreSQL SELECT query. Return ONLY SQL. No markdown, no explanation.\n\n")
	fmt.Fprintf(&b, "Tenant: %s\nAvailable tables (JSON):\n%s\n\n", req.TenantID, string(tablesJSON))
	if len(req.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question:\n%s\n\nRules:\n- Use only listed tables.\n- SELECT statements only.\n- Prefer explicit columns.\n- Add LIMIT 200 unless the question asks otherwise.\n- Output a single SQL query only.", strings.TrimSpace(req.Question))
	return b.String(), nil
}
