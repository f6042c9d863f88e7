// Package orchestrator sequences an ask request through its gates: rate
// limit, cache lookup, SQL generation, validation, execution, answer
// synthesis, and the best-effort writes that follow. The stages always run
// in that order; a refusal at any gate stops the pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fleetquery/fleetquery/internal/askstore"
	"github.com/fleetquery/fleetquery/internal/guard"
	"github.com/fleetquery/fleetquery/internal/nl2sql"
	"github.com/fleetquery/fleetquery/internal/observability"
	"github.com/fleetquery/fleetquery/internal/querycache"
	"github.com/fleetquery/fleetquery/internal/ratelimit"
)

const (
	minQuestionLen = 3
	maxQuestionLen = 500
)

// InvalidQuestionError reports a question that fails shape checks before any
// downstream work happens.
type InvalidQuestionError struct {
	Message string
}

func (e *InvalidQuestionError) Error() string {
	return "VALIDATION_ERROR: " + e.Message
}

// RateLimitError carries the refusing decision so the delivery layer can tell
// the caller when to retry.
type RateLimitError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitError) Error() string {
	return "RATE_LIMITED: too many requests in the current window"
}

// TranslationError wraps language model failures so the delivery layer can
// map them to an upstream error instead of a validation failure.
type TranslationError struct {
	Err error
}

func (e *TranslationError) Error() string {
	return "translate question: " + e.Err.Error()
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

type Request struct {
	SubjectID string
	TenantID  string
	SessionID string
	Question  string
	History   []nl2sql.Turn
}

type Result struct {
	Question       string           `json:"question"`
	Answer         string           `json:"answer"`
	SQL            string           `json:"sql_query"`
	Data           []map[string]any `json:"data"`
	Cached         bool             `json:"cached"`
	SafetyScore    int              `json:"safety_score"`
	ResponseTimeMs int64            `json:"response_time_ms"`
}

type historyAppender interface {
	AppendMessage(ctx context.Context, in askstore.Message) (askstore.Message, error)
}

type Service struct {
	policy     *guard.Policy
	limiter    *ratelimit.Limiter
	cache      *querycache.Cache
	translator nl2sql.Translator
	answerer   nl2sql.Answerer
	executor   guard.Executor
	history    historyAppender
	tables     []nl2sql.TableContext
	logger     *slog.Logger
	now        func() time.Time
}

type Options struct {
	Policy     *guard.Policy
	Limiter    *ratelimit.Limiter
	Cache      *querycache.Cache
	Translator nl2sql.Translator
	Answerer   nl2sql.Answerer
	Executor   guard.Executor
	History    historyAppender
	Tables     []string
	Logger     *slog.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if opts.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tables := make([]nl2sql.TableContext, 0, len(opts.Tables))
	for _, name := range opts.Tables {
		tables = append(tables, nl2sql.TableContext{TableName: name})
	}

	return &Service{
		policy:     opts.Policy,
		limiter:    opts.Limiter,
		cache:      opts.Cache,
		translator: opts.Translator,
		answerer:   opts.Answerer,
		executor:   opts.Executor,
		history:    opts.History,
		tables:     tables,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *Service) Ask(ctx context.Context, req Request) (*Result, error) {
	start := s.now()

	question := strings.TrimSpace(req.Question)
	if n := utf8.RuneCountInString(question); n < minQuestionLen {
		return nil, &InvalidQuestionError{Message: fmt.Sprintf("question must be at least %d characters", minQuestionLen)}
	} else if n > maxQuestionLen {
		return nil, &InvalidQuestionError{Message: fmt.Sprintf("question must be at most %d characters", maxQuestionLen)}
	}

	observability.IncrementAskRequests()

	decision, err := s.limiter.Check(ctx, req.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("check rate limit: %w", err)
	}
	if !decision.Allowed {
		observability.IncrementAskRateLimited()
		return nil, &RateLimitError{Decision: decision}
	}

	if entry, ok := s.cache.Get(ctx, question, req.TenantID); ok {
		observability.IncrementAskCacheHit()
		result := &Result{
			Question:    question,
			Answer:      entry.Answer,
			SQL:         entry.SQLQuery,
			Data:        decodeRows(entry.ResultData),
			Cached:      true,
			SafetyScore: entry.SafetyScore,
		}
		result.ResponseTimeMs = s.since(start)
		s.appendHistory(ctx, req, question, result)
		return result, nil
	}

	translateStart := s.now()
	translation, err := s.translator.Translate(ctx, nl2sql.Request{
		TenantID: req.TenantID,
		Question: question,
		History:  req.History,
		Tables:   s.tables,
	})
	if err != nil {
		return nil, &TranslationError{Err: err}
	}
	observability.ObserveTranslateLatency(s.now().Sub(translateStart))

	rows, sanitized, score, err := s.policy.ExecuteSafe(ctx, translation.SQL, s.executor)
	if err != nil {
		var verr *guard.ValidationError
		if errors.As(err, &verr) {
			observability.IncrementAskRejection(verr.Code)
			s.logger.WarnContext(ctx, "generated query rejected",
				slog.String("tenant_id", req.TenantID),
				slog.String("code", verr.Code),
			)
		}
		return nil, err
	}

	answer := s.synthesizeAnswer(ctx, question, sanitized, rows)
	result := &Result{
		Question:    question,
		Answer:      answer,
		SQL:         sanitized,
		Data:        rows,
		SafetyScore: score,
	}

	s.cache.Put(ctx, question, req.TenantID, answer, sanitized, score, encodeRows(rows))
	result.ResponseTimeMs = s.since(start)
	s.appendHistory(ctx, req, question, result)
	observability.ObserveAskResponse(s.now().Sub(start), score)
	return result, nil
}

func (s *Service) synthesizeAnswer(ctx context.Context, question, sqlText string, rows []map[string]any) string {
	if s.answerer != nil {
		answer, err := s.answerer.Answer(ctx, nl2sql.AnswerRequest{
			Question: question,
			SQL:      sqlText,
			Rows:     rows,
		})
		if err == nil && strings.TrimSpace(answer) != "" {
			return answer
		}
		if err != nil {
			s.logger.WarnContext(ctx, "answer synthesis failed, using row count", slog.String("error", err.Error()))
		}
	}
	if len(rows) == 1 {
		return "The query returned 1 row."
	}
	return fmt.Sprintf("The query returned %d rows.", len(rows))
}

// appendHistory records the exchange for chat sessions. Failures are logged
// and never fail the request.
func (s *Service) appendHistory(ctx context.Context, req Request, question string, result *Result) {
	if s.history == nil || req.SessionID == "" {
		return
	}
	messages := []askstore.Message{
		{TenantID: req.TenantID, SessionID: req.SessionID, Role: "user", Content: question},
		{TenantID: req.TenantID, SessionID: req.SessionID, Role: "assistant", Content: result.Answer, SQLQuery: result.SQL},
	}
	for _, msg := range messages {
		if _, err := s.history.AppendMessage(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "append conversation message failed",
				slog.String("tenant_id", req.TenantID),
				slog.String("session_id", req.SessionID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

func (s *Service) since(start time.Time) int64 {
	elapsed := s.now().Sub(start).Milliseconds()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func encodeRows(rows []map[string]any) json.RawMessage {
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil
	}
	return raw
}

func decodeRows(raw json.RawMessage) []map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil
	}
	return rows
}
