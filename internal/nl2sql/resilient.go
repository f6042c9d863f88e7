package nl2sql

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

type ResilientConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
}

// ResilientTranslator wraps a primary translator with bounded retries, an
// optional one-shot fallback provider, and a per-call timeout so one slow
// upstream cannot hold a request open indefinitely.
type ResilientTranslator struct {
	primary    Translator
	fallback   Translator
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
}

func NewResilientTranslator(primary, fallback Translator, cfg ResilientConfig, logger *slog.Logger) *ResilientTranslator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ResilientTranslator{
		primary:    primary,
		fallback:   fallback,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		timeout:    cfg.Timeout,
	}
}

func (r *ResilientTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.translateWithRetry(ctx, req)
	if err == nil {
		return result, nil
	}
	if r.fallback == nil {
		return Result{}, err
	}

	r.logger.Warn("primary translator exhausted, using fallback", slog.String("error", err.Error()))
	result, fbErr := r.fallback.Translate(ctx, req)
	if fbErr != nil {
		return Result{}, fmt.Errorf("both primary and fallback translators failed: %w", fbErr)
	}
	return result, nil
}

func (r *ResilientTranslator) translateWithRetry(ctx context.Context, req Request) (Result, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		result, err := r.primary.Translate(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == r.maxRetries {
			break
		}

		select {
		case <-time.After(r.backoff(attempt)):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return Result{}, lastErr
}

func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "deadline")
}

func (r *ResilientTranslator) backoff(attempt int) time.Duration {
	base := float64(r.baseDelay) * float64(int(1)<<attempt)
	jitter := rand.Float64() * 0.2 * base
	return time.Duration(base + jitter)
}
