package querycache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Cache wraps a Store with hashing, TTL stamping, and the failure policy the
// orchestrator relies on: lookup and store errors degrade to a miss or a
// dropped write, they never propagate. Administrative operations do return
// errors since their callers want to know.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{store: store, ttl: ttl, logger: logger, now: time.Now}
}

// Get returns the live entry for a question, or false on miss. Store errors
// are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, question, tenantID string) (Entry, bool) {
	hash := Hash(question, tenantID)
	entry, err := c.store.Get(ctx, hash)
	if err != nil {
		if err != ErrNotFound {
			c.logger.WarnContext(ctx, "cache lookup failed", slog.String("query_hash", hash), slog.Any("error", err))
		}
		return Entry{}, false
	}
	return entry, true
}

// Put stores an answered question best-effort. A storage failure is logged
// and swallowed; caching is an optimization, never load-bearing.
func (c *Cache) Put(ctx context.Context, question, tenantID, answer, sqlQuery string, safetyScore int, resultData json.RawMessage) {
	now := c.now()
	entry := Entry{
		QueryHash:   Hash(question, tenantID),
		TenantID:    tenantID,
		Question:    question,
		Answer:      answer,
		SQLQuery:    sqlQuery,
		SafetyScore: safetyScore,
		ResultData:  resultData,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
	}
	if err := c.store.Put(ctx, entry); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", slog.String("query_hash", entry.QueryHash), slog.Any("error", err))
	}
}

func (c *Cache) Invalidate(ctx context.Context, question, tenantID string) error {
	return c.store.Delete(ctx, Hash(question, tenantID))
}

func (c *Cache) ClearExpired(ctx context.Context) (int64, error) {
	return c.store.DeleteExpired(ctx)
}

func (c *Cache) ClearAll(ctx context.Context) error {
	return c.store.DeleteAll(ctx)
}

func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	return c.store.Stats(ctx)
}
