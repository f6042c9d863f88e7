// Package querycache is a content-addressed cache for answered natural
// language questions. Keys are a SHA-256 digest over the normalized question
// and the tenant, so rephrasings that only differ in case or spacing hit the
// same entry while tenants never see each other's answers.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
)

var ErrNotFound = errors.New("cache entry not found")

// Entry is one cached question/answer row. An entry past ExpiresAt is
// logically absent even if it still physically exists; stores honor that on
// the read path and Sweep reclaims it later.
type Entry struct {
	QueryHash   string
	TenantID    string
	Question    string
	Answer      string
	SQLQuery    string
	SafetyScore int
	ResultData  json.RawMessage
	CreatedAt   time.Time
	ExpiresAt   time.Time
	HitCount    int64
}

type Stats struct {
	TotalEntries   int64   `json:"total_entries"`
	TotalHits      int64   `json:"total_hits"`
	AvgHitCount    float64 `json:"avg_hit_count"`
	ExpiredEntries int64   `json:"expired_entries"`
}

// Store is the persistence boundary. Get must treat expired rows as absent
// and increment the hit count of live rows; Put upserts by hash and resets
// the hit count.
type Store interface {
	Get(ctx context.Context, queryHash string) (Entry, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, queryHash string) error
	DeleteExpired(ctx context.Context) (int64, error)
	DeleteAll(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

var innerWhitespaceRe = regexp.MustCompile(`\s+`)

func normalizeQuestion(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	return innerWhitespaceRe.ReplaceAllString(normalized, " ")
}

// Hash derives the content address for a question within a tenant. The unit
// separator cannot occur in either operand after normalization, so the
// concatenation is unambiguous.
func Hash(question, tenantID string) string {
	payload := normalizeQuestion(question) + "\x1f" + strings.TrimSpace(tenantID)
	digest := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(digest[:])
}
