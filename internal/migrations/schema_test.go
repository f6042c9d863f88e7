package migrations

import (
	"strings"
	"testing"
)

func TestQueryCacheMigrationContainsRequiredColumns(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_query_cache.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE TABLE query_cache",
		"query_hash TEXT PRIMARY KEY",
		"tenant_id TEXT NOT NULL",
		"safety_score INTEGER NOT NULL DEFAULT 0",
		"result_data JSONB",
		"expires_at TIMESTAMPTZ NOT NULL",
		"hit_count BIGINT NOT NULL DEFAULT 0",
		"CREATE INDEX idx_query_cache_expires_at",
	}
	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestConversationMessagesMigrationContainsRequiredColumns(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000002_conversation_messages.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE TABLE conversation_messages",
		"message_id UUID PRIMARY KEY",
		"session_id TEXT NOT NULL",
		"role IN ('user', 'assistant')",
		"CREATE INDEX idx_conversation_messages_session",
	}
	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	runner, err := NewRunner()
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	if len(runner.migrations) != 2 {
		t.Fatalf("len(migrations) = %d, want 2", len(runner.migrations))
	}
	if runner.migrations[0].Version != 1 || runner.migrations[1].Version != 2 {
		t.Fatalf("unexpected embedded versions: %+v", runner.migrations)
	}
}
