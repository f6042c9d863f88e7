package config

import (
	"log/slog"
	"testing"
	"time"
)

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("fleetquery-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Cache.Backend != "postgres" {
		t.Fatalf("Cache.Backend = %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if cfg.RateLimit.MaxRequests != 10 {
		t.Fatalf("RateLimit.MaxRequests = %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Fatalf("RateLimit.Window = %v", cfg.RateLimit.Window)
	}
	if cfg.Guard.MaxQueryLength != 10000 {
		t.Fatalf("Guard.MaxQueryLength = %d", cfg.Guard.MaxQueryLength)
	}
	if cfg.Guard.MinSafetyScore != 50 {
		t.Fatalf("Guard.MinSafetyScore = %d", cfg.Guard.MinSafetyScore)
	}
	if len(cfg.Guard.AllowedTables) == 0 {
		t.Fatal("Guard.AllowedTables should have defaults")
	}
	if cfg.AI.Provider != "openai" {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.Timeout != 60*time.Second {
		t.Fatalf("AI.Timeout = %v", cfg.AI.Timeout)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"FLEETQUERY_PROFILE": "prod"})
	cfg, err := Load("fleetquery-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"FLEETQUERY_HTTP_ADDR":              ":9090",
		"FLEETQUERY_CACHE_TTL":              "90s",
		"FLEETQUERY_RATELIMIT_MAX_REQUESTS": "25",
		"FLEETQUERY_RATELIMIT_BACKEND":      "redis",
		"FLEETQUERY_REDIS_ADDR":             "redis:6379",
		"FLEETQUERY_GUARD_ALLOWED_TABLES":   "tool_changes, inventory",
		"FLEETQUERY_AI_PROVIDER":            "gemini",
	})
	cfg, err := Load("fleetquery-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9090" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Fatalf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if cfg.RateLimit.MaxRequests != 25 {
		t.Fatalf("RateLimit.MaxRequests = %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Backend != "redis" {
		t.Fatalf("RateLimit.Backend = %q", cfg.RateLimit.Backend)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if len(cfg.Guard.AllowedTables) != 2 || cfg.Guard.AllowedTables[0] != "tool_changes" {
		t.Fatalf("Guard.AllowedTables = %v", cfg.Guard.AllowedTables)
	}
	if cfg.AI.Provider != "gemini" {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{"FLEETQUERY_PROFILE": "staging"})
	if _, err := Load("fleetquery-api", lookup); err == nil {
		t.Fatal("expected error for invalid profile")
	}
}

func TestLoadRejectsInvalidBackends(t *testing.T) {
	cases := map[string]map[string]string{
		"cache":     {"FLEETQUERY_CACHE_BACKEND": "dynamo"},
		"ratelimit": {"FLEETQUERY_RATELIMIT_BACKEND": "zookeeper"},
		"ai":        {"FLEETQUERY_AI_PROVIDER": "llama"},
	}
	for name, env := range cases {
		if _, err := Load("fleetquery-api", mapLookup(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	lookup := mapLookup(map[string]string{"FLEETQUERY_CACHE_TTL": "five minutes"})
	if _, err := Load("fleetquery-api", lookup); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
