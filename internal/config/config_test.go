package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BEDROCK_MODEL_ID", "")
	t.Setenv("CRISIS_TIMEOUT", "")
	t.Setenv("RESEARCH_SIMILARITY_FLOOR", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.BedrockModelID != "" {
		t.Fatalf("expected default bedrock model empty, got %s", cfg.BedrockModelID)
	}
	if cfg.CrisisTimeout != 8*time.Second {
		t.Fatalf("expected default crisis timeout, got %s", cfg.CrisisTimeout)
	}
	if cfg.ResearchSimilarityFloor != 0.22 {
		t.Fatalf("expected default similarity floor, got %v", cfg.ResearchSimilarityFloor)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("LLM_PROVIDER", " OpenAI ")
	t.Setenv("CRISIS_TIMEOUT", "3s")
	t.Setenv("RESEARCH_MAX_PAPERS", "5")
	t.Setenv("RESEARCH_SIMILARITY_FLOOR", "0.25")
	t.Setenv("INLINE_SUMMARIES", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("expected normalized provider, got %q", cfg.LLMProvider)
	}
	if cfg.CrisisTimeout != 3*time.Second {
		t.Fatalf("expected crisis timeout override, got %s", cfg.CrisisTimeout)
	}
	if cfg.ResearchMaxPapers != 5 || cfg.ResearchSimilarityFloor != 0.25 {
		t.Fatalf("expected retrieval overrides, got %d / %v", cfg.ResearchMaxPapers, cfg.ResearchSimilarityFloor)
	}
	if !cfg.InlineSummaries {
		t.Fatalf("expected inline summaries enabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("RESEARCH_MAX_PAPERS", "many")
	t.Setenv("GENERATION_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.ResearchMaxPapers != 3 {
		t.Fatalf("expected default max papers, got %d", cfg.ResearchMaxPapers)
	}
	if cfg.GenerationTimeout != 60*time.Second {
		t.Fatalf("expected default generation timeout, got %s", cfg.GenerationTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis TLS default false")
	}
}
