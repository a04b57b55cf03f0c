package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string

	// HTTP edge. An empty AuthJWTSecret disables user authentication.
	AuthJWTSecret      string
	AdminToken         string
	RateLimitPerSecond float64
	RateLimitBurst     int

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// LLM providers. LLMProvider selects the primary: bedrock, openai or gemini.
	LLMProvider          string
	FallbackLLMProvider  string
	BedrockModelID       string
	BedrockEmbeddingID   string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIEmbeddingModel string
	GeminiAPIKey         string
	GeminiModel          string
	EmbeddingProvider    string
	CrisisModelID        string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Per-call timeouts for external dependencies.
	CrisisTimeout     time.Duration
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
	SummaryTimeout    time.Duration
	PersistTimeout    time.Duration

	// Retrieval tuning.
	ResearchMaxPapers       int
	ResearchSimilarityFloor float64
	ResearchOverFetch       int
	ResearchUseMemoryStore  bool
	ScreeningSessionTTL     time.Duration
	SummaryQueueURL         string
	UseMemoryQueue          bool
	SummaryWorkerCount      int
	InlineSummaries         bool

	// Care-team alerting.
	AlertEmailProvider string
	AlertEmailTo       string
	SendGridAPIKey     string
	AlertFromEmail     string
	AlertFromName      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 1),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LLMProvider:          strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		FallbackLLMProvider:  strings.ToLower(strings.TrimSpace(getEnv("FALLBACK_LLM_PROVIDER", ""))),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingID:   getEnv("BEDROCK_EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		EmbeddingProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMBEDDING_PROVIDER", "bedrock"))),
		CrisisModelID:        getEnv("CRISIS_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CrisisTimeout:     getEnvAsDuration("CRISIS_TIMEOUT", 8*time.Second),
		RetrievalTimeout:  getEnvAsDuration("RETRIEVAL_TIMEOUT", 6*time.Second),
		GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 60*time.Second),
		SummaryTimeout:    getEnvAsDuration("SUMMARY_TIMEOUT", 30*time.Second),
		PersistTimeout:    getEnvAsDuration("PERSIST_TIMEOUT", 5*time.Second),

		ResearchMaxPapers:       getEnvAsInt("RESEARCH_MAX_PAPERS", 3),
		ResearchSimilarityFloor: getEnvAsFloat("RESEARCH_SIMILARITY_FLOOR", 0.22),
		ResearchOverFetch:       getEnvAsInt("RESEARCH_OVERFETCH", 10),
		ResearchUseMemoryStore:  getEnvAsBool("RESEARCH_USE_MEMORY_STORE", false),
		ScreeningSessionTTL:     getEnvAsDuration("SCREENING_SESSION_TTL", 24*time.Hour),
		SummaryQueueURL:         getEnv("SUMMARY_QUEUE_URL", ""),
		UseMemoryQueue:          getEnvAsBool("USE_MEMORY_QUEUE", true),
		SummaryWorkerCount:      getEnvAsInt("SUMMARY_WORKER_COUNT", 2),
		InlineSummaries:         getEnvAsBool("INLINE_SUMMARIES", false),

		AlertEmailProvider: strings.ToLower(strings.TrimSpace(getEnv("ALERT_EMAIL_PROVIDER", "stub"))),
		AlertEmailTo:       getEnv("ALERT_EMAIL_TO", ""),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		AlertFromEmail:     getEnv("ALERT_FROM_EMAIL", ""),
		AlertFromName:      getEnv("ALERT_FROM_NAME", "Wellness Companion Safety"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
