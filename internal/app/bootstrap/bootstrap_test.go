package bootstrap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/wellness-companion/internal/config"
	"github.com/wolfman30/wellness-companion/internal/notify"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

func offlineConfig() *appconfig.Config {
	return &appconfig.Config{
		LLMProvider:             "openai",
		OpenAIAPIKey:            "sk-test",
		OpenAIModel:             "gpt-4o-mini",
		EmbeddingProvider:       "openai",
		OpenAIEmbeddingModel:    "text-embedding-3-small",
		CrisisTimeout:           time.Second,
		RetrievalTimeout:        time.Second,
		GenerationTimeout:       time.Second,
		SummaryTimeout:          time.Second,
		PersistTimeout:          time.Second,
		ResearchMaxPapers:       3,
		ResearchSimilarityFloor: 0.22,
		ResearchOverFetch:       10,
		ScreeningSessionTTL:     time.Hour,
		UseMemoryQueue:          true,
		SummaryWorkerCount:      1,
		AlertEmailProvider:      "stub",
		RateLimitPerSecond:      5,
		RateLimitBurst:          10,
	}
}

func TestBuildersRequireConfig(t *testing.T) {
	ctx := context.Background()

	_, err := BuildApp(ctx, nil, testLogger(), nil)
	assert.Error(t, err)
	_, err = BuildLLMClient(ctx, nil, testLogger())
	assert.Error(t, err)
	_, err = BuildEmbedder(ctx, nil)
	assert.Error(t, err)
	_, err = BuildEmailSender(ctx, nil, testLogger())
	assert.Error(t, err)
	_, _, err = BuildSummaryWorker(ctx, nil, testLogger(), nil)
	assert.Error(t, err)
}

func TestBuildLLMClientUnknownProvider(t *testing.T) {
	cfg := offlineConfig()
	cfg.LLMProvider = "watson"

	_, err := BuildLLMClient(context.Background(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watson")
}

func TestBuildLLMClientBedrockNeedsModel(t *testing.T) {
	cfg := offlineConfig()
	cfg.LLMProvider = "bedrock"

	_, err := BuildLLMClient(context.Background(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BEDROCK_MODEL_ID")
}

func TestBuildLLMClientIgnoresBrokenFallback(t *testing.T) {
	cfg := offlineConfig()
	cfg.FallbackLLMProvider = "gemini"

	client, err := BuildLLMClient(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestBuildEmbedderRequiresKey(t *testing.T) {
	cfg := offlineConfig()
	cfg.OpenAIAPIKey = ""

	_, err := BuildEmbedder(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuildEmailSenderFallsBackToStub(t *testing.T) {
	cfg := offlineConfig()
	cfg.AlertEmailProvider = "sendgrid"

	sender, err := BuildEmailSender(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &notify.StubEmailSender{}, sender)

	cfg.AlertEmailProvider = ""
	sender, err = BuildEmailSender(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &notify.StubEmailSender{}, sender)
}

func TestBuildRedisClientUnreachable(t *testing.T) {
	cfg := offlineConfig()
	cfg.RedisAddr = "127.0.0.1:1"

	assert.Nil(t, BuildRedisClient(context.Background(), cfg, testLogger(), true))
}

func TestBuildSummaryWorkerRequiresQueue(t *testing.T) {
	_, _, err := BuildSummaryWorker(context.Background(), offlineConfig(), testLogger(), prometheus.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUMMARY_QUEUE_URL")
}

func TestBuildAppServesHealthAndMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := offlineConfig()
	cfg.RedisAddr = mr.Addr()

	app, err := BuildApp(context.Background(), cfg, testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, app.Worker)

	ctx, cancel := context.WithCancel(context.Background())
	app.Start(ctx)
	defer func() {
		cancel()
		app.Close()
	}()

	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildAppInlineSummariesHasNoWorker(t *testing.T) {
	cfg := offlineConfig()
	cfg.InlineSummaries = true

	app, err := BuildApp(context.Background(), cfg, testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Nil(t, app.Worker)
	app.Close()
}
