package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wellness-companion/internal/api/router"
	"github.com/wolfman30/wellness-companion/internal/audit"
	"github.com/wolfman30/wellness-companion/internal/companion"
	appconfig "github.com/wolfman30/wellness-companion/internal/config"
	"github.com/wolfman30/wellness-companion/internal/crisis"
	"github.com/wolfman30/wellness-companion/internal/cssrs"
	"github.com/wolfman30/wellness-companion/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/wellness-companion/internal/http/middleware"
	"github.com/wolfman30/wellness-companion/internal/llm"
	"github.com/wolfman30/wellness-companion/internal/memory"
	"github.com/wolfman30/wellness-companion/internal/notify"
	"github.com/wolfman30/wellness-companion/internal/observability/metrics"
	"github.com/wolfman30/wellness-companion/internal/research"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

// App is the wired API process.
type App struct {
	Handler      http.Handler
	Orchestrator *companion.Orchestrator
	// Worker consumes summary jobs in-process when the memory queue is used.
	Worker *memory.Worker

	closers []func()
}

// Start launches in-process background consumers; they stop when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	if a.Worker != nil {
		a.Worker.Start(ctx)
	}
}

// Close drains background work and releases connections. Cancel the context
// passed to Start first.
func (a *App) Close() {
	a.Orchestrator.Wait()
	if a.Worker != nil {
		a.Worker.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// connections holds the shared connections; nil members mean the in-process fallback is used.
type connections struct {
	pool  *pgxpool.Pool
	sqlDB *sql.DB
	redis *redis.Client
}

func buildInfra(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*connections, []func(), error) {
	var closers []func()
	pool, err := BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if pool != nil {
		closers = append(closers, pool.Close)
	}
	sqlDB, err := BuildSQLDB(cfg)
	if err != nil {
		runClosers(closers)
		return nil, nil, err
	}
	if sqlDB != nil {
		closers = append(closers, func() { _ = sqlDB.Close() })
	}
	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		closers = append(closers, func() { _ = redisClient.Close() })
	}
	if pool == nil {
		logger.Warn("DATABASE_URL not set; papers, summaries and chat turns are kept in memory")
	}
	return &connections{pool: pool, sqlDB: sqlDB, redis: redisClient}, closers, nil
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// BuildApp wires the API process from config. reg receives the service metrics
// and backs /metrics; nil uses the default registry.
func BuildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg *prometheus.Registry) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var (
		registerer     prometheus.Registerer = prometheus.DefaultRegisterer
		metricsHandler                       = promhttp.Handler()
	)
	if reg != nil {
		registerer = reg
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	m := metrics.NewCompanionMetrics(registerer)

	client, err := BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	conns, closers, err := buildInfra(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &App{closers: closers}
	fail := func(err error) (*App, error) {
		runClosers(app.closers)
		return nil, err
	}

	opts := []companion.Option{
		companion.WithMetrics(m),
		companion.WithMaxPapers(cfg.ResearchMaxPapers),
		companion.WithGenerationTimeout(cfg.GenerationTimeout),
		companion.WithBackgroundTimeout(cfg.PersistTimeout),
	}

	var papers *handlers.PapersHandler
	engine, ingester, err := buildResearch(ctx, cfg, conns, m, logger)
	if err != nil {
		logger.Warn("research retrieval disabled", "error", err)
	} else {
		opts = append(opts, companion.WithResearch(engine))
		papers = handlers.NewPapersHandler(ingester, logger)
	}

	summarizer := buildSummarizer(cfg, client, conns, m, logger)
	opts = append(opts, companion.WithSummaries(summarizer))
	scheduler, worker, err := buildScheduler(ctx, cfg, summarizer, logger)
	if err != nil {
		return fail(err)
	}
	app.Worker = worker
	opts = append(opts, companion.WithSummaryScheduler(scheduler))

	var sessions cssrs.SessionStore = cssrs.NewMemorySessionStore()
	if conns.redis != nil {
		sessions = cssrs.NewRedisSessionStore(conns.redis, cfg.ScreeningSessionTTL)
	}
	opts = append(opts, companion.WithScreener(cssrs.NewService(sessions, logger, cssrs.WithServiceMetrics(m))))

	sender, err := BuildEmailSender(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	opts = append(opts, companion.WithAlerter(notify.NewAlertService(sender, cfg.AlertEmailTo, logger)))

	var turns interface {
		companion.TurnStore
		handlers.TurnReader
	} = companion.NewMemoryTurnStore()
	if conns.sqlDB != nil {
		turns = companion.NewSQLTurnStore(conns.sqlDB)
	}
	opts = append(opts, companion.WithTurnStore(turns))

	var safetyEvents *handlers.SafetyEventsHandler
	if conns.sqlDB != nil {
		auditor := audit.NewService(conns.sqlDB)
		opts = append(opts, companion.WithAuditor(auditor))
		safetyEvents = handlers.NewSafetyEventsHandler(auditor, logger)
	}

	detector := crisis.NewDetector(client, cfg.CrisisModelID, logger,
		crisis.WithTimeout(cfg.CrisisTimeout),
		crisis.WithMetrics(m),
	)
	// Each provider falls back to its configured default model.
	app.Orchestrator = companion.NewOrchestrator(detector, client, "", logger, opts...)

	app.Handler = router.New(&router.Config{
		Logger:             logger,
		Companion:          handlers.NewCompanionHandler(app.Orchestrator, turns, httpmiddleware.NewOriginPolicy(cfg.CORSAllowedOrigins), logger),
		Papers:             papers,
		SafetyEvents:       safetyEvents,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthSecret:         cfg.AuthJWTSecret,
		AdminToken:         cfg.AdminToken,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})
	return app, nil
}

func buildResearch(ctx context.Context, cfg *appconfig.Config, conns *connections, m *metrics.CompanionMetrics, logger *logging.Logger) (*research.Engine, *research.Ingester, error) {
	embedder, err := BuildEmbedder(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var (
		store  research.Store
		writer research.PaperWriter
	)
	if conns.pool != nil && !cfg.ResearchUseMemoryStore {
		pg := research.NewPGVectorStore(conns.pool)
		store, writer = pg, pg
	} else {
		mem := research.NewMemoryStore(embedder)
		store, writer = mem, mem
		logger.Info("research papers kept in memory; ingest them through /admin/papers")
	}

	engine := research.NewEngine(embedder, store, logger,
		research.WithSimilarityFloor(cfg.ResearchSimilarityFloor),
		research.WithMinOverFetch(cfg.ResearchOverFetch),
		research.WithTimeout(cfg.RetrievalTimeout),
		research.WithMetrics(m),
	)
	return engine, research.NewIngester(embedder, writer, logger), nil
}

func buildSummarizer(cfg *appconfig.Config, client llm.Client, conns *connections, m *metrics.CompanionMetrics, logger *logging.Logger) *memory.Summarizer {
	var store memory.Store = memory.NewInMemoryStore()
	if conns.pool != nil {
		store = memory.NewPostgresStore(conns.pool)
	}
	if conns.redis != nil {
		store = memory.NewCachedStore(store, conns.redis, logger)
	}
	return memory.NewSummarizer(client, "", store, logger,
		memory.WithSummaryTimeout(cfg.SummaryTimeout),
		memory.WithSummarizerMetrics(m),
	)
}

// buildScheduler picks how summary jobs run: inline, on SQS for a separate
// worker process, or on an in-process queue with a local worker.
func buildScheduler(ctx context.Context, cfg *appconfig.Config, summarizer *memory.Summarizer, logger *logging.Logger) (memory.Scheduler, *memory.Worker, error) {
	if cfg.InlineSummaries {
		logger.Info("conversation summaries run inline")
		return memory.NewInlineScheduler(summarizer), nil, nil
	}
	if !cfg.UseMemoryQueue && cfg.SummaryQueueURL != "" {
		queue, err := buildSQSQueue(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("conversation summaries dispatched to sqs", "queue_url", cfg.SummaryQueueURL)
		return memory.NewDispatcher(queue, logger), nil, nil
	}
	queue := memory.NewMemoryQueue(256)
	worker := memory.NewWorker(summarizer, queue, logger, memory.WithWorkerCount(cfg.SummaryWorkerCount))
	logger.Info("conversation summaries dispatched to in-process queue", "workers", cfg.SummaryWorkerCount)
	return memory.NewDispatcher(queue, logger), worker, nil
}

func buildSQSQueue(ctx context.Context, cfg *appconfig.Config) (*memory.SQSQueue, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return memory.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SummaryQueueURL), nil
}

// BuildSummaryWorker wires the standalone SQS summary consumer.
func BuildSummaryWorker(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) (*memory.Worker, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.SummaryQueueURL == "" {
		return nil, nil, fmt.Errorf("bootstrap: SUMMARY_QUEUE_URL is required for the summary worker")
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	client, err := BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	conns, closers, err := buildInfra(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { runClosers(closers) }
	if conns.pool == nil {
		cleanup()
		return nil, nil, fmt.Errorf("bootstrap: DATABASE_URL is required for the summary worker")
	}
	queue, err := buildSQSQueue(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	summarizer := buildSummarizer(cfg, client, conns, metrics.NewCompanionMetrics(reg), logger)
	worker := memory.NewWorker(summarizer, queue, logger, memory.WithWorkerCount(cfg.SummaryWorkerCount))
	return worker, cleanup, nil
}

// BuildPaperIngester wires the ingestion path used by cmd/ingest-papers. Papers
// are only worth ingesting into a durable store, so a database is required.
func BuildPaperIngester(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*research.Ingester, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	embedder, err := BuildEmbedder(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	pool, err := BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if pool == nil {
		return nil, nil, fmt.Errorf("bootstrap: DATABASE_URL is required to ingest papers")
	}
	return research.NewIngester(embedder, research.NewPGVectorStore(pool), logger), pool.Close, nil
}

// BuildS3Corpus wires the S3 paper corpus reader.
func BuildS3Corpus(ctx context.Context, cfg *appconfig.Config, bucket string) (*research.S3Corpus, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return research.NewS3Corpus(s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// LocalStack and MinIO endpoints need path-style addressing.
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	}), bucket), nil
}
