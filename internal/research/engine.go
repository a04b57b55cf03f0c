package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/wellness-companion/internal/llm"
	"github.com/wolfman30/wellness-companion/internal/observability/metrics"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

var tracer = otel.Tracer("wellness.internal.research")

const (
	DefaultMaxPapers     = 3
	DefaultSimilarity    = 0.22
	DefaultMinOverFetch  = 10
	defaultQueryParallel = 4
)

// ErrNoResults is returned by Retrieve when every expanded query failed.
var ErrNoResults = errors.New("research: all retrieval queries failed")

// Engine runs expansion, retrieval, re-ranking and formatting.
type Engine struct {
	embedder     llm.Embedder
	store        Store
	logger       *logging.Logger
	metrics      *metrics.CompanionMetrics
	floor        float64
	minOverFetch int
	timeout      time.Duration
	parallel     int
}

type Option func(*Engine)

// WithSimilarityFloor sets the minimum similarity a candidate must reach.
func WithSimilarityFloor(floor float64) Option {
	return func(e *Engine) {
		if floor > 0 {
			e.floor = floor
		}
	}
}

// WithMinOverFetch sets the lower bound on candidates fetched per query.
func WithMinOverFetch(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minOverFetch = n
		}
	}
}

// WithTimeout bounds a whole retrieval pass; on expiry no context is returned.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

func WithMetrics(m *metrics.CompanionMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func NewEngine(embedder llm.Embedder, store Store, logger *logging.Logger, opts ...Option) *Engine {
	if embedder == nil {
		panic("research: embedder cannot be nil")
	}
	if store == nil {
		panic("research: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		embedder:     embedder,
		store:        store,
		logger:       logger,
		floor:        DefaultSimilarity,
		minOverFetch: DefaultMinOverFetch,
		timeout:      6 * time.Second,
		parallel:     defaultQueryParallel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type retrieveOptions struct {
	topic string
}

type RetrieveOption func(*retrieveOptions)

// WithTopic keeps only papers whose topic contains topic, case-insensitively.
func WithTopic(topic string) RetrieveOption {
	return func(o *retrieveOptions) {
		o.topic = strings.TrimSpace(topic)
	}
}

// Retrieve returns up to maxPapers ranked papers for message. A failing expanded
// query is skipped; ErrNoResults is returned only when every query failed.
func (e *Engine) Retrieve(ctx context.Context, message string, maxPapers int, opts ...RetrieveOption) ([]ScoredPaper, error) {
	ctx, span := tracer.Start(ctx, "research.retrieve")
	defer span.End()

	var ro retrieveOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if maxPapers <= 0 {
		maxPapers = DefaultMaxPapers
	}
	queries := ExpandQuery(message)
	if len(queries) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	candidates, failures := e.searchAll(ctx, queries, e.overFetch(maxPapers))
	span.SetAttributes(
		attribute.Int("wellness.research.queries", len(queries)),
		attribute.Int("wellness.research.failed_queries", failures),
		attribute.Int("wellness.research.candidates", len(candidates)),
	)
	if failures == len(queries) {
		span.RecordError(ErrNoResults)
		e.metrics.ObserveRetrievalFailure("all_queries")
		return nil, ErrNoResults
	}

	if ro.topic != "" {
		candidates = filterTopic(candidates, ro.topic)
	}
	ranked := Rank(message, candidates)
	if len(ranked) > maxPapers {
		ranked = ranked[:maxPapers]
	}
	e.metrics.ObserveRetrieval(time.Since(start).Seconds(), len(ranked))
	return ranked, nil
}

// GetContext returns the formatted research block for message, or "" when no
// paper qualifies or retrieval failed. It never returns an error.
func (e *Engine) GetContext(ctx context.Context, message string, maxPapers int, opts ...RetrieveOption) string {
	papers, err := e.Retrieve(ctx, message, maxPapers, opts...)
	if err != nil {
		e.logger.Warn("research retrieval failed; continuing without context", "error", err)
		return ""
	}
	return FormatContext(papers)
}

func (e *Engine) overFetch(maxPapers int) int {
	n := maxPapers * 3
	if n < e.minOverFetch {
		n = e.minOverFetch
	}
	return n
}

// searchAll runs every query concurrently and merges by paper id keeping the
// highest similarity seen. It returns the number of queries that failed.
func (e *Engine) searchAll(ctx context.Context, queries []string, limit int) ([]ScoredPaper, int) {
	var (
		mu       sync.Mutex
		merged   = make(map[string]ScoredPaper)
		failures int
	)

	// Per-query errors are recorded rather than returned so one failure does not
	// cancel the sibling searches.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for _, q := range queries {
		g.Go(func() error {
			results, err := e.searchOne(gctx, q, limit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				e.metrics.ObserveRetrievalFailure("query")
				e.logger.Warn("research query failed", "error", err, "query_length", len(q))
				return nil
			}
			for _, r := range results {
				if existing, ok := merged[r.ID]; !ok || r.Similarity > existing.Similarity {
					merged[r.ID] = r
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ScoredPaper, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	return out, failures
}

func (e *Engine) searchOne(ctx context.Context, query string, limit int) ([]ScoredPaper, error) {
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("research: embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("research: embedder returned %d vectors", len(vectors))
	}
	results, err := e.store.Search(ctx, SearchQuery{
		Embedding:     vectors[0],
		MinSimilarity: e.floor,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("research: search: %w", err)
	}
	return results, nil
}

func filterTopic(papers []ScoredPaper, topic string) []ScoredPaper {
	want := strings.ToLower(topic)
	out := papers[:0]
	for _, p := range papers {
		if strings.Contains(strings.ToLower(p.Topic), want) {
			out = append(out, p)
		}
	}
	return out
}
