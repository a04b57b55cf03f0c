package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wellness-companion/internal/llm"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

const ingestBatchSize = 16

// ErrInvalidPaper is returned for papers missing an id, title or content.
var ErrInvalidPaper = errors.New("research: paper requires id, title and content")

// PaperWriter persists a paper with its embedding.
type PaperWriter interface {
	Insert(ctx context.Context, p Paper, embedding []float32) error
}

// Ingester embeds papers and writes them to a store.
type Ingester struct {
	embedder llm.Embedder
	writer   PaperWriter
	logger   *logging.Logger
}

func NewIngester(embedder llm.Embedder, writer PaperWriter, logger *logging.Logger) *Ingester {
	if embedder == nil {
		panic("research: embedder cannot be nil")
	}
	if writer == nil {
		panic("research: paper writer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ingester{embedder: embedder, writer: writer, logger: logger}
}

// Ingest validates every paper up front, then embeds and writes them in batches.
// It returns how many papers were written before any failure.
func (i *Ingester) Ingest(ctx context.Context, papers []Paper) (int, error) {
	ctx, span := tracer.Start(ctx, "research.ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("wellness.research.papers", len(papers)))

	for n, p := range papers {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Content) == "" {
			return 0, fmt.Errorf("%w (index %d)", ErrInvalidPaper, n)
		}
	}

	written := 0
	for start := 0; start < len(papers); start += ingestBatchSize {
		batch := papers[start:min(start+ingestBatchSize, len(papers))]
		texts := make([]string, len(batch))
		for n, p := range batch {
			texts[n] = embeddingText(p)
		}
		vectors, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			span.RecordError(err)
			return written, fmt.Errorf("research: embed papers: %w", err)
		}
		if len(vectors) != len(batch) {
			return written, errors.New("research: embedding response size mismatch")
		}
		for n, p := range batch {
			if err := i.writer.Insert(ctx, p, vectors[n]); err != nil {
				span.RecordError(err)
				return written, err
			}
			written++
		}
	}
	i.logger.Info("research papers ingested", "count", written)
	return written, nil
}

func embeddingText(p Paper) string {
	return p.Title + "\n" + p.Summary + "\n" + p.Content
}
