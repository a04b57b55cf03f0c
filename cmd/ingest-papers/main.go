// Command ingest-papers embeds a research corpus and loads it into the pgvector
// paper store. The corpus is a JSON array or JSON Lines file, read from disk or
// from every .json/.jsonl object under an S3 prefix.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/wellness-companion/internal/app/bootstrap"
	appconfig "github.com/wolfman30/wellness-companion/internal/config"
	"github.com/wolfman30/wellness-companion/internal/research"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

func main() {
	file := flag.String("file", "", "local corpus file")
	bucket := flag.String("s3-bucket", "", "bucket holding the corpus")
	prefix := flag.String("s3-prefix", "", "object key or prefix within the bucket")
	flag.Parse()

	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	papers, err := loadCorpus(ctx, cfg, *file, *bucket, *prefix)
	if err != nil {
		logger.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}
	logger.Info("corpus loaded", "papers", len(papers))

	ingester, cleanup, err := bootstrap.BuildPaperIngester(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build ingester", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	n, err := ingester.Ingest(ctx, papers)
	if err != nil {
		logger.Error("ingestion failed", "error", err, "ingested", n)
		cleanup()
		os.Exit(1)
	}
	logger.Info("ingestion complete", "ingested", n)
}

func loadCorpus(ctx context.Context, cfg *appconfig.Config, file, bucket, prefix string) ([]research.Paper, error) {
	switch {
	case file != "" && bucket != "":
		return nil, errors.New("use either -file or -s3-bucket, not both")
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return research.DecodePapers(f)
	case bucket != "":
		corpus, err := bootstrap.BuildS3Corpus(ctx, cfg, bucket)
		if err != nil {
			return nil, err
		}
		return corpus.Load(ctx, prefix)
	default:
		return nil, fmt.Errorf("one of -file or -s3-bucket is required")
	}
}
