package research

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxCorpusLine bounds one JSONL record; full-text papers can be large.
const maxCorpusLine = 4 << 20

// DecodePapers reads a corpus written either as a JSON array or as JSON Lines.
func DecodePapers(r io.Reader) ([]Paper, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("research: read corpus: %w", err)
	}

	if first == '[' {
		var papers []Paper
		if err := json.NewDecoder(br).Decode(&papers); err != nil {
			return nil, fmt.Errorf("research: decode corpus array: %w", err)
		}
		return papers, nil
	}

	var papers []Paper
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64<<10), maxCorpusLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var p Paper
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("research: decode corpus line %d: %w", line, err)
		}
		papers = append(papers, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("research: read corpus: %w", err)
	}
	return papers, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// S3API is the subset of the S3 client used by S3Corpus.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Corpus loads paper corpora stored as .json or .jsonl objects in a bucket.
type S3Corpus struct {
	client S3API
	bucket string
}

func NewS3Corpus(client S3API, bucket string) *S3Corpus {
	if client == nil {
		panic("research: s3 client cannot be nil")
	}
	return &S3Corpus{client: client, bucket: bucket}
}

// Load reads every corpus object under prefix, in key order. A prefix naming a
// single object loads just that object.
func (c *S3Corpus) Load(ctx context.Context, prefix string) ([]Paper, error) {
	keys, err := c.keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var papers []Paper
	for _, key := range keys {
		batch, err := c.loadObject(ctx, key)
		if err != nil {
			return nil, err
		}
		papers = append(papers, batch...)
	}
	return papers, nil
}

func (c *S3Corpus) keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys  []string
		token *string
	)
	for {
		out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("research: s3 list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, ".json") || strings.HasSuffix(key, ".jsonl") {
				keys = append(keys, key)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("research: no .json or .jsonl objects under s3://%s/%s", c.bucket, prefix)
	}
	return keys, nil
}

func (c *S3Corpus) loadObject(ctx context.Context, key string) ([]Paper, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("research: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	papers, err := DecodePapers(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return papers, nil
}
