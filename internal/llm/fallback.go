package llm

import (
	"context"

	"github.com/wolfman30/wellness-companion/pkg/logging"
)

// FallbackClient wraps a primary Client with a fallback provider.
// If the primary fails, the same request is retried against the fallback.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *logging.Logger
}

// NewFallbackClient creates a fallback-enabled client. A nil fallback means the
// primary is used alone.
func NewFallbackClient(primary, fallback Client, logger *logging.Logger) *FallbackClient {
	if primary == nil {
		panic("llm: primary client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)
	if c.fallback == nil || ctx.Err() != nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, forFallback(req))
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Response{}, fallbackErr
	}

	c.logger.Info("fallback LLM succeeded after primary failure")
	return fallbackResp, nil
}

// CompleteStream only falls back when the primary stream cannot be opened; once
// chunks have been delivered a mid-stream failure is reported to the caller.
func (c *FallbackClient) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	chunks, err := c.primary.CompleteStream(ctx, req)
	if err == nil {
		return chunks, nil
	}
	c.logger.Warn("primary LLM stream failed to open, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)
	if c.fallback == nil || ctx.Err() != nil {
		return nil, err
	}
	return c.fallback.CompleteStream(ctx, forFallback(req))
}

// forFallback clears the model, which names a primary-provider model, so the
// fallback uses its own default.
func forFallback(req Request) Request {
	req.Model = ""
	return req
}
