package crisis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellness-companion/internal/llm"
)

type stubLLMClient struct {
	text  string
	err   error
	delay time.Duration
	calls int
	last  llm.Request
}

func (s *stubLLMClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.calls++
	s.last = req
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Text: s.text}, nil
}

func (s *stubLLMClient) CompleteStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func TestDetector_UsesModelAssessment(t *testing.T) {
	client := &stubLLMClient{text: "```json\n{\"riskLevel\":\"HIGH\",\"requiresScreening\":false,\"reasoning\":\" active ideation \",\"detectedIndicators\":[\"thinking of ways to do it\",\" \"]}\n```"}
	d := NewDetector(client, "classifier-model", nil)

	got := d.Detect(context.Background(), "I've been thinking of ways to do it")

	assert.Equal(t, RiskHigh, got.RiskLevel)
	assert.True(t, got.RequiresScreening, "screening flag follows the level, not the model")
	assert.Equal(t, SourceModel, got.Source)
	assert.Equal(t, "active ideation", got.Reasoning)
	assert.Equal(t, []string{"thinking of ways to do it"}, got.DetectedIndicators)

	require.Equal(t, 1, client.calls)
	assert.Equal(t, "classifier-model", client.last.Model)
	assert.NotNil(t, client.last.JSONSchema)
	assert.Equal(t, float32(0), client.last.Temperature)
}

func TestDetector_IdiomStaysNone(t *testing.T) {
	client := &stubLLMClient{text: `{"riskLevel":"none","requiresScreening":false,"reasoning":"idiom","detectedIndicators":[]}`}
	d := NewDetector(client, "m", nil)

	got := d.Detect(context.Background(), "this headache is killing me")

	assert.Equal(t, RiskNone, got.RiskLevel)
	assert.False(t, got.RequiresScreening)
}

func TestDetector_FallsBackOnProviderError(t *testing.T) {
	client := &stubLLMClient{err: errors.New("throttled")}
	d := NewDetector(client, "m", nil)

	got := d.Detect(context.Background(), "I've been thinking about ending it all tonight, I have the pills ready")

	assert.Equal(t, RiskImminent, got.RiskLevel)
	assert.True(t, got.RequiresScreening)
	assert.Equal(t, SourceKeyword, got.Source)
}

func TestDetector_FallsBackOnMalformedReply(t *testing.T) {
	tests := []string{
		"I am not able to help with that.",
		`{"riskLevel":"severe","requiresScreening":true}`,
		`{"riskLevel":`,
	}
	for _, text := range tests {
		d := NewDetector(&stubLLMClient{text: text}, "m", nil)
		got := d.Detect(context.Background(), "I want to die")
		assert.Equal(t, RiskModerate, got.RiskLevel, text)
		assert.Equal(t, SourceKeyword, got.Source, text)
	}
}

func TestDetector_FallsBackOnTimeout(t *testing.T) {
	client := &stubLLMClient{delay: time.Second, text: `{"riskLevel":"none"}`}
	d := NewDetector(client, "m", nil, WithTimeout(20*time.Millisecond))

	start := time.Now()
	got := d.Detect(context.Background(), "I keep thinking about suicide")

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, RiskHigh, got.RiskLevel)
	assert.Equal(t, SourceKeyword, got.Source)
}

func TestDetector_NilClientIsKeywordOnly(t *testing.T) {
	d := NewDetector(nil, "", nil)

	got := d.Detect(context.Background(), "I'm better off dead")

	assert.Equal(t, RiskModerate, got.RiskLevel)
	assert.Equal(t, SourceKeyword, got.Source)
}

func TestDetector_EmptyMessageSkipsModel(t *testing.T) {
	client := &stubLLMClient{text: `{"riskLevel":"high"}`}
	d := NewDetector(client, "m", nil)

	got := d.Detect(context.Background(), "  ")

	assert.Equal(t, RiskNone, got.RiskLevel)
	assert.Zero(t, client.calls)
}
