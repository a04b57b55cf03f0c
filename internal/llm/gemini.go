package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelID: modelID}, nil
}

// prepare configures the model and chat session; the last user message is
// returned separately because Gemini sends it outside the history.
func (c *GeminiClient) prepare(req Request) (*genai.ChatSession, genai.Text, error) {
	if len(req.Messages) == 0 {
		return nil, "", errors.New("llm: gemini requires at least one message")
	}
	model := c.client.GenerativeModel(c.modelID)
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}

	system := append([]string(nil), req.System...)
	if req.JSONSchema != nil {
		model.ResponseMIMEType = "application/json"
		system = append(system, SchemaInstruction(req.JSONSchema))
	}
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem && strings.TrimSpace(msg.Content) != "" {
			system = append(system, msg.Content)
		}
	}
	if systemText := strings.TrimSpace(strings.Join(system, "\n\n")); systemText != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
	}

	cs := model.StartChat()
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		content := strings.TrimSpace(msg.Content)
		if content == "" || msg.Role == RoleSystem {
			continue
		}
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}
	return cs, genai.Text(req.Messages[len(req.Messages)-1].Content), nil
}

// Complete sends a completion request to Gemini and returns the response.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	cs, last, err := c.prepare(req)
	if err != nil {
		return Response{}, err
	}
	resp, err := cs.SendMessage(ctx, last)
	if err != nil {
		return Response{}, fmt.Errorf("llm: gemini completion failed: %w", err)
	}
	text, finish := geminiText(resp)
	if strings.TrimSpace(text) == "" {
		return Response{}, errors.New("llm: gemini returned empty content")
	}

	result := Response{Text: strings.TrimSpace(text), StopReason: finish}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

func (c *GeminiClient) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	cs, last, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	iter := cs.SendMessageStream(ctx, last)

	chunks := make(chan StreamChunk, 32)
	go func() {
		defer close(chunks)
		var usage TokenUsage
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				sendChunk(ctx, chunks, StreamChunk{Done: true, Usage: usage})
				return
			}
			if err != nil {
				sendChunk(ctx, chunks, StreamChunk{Error: fmt.Errorf("llm: gemini stream failed: %w", err), Done: true})
				return
			}
			if resp.UsageMetadata != nil {
				usage = TokenUsage{
					InputTokens:  resp.UsageMetadata.PromptTokenCount,
					OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
					TotalTokens:  resp.UsageMetadata.TotalTokenCount,
				}
			}
			if text, _ := geminiText(resp); text != "" {
				if !sendChunk(ctx, chunks, StreamChunk{Text: text}) {
					return
				}
			}
		}
	}()
	return chunks, nil
}

func geminiText(resp *genai.GenerateContentResponse) (string, string) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", candidate.FinishReason.String()
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), candidate.FinishReason.String()
}

// Close releases resources held by the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
