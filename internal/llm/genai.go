package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the subset of *genai.Models the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GenAIClient talks to Gemini through the Google GenAI SDK.
type GenAIClient struct {
	models contentGenerator
	model  string
}

// NewGenAIClient creates a Gemini client.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGenAIClient(client.Models, model), nil
}

func newGenAIClient(models contentGenerator, model string) *GenAIClient {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GenAIClient{models: models, model: model}
}

func (c *GenAIClient) request(messages []Message, opts Options) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, turns := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(opts.Temperature)}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, cfg
}

// Complete returns the model's full answer.
func (c *GenAIClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	contents, cfg := c.request(messages, opts)
	resp, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Stream yields the answer as it is generated. The channel closes when the stream ends.
func (c *GenAIClient) Stream(ctx context.Context, messages []Message, opts Options) (<-chan Chunk, error) {
	contents, cfg := c.request(messages, opts)
	out := make(chan Chunk)
	go func() {
		defer close(out)
		for resp, err := range c.models.GenerateContentStream(ctx, c.model, contents, cfg) {
			chunk := Chunk{Err: err}
			if err == nil {
				chunk.Text = resp.Text()
			} else {
				chunk.Err = fmt.Errorf("GenAI stream failed: %w", err)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}
