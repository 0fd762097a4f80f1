package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// #region types

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is one chat turn sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options controls sampling for one request. MaxTokens <= 0 leaves the provider default.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Chunk is one piece of a streamed completion. A chunk with Err set ends the stream.
type Chunk struct {
	Text string
	Err  error
}

// #endregion types

// #region client

// Client is a text-generation backend.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
	Stream(ctx context.Context, messages []Message, opts Options) (<-chan Chunk, error)
}

// WithTimeout bounds every request to c by d. A non-positive d returns c unchanged.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return timeoutClient{next: c, timeout: d}
}

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

func (t timeoutClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, messages, opts)
}

// Stream keeps the deadline alive until the stream is drained.
func (t timeoutClient) Stream(ctx context.Context, messages []Message, opts Options) (<-chan Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	in, err := t.next.Stream(ctx, messages, opts)
	if err != nil {
		cancel()
		return nil, err
	}
	out := make(chan Chunk)
	go func() {
		defer cancel()
		defer close(out)
		for c := range in {
			out <- c
		}
	}()
	return out, nil
}

// #endregion client

// #region helpers

// Collect drains a stream into one string.
func Collect(ch <-chan Chunk) (string, error) {
	var b strings.Builder
	for c := range ch {
		if c.Err != nil {
			return b.String(), c.Err
		}
		b.WriteString(c.Text)
	}
	return b.String(), nil
}

// splitSystem separates system messages from the conversation turns.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// #endregion helpers
