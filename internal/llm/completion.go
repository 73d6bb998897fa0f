package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"topwr_rag/internal/core"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// ErrEmptyResponse is returned when the model produces no message
var ErrEmptyResponse = errors.New("model returned no message")

// Client adapts an eino chat model to the completion capability
type Client struct {
	model   model.BaseChatModel
	timeout time.Duration
}

var _ core.Completion = (*Client)(nil)

// NewClient wraps m. A positive timeout bounds every completion call.
func NewClient(m model.BaseChatModel, timeout time.Duration) *Client {
	return &Client{model: m, timeout: timeout}
}

// Complete sends messages to the model and returns the trimmed reply text
func (c *Client) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}

	event := zerolog.Ctx(ctx).Debug().Dur("latency", time.Since(start))
	if usage := resp.ResponseMeta; usage != nil && usage.Usage != nil {
		event = event.Int("prompt_tokens", usage.Usage.PromptTokens).Int("completion_tokens", usage.Usage.CompletionTokens)
	}
	event.Msg("Completion finished")

	return strings.TrimSpace(resp.Content), nil
}
