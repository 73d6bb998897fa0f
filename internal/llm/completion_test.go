package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatModel struct {
	generate func(ctx context.Context, in []*schema.Message) (*schema.Message, error)
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return f.generate(ctx, in)
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestClientComplete(t *testing.T) {
	var got []*schema.Message
	client := NewClient(&fakeChatModel{generate: func(_ context.Context, in []*schema.Message) (*schema.Message, error) {
		got = in
		return schema.AssistantMessage("  generate_cypher \n", nil), nil
	}}, 0)

	out, err := client.Complete(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "generate_cypher", out)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Content)
}

func TestClientCompleteErrors(t *testing.T) {
	boom := errors.New("boom")
	client := NewClient(&fakeChatModel{generate: func(context.Context, []*schema.Message) (*schema.Message, error) {
		return nil, boom
	}}, 0)
	_, err := client.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, boom)

	client = NewClient(&fakeChatModel{generate: func(context.Context, []*schema.Message) (*schema.Message, error) {
		return nil, nil
	}}, 0)
	_, err = client.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClientCompleteTimeout(t *testing.T) {
	client := NewClient(&fakeChatModel{generate: func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, 10*time.Millisecond)

	_, err := client.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewChatModelUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), Config{Provider: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported llm provider")
}

func TestNeedsAPIKey(t *testing.T) {
	assert.True(t, Config{Provider: ProviderOpenRouter}.NeedsAPIKey())
	assert.False(t, Config{Provider: "Ollama"}.NeedsAPIKey())
}
