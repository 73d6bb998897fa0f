package nodes

import (
	"context"
	"fmt"
	"strings"

	"topwr_rag/internal/core"
	"topwr_rag/pkg"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/rs/zerolog"
)

// ResponseNode synthesizes the final answer from context or general knowledge
type ResponseNode struct {
	llm      core.Completion
	template prompt.ChatTemplate
}

// NewResponseNode creates a new answer synthesis node
func NewResponseNode(llm core.Completion) *ResponseNode {
	return &ResponseNode{
		llm:      llm,
		template: answerTemplate(),
	}
}

// Execute reads Question, RetrievedContext and History; writes Answer.
func (r *ResponseNode) Execute(ctx context.Context, state core.PipelineState) (core.StateUpdate, error) {
	contextText := NoContext
	if state.HasContext {
		text, err := FormatContext(state.RetrievedContext)
		if err != nil {
			return core.StateUpdate{}, core.NewStepError(core.NodeTypeSynthesize, core.ErrInvariant, err)
		}
		contextText = text
	}

	out, err := complete(ctx, r.llm, r.template, map[string]any{
		varQuestion: state.Question,
		varContext:  contextText,
		varHistory:  FormatHistory(state.History),
	})
	if err != nil {
		return core.StateUpdate{}, core.NewStepError(core.NodeTypeSynthesize, core.ErrCapability, err)
	}

	answer := strings.TrimSpace(out)
	zerolog.Ctx(ctx).Debug().Int("answer_length", len(answer)).Bool("has_context", state.HasContext).Msg("Answer generated")
	return core.StateUpdate{Answer: &answer}, nil
}

// GetName returns the node name
func (r *ResponseNode) GetName() string {
	return "answer_synthesizer"
}

// GetType returns the node type
func (r *ResponseNode) GetType() core.NodeType {
	return core.NodeTypeSynthesize
}

// FormatContext renders retrieved rows as JSON for the answer prompt
func FormatContext(rows []pkg.Row) (string, error) {
	if rows == nil {
		rows = []pkg.Row{}
	}
	data, err := sonic.ConfigStd.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("marshal context rows: %w", err)
	}
	return string(data), nil
}
