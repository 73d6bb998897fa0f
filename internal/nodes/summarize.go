package nodes

import (
	"context"
	"strings"

	"topwr_rag/internal/core"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/rs/zerolog"
)

// SummarizeNode folds the latest exchange into a new running summary that
// replaces the stored history.
type SummarizeNode struct {
	llm      core.Completion
	template prompt.ChatTemplate
}

// NewSummarizeNode creates a new history summarization node
func NewSummarizeNode(llm core.Completion) *SummarizeNode {
	return &SummarizeNode{
		llm:      llm,
		template: summaryTemplate(),
	}
}

// Execute reads History, Question and Answer; writes History.
func (s *SummarizeNode) Execute(ctx context.Context, state core.PipelineState) (core.StateUpdate, error) {
	out, err := complete(ctx, s.llm, s.template, map[string]any{
		varHistory:  FormatHistory(state.History),
		varQuestion: state.Question,
		varAnswer:   state.Answer,
	})
	if err != nil {
		return core.StateUpdate{}, core.NewStepError(core.NodeTypeSummarize, core.ErrCapability, err)
	}

	history := []string{}
	if summary := strings.TrimSpace(out); summary != "" {
		history = append(history, summary)
	}

	zerolog.Ctx(ctx).Debug().Int("summary_length", len(out)).Msg("History summarized")
	return core.StateUpdate{History: &history}, nil
}

// GetName returns the node name
func (s *SummarizeNode) GetName() string {
	return "history_summarizer"
}

// GetType returns the node type
func (s *SummarizeNode) GetType() core.NodeType {
	return core.NodeTypeSummarize
}
