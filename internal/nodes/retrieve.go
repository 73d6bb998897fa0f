package nodes

import (
	"context"

	"topwr_rag/internal/core"
	"topwr_rag/pkg"

	"github.com/rs/zerolog"
)

// RetrieveNode executes the validated query and keeps its rows as context
type RetrieveNode struct {
	executor core.QueryExecutor
	maxRows  int
}

// NewRetrieveNode creates a new retrieval node. maxRows <= 0 keeps every row.
func NewRetrieveNode(executor core.QueryExecutor, maxRows int) *RetrieveNode {
	return &RetrieveNode{executor: executor, maxRows: maxRows}
}

// Execute reads CandidateQuery; writes RetrievedContext. Execution failures
// are fatal and are not routed back into correction.
func (r *RetrieveNode) Execute(ctx context.Context, state core.PipelineState) (core.StateUpdate, error) {
	rows, err := r.executor.Execute(ctx, state.CandidateQuery)
	if err != nil {
		return core.StateUpdate{}, core.NewStepError(core.NodeTypeRetrieve, core.ErrExecution, err)
	}

	total := len(rows)
	if r.maxRows > 0 && total > r.maxRows {
		rows = rows[:r.maxRows]
	}
	if rows == nil {
		rows = []pkg.Row{}
	}

	zerolog.Ctx(ctx).Debug().Int("rows", total).Int("kept", len(rows)).Msg("Retrieved context")
	return core.StateUpdate{RetrievedContext: &rows}, nil
}

// GetName returns the node name
func (r *RetrieveNode) GetName() string {
	return "retriever"
}

// GetType returns the node type
func (r *RetrieveNode) GetType() core.NodeType {
	return core.NodeTypeRetrieve
}
