package nodes

import (
	"fmt"

	"topwr_rag/internal/core"
)

// Register adds the full question-answering node set to p
func Register(p *core.Processor, llm core.Completion, schema core.SchemaProvider, executor core.QueryExecutor, maxRows int) error {
	all := []core.Node{
		NewGuardrailNode(llm),
		NewGenerateQueryNode(llm, schema),
		NewValidateQueryNode(executor),
		NewCorrectQueryNode(llm, schema),
		NewRetrieveNode(executor, maxRows),
		NewResponseNode(llm),
		NewSummarizeNode(llm),
	}
	for _, n := range all {
		if err := p.AddNode(n); err != nil {
			return fmt.Errorf("register %s: %w", n.GetName(), err)
		}
	}
	return p.Validate()
}
