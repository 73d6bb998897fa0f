package nodes

import (
	"context"
	"fmt"
	"strings"

	"topwr_rag/internal/core"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/rs/zerolog"
)

// NoQueryError is the validation diagnostic for a missing or empty query
const NoQueryError = "no query to validate"

// GenerateQueryNode produces the first candidate query for a question
type GenerateQueryNode struct {
	llm      core.Completion
	schema   core.SchemaProvider
	template prompt.ChatTemplate
}

// NewGenerateQueryNode creates a new query generation node
func NewGenerateQueryNode(llm core.Completion, schema core.SchemaProvider) *GenerateQueryNode {
	return &GenerateQueryNode{
		llm:      llm,
		schema:   schema,
		template: generateQueryTemplate(),
	}
}

// Execute reads Question and History; writes CandidateQuery.
func (g *GenerateQueryNode) Execute(ctx context.Context, state core.PipelineState) (core.StateUpdate, error) {
	schemaText, err := g.schema.Schema(ctx)
	if err != nil {
		return core.StateUpdate{}, core.NewStepError(core.NodeTypeGenerate, core.ErrCapability, fmt.Errorf("schema: %w", err))
	}

	out, err := complete(ctx, g.llm, g.template, map[string]any{
		varQuestion: state.Question,
		varSchema:   schemaText,
		varHistory:  FormatHistory(state.History),
	})
	if err != nil {
		return core.StateUpdate{}, core.NewStepError(core.NodeTypeGenerate, core.ErrCapability, err)
	}

	query := CleanQuery(out)
	zerolog.Ctx(ctx).Debug().Str("query", query).Msg("Generated query")
	return core.StateUpdate{CandidateQuery: &query}, nil
}

// GetName returns the node name
func (g *GenerateQueryNode) GetName() string {
	return "query_generator"
}

// GetType returns the node type
func (g *GenerateQueryNode) GetType() core.NodeType {
	return core.NodeTypeGenerate
}

// ValidateQueryNode asks the graph database to plan the candidate query
// without running it. It never fails: every problem becomes an invalid result.
type ValidateQueryNode struct {
	executor core.QueryExecutor
}

// NewValidateQueryNode creates a new validation node
func NewValidateQueryNode(executor core.QueryExecutor) *ValidateQueryNode {
	return &ValidateQueryNode{executor: executor}
}

// Execute reads CandidateQuery; writes Validation.
func (v *ValidateQueryNode) Execute(ctx context.Context, state core.PipelineState) (core.StateUpdate, error) {
	result := v.Validate(ctx, state.CandidateQuery)

	log := zerolog.Ctx(ctx)
	if result.Valid {
		log.Debug().Msg("Query is valid")
	} else {
		log.Info().Str("error", result.Error).Int("correction_attempts", state.CorrectionAttempts).Msg("Query is invalid")
	}
	return core.StateUpdate{Validation: &result}, nil
}

// Validate classifies query as valid or invalid
func (v *ValidateQueryNode) Validate(ctx context.Context, query string) (result core.ValidationResult) {
	if strings.TrimSpace(query) == "" {
		return core.ValidationResult{Valid: false, Error: NoQueryError}
	}

	defer func() {
		if r := recover(); r != nil {
			result = core.ValidationResult{Valid: false, Error: fmt.Sprintf("validation error: %v", r)}
		}
	}()

	if err := v.executor.Explain(ctx, query); err != nil {
		return core.ValidationResult{Valid: false, Error: err.Error()}
	}
	return core.ValidationResult{Valid: true}
}

// GetName returns the node name
func (v *ValidateQueryNode) GetName() string {
	return "query_validator"
}

// GetType returns the node type
func (v *ValidateQueryNode) GetType() core.NodeType {
	return core.NodeTypeValidate
}

// CorrectQueryNode rewrites an invalid query using the latest validation error
type CorrectQueryNode struct {
	llm      core.Completion
	schema   core.SchemaProvider
	template prompt.ChatTemplate
}

// NewCorrectQueryNode creates a new query correction node
func NewCorrectQueryNode(llm core.Completion, schema core.SchemaProvider) *CorrectQueryNode {
	return &CorrectQueryNode{
		llm:      llm,
		schema:   schema,
		template: correctQueryTemplate(),
	}
}

// Execute reads Question, CandidateQuery, ValidationError and
// CorrectionAttempts; writes CandidateQuery and CorrectionAttempts.
func (c *CorrectQueryNode) Execute(ctx context.Context, state core.PipelineState) (core.StateUpdate, error) {
	if state.IsQueryValid {
		return core.StateUpdate{}, nil
	}

	schemaText, err := c.schema.Schema(ctx)
	if err != nil {
		return core.StateUpdate{}, core.NewStepError(core.NodeTypeCorrect, core.ErrCapability, fmt.Errorf("schema: %w", err))
	}

	errorMessage := state.ValidationError
	if errorMessage == "" {
		errorMessage = "Unknown error"
	}

	out, err := complete(ctx, c.llm, c.template, map[string]any{
		varQuestion:     state.Question,
		varSchema:       schemaText,
		varQuery:        state.CandidateQuery,
		varErrorMessage: errorMessage,
	})
	if err != nil {
		return core.StateUpdate{}, core.NewStepError(core.NodeTypeCorrect, core.ErrCapability, err)
	}

	corrected := CleanQuery(out)
	attempts := state.CorrectionAttempts + 1

	zerolog.Ctx(ctx).Info().
		Int("attempt", attempts).
		Str("original", state.CandidateQuery).
		Str("corrected", corrected).
		Msg("Query corrected")

	return core.StateUpdate{
		CandidateQuery:     &corrected,
		CorrectionAttempts: &attempts,
	}, nil
}

// GetName returns the node name
func (c *CorrectQueryNode) GetName() string {
	return "query_corrector"
}

// GetType returns the node type
func (c *CorrectQueryNode) GetType() core.NodeType {
	return core.NodeTypeCorrect
}
