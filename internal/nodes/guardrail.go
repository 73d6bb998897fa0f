package nodes

import (
	"context"
	"fmt"
	"strings"

	"topwr_rag/internal/core"
	"topwr_rag/pkg"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/rs/zerolog"
)

// Routing tokens the guardrail prompt asks for
const (
	tokenRetrieve = "generate_cypher"
	tokenEnd      = "end"

	routeCutset = "\"'`.,;!:*()[]{}= \n\t"
)

// GuardrailNode decides whether a question needs graph retrieval
type GuardrailNode struct {
	llm      core.Completion
	template prompt.ChatTemplate
}

// NewGuardrailNode creates a new guardrail node
func NewGuardrailNode(llm core.Completion) *GuardrailNode {
	return &GuardrailNode{
		llm:      llm,
		template: guardrailTemplate(),
	}
}

// Execute classifies the question. Reads Question and History; writes Route.
func (g *GuardrailNode) Execute(ctx context.Context, state core.PipelineState) (core.StateUpdate, error) {
	out, err := complete(ctx, g.llm, g.template, map[string]any{
		varQuestion: state.Question,
		varHistory:  FormatHistory(state.History),
	})
	if err != nil {
		return core.StateUpdate{}, core.NewStepError(core.NodeTypeGuardrail, core.ErrCapability, err)
	}

	route, ok := ParseRoute(out)
	if !ok {
		return core.StateUpdate{}, core.NewStepError(core.NodeTypeGuardrail, core.ErrUnroutable,
			fmt.Errorf("classifier output %q", truncate(out, 80)))
	}

	zerolog.Ctx(ctx).Debug().Str("route", route.String()).Msg("Guardrail decision")
	return core.StateUpdate{Route: &route}, nil
}

// GetName returns the node name
func (g *GuardrailNode) GetName() string {
	return "guardrail_classifier"
}

// GetType returns the node type
func (g *GuardrailNode) GetType() core.NodeType {
	return core.NodeTypeGuardrail
}

// ParseRoute maps classifier output to a routing decision. Surrounding quotes,
// punctuation and case are ignored. When the output is a sentence, the first
// word that is a routing token decides.
func ParseRoute(raw string) (pkg.RoutingDecision, bool) {
	token := strings.ToLower(strings.TrimSpace(raw))
	token = strings.Trim(token, routeCutset)

	switch token {
	case tokenRetrieve:
		return pkg.RouteNeedsRetrieval, true
	case tokenEnd:
		return pkg.RouteDirectAnswer, true
	}

	for _, field := range strings.Fields(token) {
		switch strings.Trim(field, routeCutset) {
		case tokenRetrieve:
			return pkg.RouteNeedsRetrieval, true
		case tokenEnd:
			return pkg.RouteDirectAnswer, true
		}
	}

	// Token glued to other text, e.g. "route=generate_cypher".
	if strings.Contains(token, tokenRetrieve) {
		return pkg.RouteNeedsRetrieval, true
	}
	return pkg.RouteUnset, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
