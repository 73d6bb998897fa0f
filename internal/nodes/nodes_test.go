package nodes

import (
	"context"
	"errors"
	"testing"

	"topwr_rag/internal/core"
	"topwr_rag/internal/mock"
	"topwr_rag/pkg"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(text string) *mock.Completion {
	return &mock.Completion{CompleteFn: func(context.Context, []*schema.Message) (string, error) {
		return text, nil
	}}
}

func staticSchema(text string) *mock.SchemaProvider {
	return &mock.SchemaProvider{SchemaFn: func(context.Context) (string, error) { return text, nil }}
}

func TestParseRoute(t *testing.T) {
	tests := []struct {
		raw  string
		want pkg.RoutingDecision
		ok   bool
	}{
		{"generate_cypher", pkg.RouteNeedsRetrieval, true},
		{"  Generate_Cypher\n", pkg.RouteNeedsRetrieval, true},
		{`"generate_cypher"`, pkg.RouteNeedsRetrieval, true},
		{"Output: generate_cypher", pkg.RouteNeedsRetrieval, true},
		{"end", pkg.RouteDirectAnswer, true},
		{"END.", pkg.RouteDirectAnswer, true},
		{"'end'", pkg.RouteDirectAnswer, true},
		{"The answer is: end", pkg.RouteDirectAnswer, true},
		{"", pkg.RouteUnset, false},
		{"maybe", pkg.RouteUnset, false},
		{"endless", pkg.RouteUnset, false},
		{"end (not generate_cypher)", pkg.RouteDirectAnswer, true},
		{"end, no need to generate_cypher", pkg.RouteDirectAnswer, true},
		{"use generate_cypher, not end", pkg.RouteNeedsRetrieval, true},
		{"route=generate_cypher", pkg.RouteNeedsRetrieval, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseRoute(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "MATCH (n) RETURN n", "MATCH (n) RETURN n"},
		{"fenced", "```cypher\nMATCH (n) RETURN n\n```", "MATCH (n) RETURN n"},
		{"fenced without language", "```\nMATCH (n) RETURN n;\n```", "MATCH (n) RETURN n"},
		{"prose around fence", "Here you go:\n```cypher\nMATCH (n) RETURN n\n```\nHope it helps", "MATCH (n) RETURN n"},
		{"label", "Cypher query: MATCH (n) RETURN n;", "MATCH (n) RETURN n"},
		{"inline backticks", "`MATCH (n) RETURN n`", "MATCH (n) RETURN n"},
		{"quoted property at end", "MATCH (c:Course) RETURN c.`room number`", "MATCH (c:Course) RETURN c.`room number`"},
		{"quoted alias at end", "MATCH (c:Course) RETURN c.code AS `kod kursu`;", "MATCH (c:Course) RETURN c.code AS `kod kursu`"},
		{"fenced quoted property", "```cypher\nMATCH (c:Course) RETURN c.`room number`\n```", "MATCH (c:Course) RETURN c.`room number`"},
		{"fenced quoted alias", "```\nMATCH (c:Course) RETURN c.code AS `kod kursu`\n```", "MATCH (c:Course) RETURN c.code AS `kod kursu`"},
		{"quoted label at start", "`Course` nodes: MATCH (c:`Course`) RETURN c", "`Course` nodes: MATCH (c:`Course`) RETURN c"},
		{"only whitespace", "  \n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanQuery(tt.raw))
		})
	}
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, NoHistory, FormatHistory(nil))
	assert.Equal(t, NoHistory, FormatHistory([]string{"", "  "}))
	assert.Equal(t, "first\nsecond", FormatHistory([]string{"first", " ", "second"}))
}

func TestFormatContext(t *testing.T) {
	text, err := FormatContext(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", text)

	text, err = FormatContext([]pkg.Row{{"name": "W4", "dean": "Anna Nowak"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"W4","dean":"Anna Nowak"}]`, text)
}

func TestGuardrailNode(t *testing.T) {
	update, err := NewGuardrailNode(reply("generate_cypher")).Execute(context.Background(), core.PipelineState{Question: "Who teaches INZ001?"})
	require.NoError(t, err)
	require.NotNil(t, update.Route)
	assert.Equal(t, pkg.RouteNeedsRetrieval, *update.Route)

	_, err = NewGuardrailNode(reply("I cannot decide")).Execute(context.Background(), core.PipelineState{Question: "q"})
	assert.ErrorIs(t, err, core.ErrUnroutable)

	failing := &mock.Completion{CompleteFn: func(context.Context, []*schema.Message) (string, error) {
		return "", errors.New("timeout")
	}}
	_, err = NewGuardrailNode(failing).Execute(context.Background(), core.PipelineState{Question: "q"})
	assert.ErrorIs(t, err, core.ErrCapability)
}

func TestGuardrailPromptCarriesHistory(t *testing.T) {
	llm := reply("end")
	_, err := NewGuardrailNode(llm).Execute(context.Background(), core.PipelineState{
		Question: "And who is its dean?",
		History:  []string{"The user asked about faculty W4."},
	})
	require.NoError(t, err)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Equal(t, schema.System, calls[0][0].Role)
	assert.Contains(t, calls[0][1].Content, "The user asked about faculty W4.")
	assert.Contains(t, calls[0][1].Content, "And who is its dean?")
}

func TestGenerateQueryNode(t *testing.T) {
	llm := reply("```cypher\nMATCH (c:Course) RETURN c.code;\n```")
	node := NewGenerateQueryNode(llm, staticSchema("Course {code: STRING}"))

	update, err := node.Execute(context.Background(), core.PipelineState{Question: "List course codes"})
	require.NoError(t, err)
	require.NotNil(t, update.CandidateQuery)
	assert.Equal(t, "MATCH (c:Course) RETURN c.code", *update.CandidateQuery)
	assert.Contains(t, llm.Calls()[0][1].Content, "Course {code: STRING}")

	broken := &mock.SchemaProvider{SchemaFn: func(context.Context) (string, error) { return "", errors.New("neo4j down") }}
	_, err = NewGenerateQueryNode(llm, broken).Execute(context.Background(), core.PipelineState{Question: "q"})
	assert.ErrorIs(t, err, core.ErrCapability)
}

func TestValidateQueryNode(t *testing.T) {
	explainErr := errors.New("Neo.ClientError.Statement.SyntaxError: Invalid input 'RETRUN'")
	exec := &mock.QueryExecutor{ExplainFn: func(_ context.Context, q string) error {
		switch q {
		case "MATCH (n) RETURN n":
			return nil
		case "PANIC":
			panic("driver bug")
		}
		return explainErr
	}}
	node := NewValidateQueryNode(exec)
	ctx := context.Background()

	assert.Equal(t, core.ValidationResult{Valid: true}, node.Validate(ctx, "MATCH (n) RETURN n"))
	assert.Equal(t, core.ValidationResult{Valid: false, Error: explainErr.Error()}, node.Validate(ctx, "MATCH (n) RETRUN n"))
	assert.Equal(t, core.ValidationResult{Valid: false, Error: NoQueryError}, node.Validate(ctx, "  "))

	panicked := node.Validate(ctx, "PANIC")
	assert.False(t, panicked.Valid)
	assert.Contains(t, panicked.Error, "driver bug")

	update, err := node.Execute(ctx, core.PipelineState{CandidateQuery: "MATCH (n) RETRUN n"})
	require.NoError(t, err)
	require.NotNil(t, update.Validation)
	assert.False(t, update.Validation.Valid)
}

func TestCorrectQueryNode(t *testing.T) {
	llm := reply("Cypher: MATCH (n) RETURN n;")
	node := NewCorrectQueryNode(llm, staticSchema("schema text"))

	update, err := node.Execute(context.Background(), core.PipelineState{
		Question:           "q",
		CandidateQuery:     "MATCH (n) RETRUN n",
		ValidationError:    "Invalid input 'RETRUN'",
		CorrectionAttempts: 2,
	})
	require.NoError(t, err)
	require.NotNil(t, update.CandidateQuery)
	require.NotNil(t, update.CorrectionAttempts)
	assert.Equal(t, "MATCH (n) RETURN n", *update.CandidateQuery)
	assert.Equal(t, 3, *update.CorrectionAttempts)

	prompt := llm.Calls()[0][1].Content
	assert.Contains(t, prompt, "MATCH (n) RETRUN n")
	assert.Contains(t, prompt, "Invalid input 'RETRUN'")
	assert.Contains(t, prompt, "schema text")
}

func TestCorrectQueryNodeEdgeCases(t *testing.T) {
	llm := reply("MATCH (n) RETURN n")
	node := NewCorrectQueryNode(llm, staticSchema("schema"))

	update, err := node.Execute(context.Background(), core.PipelineState{IsQueryValid: true, CandidateQuery: "MATCH (n) RETURN n"})
	require.NoError(t, err)
	assert.Equal(t, core.StateUpdate{}, update)
	assert.Empty(t, llm.Calls())

	_, err = node.Execute(context.Background(), core.PipelineState{CandidateQuery: "bad"})
	require.NoError(t, err)
	assert.Contains(t, llm.Calls()[0][1].Content, "Unknown error")
}

func TestRetrieveNode(t *testing.T) {
	rows := []pkg.Row{{"i": 1}, {"i": 2}, {"i": 3}}
	exec := &mock.QueryExecutor{ExecuteFn: func(context.Context, string) ([]pkg.Row, error) { return rows, nil }}

	update, err := NewRetrieveNode(exec, 2).Execute(context.Background(), core.PipelineState{CandidateQuery: "q"})
	require.NoError(t, err)
	require.NotNil(t, update.RetrievedContext)
	assert.Equal(t, rows[:2], *update.RetrievedContext)

	update, err = NewRetrieveNode(exec, 0).Execute(context.Background(), core.PipelineState{CandidateQuery: "q"})
	require.NoError(t, err)
	assert.Len(t, *update.RetrievedContext, 3)

	failing := &mock.QueryExecutor{ExecuteFn: func(context.Context, string) ([]pkg.Row, error) {
		return nil, errors.New("Neo.TransientError.Transaction.Terminated")
	}}
	_, err = NewRetrieveNode(failing, 2).Execute(context.Background(), core.PipelineState{CandidateQuery: "q"})
	assert.ErrorIs(t, err, core.ErrExecution)
}

func TestResponseNode(t *testing.T) {
	llm := reply(" Anna Nowak is the dean of W4. ")
	node := NewResponseNode(llm)

	update, err := node.Execute(context.Background(), core.PipelineState{
		Question:         "Who is the dean of W4?",
		RetrievedContext: []pkg.Row{{"dean": "Anna Nowak"}},
		HasContext:       true,
	})
	require.NoError(t, err)
	require.NotNil(t, update.Answer)
	assert.Equal(t, "Anna Nowak is the dean of W4.", *update.Answer)
	assert.Contains(t, llm.Calls()[0][1].Content, `[{"dean":"Anna Nowak"}]`)

	_, err = node.Execute(context.Background(), core.PipelineState{Question: "What is a dean?"})
	require.NoError(t, err)
	assert.Contains(t, llm.Calls()[1][1].Content, "Context: "+NoContext)
}

func TestSummarizeNode(t *testing.T) {
	llm := reply("The user asked who the dean of W4 is; it is Anna Nowak.")
	update, err := NewSummarizeNode(llm).Execute(context.Background(), core.PipelineState{
		Question: "Who is the dean of W4?",
		Answer:   "Anna Nowak.",
		History:  []string{"Earlier the user asked about W4."},
	})
	require.NoError(t, err)
	require.NotNil(t, update.History)
	assert.Equal(t, []string{"The user asked who the dean of W4 is; it is Anna Nowak."}, *update.History)

	prompt := llm.Calls()[0][1].Content
	assert.Contains(t, prompt, "Earlier the user asked about W4.")
	assert.Contains(t, prompt, "Anna Nowak.")

	update, err = NewSummarizeNode(reply("  ")).Execute(context.Background(), core.PipelineState{Question: "q", Answer: "a"})
	require.NoError(t, err)
	assert.Empty(t, *update.History)
}
