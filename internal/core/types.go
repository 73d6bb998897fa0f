package core

import (
	"context"
	"time"

	"topwr_rag/pkg"

	"github.com/cloudwego/eino/schema"
)

// Node represents a single processing step in the pipeline. A node reads the
// state it is given and returns only the fields it changes.
type Node interface {
	Execute(ctx context.Context, state PipelineState) (StateUpdate, error)
	GetName() string
	GetType() NodeType
}

// NodeType identifies a pipeline step; it doubles as the state machine's state id
type NodeType string

const (
	NodeTypeGuardrail  NodeType = "guardrail"
	NodeTypeGenerate   NodeType = "generate_query"
	NodeTypeValidate   NodeType = "validate_query"
	NodeTypeCorrect    NodeType = "correct_query"
	NodeTypeRetrieve   NodeType = "retrieve"
	NodeTypeSynthesize NodeType = "synthesize"
	NodeTypeApology    NodeType = "apology"
	NodeTypeSummarize  NodeType = "summarize"
	NodeTypeComplete   NodeType = "complete"

	// NodeTypeSession tags session store failures around the pipeline
	NodeTypeSession NodeType = "session"
)

// Completion turns a formatted prompt into generated text
type Completion interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
}

// SchemaProvider exposes the graph database schema as prompt-ready text
type SchemaProvider interface {
	Schema(ctx context.Context) (string, error)
}

// QueryExecutor runs query strings against the graph database. Explain plans a
// query without running it.
type QueryExecutor interface {
	Execute(ctx context.Context, query string) ([]pkg.Row, error)
	Explain(ctx context.Context, query string) error
}

// SessionStore holds per-session conversation summaries. Get returns an empty
// history for unknown sessions.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) ([]string, error)
	Put(ctx context.Context, sessionID string, history []string) error
}

// SessionResetter is implemented by stores that can drop a session outright.
// Stores without it are reset by writing an empty history.
type SessionResetter interface {
	Delete(ctx context.Context, sessionID string) error
}

// Journal records finished exchanges
type Journal interface {
	Append(ctx context.Context, record pkg.ExchangeRecord) error
}

// PipelineState is the working record of a single invocation. It is owned by
// one Processor run and never shared.
type PipelineState struct {
	RunID     string
	SessionID string
	Question  string

	Route pkg.RoutingDecision

	CandidateQuery string
	HasQuery       bool

	IsQueryValid    bool
	ValidationError string
	Validated       bool

	CorrectionAttempts int

	RetrievedContext []pkg.Row
	HasContext       bool

	Answer    string
	HasAnswer bool

	// History is the session history read at invocation start; the summarizer
	// replaces it wholesale before it is committed.
	History []string
}

// ValidationResult is the validator's classification of the candidate query
type ValidationResult struct {
	Valid bool
	Error string
}

// StateUpdate carries the fields a node changed. Nil fields are untouched.
type StateUpdate struct {
	Route              *pkg.RoutingDecision
	CandidateQuery     *string
	Validation         *ValidationResult
	CorrectionAttempts *int
	RetrievedContext   *[]pkg.Row
	Answer             *string
	History            *[]string
}

// ProcessorInput is the main input for the processor
type ProcessorInput struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// ProcessorOutput is the main output from the processor
type ProcessorOutput struct {
	RunID              string              `json:"run_id"`
	SessionID          string              `json:"session_id"`
	Answer             string              `json:"answer"`
	Route              pkg.RoutingDecision `json:"route"`
	Query              string              `json:"query,omitempty"`
	CorrectionAttempts int                 `json:"correction_attempts"`
	Repair             pkg.RepairOutcome   `json:"repair,omitempty"`
	Rows               int                 `json:"rows"`
	ExecutionPath      []NodeType          `json:"execution_path"`
	ProcessingTime     time.Duration       `json:"processing_time"`
}

// Config holds processor settings
type Config struct {
	MaxCorrectionAttempts int    `yaml:"max_correction_attempts" envconfig:"MAX_CORRECTION_ATTEMPTS"`
	MaxRows               int    `yaml:"max_rows" envconfig:"MAX_ROWS"`
	MaxSteps              int    `yaml:"max_steps" envconfig:"MAX_STEPS"`
	DefaultSessionID      string `yaml:"default_session_id" envconfig:"DEFAULT_SESSION_ID"`
}

// DefaultConfig returns the processor defaults
func DefaultConfig() Config {
	return Config{
		MaxCorrectionAttempts: 5,
		MaxRows:               50,
		MaxSteps:              32,
		DefaultSessionID:      "default",
	}
}

// ApologyAnswer is returned when no valid query could be produced within the
// correction budget.
const ApologyAnswer = "I'm sorry, but I couldn't generate a valid query after multiple attempts. Please try rephrasing your question or ask something else."
