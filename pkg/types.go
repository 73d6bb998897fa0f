package pkg

import (
	"time"
)

// Shared domain types for the question answering pipeline

// RoutingDecision is the guardrail's verdict for a question
type RoutingDecision string

const (
	RouteUnset          RoutingDecision = ""
	RouteNeedsRetrieval RoutingDecision = "needs_retrieval"
	RouteDirectAnswer   RoutingDecision = "direct_answer"
)

func (r RoutingDecision) String() string {
	if r == RouteUnset {
		return "unset"
	}
	return string(r)
}

// Row is a single result record returned by the graph database, keyed by column name
type Row map[string]any

// RepairOutcome tags how the validate/correct loop finished
type RepairOutcome string

const (
	RepairNotRun    RepairOutcome = ""
	RepairSucceeded RepairOutcome = "success"
	RepairExhausted RepairOutcome = "exhausted"
)

// ExchangeRecord is one question/answer exchange as written to the journal
type ExchangeRecord struct {
	SessionID          string          `json:"session_id"`
	RunID              string          `json:"run_id"`
	Question           string          `json:"question"`
	Route              RoutingDecision `json:"route"`
	Query              string          `json:"query,omitempty"`
	CorrectionAttempts int             `json:"correction_attempts"`
	Repair             RepairOutcome   `json:"repair,omitempty"`
	Rows               int             `json:"rows"`
	Answer             string          `json:"answer"`
	Timestamp          time.Time       `json:"timestamp"`
}
