package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"topwr_rag/internal/metrics"
	"topwr_rag/internal/storage"
	"topwr_rag/pkg"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// requiredNodes are the nodes a Processor needs before it can run. The apology
// step is handled by the processor itself.
var requiredNodes = []NodeType{
	NodeTypeGuardrail,
	NodeTypeGenerate,
	NodeTypeValidate,
	NodeTypeCorrect,
	NodeTypeRetrieve,
	NodeTypeSynthesize,
	NodeTypeSummarize,
}

// Processor drives one question through the pipeline state machine and owns
// the session history around it.
type Processor struct {
	nodes   map[NodeType]Node
	store   SessionStore
	journal Journal
	locks   *storage.KeyedMutex
	config  Config
	logger  zerolog.Logger
}

// Option configures a Processor
type Option func(*Processor)

// WithJournal records every finished exchange in j
func WithJournal(j Journal) Option {
	return func(p *Processor) {
		p.journal = j
	}
}

// WithLogger sets the base logger; runs derive a child logger from it
func WithLogger(l zerolog.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// NewProcessor creates a processor backed by the given session store
func NewProcessor(store SessionStore, config Config, opts ...Option) *Processor {
	defaults := DefaultConfig()
	if config.MaxCorrectionAttempts <= 0 {
		config.MaxCorrectionAttempts = defaults.MaxCorrectionAttempts
	}
	if config.MaxSteps <= 0 {
		config.MaxSteps = defaults.MaxSteps
	}
	if config.DefaultSessionID == "" {
		config.DefaultSessionID = defaults.DefaultSessionID
	}

	p := &Processor{
		nodes:  make(map[NodeType]Node),
		store:  store,
		locks:  storage.NewKeyedMutex(),
		config: config,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddNode registers a node under its type, replacing any previous one
func (p *Processor) AddNode(node Node) error {
	if node == nil {
		return fmt.Errorf("node cannot be nil")
	}
	if node.GetType() == "" {
		return fmt.Errorf("node %q has empty type", node.GetName())
	}
	if node.GetType() == NodeTypeApology || node.GetType() == NodeTypeComplete {
		return fmt.Errorf("node type %q is reserved", node.GetType())
	}

	p.nodes[node.GetType()] = node
	p.logger.Debug().Str("node", node.GetName()).Str("type", string(node.GetType())).Msg("Added node")
	return nil
}

// GetNode retrieves a node by type
func (p *Processor) GetNode(nodeType NodeType) (Node, error) {
	node, exists := p.nodes[nodeType]
	if !exists {
		return nil, fmt.Errorf("node not found: %s", nodeType)
	}
	return node, nil
}

// Validate reports every required node that has not been registered
func (p *Processor) Validate() error {
	var errs []error
	for _, t := range requiredNodes {
		if _, ok := p.nodes[t]; !ok {
			errs = append(errs, fmt.Errorf("node not registered: %s", t))
		}
	}
	return errors.Join(errs...)
}

// Reset forgets the history of a session. It waits for any run on the same
// session to finish first.
func (p *Processor) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = p.config.DefaultSessionID
	}

	unlock, err := p.locks.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("wait for session %q: %w", sessionID, err)
	}
	defer unlock()

	if r, ok := p.store.(SessionResetter); ok {
		err = r.Delete(ctx, sessionID)
	} else {
		err = p.store.Put(ctx, sessionID, []string{})
	}
	if err != nil {
		return NewStepError(NodeTypeSession, ErrCapability, fmt.Errorf("reset session: %w", err))
	}

	p.logger.Info().Str("session_id", sessionID).Msg("Session reset")
	return nil
}

// Invoke answers question within the given session. An empty sessionID uses
// the configured default session.
func (p *Processor) Invoke(ctx context.Context, question, sessionID string) (string, error) {
	out, err := p.Run(ctx, ProcessorInput{Question: question, SessionID: sessionID})
	if err != nil {
		return "", err
	}
	return out.Answer, nil
}

// Run executes the pipeline for one question and commits the summarized
// history back to the session store.
func (p *Processor) Run(ctx context.Context, input ProcessorInput) (*ProcessorOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = p.config.DefaultSessionID
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	unlock, err := p.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("wait for session %q: %w", sessionID, err)
	}
	defer unlock()

	startTime := time.Now()
	runID := uuid.NewString()
	log := p.logger.With().Str("run_id", runID).Str("session_id", sessionID).Logger()
	ctx = log.WithContext(ctx)

	history, err := p.store.Get(ctx, sessionID)
	if err != nil {
		return nil, p.fail(&log, pkg.RouteUnset, NewStepError(NodeTypeSession, ErrCapability, fmt.Errorf("load session: %w", err)))
	}

	state := PipelineState{
		RunID:     runID,
		SessionID: sessionID,
		Question:  question,
		History:   slices.Clone(history),
	}

	log.Info().Int("history_entries", len(history)).Msg("Starting pipeline")

	var executionPath []NodeType
	current := NodeTypeGuardrail
	for steps := 0; current != NodeTypeComplete; steps++ {
		if steps >= p.config.MaxSteps {
			return nil, p.fail(&log, state.Route, NewStepError(current, ErrInvariant,
				fmt.Errorf("exceeded %d steps, path %v", p.config.MaxSteps, executionPath)))
		}
		executionPath = append(executionPath, current)

		update, err := p.executeNode(ctx, current, state)
		if err != nil {
			return nil, p.fail(&log, state.Route, err)
		}
		if err := applyUpdate(&state, current, update); err != nil {
			return nil, p.fail(&log, state.Route, NewStepError(current, ErrInvariant, err))
		}

		next, err := nextNode(current, &state, p.config.MaxCorrectionAttempts)
		if err != nil {
			return nil, p.fail(&log, state.Route, NewStepError(current, ErrInvariant, err))
		}
		log.Debug().Str("from", string(current)).Str("to", string(next)).Msg("Transition")
		current = next
	}

	if err := p.store.Put(ctx, sessionID, state.History); err != nil {
		return nil, p.fail(&log, state.Route, NewStepError(NodeTypeSession, ErrCapability, fmt.Errorf("commit session: %w", err)))
	}

	output := &ProcessorOutput{
		RunID:              runID,
		SessionID:          sessionID,
		Answer:             state.Answer,
		Route:              state.Route,
		CorrectionAttempts: state.CorrectionAttempts,
		Rows:               len(state.RetrievedContext),
		ExecutionPath:      executionPath,
		ProcessingTime:     time.Since(startTime),
	}
	if state.Route == pkg.RouteNeedsRetrieval {
		output.Query = state.CandidateQuery
		output.Repair = pkg.RepairExhausted
		if state.IsQueryValid {
			output.Repair = pkg.RepairSucceeded
		}
		metrics.CorrectionAttempts.Observe(float64(state.CorrectionAttempts))
	}

	outcome := "answered"
	if output.Repair == pkg.RepairExhausted {
		outcome = "apology"
	}
	metrics.Invocations.WithLabelValues(state.Route.String(), outcome).Inc()
	metrics.InvocationDuration.WithLabelValues(state.Route.String()).Observe(output.ProcessingTime.Seconds())

	p.record(ctx, &log, output, question)

	log.Info().
		Str("route", state.Route.String()).
		Str("outcome", outcome).
		Int("correction_attempts", state.CorrectionAttempts).
		Int("rows", output.Rows).
		Dur("processing_time", output.ProcessingTime).
		Msg("Pipeline completed")

	return output, nil
}

// executeNode runs a single node. The apology step is resolved here because
// termination decisions belong to the processor.
func (p *Processor) executeNode(ctx context.Context, nodeType NodeType, state PipelineState) (StateUpdate, error) {
	switch nodeType {
	case NodeTypeApology:
		zerolog.Ctx(ctx).Warn().
			Int("correction_attempts", state.CorrectionAttempts).
			Str("validation_error", state.ValidationError).
			Msg("Correction budget exhausted")
		answer := ApologyAnswer
		return StateUpdate{Answer: &answer}, nil

	case NodeTypeRetrieve:
		if !state.Validated || !state.IsQueryValid {
			return StateUpdate{}, NewStepError(nodeType, ErrInvariant,
				fmt.Errorf("refusing to execute unvalidated query after %d corrections", state.CorrectionAttempts))
		}
	}

	node, err := p.GetNode(nodeType)
	if err != nil {
		return StateUpdate{}, NewStepError(nodeType, ErrInvariant, err)
	}

	start := time.Now()
	update, err := node.Execute(ctx, state)
	metrics.NodeDuration.WithLabelValues(string(nodeType)).Observe(time.Since(start).Seconds())
	if err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			return StateUpdate{}, stepErr
		}
		return StateUpdate{}, NewStepError(nodeType, ErrCapability, err)
	}
	return update, nil
}

func (p *Processor) fail(log *zerolog.Logger, route pkg.RoutingDecision, err error) error {
	node, kind := "unknown", "unknown"
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		node = string(stepErr.Node)
		if stepErr.Kind != nil {
			kind = stepErr.Kind.Error()
		}
	}
	metrics.NodeFailures.WithLabelValues(node, kind).Inc()
	metrics.Invocations.WithLabelValues(route.String(), "error").Inc()
	log.Error().Err(err).Str("node", node).Msg("Pipeline failed")
	return err
}

func (p *Processor) record(ctx context.Context, log *zerolog.Logger, output *ProcessorOutput, question string) {
	if p.journal == nil {
		return
	}
	record := pkg.ExchangeRecord{
		SessionID:          output.SessionID,
		RunID:              output.RunID,
		Question:           question,
		Route:              output.Route,
		Query:              output.Query,
		CorrectionAttempts: output.CorrectionAttempts,
		Repair:             output.Repair,
		Rows:               output.Rows,
		Answer:             output.Answer,
		Timestamp:          time.Now().UTC(),
	}
	if err := p.journal.Append(ctx, record); err != nil {
		log.Warn().Err(err).Msg("Failed to append exchange to journal")
	}
}
