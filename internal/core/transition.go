package core

import (
	"fmt"

	"topwr_rag/pkg"
)

// nextNode is the pipeline's transition function. It depends only on the node
// that just ran and the state after that node's update was applied.
func nextNode(current NodeType, state *PipelineState, maxAttempts int) (NodeType, error) {
	switch current {
	case NodeTypeGuardrail:
		switch state.Route {
		case pkg.RouteDirectAnswer:
			return NodeTypeSynthesize, nil
		case pkg.RouteNeedsRetrieval:
			return NodeTypeGenerate, nil
		}
		return "", fmt.Errorf("%w: guardrail left route %s", ErrInvariant, state.Route)

	case NodeTypeGenerate:
		return NodeTypeValidate, nil

	case NodeTypeValidate:
		switch {
		case state.IsQueryValid:
			return NodeTypeRetrieve, nil
		case state.CorrectionAttempts < maxAttempts:
			return NodeTypeCorrect, nil
		default:
			return NodeTypeApology, nil
		}

	case NodeTypeCorrect:
		return NodeTypeValidate, nil

	case NodeTypeRetrieve:
		return NodeTypeSynthesize, nil

	case NodeTypeSynthesize, NodeTypeApology:
		return NodeTypeSummarize, nil

	case NodeTypeSummarize:
		return NodeTypeComplete, nil
	}

	return "", fmt.Errorf("%w: no transition from %q", ErrInvariant, current)
}

// applyUpdate folds a node's update into the state, enforcing the per-field
// write rules.
func applyUpdate(state *PipelineState, node NodeType, u StateUpdate) error {
	if u.Route != nil {
		if state.Route != pkg.RouteUnset {
			return fmt.Errorf("%w: route already set to %s", ErrInvariant, state.Route)
		}
		state.Route = *u.Route
	}

	if u.CandidateQuery != nil {
		state.CandidateQuery = *u.CandidateQuery
		state.HasQuery = true
	}

	if u.Validation != nil {
		state.IsQueryValid = u.Validation.Valid
		state.ValidationError = u.Validation.Error
		state.Validated = true
	}

	if u.CorrectionAttempts != nil {
		if *u.CorrectionAttempts < state.CorrectionAttempts {
			return fmt.Errorf("%w: %s lowered correction attempts from %d to %d",
				ErrInvariant, node, state.CorrectionAttempts, *u.CorrectionAttempts)
		}
		state.CorrectionAttempts = *u.CorrectionAttempts
		// a corrected query has not been validated yet
		state.IsQueryValid = false
		state.Validated = false
	}

	if u.RetrievedContext != nil {
		state.RetrievedContext = *u.RetrievedContext
		state.HasContext = true
	}

	if u.Answer != nil {
		state.Answer = *u.Answer
		state.HasAnswer = true
	}

	if u.History != nil {
		state.History = *u.History
	}

	return nil
}
