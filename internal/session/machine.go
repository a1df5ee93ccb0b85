// Package session owns the conversational state machine: one durable session
// per user, per-session serialization of claim appends, and the dispatch from
// a user turn to extraction, reconciliation, or clarification.
package session

import (
	"github.com/saifguard/saifguard/internal/model"
)

// State reflects how much evidence a session holds. Either source may arrive
// first; once both have arrived the session is reconciled-capable and stays
// there, new claims only refresh the comparison.
type State string

const (
	StateIdle              State = "idle"
	StateDesignPartial     State = "design_partial"
	StateDeploymentPartial State = "deployment_partial"
	StateReconciled        State = "reconciled"
)

// Next advances the state after claims from the given source were appended.
func Next(cur State, source model.Source) State {
	switch cur {
	case StateIdle:
		if source == model.SourceDeployment {
			return StateDeploymentPartial
		}
		return StateDesignPartial
	case StateDesignPartial:
		if source == model.SourceDeployment {
			return StateReconciled
		}
		return StateDesignPartial
	case StateDeploymentPartial:
		if source == model.SourceDesign {
			return StateReconciled
		}
		return StateDeploymentPartial
	default:
		return StateReconciled
	}
}
