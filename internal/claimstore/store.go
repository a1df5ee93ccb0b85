// Package claimstore is the append-only, per-session repository of control
// claims. All implementations enforce the same contract: appends validate
// every claim's control against the taxonomy and apply atomically (no partial
// batch), claim history is never rewritten, and Current returns the most
// recent claim per control per source.
package claimstore

import (
	"context"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/taxonomy"
)

// Store defines the persistence contract for session claims.
type Store interface {
	// Append atomically adds a batch of claims to a session. A claim whose
	// control is absent from the taxonomy rejects the whole batch with
	// *model.UnknownControlError and leaves the store unchanged.
	Append(ctx context.Context, sessionID string, claims []model.Claim) error

	// Current returns the most recent claim per control for the session,
	// ordered by control ID. A non-empty source filters to that source;
	// an empty source returns the latest claim per (control, source) pair.
	Current(ctx context.Context, sessionID string, source model.Source) ([]model.Claim, error)

	// History returns every claim ever appended for the session, in append
	// order. Superseded claims are included; the store never deletes history
	// short of a purge.
	History(ctx context.Context, sessionID string) ([]model.Claim, error)

	// Purge removes all claims for a session. Called on idle eviction.
	Purge(ctx context.Context, sessionID string) error

	// Migrate prepares backing storage.
	Migrate(ctx context.Context) error

	Close() error
}

// validateBatch checks every claim in a batch against the taxonomy before
// anything is written. Returning the first unresolved control keeps the
// error actionable.
func validateBatch(tax *taxonomy.Taxonomy, claims []model.Claim) error {
	for _, c := range claims {
		if !tax.Resolve(c.ControlID) {
			return &model.UnknownControlError{ControlID: c.ControlID}
		}
	}
	return nil
}
