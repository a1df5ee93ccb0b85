// Package reconcile computes the discrepancy set between design-side and
// deployment-side claims for a session. Reconciliation is a pure function of
// the current claim set: no caching, no state, identical input producing
// identical output however many times it runs.
package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/saifguard/saifguard/internal/claimstore"
	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/taxonomy"
)

// Engine reconciles a session's claims into classified discrepancies.
type Engine struct {
	store           claimstore.Store
	tax             *taxonomy.Taxonomy
	confidenceFloor float64
}

// New creates an Engine. Claims with confidence below confidenceFloor are
// treated as unknown during classification.
func New(store claimstore.Store, tax *taxonomy.Taxonomy, confidenceFloor float64) *Engine {
	return &Engine{store: store, tax: tax, confidenceFloor: confidenceFloor}
}

// Classify applies the classification table to a (design, deployment) status
// pair. The second return is false when the pair produces no record (both
// sides unknown); escalate is true when the combination warrants raising the
// severity above the control's default.
func Classify(design, deployment model.Status) (class model.Classification, include bool, escalate bool) {
	d, a := design, deployment

	switch {
	case d == model.StatusUnknown && a == model.StatusUnknown:
		// Nothing to report on either side.
		return "", false, false

	case a == model.StatusUnknown:
		// Design asserts something, deployment offers no evidence: the
		// design intent cannot be confirmed as implemented.
		return model.ClassMissingInDeployment, true, false

	case d == model.StatusUnknown && (a == model.StatusSatisfied || a == model.StatusViolated):
		// Deployment does something undocumented; flagged for review.
		return model.ClassMissingInDesign, true, false

	case d == model.StatusSatisfied && a == model.StatusViolated,
		d == model.StatusViolated && a == model.StatusSatisfied:
		return model.ClassConflicting, true, false

	case d == model.StatusSatisfied && a == model.StatusSatisfied:
		// Agreement; reported for the audit trail, not as a risk.
		return model.ClassSatisfied, true, false

	default:
		// Remaining combinations (both violated, not_applicable mismatches)
		// are conflicts with escalated severity.
		return model.ClassConflicting, true, true
	}
}

// Reconcile computes the DiscrepancySet for a session from the latest claim
// per control on each side. Controls with no claim from either source are
// excluded from the output.
func (e *Engine) Reconcile(ctx context.Context, sessionID string) (*model.DiscrepancySet, error) {
	designClaims, err := e.store.Current(ctx, sessionID, model.SourceDesign)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: fetch design claims")
	}
	deployClaims, err := e.store.Current(ctx, sessionID, model.SourceDeployment)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: fetch deployment claims")
	}

	design := model.LatestPerControl(designClaims)
	deploy := model.LatestPerControl(deployClaims)

	set := &model.DiscrepancySet{
		SessionID:    sessionID,
		GeneratedAt:  newestExtractedAt(design, deploy),
		SnapshotHash: model.SnapshotHashOf(design, deploy),
	}

	for _, control := range e.tax.Controls() {
		d := model.StatusUnknown
		a := model.StatusUnknown
		var designEvidence, deployEvidence string

		if c, ok := design[control.ID]; ok {
			d = c.EffectiveStatus(e.confidenceFloor)
			designEvidence = c.Evidence
		}
		if c, ok := deploy[control.ID]; ok {
			a = c.EffectiveStatus(e.confidenceFloor)
			deployEvidence = c.Evidence
		}

		class, include, escalate := Classify(d, a)
		if !include {
			continue
		}

		sev := control.DefaultSeverity
		if escalate {
			sev = escalateSeverity(sev)
		}

		set.Records = append(set.Records, model.Discrepancy{
			ControlID:        control.ID,
			ControlName:      control.Name,
			DesignStatus:     d,
			DeploymentStatus: a,
			Severity:         sev,
			Classification:   class,
			DesignEvidence:   designEvidence,
			DeployEvidence:   deployEvidence,
		})
	}

	set.Sort()
	return set, nil
}

// newestExtractedAt returns the most recent extraction time across both
// sides, so the set timestamp is a function of the claims alone and repeated
// reconciles over an unchanged session produce identical output. Zero when
// the session has no claims.
func newestExtractedAt(sides ...map[string]model.Claim) time.Time {
	var newest time.Time
	for _, side := range sides {
		for _, c := range side {
			if c.ExtractedAt.After(newest) {
				newest = c.ExtractedAt
			}
		}
	}
	return newest
}

// escalateSeverity bumps a severity one rank, capped at critical. Conflicts
// on high/critical controls therefore never fall below the taxonomy default.
func escalateSeverity(s model.Severity) model.Severity {
	switch s {
	case model.SeverityLow:
		return model.SeverityMedium
	case model.SeverityMedium:
		return model.SeverityHigh
	default:
		return model.SeverityCritical
	}
}
