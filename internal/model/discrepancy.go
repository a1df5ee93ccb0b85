package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Classification buckets a control's design/deployment disagreement.
type Classification string

const (
	// ClassMissingInDeployment means the design asserts something about the
	// control but the deployment offers no evidence either way.
	ClassMissingInDeployment Classification = "missing_in_deployment"

	// ClassMissingInDesign means the deployment does something the design
	// never documented; flagged for review, not assumed benign.
	ClassMissingInDesign Classification = "missing_in_design"

	// ClassConflicting means the two sources disagree.
	ClassConflicting Classification = "conflicting"

	// ClassSatisfied means both sources agree the control is satisfied.
	// Reported for the audit trail, never as a risk.
	ClassSatisfied Classification = "satisfied"
)

// Discrepancy is the reconciliation verdict for a single control. Derived,
// never persisted: it is always recomputed from the current claim set.
type Discrepancy struct {
	ControlID        string         `json:"control_id"`
	ControlName      string         `json:"control_name,omitempty"`
	DesignStatus     Status         `json:"design_status"`
	DeploymentStatus Status         `json:"deployment_status"`
	Severity         Severity       `json:"severity"`
	Classification   Classification `json:"classification"`
	DesignEvidence   string         `json:"design_evidence,omitempty"`
	DeployEvidence   string         `json:"deployment_evidence,omitempty"`
}

// NeedsRemediation reports whether the record represents an actionable gap.
func (d Discrepancy) NeedsRemediation() bool {
	return d.Classification != ClassSatisfied
}

// DiscrepancySet is the full reconciliation output for one session.
// SnapshotHash fingerprints the latest-claim inputs so callers outside the
// core can cache renderings keyed by it. GeneratedAt is the extraction time
// of the newest contributing claim (zero for an empty session), keeping the
// whole set a pure function of the claim inputs.
type DiscrepancySet struct {
	SessionID    string        `json:"session_id"`
	GeneratedAt  time.Time     `json:"generated_at"`
	SnapshotHash string        `json:"snapshot_hash"`
	Records      []Discrepancy `json:"records"`
}

// Sort orders records deterministically: severity descending, then control ID
// ascending. Reconcile output is sorted before it is returned so repeated
// calls over the same claims are byte-identical.
func (s *DiscrepancySet) Sort() {
	sort.Slice(s.Records, func(i, j int) bool {
		a, b := s.Records[i], s.Records[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.ControlID < b.ControlID
	})
}

// RemediationCount returns the number of records that need remediation.
func (s *DiscrepancySet) RemediationCount() int {
	n := 0
	for _, r := range s.Records {
		if r.NeedsRemediation() {
			n++
		}
	}
	return n
}

// CountByClassification tallies records per classification.
func (s *DiscrepancySet) CountByClassification() map[Classification]int {
	counts := make(map[Classification]int, 4)
	for _, r := range s.Records {
		counts[r.Classification]++
	}
	return counts
}

// SnapshotHashOf fingerprints the latest-per-control claims feeding a
// reconciliation. Claims are folded in control-ID order so the hash is
// independent of map iteration.
func SnapshotHashOf(design, deployment map[string]Claim) string {
	ids := make([]string, 0, len(design)+len(deployment))
	seen := make(map[string]bool, len(design)+len(deployment))
	for id := range design {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range deployment {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		if c, ok := design[id]; ok {
			fmt.Fprintf(h, "d|%s|%s|%s|%.4f\n", id, c.ID, c.Status, c.Confidence)
		}
		if c, ok := deployment[id]; ok {
			fmt.Fprintf(h, "a|%s|%s|%s|%.4f\n", id, c.ID, c.Status, c.Confidence)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
