package model

import (
	"time"
)

// Source identifies which side of the review a claim came from.
type Source string

const (
	SourceDesign     Source = "design"
	SourceDeployment Source = "deployment"
)

// Valid reports whether s is a recognized claim source.
func (s Source) Valid() bool {
	return s == SourceDesign || s == SourceDeployment
}

// Status is the asserted state of a control in one source.
type Status string

const (
	StatusSatisfied     Status = "satisfied"
	StatusViolated      Status = "violated"
	StatusNotApplicable Status = "not_applicable"
	StatusUnknown       Status = "unknown"
)

// Statuses lists every claim status in a stable order.
var Statuses = []Status{StatusSatisfied, StatusViolated, StatusNotApplicable, StatusUnknown}

// Valid reports whether s is a recognized claim status.
func (s Status) Valid() bool {
	switch s {
	case StatusSatisfied, StatusViolated, StatusNotApplicable, StatusUnknown:
		return true
	}
	return false
}

// Claim is a single assertion that a control is satisfied, violated, or not
// applicable, backed by evidence from one artifact. Claims are immutable once
// created; corrections are modeled as new claims so the audit history is
// preserved.
type Claim struct {
	ID          string    `json:"id"`
	ControlID   string    `json:"control_id"`
	Source      Source    `json:"source"`
	Status      Status    `json:"status"`
	Evidence    string    `json:"evidence,omitempty"`
	Confidence  float64   `json:"confidence"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// EffectiveStatus returns the claim status used for classification. Claims
// below the confidence floor are folded into unknown rather than being
// trusted as satisfied/violated.
func (c Claim) EffectiveStatus(confidenceFloor float64) Status {
	if c.Confidence < confidenceFloor {
		return StatusUnknown
	}
	return c.Status
}

// LatestPerControl reduces an append-ordered claim sequence to the most recent
// claim per control ID. Later claims supersede earlier ones for the same
// control without deleting history; callers pass claims in append order.
func LatestPerControl(claims []Claim) map[string]Claim {
	latest := make(map[string]Claim, len(claims))
	for _, c := range claims {
		latest[c.ControlID] = c
	}
	return latest
}
