package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifguard/saifguard/internal/model"
)

func sampleSet() *model.DiscrepancySet {
	set := &model.DiscrepancySet{
		SessionID:    "user-1",
		GeneratedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SnapshotHash: "abcdef0123456789",
		Records: []model.Discrepancy{
			{
				ControlID:        "IAM-001",
				ControlName:      "Least-privilege service accounts",
				DesignStatus:     model.StatusSatisfied,
				DeploymentStatus: model.StatusUnknown,
				Severity:         model.SeverityHigh,
				Classification:   model.ClassMissingInDeployment,
				DesignEvidence:   "dedicated SA with run.invoker only",
			},
			{
				ControlID:        "NET-001",
				ControlName:      "WAF in front of public endpoints",
				DesignStatus:     model.StatusSatisfied,
				DeploymentStatus: model.StatusViolated,
				Severity:         model.SeverityCritical,
				Classification:   model.ClassConflicting,
				DeployEvidence:   "LB with no Cloud Armor policy",
			},
			{
				ControlID:        "LOG-001",
				DesignStatus:     model.StatusSatisfied,
				DeploymentStatus: model.StatusSatisfied,
				Severity:         model.SeverityMedium,
				Classification:   model.ClassSatisfied,
			},
		},
	}
	set.Sort()
	return set
}

func TestRenderMarkdown_SeverityOrder(t *testing.T) {
	out := RenderMarkdown(sampleSet())

	critical := strings.Index(out, "## 🔴 Critical")
	high := strings.Index(out, "## 🟠 High")
	audit := strings.Index(out, "## ✅ Satisfied")

	require.Greater(t, critical, 0)
	require.Greater(t, high, critical)
	require.Greater(t, audit, high)

	assert.Contains(t, out, "NET-001 WAF in front of public endpoints")
	assert.Contains(t, out, "LB with no Cloud Armor policy")
	assert.Contains(t, out, "3 control(s) compared, 2 requiring remediation")
}

func TestRenderMarkdown_SatisfiedProducesNoRemediation(t *testing.T) {
	out := RenderMarkdown(sampleSet())

	// The satisfied control appears only in the audit trail.
	auditStart := strings.Index(out, "## ✅ Satisfied")
	require.Greater(t, auditStart, 0)
	assert.NotContains(t, out[:auditStart], "LOG-001")
	assert.Contains(t, out[auditStart:], "LOG-001")
}

func TestRenderMarkdown_EmptySet(t *testing.T) {
	out := RenderMarkdown(&model.DiscrepancySet{SessionID: "user-1", GeneratedAt: time.Now()})
	assert.Contains(t, out, "No claims to compare yet")
}

func TestRenderMarkdown_Deterministic(t *testing.T) {
	assert.Equal(t, RenderMarkdown(sampleSet()), RenderMarkdown(sampleSet()))
}

func TestNoopSink(t *testing.T) {
	_, err := NoopSink{}.Publish(context.Background(), "user-1", sampleSet())
	assert.ErrorIs(t, err, ErrPublishingDisabled)
}
