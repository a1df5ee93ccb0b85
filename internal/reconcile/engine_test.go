package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifguard/saifguard/internal/claimstore"
	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/taxonomy"
)

func newEngine(t *testing.T) (*Engine, claimstore.Store) {
	t.Helper()
	tax, err := taxonomy.Default()
	require.NoError(t, err)
	store := claimstore.NewMemory(tax)
	return New(store, tax, 0.5), store
}

func claim(id, controlID string, source model.Source, status model.Status, confidence float64, at time.Time) model.Claim {
	return model.Claim{
		ID:          id,
		ControlID:   controlID,
		Source:      source,
		Status:      status,
		Confidence:  confidence,
		ExtractedAt: at,
	}
}

// TestClassifyTable walks every (design, deployment) status pair and checks
// the verdict against the classification rules.
func TestClassifyTable(t *testing.T) {
	sat, vio, na, unk := model.StatusSatisfied, model.StatusViolated, model.StatusNotApplicable, model.StatusUnknown

	for _, d := range model.Statuses {
		for _, a := range model.Statuses {
			class, include, escalate := Classify(d, a)

			switch {
			case d == unk && a == unk:
				assert.False(t, include, "(%s,%s)", d, a)
			case a == unk:
				assert.Equal(t, model.ClassMissingInDeployment, class, "(%s,%s)", d, a)
				assert.False(t, escalate, "(%s,%s)", d, a)
			case d == unk:
				if a == sat || a == vio {
					assert.Equal(t, model.ClassMissingInDesign, class, "(%s,%s)", d, a)
					assert.False(t, escalate, "(%s,%s)", d, a)
				} else {
					assert.Equal(t, model.ClassConflicting, class, "(%s,%s)", d, a)
					assert.True(t, escalate, "(%s,%s)", d, a)
				}
			case d == sat && a == vio, d == vio && a == sat:
				assert.Equal(t, model.ClassConflicting, class, "(%s,%s)", d, a)
				assert.False(t, escalate, "(%s,%s)", d, a)
			case d == sat && a == sat:
				assert.Equal(t, model.ClassSatisfied, class, "(%s,%s)", d, a)
			default:
				// Both violated, or not_applicable on either side.
				assert.Equal(t, model.ClassConflicting, class, "(%s,%s)", d, a)
				assert.True(t, escalate, "(%s,%s)", d, a)
			}

			if include && class == "" {
				t.Errorf("(%s,%s): included without classification", d, a)
			}
			_ = na
		}
	}
}

// Design asserts least privilege, deployment says nothing.
func TestReconcile_MissingInDeployment(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, "s1", []model.Claim{
		claim("d1", "IAM-001", model.SourceDesign, model.StatusSatisfied, 0.9, now),
	}))

	set, err := engine.Reconcile(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, set.Records, 1)

	r := set.Records[0]
	assert.Equal(t, model.ClassMissingInDeployment, r.Classification)
	assert.Equal(t, model.SeverityHigh, r.Severity)
	assert.True(t, r.NeedsRemediation())
}

// Design asserts least privilege, the scan finds an Editor grant.
func TestReconcile_Conflicting(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, "s1", []model.Claim{
		claim("d1", "IAM-001", model.SourceDesign, model.StatusSatisfied, 0.9, now),
		claim("a1", "IAM-001", model.SourceDeployment, model.StatusViolated, 1.0, now),
	}))

	set, err := engine.Reconcile(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, set.Records, 1)
	assert.Equal(t, model.ClassConflicting, set.Records[0].Classification)
	assert.Equal(t, model.SeverityHigh, set.Records[0].Severity)
}

// Both sides agree: audit trail entry, no remediation.
func TestReconcile_Satisfied(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, "s1", []model.Claim{
		claim("d1", "IAM-001", model.SourceDesign, model.StatusSatisfied, 0.9, now),
		claim("a1", "IAM-001", model.SourceDeployment, model.StatusSatisfied, 1.0, now),
	}))

	set, err := engine.Reconcile(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, set.Records, 1)
	assert.Equal(t, model.ClassSatisfied, set.Records[0].Classification)
	assert.Equal(t, 0, set.RemediationCount())
}

func TestReconcile_ConfidenceFloorFoldsToUnknown(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// A low-confidence design claim behaves as if the design said nothing,
	// so the deployment-only evidence classifies as missing_in_design.
	require.NoError(t, store.Append(ctx, "s1", []model.Claim{
		claim("d1", "NET-001", model.SourceDesign, model.StatusSatisfied, 0.2, now),
		claim("a1", "NET-001", model.SourceDeployment, model.StatusViolated, 1.0, now),
	}))

	set, err := engine.Reconcile(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, set.Records, 1)
	assert.Equal(t, model.ClassMissingInDesign, set.Records[0].Classification)
	assert.Equal(t, model.StatusUnknown, set.Records[0].DesignStatus)
}

func TestReconcile_MostRecentWins(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, "s1", []model.Claim{
		claim("d1", "IAM-001", model.SourceDesign, model.StatusViolated, 0.9, now),
	}))
	require.NoError(t, store.Append(ctx, "s1", []model.Claim{
		claim("d2", "IAM-001", model.SourceDesign, model.StatusSatisfied, 0.9, now.Add(time.Minute)),
		claim("a1", "IAM-001", model.SourceDeployment, model.StatusSatisfied, 1.0, now.Add(time.Minute)),
	}))

	set, err := engine.Reconcile(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, set.Records, 1)
	assert.Equal(t, model.ClassSatisfied, set.Records[0].Classification)
}

// Reconcile is a pure function of the claim set: repeated runs produce
// byte-identical records and identical snapshot hashes.
func TestReconcile_Idempotent(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, "s1", []model.Claim{
		claim("d1", "IAM-001", model.SourceDesign, model.StatusSatisfied, 0.9, now),
		claim("d2", "NET-001", model.SourceDesign, model.StatusSatisfied, 0.8, now),
		claim("a1", "NET-001", model.SourceDeployment, model.StatusViolated, 1.0, now),
		claim("a2", "SEC-001", model.SourceDeployment, model.StatusViolated, 1.0, now),
	}))

	first, err := engine.Reconcile(ctx, "s1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := engine.Reconcile(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, first.SnapshotHash, second.SnapshotHash)
	assert.True(t, first.GeneratedAt.Equal(now), "set timestamp must come from the claims, not the clock")

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "repeated reconciles with no intervening append must be byte-identical")
}

func TestReconcile_EmptySession(t *testing.T) {
	engine, _ := newEngine(t)

	set, err := engine.Reconcile(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, set.Records)
	assert.NotEmpty(t, set.SnapshotHash)
}

func TestEscalateSeverityCapsAtCritical(t *testing.T) {
	assert.Equal(t, model.SeverityMedium, escalateSeverity(model.SeverityLow))
	assert.Equal(t, model.SeverityHigh, escalateSeverity(model.SeverityMedium))
	assert.Equal(t, model.SeverityCritical, escalateSeverity(model.SeverityHigh))
	assert.Equal(t, model.SeverityCritical, escalateSeverity(model.SeverityCritical))
}
