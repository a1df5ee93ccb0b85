package claimstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/taxonomy"
)

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Default()
	require.NoError(t, err)
	return tax
}

func storedClaim(controlID string, source model.Source, status model.Status) model.Claim {
	return model.Claim{
		ID:          uuid.New().String(),
		ControlID:   controlID,
		Source:      source,
		Status:      status,
		Evidence:    "evidence for " + controlID,
		Confidence:  0.9,
		ExtractedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// runStoreSuite exercises the Store contract against any implementation.
// Memory and SQLite both run it; the Postgres store is covered separately
// with pgxmock since it needs a live pool otherwise.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("current returns latest per control and source", func(t *testing.T) {
		st := newStore(t)

		require.NoError(t, st.Append(ctx, "s1", []model.Claim{
			storedClaim("IAM-001", model.SourceDesign, model.StatusSatisfied),
			storedClaim("NET-001", model.SourceDesign, model.StatusUnknown),
		}))
		require.NoError(t, st.Append(ctx, "s1", []model.Claim{
			storedClaim("IAM-001", model.SourceDesign, model.StatusViolated),
			storedClaim("IAM-001", model.SourceDeployment, model.StatusSatisfied),
		}))

		design, err := st.Current(ctx, "s1", model.SourceDesign)
		require.NoError(t, err)
		require.Len(t, design, 2)
		assert.Equal(t, "IAM-001", design[0].ControlID)
		assert.Equal(t, model.StatusViolated, design[0].Status)
		assert.Equal(t, "NET-001", design[1].ControlID)

		all, err := st.Current(ctx, "s1", "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("history preserves append order including superseded claims", func(t *testing.T) {
		st := newStore(t)

		first := storedClaim("IAM-001", model.SourceDesign, model.StatusUnknown)
		second := storedClaim("IAM-001", model.SourceDesign, model.StatusSatisfied)
		require.NoError(t, st.Append(ctx, "s1", []model.Claim{first}))
		require.NoError(t, st.Append(ctx, "s1", []model.Claim{second}))

		history, err := st.History(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, first.ID, history[0].ID)
		assert.Equal(t, second.ID, history[1].ID)
	})

	t.Run("unknown control rejects the whole batch", func(t *testing.T) {
		st := newStore(t)

		err := st.Append(ctx, "s1", []model.Claim{
			storedClaim("IAM-001", model.SourceDesign, model.StatusSatisfied),
			storedClaim("FAKE-999", model.SourceDesign, model.StatusSatisfied),
		})
		require.Error(t, err)
		assert.True(t, model.IsUnknownControl(err))

		history, err := st.History(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, history, "a rejected batch must not be partially written")
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		st := newStore(t)

		require.NoError(t, st.Append(ctx, "s1", nil))
		history, err := st.History(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		st := newStore(t)

		require.NoError(t, st.Append(ctx, "s1", []model.Claim{
			storedClaim("IAM-001", model.SourceDesign, model.StatusSatisfied),
		}))
		require.NoError(t, st.Append(ctx, "s2", []model.Claim{
			storedClaim("NET-001", model.SourceDeployment, model.StatusViolated),
		}))

		s1, err := st.Current(ctx, "s1", "")
		require.NoError(t, err)
		require.Len(t, s1, 1)
		assert.Equal(t, "IAM-001", s1[0].ControlID)

		s2, err := st.Current(ctx, "s2", "")
		require.NoError(t, err)
		require.Len(t, s2, 1)
		assert.Equal(t, "NET-001", s2[0].ControlID)
	})

	t.Run("purge removes one session only", func(t *testing.T) {
		st := newStore(t)

		require.NoError(t, st.Append(ctx, "s1", []model.Claim{
			storedClaim("IAM-001", model.SourceDesign, model.StatusSatisfied),
		}))
		require.NoError(t, st.Append(ctx, "s2", []model.Claim{
			storedClaim("IAM-001", model.SourceDesign, model.StatusSatisfied),
		}))

		require.NoError(t, st.Purge(ctx, "s1"))

		s1, err := st.History(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, s1)

		s2, err := st.History(ctx, "s2")
		require.NoError(t, err)
		assert.Len(t, s2, 1)
	})

	t.Run("round trips claim fields", func(t *testing.T) {
		st := newStore(t)

		want := storedClaim("LOG-001", model.SourceDeployment, model.StatusViolated)
		want.Confidence = 0.75
		require.NoError(t, st.Append(ctx, "s1", []model.Claim{want}))

		got, err := st.Current(ctx, "s1", model.SourceDeployment)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, want.ID, got[0].ID)
		assert.Equal(t, want.ControlID, got[0].ControlID)
		assert.Equal(t, want.Source, got[0].Source)
		assert.Equal(t, want.Status, got[0].Status)
		assert.Equal(t, want.Evidence, got[0].Evidence)
		assert.InDelta(t, want.Confidence, got[0].Confidence, 1e-9)
		assert.True(t, want.ExtractedAt.Equal(got[0].ExtractedAt))
	})
}
