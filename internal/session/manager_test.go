package session

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifguard/saifguard/internal/claimstore"
	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/reconcile"
	"github.com/saifguard/saifguard/internal/taxonomy"
)

type stubAdapter struct {
	fn func(ctx context.Context, artifact model.RawArtifact, source model.Source) ([]model.Claim, error)
}

func (s *stubAdapter) Extract(ctx context.Context, artifact model.RawArtifact, source model.Source) ([]model.Claim, error) {
	return s.fn(ctx, artifact, source)
}

func claimFor(controlID string, source model.Source, status model.Status) model.Claim {
	return model.Claim{
		ID:          controlID + "-" + string(source),
		ControlID:   controlID,
		Source:      source,
		Status:      status,
		Confidence:  0.9,
		ExtractedAt: time.Now().UTC(),
	}
}

func newTestManager(t *testing.T, doc, inv *stubAdapter, cfg Config) (*Manager, claimstore.Store) {
	t.Helper()
	tax, err := taxonomy.Default()
	require.NoError(t, err)
	store := claimstore.NewMemory(tax)
	engine := reconcile.New(store, tax, 0.5)
	m := NewManager(store, engine, doc, inv, nil, nil, cfg)
	t.Cleanup(m.Close)
	return m, store
}

func TestHandle_AnalyzeAttachment(t *testing.T) {
	doc := &stubAdapter{fn: func(_ context.Context, _ model.RawArtifact, source model.Source) ([]model.Claim, error) {
		return []model.Claim{claimFor("IAM-001", source, model.StatusSatisfied)}, nil
	}}
	m, store := newTestManager(t, doc, nil, Config{})

	resp, err := m.Handle(context.Background(), "user-1", "here is the design", []model.RawArtifact{
		{Kind: model.ArtifactDocument, Ref: "design.md", Payload: []byte("text")},
	})
	require.NoError(t, err)

	assert.Equal(t, model.ResponseExtractionSummary, resp.Type)
	assert.Equal(t, string(StateDesignPartial), resp.SessionState)
	require.Len(t, resp.Artifacts, 1)
	assert.Equal(t, 1, resp.Artifacts[0].ClaimCount)
	assert.Empty(t, resp.Artifacts[0].Error)

	claims, err := store.Current(context.Background(), "user-1", model.SourceDesign)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "IAM-001", claims[0].ControlID)
}

func TestHandle_BothSourcesReachReconciled(t *testing.T) {
	doc := &stubAdapter{fn: func(_ context.Context, _ model.RawArtifact, source model.Source) ([]model.Claim, error) {
		return []model.Claim{claimFor("IAM-001", source, model.StatusSatisfied)}, nil
	}}
	inv := &stubAdapter{fn: func(_ context.Context, _ model.RawArtifact, source model.Source) ([]model.Claim, error) {
		return []model.Claim{claimFor("IAM-001", source, model.StatusViolated)}, nil
	}}
	m, _ := newTestManager(t, doc, inv, Config{})
	ctx := context.Background()

	_, err := m.Handle(ctx, "user-1", "", []model.RawArtifact{
		{Kind: model.ArtifactDocument, Ref: "design.md", Payload: []byte("x")},
	})
	require.NoError(t, err)

	resp, err := m.Handle(ctx, "user-1", "", []model.RawArtifact{
		{Kind: model.ArtifactInventory, Ref: "assets.json", Payload: []byte("[]")},
	})
	require.NoError(t, err)
	assert.Equal(t, string(StateReconciled), resp.SessionState)

	resp, err = m.Handle(ctx, "user-1", "show discrepancies", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ResponseDiscrepancyReport, resp.Type)
	require.NotNil(t, resp.Discrepancies)
	require.Len(t, resp.Discrepancies.Records, 1)
	assert.Equal(t, model.ClassConflicting, resp.Discrepancies.Records[0].Classification)
	assert.Contains(t, resp.Report, "IAM-001")
}

func TestHandle_PerArtifactFailure(t *testing.T) {
	doc := &stubAdapter{fn: func(_ context.Context, artifact model.RawArtifact, source model.Source) ([]model.Claim, error) {
		if artifact.Ref == "broken.md" {
			return nil, eris.New("unreadable")
		}
		return []model.Claim{claimFor("NET-001", source, model.StatusSatisfied)}, nil
	}}
	m, _ := newTestManager(t, doc, nil, Config{})

	resp, err := m.Handle(context.Background(), "user-1", "", []model.RawArtifact{
		{Kind: model.ArtifactDocument, Ref: "broken.md", Payload: []byte("x")},
		{Kind: model.ArtifactDocument, Ref: "good.md", Payload: []byte("x")},
	})
	require.NoError(t, err)

	byRef := make(map[string]model.ArtifactResult)
	for _, r := range resp.Artifacts {
		byRef[r.Ref] = r
	}
	assert.NotEmpty(t, byRef["broken.md"].Error)
	assert.Equal(t, 0, byRef["broken.md"].ClaimCount)
	assert.Empty(t, byRef["good.md"].Error)
	assert.Equal(t, 1, byRef["good.md"].ClaimCount)
}

func TestHandle_UnknownIntentClarifies(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, Config{})

	resp, err := m.Handle(context.Background(), "user-1", "hello there", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ResponseClarification, resp.Type)
	assert.Equal(t, string(StateIdle), resp.SessionState)
}

func TestHandle_EmptySessionReconcile(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, Config{})

	resp, err := m.Handle(context.Background(), "user-1", "show me the report", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ResponseDiscrepancyReport, resp.Type)
	assert.Empty(t, resp.Discrepancies.Records)
	assert.Contains(t, resp.Message, "Nothing to compare yet")
}

func TestSessionIsolation(t *testing.T) {
	doc := &stubAdapter{fn: func(_ context.Context, _ model.RawArtifact, source model.Source) ([]model.Claim, error) {
		return []model.Claim{claimFor("IAM-001", source, model.StatusSatisfied)}, nil
	}}
	m, store := newTestManager(t, doc, nil, Config{})
	ctx := context.Background()

	_, err := m.Handle(ctx, "user-a", "", []model.RawArtifact{
		{Kind: model.ArtifactDocument, Ref: "a.md", Payload: []byte("x")},
	})
	require.NoError(t, err)

	claims, err := store.Current(ctx, "user-b", "")
	require.NoError(t, err)
	assert.Empty(t, claims)

	info, ok := m.Lookup("user-a")
	require.True(t, ok)
	assert.Equal(t, StateDesignPartial, info.State)
	_, ok = m.Lookup("user-b")
	assert.False(t, ok)
}

func TestJanitorEvictsIdleSessions(t *testing.T) {
	doc := &stubAdapter{fn: func(_ context.Context, _ model.RawArtifact, source model.Source) ([]model.Claim, error) {
		return []model.Claim{claimFor("IAM-001", source, model.StatusSatisfied)}, nil
	}}
	m, store := newTestManager(t, doc, nil, Config{IdleTimeout: time.Millisecond, SweepInterval: time.Millisecond})
	ctx := context.Background()

	_, err := m.Handle(ctx, "user-1", "", []model.RawArtifact{
		{Kind: model.ArtifactDocument, Ref: "design.md", Payload: []byte("x")},
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.sweep(ctx)

	_, ok := m.Lookup("user-1")
	assert.False(t, ok)

	history, err := store.History(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEvictionCancelsInFlightExtraction(t *testing.T) {
	started := make(chan struct{})
	doc := &stubAdapter{fn: func(ctx context.Context, _ model.RawArtifact, _ model.Source) ([]model.Claim, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	m, _ := newTestManager(t, doc, nil, Config{})

	errc := make(chan error, 1)
	go func() {
		_, err := m.Handle(context.Background(), "user-1", "", []model.RawArtifact{
			{Kind: model.ArtifactDocument, Ref: "design.md", Payload: []byte("x")},
		})
		errc <- err
	}()

	<-started
	m.Close()

	select {
	case err := <-errc:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("extraction did not observe cancellation")
	}
}

func TestAdminReadsDontWaitOnBusyTurn(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	doc := &stubAdapter{fn: func(ctx context.Context, _ model.RawArtifact, _ model.Source) ([]model.Claim, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	}}
	m, _ := newTestManager(t, doc, nil, Config{})
	defer close(release)

	go func() {
		_, _ = m.Handle(context.Background(), "user-1", "", []model.RawArtifact{
			{Kind: model.ArtifactDocument, Ref: "design.md", Payload: []byte("x")},
		})
	}()
	<-started

	type adminView struct {
		infos []Info
		found bool
	}
	done := make(chan adminView, 1)
	go func() {
		infos := m.List()
		_, ok := m.Lookup("user-1")
		done <- adminView{infos: infos, found: ok}
	}()

	select {
	case view := <-done:
		require.Len(t, view.infos, 1)
		assert.Equal(t, "user-1", view.infos[0].ID)
		assert.True(t, view.found)
	case <-time.After(2 * time.Second):
		t.Fatal("session listing blocked behind an in-flight extraction")
	}
}

func TestSessionStateSeededFromStore(t *testing.T) {
	tax, err := taxonomy.Default()
	require.NoError(t, err)
	store := claimstore.NewMemory(tax)
	ctx := context.Background()

	// Claims written by a previous process instance.
	require.NoError(t, store.Append(ctx, "user-1", []model.Claim{
		claimFor("IAM-001", model.SourceDesign, model.StatusSatisfied),
		claimFor("IAM-001", model.SourceDeployment, model.StatusViolated),
	}))
	require.NoError(t, store.Append(ctx, "user-2", []model.Claim{
		claimFor("NET-001", model.SourceDesign, model.StatusSatisfied),
	}))

	engine := reconcile.New(store, tax, 0.5)
	m := NewManager(store, engine, nil, nil, nil, nil, Config{})
	t.Cleanup(m.Close)

	resp, err := m.Handle(ctx, "user-1", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, string(StateReconciled), resp.SessionState)

	resp, err = m.Handle(ctx, "user-2", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, string(StateDesignPartial), resp.SessionState)
}

func TestDiscrepanciesRefreshesActivity(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, Config{})
	ctx := context.Background()

	_, err := m.Handle(ctx, "user-1", "hello", nil)
	require.NoError(t, err)

	before, ok := m.Lookup("user-1")
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	_, err = m.Discrepancies(ctx, "user-1")
	require.NoError(t, err)

	after, ok := m.Lookup("user-1")
	require.True(t, ok)
	assert.True(t, after.LastActiveAt.After(before.LastActiveAt),
		"reading discrepancies must count as session activity")
}
