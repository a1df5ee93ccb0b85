package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saifguard/saifguard/internal/claimstore"
	"github.com/saifguard/saifguard/internal/extract"
	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/reconcile"
	"github.com/saifguard/saifguard/internal/report"
)

// InventoryProvider fetches a deployment inventory snapshot for a project.
type InventoryProvider interface {
	Fetch(ctx context.Context, projectID string) (model.RawArtifact, error)
}

// DocumentProvider resolves a document reference to a raw artifact.
type DocumentProvider interface {
	Fetch(ctx context.Context, ref string) (model.RawArtifact, error)
}

// Config tunes session lifecycle.
type Config struct {
	// IdleTimeout is how long a session may sit untouched before the
	// janitor evicts it and purges its claims.
	IdleTimeout time.Duration

	// SweepInterval is how often the janitor checks for idle sessions.
	SweepInterval time.Duration

	// DefaultProjectID is scanned when the user asks for a scan without
	// naming a project.
	DefaultProjectID string
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return c
}

// Info is a read-only session summary.
type Info struct {
	ID           string    `json:"id"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// entry is one live session. mu serializes the session's write path (a whole
// turn, extraction included); metaMu guards only the summary fields so admin
// reads and the janitor never wait on a busy turn. The context is cancelled
// on eviction so in-flight extraction stops.
type entry struct {
	id        string
	createdAt time.Time

	mu sync.Mutex

	metaMu     sync.Mutex
	state      State
	lastActive time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func (e *entry) touch() {
	e.metaMu.Lock()
	e.lastActive = time.Now().UTC()
	e.metaMu.Unlock()
}

func (e *entry) currentState() State {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	return e.state
}

func (e *entry) advance(source model.Source) {
	e.metaMu.Lock()
	e.state = Next(e.state, source)
	e.metaMu.Unlock()
}

func (e *entry) info() Info {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	return Info{ID: e.id, State: e.state, CreatedAt: e.createdAt, LastActiveAt: e.lastActive}
}

func (e *entry) idleSince(cutoff time.Time) bool {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	return e.lastActive.Before(cutoff)
}

// Manager owns all live sessions. Operations on different sessions never
// block each other; within one session, turns that write claims serialize.
type Manager struct {
	store      claimstore.Store
	engine     *reconcile.Engine
	docAdapter extract.Adapter
	invAdapter extract.Adapter
	docs       DocumentProvider
	inventory  InventoryProvider
	cfg        Config

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager wires the manager. Providers may be nil; turns that would need
// them answer with a clarification instead.
func NewManager(store claimstore.Store, engine *reconcile.Engine, docAdapter, invAdapter extract.Adapter, docs DocumentProvider, inventory InventoryProvider, cfg Config) *Manager {
	return &Manager{
		store:      store,
		engine:     engine,
		docAdapter: docAdapter,
		invAdapter: invAdapter,
		docs:       docs,
		inventory:  inventory,
		cfg:        cfg.withDefaults(),
		sessions:   make(map[string]*entry),
	}
}

func (m *Manager) session(ctx context.Context, id string) *entry {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return e
	}

	// Claims may predate this process (the sqlite and postgres stores
	// survive restarts); seed the state from whatever is already stored so
	// the reported session_state matches the claim set.
	state := StateIdle
	if claims, err := m.store.Current(ctx, id, ""); err == nil {
		for _, c := range claims {
			state = Next(state, c.Source)
		}
	} else {
		zap.L().Warn("session: state seed lookup failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		return e
	}
	sctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	e = &entry{
		id:         id,
		state:      state,
		createdAt:  now,
		lastActive: now,
		ctx:        sctx,
		cancel:     cancel,
	}
	m.sessions[id] = e
	zap.L().Info("session: created",
		zap.String("session_id", id),
		zap.String("state", string(state)),
	)
	return e
}

// liveContext derives a context cancelled by either the caller or session
// eviction, so evicting a session aborts its in-flight extraction.
func liveContext(ctx context.Context, e *entry) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(e.ctx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// Handle processes one user turn: classify intent, dispatch, answer.
func (m *Manager) Handle(ctx context.Context, sessionID, utterance string, attachments []model.RawArtifact) (*model.AgentResponse, error) {
	if sessionID == "" {
		return nil, eris.New("session: empty session id")
	}

	e := m.session(ctx, sessionID)
	e.touch()
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := liveContext(ctx, e)
	defer cancel()

	intent := ClassifyIntent(utterance, attachments)
	zap.L().Debug("session: turn classified",
		zap.String("session_id", sessionID),
		zap.String("intent", string(intent)),
		zap.Int("attachments", len(attachments)),
	)

	switch intent {
	case IntentAnalyze:
		return m.handleAnalyze(ctx, e, utterance, attachments)
	case IntentScan:
		return m.handleScan(ctx, e, utterance, attachments)
	case IntentDiscrepancies:
		return m.handleDiscrepancies(ctx, e)
	default:
		return m.clarify(e, helpMessage), nil
	}
}

const helpMessage = "I compare security designs against deployed reality. " +
	"Send me a design document or diagram to analyze, ask me to scan a project's resource inventory, " +
	"or ask for the current discrepancies once I have both."

func (m *Manager) clarify(e *entry, msg string) *model.AgentResponse {
	return &model.AgentResponse{
		SessionID:    e.id,
		Type:         model.ResponseClarification,
		Message:      msg,
		SessionState: string(e.currentState()),
	}
}

func (m *Manager) handleAnalyze(ctx context.Context, e *entry, utterance string, attachments []model.RawArtifact) (*model.AgentResponse, error) {
	artifacts := attachments
	if len(artifacts) == 0 {
		ref := ExtractDocRef(utterance)
		if ref == "" || m.docs == nil {
			return m.clarify(e, "Which design artifact should I analyze? Attach it or give me a path or URL."), nil
		}
		artifact, err := m.docs.Fetch(ctx, ref)
		if err != nil {
			return m.clarify(e, fmt.Sprintf("I could not read %q: %v. Check the reference and try again.", ref, err)), nil
		}
		artifacts = []model.RawArtifact{artifact}
	}
	return m.extractAll(ctx, e, artifacts)
}

func (m *Manager) handleScan(ctx context.Context, e *entry, utterance string, attachments []model.RawArtifact) (*model.AgentResponse, error) {
	artifacts := attachments
	if len(artifacts) == 0 {
		projectID := ExtractProjectID(utterance)
		if projectID == "" {
			projectID = m.cfg.DefaultProjectID
		}
		if projectID == "" || m.inventory == nil {
			return m.clarify(e, "Which project should I scan? Tell me the project ID."), nil
		}
		artifact, err := m.inventory.Fetch(ctx, projectID)
		if err != nil {
			if model.IsProviderUnavailable(err) {
				return m.clarify(e, fmt.Sprintf("The inventory for project %q is unreachable right now. Try again shortly.", projectID)), nil
			}
			return nil, eris.Wrap(err, "session: fetch inventory")
		}
		artifacts = []model.RawArtifact{artifact}
	}
	return m.extractAll(ctx, e, artifacts)
}

// extractAll runs every artifact through its adapter in parallel, appends
// each artifact's claims as one atomic batch, and reports per-artifact
// outcomes. A failed artifact never sinks the rest of the batch.
func (m *Manager) extractAll(ctx context.Context, e *entry, artifacts []model.RawArtifact) (*model.AgentResponse, error) {
	results := make([]model.ArtifactResult, len(artifacts))
	claimsByArtifact := make([][]model.Claim, len(artifacts))

	g, gctx := errgroup.WithContext(ctx)
	for i, artifact := range artifacts {
		g.Go(func() error {
			results[i] = model.ArtifactResult{Ref: artifact.Ref, Kind: string(artifact.Kind)}

			adapter := m.adapterFor(artifact.Kind)
			if adapter == nil {
				results[i].Error = fmt.Sprintf("unsupported artifact kind %q", artifact.Kind)
				return nil
			}

			claims, err := adapter.Extract(gctx, artifact, artifact.Kind.DefaultSource())
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				results[i].Error = err.Error()
				zap.L().Warn("session: artifact extraction failed",
					zap.String("session_id", e.id),
					zap.String("artifact", artifact.Ref),
					zap.Error(err),
				)
				return nil
			}
			claimsByArtifact[i] = claims
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "session: extraction cancelled")
	}

	total := 0
	for i, claims := range claimsByArtifact {
		if results[i].Error != "" || len(claims) == 0 {
			continue
		}
		if err := m.store.Append(ctx, e.id, claims); err != nil {
			// Unknown-control rejection is taxonomy drift; surface it
			// per artifact but keep the other batches.
			results[i].Error = err.Error()
			zap.L().Error("session: claim batch rejected",
				zap.String("session_id", e.id),
				zap.String("artifact", results[i].Ref),
				zap.Error(err),
			)
			continue
		}
		results[i].ClaimCount = len(claims)
		total += len(claims)
		e.advance(artifacts[i].Kind.DefaultSource())
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	state := e.currentState()
	msg := fmt.Sprintf("Extracted %d claim(s) from %d artifact(s).", total, len(artifacts))
	if failed > 0 {
		msg += fmt.Sprintf(" %d artifact(s) could not be processed.", failed)
	}
	switch state {
	case StateDesignPartial:
		msg += " I have design claims now; scan a project so I can compare against the deployment."
	case StateDeploymentPartial:
		msg += " I have deployment claims now; send me the design so I can compare."
	case StateReconciled:
		msg += " Both sides are in; ask for the discrepancies."
	}

	return &model.AgentResponse{
		SessionID:    e.id,
		Type:         model.ResponseExtractionSummary,
		Message:      msg,
		SessionState: string(state),
		Artifacts:    results,
	}, nil
}

func (m *Manager) adapterFor(kind model.ArtifactKind) extract.Adapter {
	switch kind {
	case model.ArtifactDocument, model.ArtifactDiagram:
		return m.docAdapter
	case model.ArtifactInventory:
		return m.invAdapter
	default:
		return nil
	}
}

func (m *Manager) handleDiscrepancies(ctx context.Context, e *entry) (*model.AgentResponse, error) {
	set, err := m.engine.Reconcile(ctx, e.id)
	if err != nil {
		return nil, eris.Wrap(err, "session: reconcile")
	}

	msg := fmt.Sprintf("%d control(s) compared, %d need remediation.", len(set.Records), set.RemediationCount())
	if len(set.Records) == 0 {
		msg = "Nothing to compare yet. Send me a design artifact and scan a project first."
	}

	return &model.AgentResponse{
		SessionID:     e.id,
		Type:          model.ResponseDiscrepancyReport,
		Message:       msg,
		SessionState:  string(e.currentState()),
		Discrepancies: set,
		Report:        report.RenderMarkdown(set),
	}, nil
}

// Discrepancies recomputes the session's discrepancy set without consuming a
// conversational turn. Read-only; safe concurrently with Handle. Reading a
// live session counts as activity so the janitor does not evict it mid-use.
func (m *Manager) Discrepancies(ctx context.Context, sessionID string) (*model.DiscrepancySet, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		e.touch()
	}
	return m.engine.Reconcile(ctx, sessionID)
}

// Lookup returns a session summary if the session is live.
func (m *Manager) Lookup(sessionID string) (Info, bool) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Info{}, false
	}
	return e.info(), true
}

// List returns summaries for all live sessions, ordered by ID.
func (m *Manager) List() []Info {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// RunJanitor sweeps for idle sessions until ctx is done. Eviction cancels
// the session context and purges its claims.
func (m *Manager) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var evict []*entry
	for id, e := range m.sessions {
		if e.idleSince(cutoff) {
			evict = append(evict, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range evict {
		e.cancel()
		if err := m.store.Purge(ctx, e.id); err != nil {
			zap.L().Error("session: purge after eviction failed",
				zap.String("session_id", e.id),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("session: evicted idle session", zap.String("session_id", e.id))
	}
}

// Close cancels every live session context.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.sessions {
		e.cancel()
	}
	m.sessions = make(map[string]*entry)
}
