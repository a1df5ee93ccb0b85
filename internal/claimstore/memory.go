package claimstore

import (
	"context"
	"sort"
	"sync"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/taxonomy"
)

// MemoryStore keeps session claims in process memory. Each session owns its
// own slice and mutex, so appends within a session serialize while sessions
// never block each other. The default store for single-instance deployments.
type MemoryStore struct {
	tax *taxonomy.Taxonomy

	mu       sync.RWMutex // guards the sessions map only
	sessions map[string]*sessionClaims
}

type sessionClaims struct {
	mu     sync.RWMutex
	claims []model.Claim
}

// NewMemory creates an empty in-memory claim store validating against tax.
func NewMemory(tax *taxonomy.Taxonomy) *MemoryStore {
	return &MemoryStore{
		tax:      tax,
		sessions: make(map[string]*sessionClaims),
	}
}

func (s *MemoryStore) session(id string) *sessionClaims {
	s.mu.RLock()
	sc, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok = s.sessions[id]; ok {
		return sc
	}
	sc = &sessionClaims{}
	s.sessions[id] = sc
	return sc
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, claims []model.Claim) error {
	if len(claims) == 0 {
		return nil
	}
	// Validate before taking the session lock; rejection must leave the
	// store untouched.
	if err := validateBatch(s.tax, claims); err != nil {
		return err
	}

	sc := s.session(sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.claims = append(sc.claims, claims...)
	return nil
}

func (s *MemoryStore) Current(ctx context.Context, sessionID string, source model.Source) ([]model.Claim, error) {
	sc := s.session(sessionID)
	sc.mu.RLock()
	snapshot := make([]model.Claim, len(sc.claims))
	copy(snapshot, sc.claims)
	sc.mu.RUnlock()

	return latestFrom(snapshot, source), nil
}

func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]model.Claim, error) {
	sc := s.session(sessionID)
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	out := make([]model.Claim, len(sc.claims))
	copy(out, sc.claims)
	return out, nil
}

func (s *MemoryStore) Purge(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// latestFrom reduces an append-ordered snapshot to the latest claim per
// (control, source) pair, optionally filtered to one source, ordered by
// control ID then source for deterministic output.
func latestFrom(claims []model.Claim, source model.Source) []model.Claim {
	type key struct {
		control string
		source  model.Source
	}
	latest := make(map[key]model.Claim)
	for _, c := range claims {
		if source != "" && c.Source != source {
			continue
		}
		latest[key{c.ControlID, c.Source}] = c
	}

	out := make([]model.Claim, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ControlID != out[j].ControlID {
			return out[i].ControlID < out[j].ControlID
		}
		return out[i].Source < out[j].Source
	})
	return out
}
