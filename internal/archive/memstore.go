package archive

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Store         = (*MemStore)(nil)
	_ SemanticIndex = (*MemStore)(nil)
)

// defaultListLimit caps ListSessions and Search results when the caller
// passes 0.
const defaultListLimit = 50

// MemStore is an in-memory implementation of [Store] and [SemanticIndex].
//
// It backs deployments without a configured Postgres DSN and all tests.
// Sessions are lost on restart. Keyword search is a case-insensitive
// substring match rather than real full-text search; similarity search uses
// exact cosine distance over all indexed turns.
//
// All methods are safe for concurrent use.
type MemStore struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	order      []string // session IDs in creation order
	turns      map[string][]Turn
	embeddings map[string][]float32 // turn ID -> embedding
	turnByID   map[string]Turn
}

// NewMemStore returns an empty in-memory archive.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions:   make(map[string]*Session),
		turns:      make(map[string][]Turn),
		embeddings: make(map[string][]float32),
		turnByID:   make(map[string]Turn),
	}
}

// CreateSession implements [Store].
func (m *MemStore) CreateSession(_ context.Context, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := sess
	cp.EndedAt = time.Time{}
	cp.Summary = ""
	m.sessions[sess.ID] = &cp
	m.order = append(m.order, sess.ID)
	return nil
}

// EndSession implements [Store].
func (m *MemStore) EndSession(_ context.Context, sessionID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.EndedAt = endedAt
	return nil
}

// SetSummary implements [Store].
func (m *MemStore) SetSummary(_ context.Context, sessionID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.Summary = summary
	return nil
}

// GetSession implements [Store].
func (m *MemStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	cp := *sess
	return &cp, nil
}

// ListSessions implements [Store]. Sessions are returned newest first.
func (m *MemStore) ListSessions(_ context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, min(limit, len(m.order)))
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.sessions[m.order[i]])
	}
	return out, nil
}

// AppendTurn implements [Store].
func (m *MemStore) AppendTurn(_ context.Context, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[turn.SessionID] = append(m.turns[turn.SessionID], turn)
	m.turnByID[turn.ID] = turn
	return nil
}

// Turns implements [Store].
func (m *MemStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.turns[sessionID]
	out := make([]Turn, len(stored))
	copy(out, stored)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Search implements [Store] with a case-insensitive substring match on the
// corrected transcript text.
func (m *MemStore) Search(_ context.Context, query string, opts SearchOpts) ([]Turn, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	needle := strings.ToLower(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Turn{}
	for _, sessionID := range m.order {
		if opts.SessionID != "" && sessionID != opts.SessionID {
			continue
		}
		for _, turn := range m.turns[sessionID] {
			if !matchesOpts(turn, opts) {
				continue
			}
			if !strings.Contains(strings.ToLower(turn.Text), needle) {
				continue
			}
			out = append(out, turn)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// IndexTurn implements [SemanticIndex].
func (m *MemStore) IndexTurn(_ context.Context, turn Turn, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]float32, len(embedding))
	copy(cp, embedding)
	m.embeddings[turn.ID] = cp
	m.turnByID[turn.ID] = turn
	return nil
}

// SearchSimilar implements [SemanticIndex] using exact cosine distance over
// all indexed turns.
func (m *MemStore) SearchSimilar(_ context.Context, embedding []float32, topK int, opts SearchOpts) ([]SimilarTurn, error) {
	if topK <= 0 {
		topK = defaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []SimilarTurn{}
	for id, vec := range m.embeddings {
		turn := m.turnByID[id]
		if opts.SessionID != "" && turn.SessionID != opts.SessionID {
			continue
		}
		if !matchesOpts(turn, opts) {
			continue
		}
		out = append(out, SimilarTurn{Turn: turn, Distance: cosineDistance(embedding, vec)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// matchesOpts applies the speaker and time-range conditions of opts to turn.
func matchesOpts(turn Turn, opts SearchOpts) bool {
	if opts.SpeakerID != "" && turn.SpeakerID != opts.SpeakerID {
		return false
	}
	if !opts.After.IsZero() && !turn.StartedAt.After(opts.After) {
		return false
	}
	if !opts.Before.IsZero() && !turn.StartedAt.Before(opts.Before) {
		return false
	}
	return true
}

// cosineDistance returns 1 - cosine similarity of a and b. Mismatched or
// zero-magnitude vectors yield the maximum distance.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
