package archive

import (
	"context"
	"errors"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func seedSession(t *testing.T, m *MemStore, id string) {
	t.Helper()
	err := m.CreateSession(context.Background(), Session{
		ID:          id,
		ChannelName: "General",
		StartedAt:   baseTime,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
}

func TestMemStore_SessionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemStore()
	seedSession(t, m, "s1")

	sess, err := m.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !sess.EndedAt.IsZero() {
		t.Error("new session should not have an end time")
	}

	end := baseTime.Add(time.Hour)
	if err := m.EndSession(ctx, "s1", end); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if err := m.SetSummary(ctx, "s1", "we planned the release"); err != nil {
		t.Fatalf("SetSummary: %v", err)
	}

	sess, err = m.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !sess.EndedAt.Equal(end) {
		t.Errorf("EndedAt = %v, want %v", sess.EndedAt, end)
	}
	if sess.Summary != "we planned the release" {
		t.Errorf("Summary = %q", sess.Summary)
	}
}

func TestMemStore_UnknownSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemStore()

	if _, err := m.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession error = %v, want ErrSessionNotFound", err)
	}
	if err := m.EndSession(ctx, "missing", baseTime); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("EndSession error = %v, want ErrSessionNotFound", err)
	}
	if err := m.SetSummary(ctx, "missing", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("SetSummary error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemStore_ListSessionsNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemStore()
	seedSession(t, m, "s1")
	seedSession(t, m, "s2")
	seedSession(t, m, "s3")

	sessions, err := m.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != "s3" || sessions[1].ID != "s2" {
		t.Errorf("order = [%s %s], want [s3 s2]", sessions[0].ID, sessions[1].ID)
	}
}

func TestMemStore_TurnsChronological(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemStore()
	seedSession(t, m, "s1")

	// Append out of order; Turns must sort by start time.
	turns := []Turn{
		{ID: "t2", SessionID: "s1", SpeakerID: "u1", Text: "second", StartedAt: baseTime.Add(2 * time.Minute)},
		{ID: "t1", SessionID: "s1", SpeakerID: "u2", Text: "first", StartedAt: baseTime.Add(time.Minute)},
	}
	for _, turn := range turns {
		if err := m.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	got, err := m.Turns(ctx, "s1")
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d turns, want 2", len(got))
	}
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("order = [%s %s], want [t1 t2]", got[0].ID, got[1].ID)
	}
}

func TestMemStore_TurnsEmptySession(t *testing.T) {
	t.Parallel()
	m := NewMemStore()
	got, err := m.Turns(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if got == nil {
		t.Fatal("Turns should return a non-nil slice")
	}
	if len(got) != 0 {
		t.Errorf("got %d turns, want 0", len(got))
	}
}

func TestMemStore_Search(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemStore()
	seedSession(t, m, "s1")
	seedSession(t, m, "s2")

	turns := []Turn{
		{ID: "t1", SessionID: "s1", SpeakerID: "alice", Text: "we should ship the release", StartedAt: baseTime.Add(time.Minute)},
		{ID: "t2", SessionID: "s1", SpeakerID: "bob", Text: "the release is blocked on QA", StartedAt: baseTime.Add(2 * time.Minute)},
		{ID: "t3", SessionID: "s2", SpeakerID: "alice", Text: "lunch plans anyone", StartedAt: baseTime.Add(3 * time.Minute)},
	}
	for _, turn := range turns {
		if err := m.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	tests := []struct {
		name    string
		query   string
		opts    SearchOpts
		wantIDs []string
	}{
		{"matches across sessions", "release", SearchOpts{}, []string{"t1", "t2"}},
		{"session scoped", "release", SearchOpts{SessionID: "s2"}, nil},
		{"speaker scoped", "release", SearchOpts{SpeakerID: "bob"}, []string{"t2"}},
		{"case insensitive", "RELEASE", SearchOpts{}, []string{"t1", "t2"}},
		{"time window", "release", SearchOpts{After: baseTime.Add(90 * time.Second)}, []string{"t2"}},
		{"limit", "release", SearchOpts{Limit: 1}, []string{"t1"}},
		{"no match", "standup", SearchOpts{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Search(ctx, tt.query, tt.opts)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if got == nil {
				t.Fatal("Search should return a non-nil slice")
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d results, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("result[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestMemStore_SearchSimilar(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemStore()
	seedSession(t, m, "s1")

	turns := []struct {
		turn Turn
		vec  []float32
	}{
		{Turn{ID: "t1", SessionID: "s1", SpeakerID: "alice", Text: "deploy tonight", StartedAt: baseTime}, []float32{1, 0, 0}},
		{Turn{ID: "t2", SessionID: "s1", SpeakerID: "bob", Text: "rollback plan", StartedAt: baseTime}, []float32{0.9, 0.1, 0}},
		{Turn{ID: "t3", SessionID: "s1", SpeakerID: "carol", Text: "coffee break", StartedAt: baseTime}, []float32{0, 0, 1}},
	}
	for _, tc := range turns {
		if err := m.AppendTurn(ctx, tc.turn); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
		if err := m.IndexTurn(ctx, tc.turn, tc.vec); err != nil {
			t.Fatalf("IndexTurn: %v", err)
		}
	}

	got, err := m.SearchSimilar(ctx, []float32{1, 0, 0}, 2, SearchOpts{})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Turn.ID != "t1" {
		t.Errorf("closest = %s, want t1", got[0].Turn.ID)
	}
	if got[1].Turn.ID != "t2" {
		t.Errorf("second = %s, want t2", got[1].Turn.ID)
	}
	if got[0].Distance > got[1].Distance {
		t.Error("results should be ordered by ascending distance")
	}

	// Speaker filter excludes the closest match.
	got, err = m.SearchSimilar(ctx, []float32{1, 0, 0}, 5, SearchOpts{SpeakerID: "bob"})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(got) != 1 || got[0].Turn.ID != "t2" {
		t.Errorf("filtered results = %+v, want only t2", got)
	}
}

func TestCosineDistance(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"mismatched length", []float32{1}, []float32{1, 0}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := cosineDistance(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("cosineDistance = %v, want %v", got, tt.want)
			}
		})
	}
}
