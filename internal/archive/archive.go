// Package archive defines the persistent transcript store for recorded sessions.
//
// The archive is organised in two layers:
//
//   - [Store]: the durable session log. Sessions and their transcribed turns
//     are written as the recording pipeline produces them and can be listed,
//     fetched, and searched by keyword (full-text search on Postgres).
//   - [SemanticIndex]: a vector store for embedding-based similarity search
//     over archived turns. Callers produce embeddings before indexing.
//
// Both interfaces are public so alternative backends (Postgres/pgvector,
// in-memory for tests and DSN-less deployments) can be swapped freely.
//
// Every implementation must be safe for concurrent use.
package archive

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session ID does not exist in the store.
var ErrSessionNotFound = errors.New("archive: session not found")

// Session is one recorded voice-channel session.
type Session struct {
	// ID is the unique session identifier (a UUID assigned at record start).
	ID string

	// ChannelName is the human-readable name of the recorded voice channel.
	ChannelName string

	// StartedAt is when recording began.
	StartedAt time.Time

	// EndedAt is when recording stopped. Zero while the session is live.
	EndedAt time.Time

	// Summary is the LLM-generated recap. Empty until a recap is produced.
	Summary string
}

// Turn is a single transcribed speaking turn within a session.
type Turn struct {
	// ID is the unique turn identifier (a UUID assigned at finalization).
	ID string

	// SessionID is the session this turn belongs to.
	SessionID string

	// SpeakerID is the stable platform identifier of the speaker.
	SpeakerID string

	// SpeakerName is the speaker's display name at recording time.
	SpeakerName string

	// Text is the transcript after vocabulary correction.
	Text string

	// RawText is the transcript as produced by the STT provider, before
	// vocabulary correction. Kept for auditing corrections.
	RawText string

	// StartedAt is when the speaker began this turn.
	StartedAt time.Time

	// Duration is the length of the spoken turn, excluding the trailing
	// debounce window.
	Duration time.Duration
}

// SearchOpts narrows a keyword search over archived turns.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single session.
	// An empty string searches across all sessions.
	SessionID string

	// SpeakerID restricts results to a specific speaker.
	SpeakerID string

	// After filters turns that started after this instant (exclusive).
	After time.Time

	// Before filters turns that started before this instant (exclusive).
	Before time.Time

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// Store is the durable session log.
//
// Turns must be returned in chronological order unless otherwise specified.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateSession records the start of a new session.
	// The session's EndedAt and Summary fields are ignored.
	CreateSession(ctx context.Context, sess Session) error

	// EndSession marks the session as finished at endedAt.
	// Returns [ErrSessionNotFound] when the session does not exist.
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) error

	// SetSummary attaches an LLM-generated recap to the session.
	// Returns [ErrSessionNotFound] when the session does not exist.
	SetSummary(ctx context.Context, sessionID, summary string) error

	// GetSession retrieves a session by ID.
	// Returns [ErrSessionNotFound] when the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ListSessions returns the most recent sessions, newest first.
	// limit caps the result; 0 means the implementation default.
	ListSessions(ctx context.Context, limit int) ([]Session, error)

	// AppendTurn appends a transcribed turn to its session.
	AppendTurn(ctx context.Context, turn Turn) error

	// Turns returns all turns of a session in chronological order.
	// Returns an empty (non-nil) slice when the session has no turns.
	Turns(ctx context.Context, sessionID string) ([]Turn, error)

	// Search performs keyword search over turn transcripts.
	// Returns an empty (non-nil) slice when no turns match.
	Search(ctx context.Context, query string, opts SearchOpts) ([]Turn, error)
}

// SimilarTurn pairs a retrieved turn with its vector-space distance from the
// query embedding. Lower Distance values indicate higher semantic similarity.
type SimilarTurn struct {
	Turn     Turn
	Distance float64
}

// SemanticIndex is a vector store for embedding-based similarity search over
// archived turns.
//
// Callers are responsible for producing embeddings before calling IndexTurn
// or SearchSimilar. Implementations must be safe for concurrent use.
type SemanticIndex interface {
	// IndexTurn stores the embedding for a turn. If the turn is already
	// indexed its embedding is replaced (upsert).
	IndexTurn(ctx context.Context, turn Turn, embedding []float32) error

	// SearchSimilar finds the topK turns whose embeddings are closest to the
	// query embedding, filtered by opts (Limit is ignored; topK applies).
	// Results are ordered by ascending Distance (most similar first).
	// Returns an empty (non-nil) slice when no turns match.
	SearchSimilar(ctx context.Context, embedding []float32, topK int, opts SearchOpts) ([]SimilarTurn, error)
}
