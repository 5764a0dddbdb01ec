package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/0xChin/ricardo/internal/archive"
)

// defaultListLimit caps ListSessions and Search results when the caller
// passes 0.
const defaultListLimit = 50

// CreateSession implements [archive.Store].
func (s *Store) CreateSession(ctx context.Context, sess archive.Session) error {
	const q = `
		INSERT INTO sessions (id, channel_name, started_at)
		VALUES ($1, $2, $3)`

	_, err := s.pool.Exec(ctx, q, sess.ID, sess.ChannelName, sess.StartedAt)
	if err != nil {
		return fmt.Errorf("archive: create session: %w", err)
	}
	return nil
}

// EndSession implements [archive.Store].
func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	const q = `UPDATE sessions SET ended_at = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, sessionID, endedAt)
	if err != nil {
		return fmt.Errorf("archive: end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", archive.ErrSessionNotFound, sessionID)
	}
	return nil
}

// SetSummary implements [archive.Store].
func (s *Store) SetSummary(ctx context.Context, sessionID, summary string) error {
	const q = `UPDATE sessions SET summary = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, sessionID, summary)
	if err != nil {
		return fmt.Errorf("archive: set summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", archive.ErrSessionNotFound, sessionID)
	}
	return nil
}

// GetSession implements [archive.Store].
func (s *Store) GetSession(ctx context.Context, sessionID string) (*archive.Session, error) {
	const q = `
		SELECT id, channel_name, started_at, ended_at, summary
		FROM   sessions
		WHERE  id = $1`

	row := s.pool.QueryRow(ctx, q, sessionID)
	sess, err := scanSession(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", archive.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get session: %w", err)
	}
	return &sess, nil
}

// ListSessions implements [archive.Store]. Sessions are returned newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]archive.Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	const q = `
		SELECT id, channel_name, started_at, ended_at, summary
		FROM   sessions
		ORDER  BY started_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list sessions: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.Session, error) {
		return scanSession(row.Scan)
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan sessions: %w", err)
	}
	if sessions == nil {
		sessions = []archive.Session{}
	}
	return sessions, nil
}

// AppendTurn implements [archive.Store].
func (s *Store) AppendTurn(ctx context.Context, turn archive.Turn) error {
	const q = `
		INSERT INTO turns
		    (id, session_id, speaker_id, speaker_name, text, raw_text, started_at, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		turn.ID,
		turn.SessionID,
		turn.SpeakerID,
		turn.SpeakerName,
		turn.Text,
		turn.RawText,
		turn.StartedAt,
		turn.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("archive: append turn: %w", err)
	}
	return nil
}

// Turns implements [archive.Store].
func (s *Store) Turns(ctx context.Context, sessionID string) ([]archive.Turn, error) {
	const q = `
		SELECT id, session_id, speaker_id, speaker_name, text, raw_text, started_at, duration_ns
		FROM   turns
		WHERE  session_id = $1
		ORDER  BY started_at`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: turns: %w", err)
	}
	return collectTurns(rows)
}

// Search implements [archive.Store]. It performs a PostgreSQL full-text
// search over the text column and applies optional filters from opts.
//
// The query is passed to plainto_tsquery so no special operator syntax is
// required.
func (s *Store) Search(ctx context.Context, query string, opts archive.SearchOpts) ([]archive.Turn, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if opts.SpeakerID != "" {
		conditions = append(conditions, "speaker_id = "+next(opts.SpeakerID))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "started_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "started_at < "+next(opts.Before))
	}

	q := "SELECT id, session_id, speaker_id, speaker_name, text, raw_text, started_at, duration_ns\n" +
		"FROM   turns\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY started_at"

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	q += fmt.Sprintf("\nLIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: search: %w", err)
	}
	return collectTurns(rows)
}

// scanSession scans one sessions row via the given scan function.
func scanSession(scan func(dest ...any) error) (archive.Session, error) {
	var (
		sess    archive.Session
		endedAt sql.NullTime
	)
	if err := scan(&sess.ID, &sess.ChannelName, &sess.StartedAt, &endedAt, &sess.Summary); err != nil {
		return archive.Session{}, err
	}
	if endedAt.Valid {
		sess.EndedAt = endedAt.Time
	}
	return sess, nil
}

// collectTurns scans pgx rows into a slice of Turn values.
func collectTurns(rows pgx.Rows) ([]archive.Turn, error) {
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.Turn, error) {
		var (
			t          archive.Turn
			durationNS int64
		)
		if err := row.Scan(
			&t.ID,
			&t.SessionID,
			&t.SpeakerID,
			&t.SpeakerName,
			&t.Text,
			&t.RawText,
			&t.StartedAt,
			&durationNS,
		); err != nil {
			return archive.Turn{}, err
		}
		t.Duration = time.Duration(durationNS)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan turns: %w", err)
	}
	if turns == nil {
		turns = []archive.Turn{}
	}
	return turns, nil
}
