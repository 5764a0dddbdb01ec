package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/0xChin/ricardo/internal/archive"
)

// IndexTurn implements [archive.SemanticIndex]. It upserts the embedding for
// a turn into the turn_embeddings table. If the turn is already indexed its
// embedding is replaced.
func (s *Store) IndexTurn(ctx context.Context, turn archive.Turn, embedding []float32) error {
	const q = `
		INSERT INTO turn_embeddings (turn_id, embedding)
		VALUES ($1, $2)
		ON CONFLICT (turn_id) DO UPDATE SET
		    embedding = EXCLUDED.embedding`

	_, err := s.pool.Exec(ctx, q, turn.ID, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("archive: index turn: %w", err)
	}
	return nil
}

// SearchSimilar implements [archive.SemanticIndex]. It finds the topK turns
// whose embeddings are closest (cosine distance) to the supplied query
// embedding, optionally filtered by opts.
//
// Results are ordered by ascending cosine distance (most similar first).
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, topK int, opts archive.SearchOpts) ([]archive.SimilarTurn, error) {
	queryVec := pgvector.NewVector(embedding)

	args := []any{queryVec} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if opts.SessionID != "" {
		conditions = append(conditions, "t.session_id = "+next(opts.SessionID))
	}
	if opts.SpeakerID != "" {
		conditions = append(conditions, "t.speaker_id = "+next(opts.SpeakerID))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "t.started_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "t.started_at < "+next(opts.Before))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	if topK <= 0 {
		topK = defaultListLimit
	}
	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT t.id, t.session_id, t.speaker_id, t.speaker_name, t.text, t.raw_text,
		       t.started_at, t.duration_ns,
		       e.embedding <=> $1 AS distance
		FROM   turn_embeddings e
		JOIN   turns t ON t.id = e.turn_id
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: search similar: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.SimilarTurn, error) {
		var (
			st         archive.SimilarTurn
			durationNS int64
		)
		if err := row.Scan(
			&st.Turn.ID,
			&st.Turn.SessionID,
			&st.Turn.SpeakerID,
			&st.Turn.SpeakerName,
			&st.Turn.Text,
			&st.Turn.RawText,
			&st.Turn.StartedAt,
			&durationNS,
			&st.Distance,
		); err != nil {
			return archive.SimilarTurn{}, err
		}
		st.Turn.Duration = time.Duration(durationNS)
		return st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan similar turns: %w", err)
	}
	if results == nil {
		results = []archive.SimilarTurn{}
	}
	return results, nil
}
