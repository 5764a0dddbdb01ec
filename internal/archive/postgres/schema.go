// Package postgres provides a PostgreSQL-backed implementation of the
// transcript archive ([archive.Store]) and its semantic index
// ([archive.SemanticIndex]).
//
// Both layers share a single [pgxpool.Pool] connection pool. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.CreateSession(ctx, sess)
//	_ = store.AppendTurn(ctx, turn)
//	_ = store.IndexTurn(ctx, turn, embedding)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT         PRIMARY KEY,
    channel_name  TEXT         NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at      TIMESTAMPTZ,
    summary       TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at
    ON sessions (started_at);
`

const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id            TEXT         PRIMARY KEY,
    session_id    TEXT         NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    speaker_id    TEXT         NOT NULL DEFAULT '',
    speaker_name  TEXT         NOT NULL DEFAULT '',
    text          TEXT         NOT NULL,
    raw_text      TEXT         NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    duration_ns   BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_turns_session_id
    ON turns (session_id);

CREATE INDEX IF NOT EXISTS idx_turns_session_started
    ON turns (session_id, started_at);

CREATE INDEX IF NOT EXISTS idx_turns_fts
    ON turns USING GIN (to_tsvector('english', text));
`

// ddlEmbeddings returns the semantic index DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlEmbeddings(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS turn_embeddings (
    turn_id    TEXT       PRIMARY KEY REFERENCES turns (id) ON DELETE CASCADE,
    embedding  vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_turn_embeddings_embedding
    ON turn_embeddings USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS)
// and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlSessions,
		ddlTurns,
		ddlEmbeddings(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
