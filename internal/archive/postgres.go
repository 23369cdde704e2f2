// Package archive persists transcripts of closed sessions to Postgres.
// Writes are best effort; the bridge never blocks a caller on archiving.
package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	bridge "github.com/EurekaEstudio/openai-realtime-voice-bridge"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcripts (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			content_type TEXT NOT NULL,
			has_audio BOOLEAN NOT NULL DEFAULT FALSE,
			spoken_at TIMESTAMPTZ NOT NULL,
			archived_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_archived ON transcripts (archived_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init transcript schema: %w", err)
		}
	}
	return nil
}

// ArchiveTranscript stores the full conversation log of a closed session.
// Re-archiving the same session id is a no-op per turn: the first write
// wins.
func (s *PostgresStore) ArchiveTranscript(ctx context.Context, sessionID string, turns []bridge.Turn) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, turn := range turns {
		_, err := tx.Exec(ctx,
			`INSERT INTO transcripts (session_id, seq, role, content, content_type, has_audio, spoken_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)
			 ON CONFLICT (session_id, seq) DO NOTHING`,
			sessionID, i, turn.Role, turn.Content, turn.ContentType, turn.HasAudio, turn.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert turn %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
