package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink appends usage records to PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresSink{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_usage (
			session_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			scenario_id TEXT NOT NULL DEFAULT '',
			persona_id TEXT NOT NULL DEFAULT '',
			duration_seconds BIGINT NOT NULL,
			user_chars INTEGER NOT NULL,
			ai_chars INTEGER NOT NULL,
			turns INTEGER NOT NULL,
			end_reason TEXT NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_session_usage_user_ended ON session_usage (user_id, ended_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresSink) Track(ctx context.Context, record Record) error {
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}

	// ON CONFLICT DO NOTHING backs the exactly-once guarantee at the
	// storage layer too, should a record ever be replayed.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_usage
		 (session_id, conversation_id, user_id, scenario_id, persona_id,
		  duration_seconds, user_chars, ai_chars, turns, end_reason, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (session_id) DO NOTHING`,
		record.SessionID,
		record.ConversationID,
		record.UserID,
		record.ScenarioID,
		record.PersonaID,
		record.DurationSeconds,
		record.UserChars,
		record.AIChars,
		record.Turns,
		record.EndReason,
		record.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("track usage: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
