package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("content not found")

// PostgresStore reads authored scenarios and personas from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Scenario(ctx context.Context, id string) (Scenario, error) {
	var sc Scenario
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, description, target_language, difficulty, system_prompt
		 FROM scenarios WHERE id=$1`,
		id,
	).Scan(&sc.ID, &sc.Title, &sc.Description, &sc.TargetLanguage, &sc.Difficulty, &sc.SystemPrompt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Scenario{}, fmt.Errorf("scenario %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Scenario{}, fmt.Errorf("query scenario: %w", err)
	}
	return sc, nil
}

func (s *PostgresStore) Persona(ctx context.Context, id string) (Persona, error) {
	var p Persona
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, role, voice, style, system_prompt
		 FROM personas WHERE id=$1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Role, &p.Voice, &p.Style, &p.SystemPrompt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Persona{}, fmt.Errorf("persona %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Persona{}, fmt.Errorf("query persona: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
