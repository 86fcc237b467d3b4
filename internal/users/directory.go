// Package users resolves user ids to display names. Profiles live in the
// platform's main database; this service only reads names for prompts.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory maps a user id to a display name.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	Close() error
}

// NewDirectory creates a postgres-backed directory when configured, otherwise
// a static one that answers with a generic name.
func NewDirectory(ctx context.Context, databaseURL string) (Directory, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return StaticDirectory{}, nil
	}
	return NewPostgresDirectory(ctx, databaseURL)
}

// PostgresDirectory reads display names from the users table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(ctx context.Context, databaseURL string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresDirectory{pool: pool}, nil
}

func (d *PostgresDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx, `SELECT display_name FROM users WHERE id=$1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query display name: %w", err)
	}
	return name, nil
}

func (d *PostgresDirectory) Close() error {
	d.pool.Close()
	return nil
}

// StaticDirectory is the no-database fallback; prompts simply omit the name.
type StaticDirectory struct{}

func (StaticDirectory) DisplayName(context.Context, string) (string, error) { return "", nil }

func (StaticDirectory) Close() error { return nil }
