package content

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise the
// built-in static set.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewStaticStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
