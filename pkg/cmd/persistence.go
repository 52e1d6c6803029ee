// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/modelflow/pkg/persistence"
	"github.com/dukex/modelflow/pkg/persistence/file"
	"github.com/dukex/modelflow/pkg/persistence/postgresql"
	"github.com/dukex/modelflow/pkg/persistence/redis"
)

// NewPersistence selects a session store from the database URL scheme:
// redis:// and postgres:// pick their backends, anything else is treated as a
// file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "redis://"), strings.HasPrefix(databaseURL, "rediss://"):
		return redis.NewPersistence(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}
