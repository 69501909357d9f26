package db

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: text search over listings goes through lower(); index the
	// title so the common prefix searches stay cheap.
	`CREATE INDEX IF NOT EXISTS idx_items_title_lower ON items(lower(title))`,
	// Migration 2: history is ordered by last update.
	`CREATE INDEX IF NOT EXISTS idx_swaps_updated ON swaps(updated_at)`,
}

// Migrate ensures the schema and runs the migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
