package tasks

import (
	"context"
	"fmt"
)

// migrations are applied in order; the schema version is the index of the
// last applied entry plus one, tracked in PRAGMA user_version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title VARCHAR(100) NOT NULL,
	description TEXT NOT NULL,
	due_date TEXT,
	priority VARCHAR(20) NOT NULL DEFAULT 'Normal',
	completed INTEGER NOT NULL DEFAULT 0
);`,
}

// SchemaVersion returns the number of migrations applied to the database.
func (r *SQLiteRepo) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := r.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// ApplyMigrations brings the schema up to date. Each migration runs in its
// own transaction together with the version bump.
func (r *SQLiteRepo) ApplyMigrations(ctx context.Context) error {
	current, err := r.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("schema version %d is newer than this binary (%d)", current, len(migrations))
	}

	for i := current; i < len(migrations); i++ {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
