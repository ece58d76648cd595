package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate brings db to latestVersion and reports the versions before and
// after. Each step runs in its own transaction together with the version
// bump, so a failed step leaves the previous version intact.
func migrate(ctx context.Context, db *sql.DB) (from, to int, err error) {
	if _, err := db.ExecContext(ctx, createSchemaVersion); err != nil {
		return 0, 0, fmt.Errorf("ensure schema_version: %w", err)
	}

	from, err = schemaVersion(ctx, db)
	if err != nil {
		return 0, 0, err
	}
	if from > latestVersion() {
		return from, from, fmt.Errorf("database schema version %d is newer than supported version %d", from, latestVersion())
	}

	to = from
	for _, m := range migrations {
		if m.version <= to {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return from, to, fmt.Errorf("migration v%d: %w", m.version, err)
		}
		to = m.version
	}
	return from, to, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("clearing schema_version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
		return fmt.Errorf("recording schema_version: %w", err)
	}
	return tx.Commit()
}

// schemaVersion returns the recorded version, 0 for a fresh database.
func schemaVersion(ctx context.Context, q querier) (int, error) {
	var v sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema_version: %w", err)
	}
	return int(v.Int64), nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
