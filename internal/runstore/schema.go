package runstore

import (
	"context"
	_ "embed"
	"fmt"

	"lofi/internal/config"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

type dialect struct {
	name           string
	schema         string
	numberedParams bool
	tableExists    string
}

var (
	sqliteDialect = dialect{
		name:        config.DriverSQLite,
		schema:      sqliteSchema,
		tableExists: "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name = ?",
	}
	postgresDialect = dialect{
		name:           config.DriverPostgres,
		schema:         postgresSchema,
		numberedParams: true,
		tableExists:    "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?",
	}
)

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	if err := s.queryRow(ctx, s.dialect.tableExists, "schema_version").Scan(&tableExists); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.queryRow(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.Rebind("INSERT INTO schema_version (version) VALUES (?)"), schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
