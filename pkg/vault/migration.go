package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Schema version constants
const (
	// SchemaVersionNone is an empty database.
	SchemaVersionNone = 0
	// SchemaVersion1 is the layout written by the original importer: the four
	// tables without FK actions and without a schema_version table.
	SchemaVersion1 = 1
	// SchemaVersion2 adds idx_fields_item and removes rows orphaned while
	// foreign keys were not enforced.
	SchemaVersion2 = 2
	// CurrentSchemaVersion is the current schema version
	CurrentSchemaVersion = SchemaVersion2
)

// RequiredTables lists the tables a usable vault must contain.
var RequiredTables = []string{"folders", "items", "uris", "fields"}

// getSchemaVersion returns the schema version of the database.
// A database with an items table but no schema_version table is version 1.
func getSchemaVersion(ctx context.Context, q dbtx) (int, error) {
	hasVersion, err := tableExists(ctx, q, "schema_version")
	if err != nil {
		return 0, fmt.Errorf("vault: failed to check schema_version table: %w", err)
	}
	if !hasVersion {
		hasItems, err := tableExists(ctx, q, "items")
		if err != nil {
			return 0, fmt.Errorf("vault: failed to check items table: %w", err)
		}
		if hasItems {
			return SchemaVersion1, nil
		}
		return SchemaVersionNone, nil
	}

	var version int
	err = q.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return SchemaVersion1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("vault: failed to get schema version: %w", err)
	}
	return version, nil
}

// setSchemaVersion records version in the schema_version table.
func setSchemaVersion(ctx context.Context, q dbtx, version int) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			migrated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("vault: failed to create schema_version table: %w", err)
	}

	_, err = q.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version)
	if err != nil {
		return fmt.Errorf("vault: failed to set schema version: %w", err)
	}
	return nil
}

func tableExists(ctx context.Context, q dbtx, name string) (bool, error) {
	var found string
	err := q.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// migrateSchema creates or upgrades the schema to CurrentSchemaVersion.
func migrateSchema(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		return &StorageError{Op: "read schema version", Err: err}
	}

	if version > CurrentSchemaVersion {
		return &IntegrityError{
			Entity: "schema",
			Reason: fmt.Sprintf("database version %d is newer than supported version %d", version, CurrentSchemaVersion),
		}
	}

	if version == SchemaVersionNone {
		if err := createTables(ctx, db); err != nil {
			return &StorageError{Op: "create tables", Err: err}
		}
		return nil
	}

	if version < SchemaVersion2 {
		log.Info().Int("from", version).Int("to", SchemaVersion2).Msg("migrating vault schema")
		if err := migrateToV2(ctx, db); err != nil {
			return &StorageError{Op: "migrate schema to v2", Err: err}
		}
	}

	return nil
}

// createTables creates the current schema in an empty database.
func createTables(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS folders (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			folder_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
			name TEXT NOT NULL,
			username TEXT,
			password TEXT,
			notes TEXT,
			favorite INTEGER DEFAULT 0,
			reprompt INTEGER DEFAULT 0,
			type INTEGER DEFAULT 1,
			created_date TEXT,
			revision_date TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS uris (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			uri TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fields (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			name TEXT,
			value TEXT,
			type INTEGER
		)`,
		"CREATE INDEX IF NOT EXISTS idx_items_folder ON items(folder_id)",
		"CREATE INDEX IF NOT EXISTS idx_items_name ON items(name)",
		"CREATE INDEX IF NOT EXISTS idx_uris_item ON uris(item_id)",
		"CREATE INDEX IF NOT EXISTS idx_fields_item ON fields(item_id)",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if err := setSchemaVersion(ctx, tx, CurrentSchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// migrateToV2 upgrades a database written by the original importer.
// This migration:
// 1. Creates idx_fields_item
// 2. Deletes uris and fields whose item no longer exists
// 3. Clears folder references that point at missing folders
// 4. Records the schema version
//
// The original tool never enabled foreign keys, so a folder delete could
// leave dangling folder_id values behind.
func migrateToV2(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Check the columns the engine relies on (idempotent migration)
	columns, err := getTableColumns(ctx, tx, "items")
	if err != nil {
		return fmt.Errorf("failed to get items columns: %w", err)
	}
	if !columns["type"] {
		if _, err := tx.ExecContext(ctx, "ALTER TABLE items ADD COLUMN type INTEGER DEFAULT 1"); err != nil {
			return fmt.Errorf("failed to add type column: %w", err)
		}
	}

	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_fields_item ON fields(item_id)",
		"DELETE FROM uris WHERE item_id NOT IN (SELECT id FROM items)",
		"DELETE FROM fields WHERE item_id NOT IN (SELECT id FROM items)",
		"UPDATE items SET folder_id = NULL WHERE folder_id IS NOT NULL AND folder_id NOT IN (SELECT id FROM folders)",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	if err := setSchemaVersion(ctx, tx, SchemaVersion2); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// getTableColumns returns a map of column names for a table.
func getTableColumns(ctx context.Context, q dbtx, tableName string) (map[string]bool, error) {
	columns, err := tableInfo(ctx, q, tableName)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(columns))
	for _, c := range columns {
		names[c.Name] = true
	}
	return names, nil
}

// Column describes one column of a vault table.
type Column struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	NotNull bool   `json:"not_null"`
	Primary bool   `json:"primary_key"`
}

func tableInfo(ctx context.Context, q dbtx, tableName string) ([]Column, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, Column{Name: name, Type: ctype, NotNull: notnull != 0, Primary: pk != 0})
	}
	return columns, rows.Err()
}
