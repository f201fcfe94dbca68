package vault

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

// legacySchema is the layout written before schema versioning existed.
var legacySchema = []string{
	`CREATE TABLE folders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE items (
		id TEXT PRIMARY KEY,
		folder_id TEXT,
		name TEXT NOT NULL,
		username TEXT,
		password TEXT,
		notes TEXT,
		favorite INTEGER DEFAULT 0,
		reprompt INTEGER DEFAULT 0,
		type INTEGER DEFAULT 1,
		created_date TEXT,
		revision_date TEXT,
		FOREIGN KEY (folder_id) REFERENCES folders(id)
	)`,
	`CREATE TABLE uris (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		FOREIGN KEY (item_id) REFERENCES items(id)
	)`,
	`CREATE TABLE fields (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		name TEXT,
		value TEXT,
		type INTEGER,
		FOREIGN KEY (item_id) REFERENCES items(id)
	)`,
	"CREATE INDEX idx_items_folder ON items(folder_id)",
	"CREATE INDEX idx_items_name ON items(name)",
	"CREATE INDEX idx_uris_item ON uris(item_id)",
}

// openRawDB opens a database without foreign key enforcement.
func openRawDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	return db
}

func exec(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to exec %q: %v", stmt, err)
		}
	}
}

func TestGetSchemaVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("empty database", func(t *testing.T) {
		db := openRawDB(t, filepath.Join(t.TempDir(), "test.db"))
		defer db.Close()

		version, err := getSchemaVersion(ctx, db)
		if err != nil {
			t.Fatalf("getSchemaVersion failed: %v", err)
		}
		if version != SchemaVersionNone {
			t.Errorf("expected version %d, got %d", SchemaVersionNone, version)
		}
	})

	t.Run("legacy database", func(t *testing.T) {
		db := openRawDB(t, filepath.Join(t.TempDir(), "test.db"))
		defer db.Close()
		exec(t, db, legacySchema...)

		version, err := getSchemaVersion(ctx, db)
		if err != nil {
			t.Fatalf("getSchemaVersion failed: %v", err)
		}
		if version != SchemaVersion1 {
			t.Errorf("expected version %d, got %d", SchemaVersion1, version)
		}
	})
}

func TestSetSchemaVersion(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t, filepath.Join(t.TempDir(), "test.db"))
	defer db.Close()

	if err := setSchemaVersion(ctx, db, SchemaVersion2); err != nil {
		t.Fatalf("setSchemaVersion failed: %v", err)
	}
	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("getSchemaVersion failed: %v", err)
	}
	if version != SchemaVersion2 {
		t.Errorf("expected version %d, got %d", SchemaVersion2, version)
	}

	if err := setSchemaVersion(ctx, db, SchemaVersion2+1); err != nil {
		t.Fatalf("setSchemaVersion update failed: %v", err)
	}
	version, err = getSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("getSchemaVersion after update failed: %v", err)
	}
	if version != SchemaVersion2+1 {
		t.Errorf("expected version %d, got %d", SchemaVersion2+1, version)
	}
}

func TestMigrateLegacyDatabase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), DBFileName)

	db := openRawDB(t, dbPath)
	exec(t, db, legacySchema...)
	exec(t, db,
		"INSERT INTO folders (id, name) VALUES ('f1', 'Work')",
		"INSERT INTO items (id, folder_id, name) VALUES ('i1', 'f1', 'Email')",
		"INSERT INTO items (id, folder_id, name) VALUES ('i2', 'gone', 'Dangling')",
		"INSERT INTO uris (item_id, uri) VALUES ('i1', 'https://mail.example.com')",
		"INSERT INTO uris (item_id, uri) VALUES ('ghost', 'https://orphan.example')",
		"INSERT INTO fields (item_id, name, value, type) VALUES ('ghost', 'pin', '1', 1)",
	)
	db.Close()

	s, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	report, err := s.CheckIntegrity(ctx)
	if err != nil {
		t.Fatalf("CheckIntegrity failed: %v", err)
	}
	if !report.OK() {
		t.Errorf("expected clean vault after migration, got %v", report.Problems)
	}
	if report.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("expected version %d, got %d", CurrentSchemaVersion, report.SchemaVersion)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.URIs != 1 || st.Fields != 0 {
		t.Errorf("expected orphans removed, got %+v", st)
	}

	dangling, err := s.GetItem(ctx, "i2")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if dangling.FolderID != nil {
		t.Errorf("expected dangling folder reference cleared, got %q", *dangling.FolderID)
	}

	kept, err := s.GetItem(ctx, "i1")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if kept.FolderID == nil || *kept.FolderID != "f1" {
		t.Errorf("expected valid folder reference kept, got %v", kept.FolderID)
	}

	// Legacy rows keep working with the write path
	if _, err := s.DeleteFolder(ctx, "f1"); err != nil {
		t.Errorf("DeleteFolder on migrated vault failed: %v", err)
	}
}

func TestMigrateSchemaNewerVersion(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), DBFileName)

	s, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Close()

	db := openRawDB(t, dbPath)
	if err := setSchemaVersion(ctx, db, CurrentSchemaVersion+1); err != nil {
		t.Fatalf("setSchemaVersion failed: %v", err)
	}
	db.Close()

	_, err = Open(ctx, dbPath)
	if !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity for newer schema, got %v", err)
	}
}

func TestGetTableColumns(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	columns, err := getTableColumns(context.Background(), s.db, "items")
	if err != nil {
		t.Fatalf("getTableColumns failed: %v", err)
	}

	for _, col := range []string{"id", "folder_id", "name", "username", "password", "notes",
		"favorite", "reprompt", "type", "created_date", "revision_date"} {
		if !columns[col] {
			t.Errorf("expected column %q", col)
		}
	}
}
