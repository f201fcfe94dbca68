package vault

import (
	"context"
	"fmt"
)

// Stats holds row counts for the vault.
type Stats struct {
	Folders   int `json:"folders"`
	Items     int `json:"items"`
	Unfiled   int `json:"unfiled"`
	Favorites int `json:"favorites"`
	URIs      int `json:"uris"`
	Fields    int `json:"fields"`
}

// Table describes one table of the vault schema.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// IntegrityReport is the result of CheckIntegrity.
type IntegrityReport struct {
	SchemaVersion int      `json:"schema_version"`
	Problems      []string `json:"problems,omitempty"`
}

// OK reports whether no problems were found.
func (r *IntegrityReport) OK() bool {
	return len(r.Problems) == 0
}

// Stats counts the rows of every vault table.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.read("count rows", func(q dbtx) error {
		counts := []struct {
			dest  *int
			query string
		}{
			{&st.Folders, "SELECT COUNT(*) FROM folders"},
			{&st.Items, "SELECT COUNT(*) FROM items"},
			{&st.Unfiled, "SELECT COUNT(*) FROM items WHERE folder_id IS NULL"},
			{&st.Favorites, "SELECT COUNT(*) FROM items WHERE favorite = 1"},
			{&st.URIs, "SELECT COUNT(*) FROM uris"},
			{&st.Fields, "SELECT COUNT(*) FROM fields"},
		}
		for _, c := range counts {
			if err := q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
				return storageErr("count rows", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Tables lists the user tables of the database with their columns,
// ordered by name.
func (s *Store) Tables(ctx context.Context) ([]Table, error) {
	var tables []Table
	err := s.read("inspect schema", func(q dbtx) error {
		rows, err := q.QueryContext(ctx, `
			SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name
		`)
		if err != nil {
			return storageErr("inspect schema", err)
		}
		var names []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return storageErr("inspect schema", err)
			}
			names = append(names, name)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storageErr("inspect schema", err)
		}

		// Rows must be closed before the next query on the single connection.
		for _, name := range names {
			cols, err := tableInfo(ctx, q, name)
			if err != nil {
				return storageErr("inspect table "+name, err)
			}
			tables = append(tables, Table{Name: name, Columns: cols})
		}
		return nil
	})
	return tables, err
}

// CheckIntegrity runs SQLite's integrity and foreign key checks and verifies
// that the required tables exist at the current schema version. Problems are
// reported in the result; the error is only set when the checks cannot run.
func (s *Store) CheckIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}
	err := s.read("check integrity", func(q dbtx) error {
		msgs, err := queryStrings(ctx, q, "PRAGMA integrity_check")
		if err != nil {
			return storageErr("run integrity_check", err)
		}
		for _, m := range msgs {
			if m != "ok" {
				report.Problems = append(report.Problems, "integrity_check: "+m)
			}
		}

		fkProblems, err := foreignKeyProblems(ctx, q)
		if err != nil {
			return storageErr("run foreign_key_check", err)
		}
		report.Problems = append(report.Problems, fkProblems...)

		for _, table := range RequiredTables {
			ok, err := tableExists(ctx, q, table)
			if err != nil {
				return storageErr("check tables", err)
			}
			if !ok {
				report.Problems = append(report.Problems, fmt.Sprintf("missing table %q", table))
			}
		}

		version, err := getSchemaVersion(ctx, q)
		if err != nil {
			return storageErr("read schema version", err)
		}
		report.SchemaVersion = version
		if version != CurrentSchemaVersion {
			report.Problems = append(report.Problems,
				fmt.Sprintf("schema version %d, expected %d", version, CurrentSchemaVersion))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func queryStrings(ctx context.Context, q dbtx, query string) ([]string, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func foreignKeyProblems(ctx context.Context, q dbtx) ([]string, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var table, parent string
		var rowid *int64
		var fkid int
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, err
		}
		if rowid != nil {
			out = append(out, fmt.Sprintf("foreign key: %s row %d references missing %s", table, *rowid, parent))
		} else {
			out = append(out, fmt.Sprintf("foreign key: %s references missing %s", table, parent))
		}
	}
	return out, rows.Err()
}
