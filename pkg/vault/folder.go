package vault

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// MaxFolderNameLength bounds folder display names.
const MaxFolderNameLength = 256

// Folder groups items. Items reference folders by id; a folder never owns
// the items that reference it.
type Folder struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// FolderWithStats extends Folder with computed statistics for listing.
type FolderWithStats struct {
	Folder
	ItemCount int `json:"item_count"`
}

// validateFolderName rejects blank and oversized names.
func validateFolderName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("folder name", "must not be empty")
	}
	if len(name) > MaxFolderNameLength {
		return invalid("folder name", "too long")
	}
	return nil
}

// UpsertFolder inserts the folder or replaces its name. created_at is kept
// from the first insert.
func (t *Tx) UpsertFolder(id, name string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("folder id", "must not be empty")
	}
	if err := validateFolderName(name); err != nil {
		return err
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO folders (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name
	`, id, name, t.now)
	if err != nil {
		return storageErr("upsert folder", err)
	}
	return nil
}

// DeleteFolder clears the folder reference of every item in the folder,
// stamping their revision, then removes the folder row. Deleting a folder
// that does not exist is a no-op. It returns the number of detached items.
func (t *Tx) DeleteFolder(id string) (int, error) {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE items SET folder_id = NULL, revision_date = ?
		WHERE folder_id = ?
	`, t.now, id)
	if err != nil {
		return 0, storageErr("detach folder items", err)
	}
	detached, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("detach folder items", err)
	}

	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM folders WHERE id = ?", id); err != nil {
		return 0, storageErr("delete folder", err)
	}
	return int(detached), nil
}

// RenameFolder changes the name of an existing folder.
func (t *Tx) RenameFolder(id, name string) error {
	if err := validateFolderName(name); err != nil {
		return err
	}

	res, err := t.tx.ExecContext(t.ctx, "UPDATE folders SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return storageErr("rename folder", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rename folder", err)
	}
	if n == 0 {
		return notFound("folder", id)
	}
	return nil
}

// GetFolder retrieves a folder inside the transaction.
func (t *Tx) GetFolder(id string) (*Folder, error) {
	return getFolder(t.ctx, t.tx, id)
}

// FolderExists reports whether a folder with id exists.
func (t *Tx) FolderExists(id string) (bool, error) {
	return folderExists(t.ctx, t.tx, id)
}

// GetFolder retrieves a folder by ID.
func (s *Store) GetFolder(ctx context.Context, id string) (*Folder, error) {
	var f *Folder
	err := s.read("get folder", func(q dbtx) error {
		var err error
		f, err = getFolder(ctx, q, id)
		return err
	})
	return f, err
}

// ListFolders returns every folder with its item count, ordered by name.
func (s *Store) ListFolders(ctx context.Context) ([]*FolderWithStats, error) {
	var folders []*FolderWithStats
	err := s.read("list folders", func(q dbtx) error {
		rows, err := q.QueryContext(ctx, `
			SELECT f.id, f.name, COALESCE(f.created_at, ''), COUNT(i.id)
			FROM folders f
			LEFT JOIN items i ON i.folder_id = f.id
			GROUP BY f.id, f.name, f.created_at
			ORDER BY f.name, f.id
		`)
		if err != nil {
			return storageErr("list folders", err)
		}
		defer rows.Close()

		for rows.Next() {
			f := &FolderWithStats{}
			if err := rows.Scan(&f.ID, &f.Name, &f.CreatedAt, &f.ItemCount); err != nil {
				return storageErr("scan folder", err)
			}
			folders = append(folders, f)
		}
		return storageErr("list folders", rows.Err())
	})
	return folders, err
}

func getFolder(ctx context.Context, q dbtx, id string) (*Folder, error) {
	f := &Folder{}
	err := q.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(created_at, '') FROM folders WHERE id = ?
	`, id).Scan(&f.ID, &f.Name, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("folder", id)
	}
	if err != nil {
		return nil, storageErr("get folder", err)
	}
	return f, nil
}

func folderExists(ctx context.Context, q dbtx, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM folders WHERE id = ?", id).Scan(&n); err != nil {
		return false, storageErr("check folder", err)
	}
	return n > 0, nil
}
