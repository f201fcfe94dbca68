package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ItemType discriminates item kinds. The values match the export format.
type ItemType int

// Item types.
const (
	TypeLogin      ItemType = 1
	TypeSecureNote ItemType = 2
	TypeCard       ItemType = 3
	TypeIdentity   ItemType = 4
)

// String returns the type name.
func (t ItemType) String() string {
	switch t {
	case TypeLogin:
		return "login"
	case TypeSecureNote:
		return "note"
	case TypeCard:
		return "card"
	case TypeIdentity:
		return "identity"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Item is a single credential record.
//
// Password is excluded from JSON and from String/log output; callers that
// need to show it must read the field explicitly.
type Item struct {
	ID           string   `json:"id"`
	FolderID     *string  `json:"folder_id"`
	Name         string   `json:"name"`
	Username     string   `json:"username,omitempty"`
	Password     string   `json:"-"`
	Notes        string   `json:"notes,omitempty"`
	Favorite     bool     `json:"favorite"`
	Reprompt     bool     `json:"reprompt"`
	Type         ItemType `json:"type"`
	CreatedDate  string   `json:"created_date,omitempty"`
	RevisionDate string   `json:"revision_date,omitempty"`
}

// String describes the item without its secret.
func (i Item) String() string {
	folder := "-"
	if i.FolderID != nil {
		folder = *i.FolderID
	}
	return fmt.Sprintf("Item{id=%s name=%q folder=%s type=%s}", i.ID, i.Name, folder, i.Type)
}

// MarshalZerologObject logs the item without its secret.
func (i Item) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", i.ID).Str("type", i.Type.String()).Bool("favorite", i.Favorite)
	if i.FolderID != nil {
		e.Str("folder_id", *i.FolderID)
	}
}

// InFolder reports whether the item references a folder.
func (i *Item) InFolder() bool {
	return i.FolderID != nil && *i.FolderID != ""
}

// ItemListing is an item with its representative URI (the first stored one).
type ItemListing struct {
	Item
	URI string `json:"uri,omitempty"`
}

// ItemQuery narrows ListItems. The zero value lists every item.
type ItemQuery struct {
	FolderID string // only items in this folder
	Unfiled  bool   // only items without a folder
}

// validateItem checks the fields an item row cannot do without.
func validateItem(item *Item) error {
	if item == nil {
		return invalid("item", "must not be nil")
	}
	if strings.TrimSpace(item.ID) == "" {
		return invalid("item id", "must not be empty")
	}
	if strings.TrimSpace(item.Name) == "" {
		return invalid("item name", "must not be empty")
	}
	return nil
}

// UpsertItem inserts the item or fully replaces the stored row with the same
// id. A non-empty folder reference must resolve to an existing folder. A zero
// type is stored as TypeLogin; item itself is not modified.
func (t *Tx) UpsertItem(item *Item) error {
	if err := validateItem(item); err != nil {
		return err
	}
	itemType := item.Type
	if itemType == 0 {
		itemType = TypeLogin
	}

	var folderID any
	if item.InFolder() {
		ok, err := folderExists(t.ctx, t.tx, *item.FolderID)
		if err != nil {
			return err
		}
		if !ok {
			return &IntegrityError{Entity: "item", ID: item.ID, Reason: fmt.Sprintf("folder %q does not exist", *item.FolderID)}
		}
		folderID = *item.FolderID
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO items (id, folder_id, name, username, password, notes,
			favorite, reprompt, type, created_date, revision_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			folder_id = excluded.folder_id,
			name = excluded.name,
			username = excluded.username,
			password = excluded.password,
			notes = excluded.notes,
			favorite = excluded.favorite,
			reprompt = excluded.reprompt,
			type = excluded.type,
			created_date = excluded.created_date,
			revision_date = excluded.revision_date
	`, item.ID, folderID, item.Name, item.Username, item.Password, item.Notes,
		boolToInt(item.Favorite), boolToInt(item.Reprompt), int(itemType),
		nullIfEmpty(item.CreatedDate), nullIfEmpty(item.RevisionDate))
	if err != nil {
		return storageErr("upsert item", err)
	}
	return nil
}

// DeleteItem removes the item together with its uris and fields. Deleting
// an item that does not exist is a no-op.
func (t *Tx) DeleteItem(id string) error {
	statements := []struct {
		op    string
		query string
	}{
		{"delete item uris", "DELETE FROM uris WHERE item_id = ?"},
		{"delete item fields", "DELETE FROM fields WHERE item_id = ?"},
		{"delete item", "DELETE FROM items WHERE id = ?"},
	}
	for _, s := range statements {
		if _, err := t.tx.ExecContext(t.ctx, s.query, id); err != nil {
			return storageErr(s.op, err)
		}
	}
	return nil
}

// GetItem retrieves an item inside the transaction.
func (t *Tx) GetItem(id string) (*Item, error) {
	return getItem(t.ctx, t.tx, id)
}

// ItemExists reports whether an item with id exists.
func (t *Tx) ItemExists(id string) (bool, error) {
	return itemExists(t.ctx, t.tx, id)
}

// GetItem retrieves an item by ID.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	var item *Item
	err := s.read("get item", func(q dbtx) error {
		var err error
		item, err = getItem(ctx, q, id)
		return err
	})
	return item, err
}

// ListItems returns items ordered favorites first, then by name (binary
// collation), each with the URI that was stored first.
func (s *Store) ListItems(ctx context.Context, query ItemQuery) ([]*ItemListing, error) {
	var where string
	var args []any
	switch {
	case query.FolderID != "":
		where = "WHERE i.folder_id = ?"
		args = append(args, query.FolderID)
	case query.Unfiled:
		where = "WHERE i.folder_id IS NULL"
	}

	var items []*ItemListing
	err := s.read("list items", func(q dbtx) error {
		rows, err := q.QueryContext(ctx, `
			SELECT `+itemColumns+`,
				COALESCE((SELECT u.uri FROM uris u WHERE u.item_id = i.id ORDER BY u.id LIMIT 1), '')
			FROM items i
			`+where+`
			ORDER BY COALESCE(i.favorite, 0) DESC, i.name, i.id
		`, args...)
		if err != nil {
			return storageErr("list items", err)
		}
		defer rows.Close()

		for rows.Next() {
			l := &ItemListing{}
			if err := scanItem(rows, &l.Item, &l.URI); err != nil {
				return storageErr("scan item", err)
			}
			items = append(items, l)
		}
		return storageErr("list items", rows.Err())
	})
	return items, err
}

// itemColumns selects an item row in the order scanItem expects.
const itemColumns = `i.id, COALESCE(i.folder_id, ''), i.name, COALESCE(i.username, ''),
	COALESCE(i.password, ''), COALESCE(i.notes, ''), COALESCE(i.favorite, 0),
	COALESCE(i.reprompt, 0), COALESCE(i.type, 1), COALESCE(i.created_date, ''),
	COALESCE(i.revision_date, '')`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanItem reads itemColumns into item, followed by any extra destinations.
func scanItem(row rowScanner, item *Item, extra ...any) error {
	var folderID string
	var favorite, reprompt, typ int
	dest := []any{
		&item.ID, &folderID, &item.Name, &item.Username, &item.Password,
		&item.Notes, &favorite, &reprompt, &typ, &item.CreatedDate,
		&item.RevisionDate,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	if folderID != "" {
		item.FolderID = &folderID
	}
	item.Favorite = favorite != 0
	item.Reprompt = reprompt != 0
	item.Type = ItemType(typ)
	return nil
}

func getItem(ctx context.Context, q dbtx, id string) (*Item, error) {
	item := &Item{}
	row := q.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items i WHERE i.id = ?", id)
	err := scanItem(row, item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("item", id)
	}
	if err != nil {
		return nil, storageErr("get item", err)
	}
	return item, nil
}

func itemExists(ctx context.Context, q dbtx, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE id = ?", id).Scan(&n); err != nil {
		return false, storageErr("check item", err)
	}
	return n > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
