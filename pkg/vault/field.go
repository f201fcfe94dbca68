package vault

import (
	"context"
	"fmt"
)

// FieldType mirrors the custom field kinds of the export format.
type FieldType int

// Field types
const (
	FieldText    FieldType = 0
	FieldHidden  FieldType = 1
	FieldBoolean FieldType = 2
	FieldLinked  FieldType = 3
)

// String returns the field type name.
func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldHidden:
		return "hidden"
	case FieldBoolean:
		return "boolean"
	case FieldLinked:
		return "linked"
	default:
		return fmt.Sprintf("field(%d)", int(t))
	}
}

// Sensitive reports whether values of this type should be masked on display.
func (t FieldType) Sensitive() bool {
	return t == FieldHidden
}

// Field is a custom name/value pair attached to an item.
type Field struct {
	ID     int64     `json:"id"`
	ItemID string    `json:"item_id"`
	Name   string    `json:"name"`
	Value  string    `json:"value"`
	Type   FieldType `json:"type"`
}

// URI is one address associated with an item.
type URI struct {
	ID     int64  `json:"id"`
	ItemID string `json:"item_id"`
	URI    string `json:"uri"`
}

// ReplaceURIs deletes every URI of the item and inserts uris in order,
// skipping empty strings. It returns the number of rows inserted.
func (t *Tx) ReplaceURIs(itemID string, uris []string) (int, error) {
	ok, err := itemExists(t.ctx, t.tx, itemID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, notFound("item", itemID)
	}

	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM uris WHERE item_id = ?", itemID); err != nil {
		return 0, storageErr("delete uris", err)
	}

	inserted := 0
	for _, u := range uris {
		if u == "" {
			continue
		}
		if _, err := t.tx.ExecContext(t.ctx, "INSERT INTO uris (item_id, uri) VALUES (?, ?)", itemID, u); err != nil {
			return 0, storageErr("insert uri", err)
		}
		inserted++
	}
	return inserted, nil
}

// AppendField adds a custom field to the item. Existing fields are left in
// place, so appending the same name twice stores two rows.
func (t *Tx) AppendField(itemID string, field Field) error {
	ok, err := itemExists(t.ctx, t.tx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("item", itemID)
	}

	_, err = t.tx.ExecContext(t.ctx,
		"INSERT INTO fields (item_id, name, value, type) VALUES (?, ?, ?, ?)",
		itemID, field.Name, field.Value, int(field.Type))
	if err != nil {
		return storageErr("insert field", err)
	}
	return nil
}

// ListURIs returns the item's URIs in insertion order.
func (s *Store) ListURIs(ctx context.Context, itemID string) ([]URI, error) {
	var uris []URI
	err := s.read("list uris", func(q dbtx) error {
		var err error
		uris, err = listURIs(ctx, q, itemID)
		return err
	})
	return uris, err
}

// ListFields returns the item's custom fields in insertion order.
func (s *Store) ListFields(ctx context.Context, itemID string) ([]Field, error) {
	var fields []Field
	err := s.read("list fields", func(q dbtx) error {
		var err error
		fields, err = listFields(ctx, q, itemID)
		return err
	})
	return fields, err
}

// ListURIs returns the item's URIs inside the transaction.
func (t *Tx) ListURIs(itemID string) ([]URI, error) {
	return listURIs(t.ctx, t.tx, itemID)
}

// ListFields returns the item's custom fields inside the transaction.
func (t *Tx) ListFields(itemID string) ([]Field, error) {
	return listFields(t.ctx, t.tx, itemID)
}

func listURIs(ctx context.Context, q dbtx, itemID string) ([]URI, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, item_id, uri FROM uris WHERE item_id = ? ORDER BY id", itemID)
	if err != nil {
		return nil, storageErr("list uris", err)
	}
	defer rows.Close()

	var uris []URI
	for rows.Next() {
		var u URI
		if err := rows.Scan(&u.ID, &u.ItemID, &u.URI); err != nil {
			return nil, storageErr("scan uri", err)
		}
		uris = append(uris, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list uris", err)
	}
	return uris, nil
}

func listFields(ctx context.Context, q dbtx, itemID string) ([]Field, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, item_id, COALESCE(name, ''), COALESCE(value, ''), COALESCE(type, 0)
		FROM fields WHERE item_id = ? ORDER BY id
	`, itemID)
	if err != nil {
		return nil, storageErr("list fields", err)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var f Field
		var typ int
		if err := rows.Scan(&f.ID, &f.ItemID, &f.Name, &f.Value, &typ); err != nil {
			return nil, storageErr("scan field", err)
		}
		f.Type = FieldType(typ)
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list fields", err)
	}
	return fields, nil
}
