// Package importer reads Bitwarden-style JSON exports and merges them into a
// vault. Records are upserted by their export id, so importing an updated
// export refreshes the same folders and items instead of duplicating them.
package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/lockbox/pkg/vault"
)

// MaxDocumentSize bounds the export files ParseFile accepts.
const MaxDocumentSize = 64 * 1024 * 1024

// Document is a parsed export. Optional members are pointers or flexible
// scalars so that absent, null and present values stay distinguishable
// until the default policy is applied.
type Document struct {
	Encrypted bool     `json:"encrypted"`
	Folders   []Folder `json:"folders"`
	Items     []Item   `json:"items"`

	size int
}

// Folder is an exported folder.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Item is an exported vault item.
type Item struct {
	ID           string  `json:"id"`
	FolderID     *string `json:"folderId"`
	Name         string  `json:"name"`
	Login        *Login  `json:"login"`
	Notes        *string `json:"notes"`
	Favorite     Flag    `json:"favorite"`
	Reprompt     Flag    `json:"reprompt"`
	Type         Number  `json:"type"`
	CreationDate *string `json:"creationDate"`
	RevisionDate *string `json:"revisionDate"`
	Fields       []Field `json:"fields"`
}

// Login holds the credential part of an item.
type Login struct {
	Username *string    `json:"username"`
	Password *string    `json:"password"`
	URIs     []LoginURI `json:"uris"`
}

// LoginURI is one entry of login.uris.
type LoginURI struct {
	URI *string `json:"uri"`
}

// Field is an exported custom field.
type Field struct {
	Name  *string `json:"name"`
	Value *string `json:"value"`
	Type  Number  `json:"type"`
}

// Flag is a boolean that also accepts 0/1 and "true"/"false".
type Flag struct {
	Value bool
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null":
		*f = Flag{}
	case "true", "1", `"true"`, `"1"`:
		*f = Flag{Value: true, Set: true}
	case "false", "0", `"false"`, `"0"`:
		*f = Flag{Value: false, Set: true}
	default:
		return &vault.ValidationError{Field: "flag", Reason: fmt.Sprintf("expected a boolean, got %s", data)}
	}
	return nil
}

// Number is an integer that also accepts a numeric string.
type Number struct {
	Value int
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*n = Number{}
		return nil
	}

	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return &vault.ValidationError{Field: "type", Reason: "malformed string"}
		}
		text = strings.TrimSpace(text)
	}

	v, err := strconv.Atoi(text)
	if err != nil {
		return &vault.ValidationError{Field: "type", Reason: fmt.Sprintf("expected an integer, got %s", data)}
	}
	*n = Number{Value: v, Set: true}
	return nil
}

// Or returns the value, or def when it was absent.
func (n Number) Or(def int) int {
	if !n.Set {
		return def
	}
	return n.Value
}

// Records returns the number of folder and item records in the document.
func (d *Document) Records() int {
	return len(d.Folders) + len(d.Items)
}

// Parse decodes and validates an export document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		var ve *vault.ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, &vault.ValidationError{Field: "document", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	doc.size = len(data)

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseFile reads and parses the export at path.
func ParseFile(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("importer: failed to read %s: %w", path, err)
	}
	if info.Size() > MaxDocumentSize {
		return nil, &vault.ValidationError{Field: "document", Reason: fmt.Sprintf("file exceeds %d MB", MaxDocumentSize/(1024*1024))}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("importer: failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks the structural requirements and applies NFC normalisation
// to display names. Secrets are left byte-for-byte as exported.
func (d *Document) Validate() error {
	if d.Encrypted {
		return &vault.ValidationError{Field: "document", Reason: "encrypted exports are not supported, export unencrypted JSON"}
	}

	for i := range d.Folders {
		f := &d.Folders[i]
		if strings.TrimSpace(f.ID) == "" {
			return &vault.ValidationError{Field: fmt.Sprintf("folders[%d].id", i), Reason: "must not be empty"}
		}
		f.Name = norm.NFC.String(f.Name)
		if strings.TrimSpace(f.Name) == "" {
			return &vault.ValidationError{Field: fmt.Sprintf("folders[%d].name", i), Reason: "must not be empty"}
		}
	}

	for i := range d.Items {
		item := &d.Items[i]
		if strings.TrimSpace(item.ID) == "" {
			return &vault.ValidationError{Field: fmt.Sprintf("items[%d].id", i), Reason: "must not be empty"}
		}
		item.Name = norm.NFC.String(item.Name)
		if strings.TrimSpace(item.Name) == "" {
			return &vault.ValidationError{Field: fmt.Sprintf("items[%d].name", i), Reason: "must not be empty"}
		}
		if item.Login != nil && item.Login.Username != nil {
			u := norm.NFC.String(*item.Login.Username)
			item.Login.Username = &u
		}
	}
	return nil
}

// folderID returns the referenced folder, or "" for none.
func (i *Item) folderID() string {
	if i.FolderID == nil {
		return ""
	}
	return *i.FolderID
}

// toVaultItem applies the default policy for absent members.
func (i *Item) toVaultItem() *vault.Item {
	item := &vault.Item{
		ID:           i.ID,
		Name:         i.Name,
		Notes:        deref(i.Notes),
		Favorite:     i.Favorite.Value,
		Reprompt:     i.Reprompt.Value,
		Type:         vault.ItemType(i.Type.Or(int(vault.TypeLogin))),
		CreatedDate:  deref(i.CreationDate),
		RevisionDate: deref(i.RevisionDate),
	}
	if id := i.folderID(); id != "" {
		item.FolderID = &id
	}
	if i.Login != nil {
		item.Username = deref(i.Login.Username)
		item.Password = deref(i.Login.Password)
	}
	return item
}

// uris returns the non-empty login uris in source order.
func (i *Item) uris() []string {
	if i.Login == nil {
		return nil
	}
	var out []string
	for _, u := range i.Login.URIs {
		if v := deref(u.URI); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (f *Field) toVaultField() vault.Field {
	return vault.Field{
		Name:  deref(f.Name),
		Value: deref(f.Value),
		Type:  vault.FieldType(f.Type.Or(int(vault.FieldText))),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
