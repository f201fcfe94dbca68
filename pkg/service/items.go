package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/security"
	"github.com/forest6511/lockbox/pkg/vault"
)

// ItemFilter narrows ListItems. FolderID takes precedence over Unfiled.
type ItemFilter struct {
	FolderID string
	Unfiled  bool
	// Query matches a case-insensitive substring of name or username.
	Query string
}

// DecoratedItem is a listed item with its derived age classification.
type DecoratedItem struct {
	vault.ItemListing
	Age     security.AgeLevel `json:"age"`
	AgeDays *int              `json:"age_days,omitempty"`
}

// ItemDetail is a single item with all of its uris and custom fields.
type ItemDetail struct {
	DecoratedItem
	URIs   []vault.URI   `json:"uris"`
	Fields []vault.Field `json:"fields"`
}

// ItemInput describes a new item. An empty ID is generated.
type ItemInput struct {
	ID       string
	FolderID string
	Name     string
	Username string
	Password string
	Notes    string
	URIs     []string
	Favorite bool
	Reprompt bool
	Type     vault.ItemType
}

// ItemPatch describes a partial update. Nil fields are left unchanged. A
// non-nil URIs slice replaces the stored uris, so an empty one clears them.
type ItemPatch struct {
	Name     *string
	Username *string
	Password *string
	Notes    *string
	Reprompt *bool
	URIs     []string
}

func (s *Service) decorate(l *vault.ItemListing) DecoratedItem {
	now := s.store.Now()
	d := DecoratedItem{
		ItemListing: *l,
		Age:         security.ClassifyAge(l.RevisionDate, now),
	}
	if days, ok := security.AgeDays(l.RevisionDate, now); ok {
		d.AgeDays = &days
	}
	return d
}

// ListItems lists items favorites first, then by name.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]DecoratedItem, error) {
	listings, err := s.store.ListItems(ctx, vault.ItemQuery{
		FolderID: filter.FolderID,
		Unfiled:  filter.Unfiled,
	})
	if err != nil {
		return nil, err
	}

	var match func(*vault.ItemListing) bool
	if q := strings.TrimSpace(filter.Query); q != "" {
		fold := cases.Fold()
		needle := fold.String(norm.NFC.String(q))
		match = func(l *vault.ItemListing) bool {
			return strings.Contains(fold.String(norm.NFC.String(l.Name)), needle) ||
				strings.Contains(fold.String(norm.NFC.String(l.Username)), needle)
		}
	}

	items := make([]DecoratedItem, 0, len(listings))
	for _, l := range listings {
		if match != nil && !match(l) {
			continue
		}
		items = append(items, s.decorate(l))
	}
	return items, nil
}

// GetItem returns an item with its uris and fields, read in one
// transaction.
func (s *Service) GetItem(ctx context.Context, id string) (*ItemDetail, error) {
	var (
		item   *vault.Item
		uris   []vault.URI
		fields []vault.Field
	)
	err := s.store.View(ctx, func(tx *vault.Tx) error {
		var err error
		if item, err = tx.GetItem(id); err != nil {
			return err
		}
		if uris, err = tx.ListURIs(id); err != nil {
			return err
		}
		fields, err = tx.ListFields(id)
		return err
	})
	if err != nil {
		return nil, err
	}

	listing := &vault.ItemListing{Item: *item}
	if len(uris) > 0 {
		listing.URI = uris[0].URI
	}
	return &ItemDetail{
		DecoratedItem: s.decorate(listing),
		URIs:          uris,
		Fields:        fields,
	}, nil
}

// CreateItem stores a new item. A supplied id that already exists is an
// integrity violation; CreateItem never overwrites.
func (s *Service) CreateItem(ctx context.Context, in ItemInput) (*vault.Item, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}

	itemType := in.Type
	if itemType == 0 {
		itemType = vault.TypeLogin
	}
	item := &vault.Item{
		ID:       id,
		Name:     norm.NFC.String(in.Name),
		Username: norm.NFC.String(in.Username),
		Password: in.Password,
		Notes:    in.Notes,
		Favorite: in.Favorite,
		Reprompt: in.Reprompt,
		Type:     itemType,
	}
	if in.FolderID != "" {
		folderID := in.FolderID
		item.FolderID = &folderID
	}

	err := s.store.Update(ctx, func(tx *vault.Tx) error {
		exists, err := tx.ItemExists(id)
		if err != nil {
			return err
		}
		if exists {
			return &vault.IntegrityError{Entity: "item", ID: id, Reason: "already exists"}
		}
		item.CreatedDate = tx.Now()
		item.RevisionDate = tx.Now()
		if err := tx.UpsertItem(item); err != nil {
			return err
		}
		_, err = tx.ReplaceURIs(id, in.URIs)
		return err
	})
	s.record(audit.OpItemCreate, id, err)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem applies patch to an existing item in one transaction and
// stamps its revision.
func (s *Service) UpdateItem(ctx context.Context, id string, patch ItemPatch) (*vault.Item, error) {
	var updated *vault.Item
	err := s.store.Update(ctx, func(tx *vault.Tx) error {
		item, err := tx.GetItem(id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			item.Name = norm.NFC.String(*patch.Name)
		}
		if patch.Username != nil {
			item.Username = norm.NFC.String(*patch.Username)
		}
		if patch.Password != nil {
			item.Password = *patch.Password
		}
		if patch.Notes != nil {
			item.Notes = *patch.Notes
		}
		if patch.Reprompt != nil {
			item.Reprompt = *patch.Reprompt
		}
		item.RevisionDate = tx.Now()

		if err := tx.UpsertItem(item); err != nil {
			return err
		}
		if patch.URIs != nil {
			if _, err := tx.ReplaceURIs(id, patch.URIs); err != nil {
				return err
			}
		}
		updated = item
		return nil
	})
	s.record(audit.OpItemUpdate, id, err)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MoveItem puts the item into folderID, or into no folder when folderID is
// empty.
func (s *Service) MoveItem(ctx context.Context, id, folderID string) error {
	err := s.store.Update(ctx, func(tx *vault.Tx) error {
		item, err := tx.GetItem(id)
		if err != nil {
			return err
		}
		item.FolderID = nil
		if folderID != "" {
			item.FolderID = &folderID
		}
		item.RevisionDate = tx.Now()
		return tx.UpsertItem(item)
	})
	s.record(audit.OpItemMove, id, err)
	return err
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var favorite bool
	err := s.store.Update(ctx, func(tx *vault.Tx) error {
		item, err := tx.GetItem(id)
		if err != nil {
			return err
		}
		item.Favorite = !item.Favorite
		item.RevisionDate = tx.Now()
		favorite = item.Favorite
		return tx.UpsertItem(item)
	})
	s.record(audit.OpItemFavorite, id, err)
	return favorite, err
}

// DeleteItem removes the item with its uris and fields. Deleting a missing
// item succeeds.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	err := s.store.DeleteItem(ctx, id)
	s.record(audit.OpItemDelete, id, err)
	return err
}
