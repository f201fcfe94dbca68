package service

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/vault"
)

// FolderSummary is a folder with the number of items in it.
type FolderSummary = vault.FolderWithStats

// FolderInput describes a new folder. An empty ID is generated.
type FolderInput struct {
	ID   string
	Name string
}

// ListFolders lists folders by name.
func (s *Service) ListFolders(ctx context.Context) ([]*FolderSummary, error) {
	return s.store.ListFolders(ctx)
}

// CreateFolder stores a new folder. A supplied id that already exists is an
// integrity violation.
func (s *Service) CreateFolder(ctx context.Context, in FolderInput) (*vault.Folder, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}

	var folder *vault.Folder
	err := s.store.Update(ctx, func(tx *vault.Tx) error {
		exists, err := tx.FolderExists(id)
		if err != nil {
			return err
		}
		if exists {
			return &vault.IntegrityError{Entity: "folder", ID: id, Reason: "already exists"}
		}
		if err := tx.UpsertFolder(id, norm.NFC.String(in.Name)); err != nil {
			return err
		}
		folder, err = tx.GetFolder(id)
		return err
	})
	s.record(audit.OpFolderCreate, id, err)
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// RenameFolder renames an existing folder.
func (s *Service) RenameFolder(ctx context.Context, id, name string) error {
	err := s.store.Update(ctx, func(tx *vault.Tx) error {
		return tx.RenameFolder(id, norm.NFC.String(name))
	})
	s.record(audit.OpFolderRename, id, err)
	return err
}

// DeleteFolder removes the folder and detaches its items. It returns the
// number of detached items; deleting a missing folder succeeds.
func (s *Service) DeleteFolder(ctx context.Context, id string) (int, error) {
	detached, err := s.store.DeleteFolder(ctx, id)
	s.record(audit.OpFolderDelete, id, err)
	return detached, err
}
