package vault

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestUpsertFolder(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("insert", func(t *testing.T) {
		if err := s.UpsertFolder(ctx, "f1", "Work"); err != nil {
			t.Fatalf("failed to upsert folder: %v", err)
		}
		got, err := s.GetFolder(ctx, "f1")
		if err != nil {
			t.Fatalf("failed to get folder: %v", err)
		}
		if got.Name != "Work" {
			t.Errorf("expected name 'Work', got '%s'", got.Name)
		}
		if got.CreatedAt != fixedNow.Format(TimestampLayout) {
			t.Errorf("expected created_at %s, got %s", fixedNow.Format(TimestampLayout), got.CreatedAt)
		}
	})

	t.Run("replace name", func(t *testing.T) {
		if err := s.UpsertFolder(ctx, "f1", "Office"); err != nil {
			t.Fatalf("failed to upsert folder: %v", err)
		}
		got, err := s.GetFolder(ctx, "f1")
		if err != nil {
			t.Fatalf("failed to get folder: %v", err)
		}
		if got.Name != "Office" {
			t.Errorf("expected name 'Office', got '%s'", got.Name)
		}

		folders, err := s.ListFolders(ctx)
		if err != nil {
			t.Fatalf("failed to list folders: %v", err)
		}
		if len(folders) != 1 {
			t.Errorf("expected 1 folder, got %d", len(folders))
		}
	})
}

func TestUpsertFolderValidation(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name   string
		id     string
		folder string
	}{
		{"empty id", "", "Work"},
		{"empty name", "f1", ""},
		{"blank name", "f1", "   "},
		{"name too long", "f1", strings.Repeat("a", MaxFolderNameLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.UpsertFolder(ctx, tt.id, tt.folder)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}

	folders, err := s.ListFolders(ctx)
	if err != nil {
		t.Fatalf("failed to list folders: %v", err)
	}
	if len(folders) != 0 {
		t.Errorf("expected no folders after rejected writes, got %d", len(folders))
	}
}

func TestListFolders(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		for id, name := range map[string]string{"f1": "Work", "f2": "Banking", "f3": "personal"} {
			if err := tx.UpsertFolder(id, name); err != nil {
				return err
			}
		}
		for _, item := range []*Item{
			{ID: "i1", Name: "Email", FolderID: strPtr("f1")},
			{ID: "i2", Name: "VPN", FolderID: strPtr("f1")},
			{ID: "i3", Name: "Bank", FolderID: strPtr("f2")},
			{ID: "i4", Name: "Loose"},
		} {
			if err := tx.UpsertItem(item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	folders, err := s.ListFolders(ctx)
	if err != nil {
		t.Fatalf("failed to list folders: %v", err)
	}

	// Binary collation sorts upper case before lower case
	expected := []struct {
		id    string
		count int
	}{
		{"f2", 1},
		{"f1", 2},
		{"f3", 0},
	}
	if len(folders) != len(expected) {
		t.Fatalf("expected %d folders, got %d", len(expected), len(folders))
	}
	for i, e := range expected {
		if folders[i].ID != e.id {
			t.Errorf("position %d: expected folder %s, got %s", i, e.id, folders[i].ID)
		}
		if folders[i].ItemCount != e.count {
			t.Errorf("folder %s: expected %d items, got %d", e.id, e.count, folders[i].ItemCount)
		}
	}
}

func TestRenameFolder(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := s.UpsertFolder(ctx, "f1", "Work"); err != nil {
		t.Fatalf("failed to upsert folder: %v", err)
	}

	t.Run("existing folder", func(t *testing.T) {
		err := s.Update(ctx, func(tx *Tx) error { return tx.RenameFolder("f1", "Office") })
		if err != nil {
			t.Fatalf("failed to rename folder: %v", err)
		}
		got, _ := s.GetFolder(ctx, "f1")
		if got.Name != "Office" {
			t.Errorf("expected name 'Office', got '%s'", got.Name)
		}
	})

	t.Run("missing folder", func(t *testing.T) {
		err := s.Update(ctx, func(tx *Tx) error { return tx.RenameFolder("nope", "Office") })
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("blank name", func(t *testing.T) {
		err := s.Update(ctx, func(tx *Tx) error { return tx.RenameFolder("f1", " ") })
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestDeleteFolder(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.UpsertFolder("f1", "Work"); err != nil {
			return err
		}
		if err := tx.UpsertFolder("f2", "Other"); err != nil {
			return err
		}
		for _, item := range []*Item{
			{ID: "i1", Name: "Email", FolderID: strPtr("f1"), RevisionDate: "2020-01-01T00:00:00Z"},
			{ID: "i2", Name: "VPN", FolderID: strPtr("f1")},
			{ID: "i3", Name: "Bank", FolderID: strPtr("f2"), RevisionDate: "2020-01-01T00:00:00Z"},
		} {
			if err := tx.UpsertItem(item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	detached, err := s.DeleteFolder(ctx, "f1")
	if err != nil {
		t.Fatalf("failed to delete folder: %v", err)
	}
	if detached != 2 {
		t.Errorf("expected 2 detached items, got %d", detached)
	}

	if _, err := s.GetFolder(ctx, "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected folder to be gone, got %v", err)
	}

	for _, id := range []string{"i1", "i2"} {
		item, err := s.GetItem(ctx, id)
		if err != nil {
			t.Fatalf("expected item %s to remain, got %v", id, err)
		}
		if item.FolderID != nil {
			t.Errorf("item %s: expected nil folder, got %s", id, *item.FolderID)
		}
		if item.RevisionDate != fixedNow.Format(TimestampLayout) {
			t.Errorf("item %s: expected revision to be stamped, got %q", id, item.RevisionDate)
		}
	}

	other, err := s.GetItem(ctx, "i3")
	if err != nil {
		t.Fatalf("failed to get item: %v", err)
	}
	if other.RevisionDate != "2020-01-01T00:00:00Z" {
		t.Errorf("expected untouched revision for item in other folder, got %q", other.RevisionDate)
	}

	t.Run("idempotent", func(t *testing.T) {
		n, err := s.DeleteFolder(ctx, "f1")
		if err != nil {
			t.Errorf("expected no error deleting missing folder, got %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 detached items, got %d", n)
		}
	})
}
