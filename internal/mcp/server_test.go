package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/forest6511/lockbox/pkg/security"
	"github.com/forest6511/lockbox/pkg/service"
	"github.com/forest6511/lockbox/pkg/vault"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testServer creates a server over a temporary vault
func testServer(t *testing.T) (*Server, *service.Service) {
	t.Helper()

	store, err := vault.Open(context.Background(), filepath.Join(t.TempDir(), vault.DBFileName),
		vault.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := service.New(store)
	return NewServer(svc, ServerOptions{Logger: zerolog.Nop()}), svc
}

// addTestItem adds an item to the vault for testing
func addTestItem(t *testing.T, svc *service.Service, in service.ItemInput) {
	t.Helper()
	if _, err := svc.CreateItem(context.Background(), in); err != nil {
		t.Fatalf("failed to add item '%s': %v", in.Name, err)
	}
}

func TestNewServer(t *testing.T) {
	s, _ := testServer(t)
	if s.server == nil {
		t.Fatal("expected MCP server to be created")
	}
}

func TestHandleItemList_Empty(t *testing.T) {
	s, _ := testServer(t)

	_, output, err := s.handleItemList(context.Background(), nil, ItemListInput{})
	if err != nil {
		t.Fatalf("handleItemList failed: %v", err)
	}
	if output.Items == nil || len(output.Items) != 0 {
		t.Errorf("expected empty non-nil item list, got %v", output.Items)
	}
}

func TestHandleItemList_WithItems(t *testing.T) {
	s, svc := testServer(t)
	ctx := context.Background()

	if _, err := svc.CreateFolder(ctx, service.FolderInput{ID: "f1", Name: "Work"}); err != nil {
		t.Fatalf("failed to create folder: %v", err)
	}
	addTestItem(t, svc, service.ItemInput{
		ID:       "i1",
		FolderID: "f1",
		Name:     "Email",
		Username: "a@b.com",
		Password: "top-secret-password",
		URIs:     []string{"https://mail.example.com"},
	})
	addTestItem(t, svc, service.ItemInput{ID: "i2", Name: "Bank"})

	_, output, err := s.handleItemList(ctx, nil, ItemListInput{})
	if err != nil {
		t.Fatalf("handleItemList failed: %v", err)
	}
	if len(output.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(output.Items))
	}

	email := output.Items[1]
	if email.ID != "i1" || email.FolderID != "f1" || email.URI != "https://mail.example.com" {
		t.Errorf("unexpected item info: %+v", email)
	}
	if !email.HasPassword {
		t.Error("expected has_password to be true")
	}
	if email.Age != security.AgeNone {
		t.Errorf("expected age none, got %s", email.Age)
	}

	data, err := json.Marshal(output)
	if err != nil {
		t.Fatalf("failed to marshal output: %v", err)
	}
	if strings.Contains(string(data), "top-secret-password") {
		t.Error("item_list output must not contain passwords")
	}

	t.Run("folder filter", func(t *testing.T) {
		_, output, err := s.handleItemList(ctx, nil, ItemListInput{FolderID: "f1"})
		if err != nil {
			t.Fatalf("handleItemList failed: %v", err)
		}
		if len(output.Items) != 1 || output.Items[0].ID != "i1" {
			t.Errorf("expected only i1, got %+v", output.Items)
		}
	})

	t.Run("query", func(t *testing.T) {
		_, output, err := s.handleItemList(ctx, nil, ItemListInput{Query: "BANK"})
		if err != nil {
			t.Fatalf("handleItemList failed: %v", err)
		}
		if len(output.Items) != 1 || output.Items[0].ID != "i2" {
			t.Errorf("expected only i2, got %+v", output.Items)
		}
	})
}

func TestHandleItemGetMasked_Success(t *testing.T) {
	s, svc := testServer(t)
	ctx := context.Background()

	password := "sk-1234567890abcd"
	addTestItem(t, svc, service.ItemInput{ID: "i1", Name: "API", Password: password, URIs: []string{"https://a", "https://b"}})
	err := svc.Store().AppendField(ctx, "i1", vault.Field{Name: "pin", Value: "98765", Type: vault.FieldHidden})
	if err != nil {
		t.Fatalf("failed to add field: %v", err)
	}
	err = svc.Store().AppendField(ctx, "i1", vault.Field{Name: "region", Value: "eu-west", Type: vault.FieldText})
	if err != nil {
		t.Fatalf("failed to add field: %v", err)
	}

	_, output, err := s.handleItemGetMasked(ctx, nil, ItemGetMaskedInput{ID: "i1"})
	if err != nil {
		t.Fatalf("handleItemGetMasked failed: %v", err)
	}
	if output.PasswordLength != len(password) {
		t.Errorf("expected password length %d, got %d", len(password), output.PasswordLength)
	}
	// 17 characters: 13 asterisks + "abcd"
	if output.MaskedPassword != "*************abcd" {
		t.Errorf("unexpected masked password: %q", output.MaskedPassword)
	}
	if len(output.URIs) != 2 {
		t.Errorf("expected 2 uris, got %v", output.URIs)
	}
	if len(output.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(output.Fields))
	}
	if !output.Fields[0].Masked || output.Fields[0].Value != "***65" {
		t.Errorf("expected hidden field to be masked, got %+v", output.Fields[0])
	}
	if output.Fields[1].Masked || output.Fields[1].Value != "eu-west" {
		t.Errorf("expected text field in clear, got %+v", output.Fields[1])
	}

	data, _ := json.Marshal(output)
	if strings.Contains(string(data), password) {
		t.Error("item_get_masked output must not contain the password")
	}
}

func TestHandleItemGetMasked_Errors(t *testing.T) {
	s, _ := testServer(t)
	ctx := context.Background()

	if _, _, err := s.handleItemGetMasked(ctx, nil, ItemGetMaskedInput{}); err == nil {
		t.Error("expected error for empty id")
	}

	_, _, err := s.handleItemGetMasked(ctx, nil, ItemGetMaskedInput{ID: "missing"})
	if err == nil {
		t.Fatal("expected error for missing item")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestHandleFolderList(t *testing.T) {
	s, svc := testServer(t)
	ctx := context.Background()

	for _, name := range []string{"Work", "Personal"} {
		if _, err := svc.CreateFolder(ctx, service.FolderInput{ID: strings.ToLower(name), Name: name}); err != nil {
			t.Fatalf("failed to create folder: %v", err)
		}
	}
	addTestItem(t, svc, service.ItemInput{Name: "Email", FolderID: "work"})

	_, output, err := s.handleFolderList(ctx, nil, FolderListInput{})
	if err != nil {
		t.Fatalf("handleFolderList failed: %v", err)
	}
	if len(output.Folders) != 2 {
		t.Fatalf("expected 2 folders, got %d", len(output.Folders))
	}
	if output.Folders[0].Name != "Personal" || output.Folders[1].ItemCount != 1 {
		t.Errorf("unexpected folders: %+v", output.Folders)
	}
}

func TestHandleSecurityReport(t *testing.T) {
	s, svc := testServer(t)
	addTestItem(t, svc, service.ItemInput{ID: "weak", Name: "Weak", Password: "abc"})

	_, output, err := s.handleSecurityReport(context.Background(), nil, SecurityReportInput{})
	if err != nil {
		t.Fatalf("handleSecurityReport failed: %v", err)
	}
	if output.Scanned != 1 {
		t.Errorf("expected 1 scanned, got %d", output.Scanned)
	}
	if len(output.Issues) == 0 {
		t.Fatal("expected a weak password issue")
	}
	if output.Issues[0].ItemID != "" {
		t.Errorf("expected no item id without include_ids, got %q", output.Issues[0].ItemID)
	}

	_, output, err = s.handleSecurityReport(context.Background(), nil, SecurityReportInput{IncludeIDs: true})
	if err != nil {
		t.Fatalf("handleSecurityReport failed: %v", err)
	}
	if output.Issues[0].ItemID != "weak" {
		t.Errorf("expected item id 'weak', got %q", output.Issues[0].ItemID)
	}
}

func TestToolError(t *testing.T) {
	err := toolError("failed", &vault.StorageError{Op: "list items", Err: errors.New("disk I/O error at /home/me/vault.db")})
	if strings.Contains(err.Error(), "/home/me") {
		t.Errorf("expected storage details to be hidden, got %v", err)
	}
	err = toolError("failed", &vault.ValidationError{Field: "id", Reason: "must not be empty"})
	if !errors.Is(err, vault.ErrValidation) {
		t.Errorf("expected validation error to stay matchable, got %v", err)
	}
}
