package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/forest6511/lockbox/pkg/importer"
	"github.com/forest6511/lockbox/pkg/service"
	"github.com/forest6511/lockbox/pkg/vault"
)

const testExport = `{
	"encrypted": false,
	"folders": [{"id": "f1", "name": "Work"}],
	"items": [{
		"id": "i1",
		"folderId": "f1",
		"name": "Email",
		"login": {
			"username": "a@b.com",
			"password": "hunter2-imported",
			"uris": [{"uri": "https://mail.example.com"}]
		},
		"fields": [{"name": "pin", "value": "4321", "type": 1}]
	}]
}`

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// setupTestCLI isolates the CLI in a temporary home and vault directory.
func setupTestCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	dir := filepath.Join(home, "vault")
	t.Setenv("LOCKBOX_VAULT_DIR", dir)
	t.Setenv("LOCKBOX_LOG_FORMAT", "json")
	return dir
}

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	if cerr := closeVault(); cerr != nil {
		t.Fatalf("failed to close vault: %v", cerr)
	}
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, "", args...)
	if err != nil {
		t.Fatalf("lockbox %s failed: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestImportAndList(t *testing.T) {
	setupTestCLI(t)
	exportPath := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(exportPath, []byte(testExport), 0600); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}

	out := mustRun(t, "import", exportPath, "--json")
	var summary importer.ImportSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("failed to parse summary %q: %v", out, err)
	}
	if summary.FoldersImported != 1 || summary.ItemsImported != 1 || summary.URIsImported != 1 || summary.FieldsImported != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	out = mustRun(t, "folder", "list", "--json")
	var folders []service.FolderSummary
	if err := json.Unmarshal([]byte(out), &folders); err != nil {
		t.Fatalf("failed to parse folders: %v", err)
	}
	if len(folders) != 1 || folders[0].ID != "f1" || folders[0].ItemCount != 1 {
		t.Errorf("unexpected folders: %+v", folders)
	}

	out = mustRun(t, "item", "list")
	if !strings.Contains(out, "Email") || !strings.Contains(out, "https://mail.example.com") {
		t.Errorf("expected item in listing, got %q", out)
	}
	if strings.Contains(out, "hunter2-imported") {
		t.Error("item list must not print passwords")
	}

	for _, args := range [][]string{
		{"item", "show", "i1"},
		{"item", "show", "i1", "--json"},
	} {
		out = mustRun(t, args...)
		if strings.Contains(out, "4321") || strings.Contains(out, "hunter2-imported") {
			t.Errorf("lockbox %s must mask hidden values, got %q", strings.Join(args, " "), out)
		}
	}

	out = mustRun(t, "item", "show", "i1", "--json", "--reveal")
	if !strings.Contains(out, "4321") || !strings.Contains(out, "hunter2-imported") {
		t.Errorf("expected revealed values with --reveal, got %q", out)
	}

	mustRun(t, "folder", "delete", "f1")

	out = mustRun(t, "folder", "list")
	if !strings.Contains(out, "No folders found") {
		t.Errorf("expected no folders, got %q", out)
	}

	out = mustRun(t, "item", "list", "--unfiled", "--json")
	var items []service.DecoratedItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("failed to parse items: %v", err)
	}
	if len(items) != 1 || items[0].ID != "i1" || items[0].FolderID != nil {
		t.Errorf("expected i1 without folder, got %+v", items)
	}
}

func TestImportDryRun(t *testing.T) {
	setupTestCLI(t)
	exportPath := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(exportPath, []byte(testExport), 0600); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}

	out := mustRun(t, "import", exportPath, "--dry-run")
	if !strings.Contains(out, "Dry run") {
		t.Errorf("expected dry run notice, got %q", out)
	}

	out = mustRun(t, "item", "list")
	if !strings.Contains(out, "No items found") {
		t.Errorf("expected empty vault after dry run, got %q", out)
	}
}

func TestImportInvalid(t *testing.T) {
	setupTestCLI(t)
	exportPath := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(exportPath, []byte(`{"encrypted": true, "folders": [], "items": []}`), 0600); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}

	_, err := runCLI(t, "", "import", exportPath)
	if !errors.Is(err, vault.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if code := exitCode(err); code != 2 {
		t.Errorf("expected exit code 2, got %d", code)
	}
}

func TestItemLifecycle(t *testing.T) {
	setupTestCLI(t)

	mustRun(t, "folder", "create", "Work", "--id", "work")

	out, err := runCLI(t, "s3cret-value\n", "item", "add", "Email",
		"--folder", "work", "--username", "me@example.com", "--password-stdin",
		"--uri", "https://one.example.com", "--uri", "https://two.example.com")
	if err != nil {
		t.Fatalf("item add failed: %v", err)
	}
	id := strings.TrimSuffix(strings.TrimSpace(out[strings.Index(out, "ID: ")+4:]), ")")

	out = mustRun(t, "item", "show", id)
	if strings.Contains(out, "s3cret-value") {
		t.Error("item show must mask the password without --reveal")
	}
	if !strings.Contains(out, "https://two.example.com") {
		t.Errorf("expected both uris, got %q", out)
	}

	out = mustRun(t, "item", "show", id, "--reveal", "--json")
	var revealed map[string]any
	if err := json.Unmarshal([]byte(out), &revealed); err != nil {
		t.Fatalf("failed to parse item: %v", err)
	}
	if revealed["password"] != "s3cret-value" {
		t.Errorf("expected revealed password, got %v", revealed["password"])
	}

	out = mustRun(t, "item", "show", id, "--json")
	if strings.Contains(out, "s3cret-value") {
		t.Error("item show --json must not include the password without --reveal")
	}

	mustRun(t, "item", "edit", id, "--name", "Mail", "--clear-uris")
	out = mustRun(t, "item", "show", id)
	if !strings.Contains(out, "Name:      Mail") || strings.Contains(out, "URI 1") {
		t.Errorf("unexpected item after edit: %q", out)
	}

	out = mustRun(t, "item", "favorite", id)
	if !strings.Contains(out, "now a favorite") {
		t.Errorf("unexpected favorite output: %q", out)
	}

	mustRun(t, "item", "move", id)
	out = mustRun(t, "item", "list", "--folder", "work")
	if !strings.Contains(out, "No items found") {
		t.Errorf("expected item to leave the folder, got %q", out)
	}

	mustRun(t, "item", "delete", id)
	_, err = runCLI(t, "", "item", "show", id)
	if !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestItemAddErrors(t *testing.T) {
	setupTestCLI(t)

	_, err := runCLI(t, "", "item", "add", "Orphan", "--folder", "missing")
	if !errors.Is(err, vault.ErrIntegrity) {
		t.Errorf("expected integrity error, got %v", err)
	}
	_, err = runCLI(t, "", "item", "add", "   ")
	if !errors.Is(err, vault.ErrValidation) {
		t.Errorf("expected validation error for blank name, got %v", err)
	}
}

func TestCheckAndInspect(t *testing.T) {
	setupTestCLI(t)
	mustRun(t, "folder", "create", "Work")

	out := mustRun(t, "check", "--json")
	var result checkOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse check output: %v", err)
	}
	if !result.Integrity.OK() {
		t.Errorf("expected clean vault, got %v", result.Integrity.Problems)
	}
	if result.Stats.Folders != 1 {
		t.Errorf("expected 1 folder, got %d", result.Stats.Folders)
	}

	out = mustRun(t, "inspect")
	for _, table := range []string{"folders", "items", "uris", "fields"} {
		if !strings.Contains(out, table) {
			t.Errorf("expected table %s in inspect output", table)
		}
	}
}

func TestSecurityAndAudit(t *testing.T) {
	setupTestCLI(t)

	if _, err := runCLI(t, "abc\n", "item", "add", "Weak", "--password-stdin"); err != nil {
		t.Fatalf("item add failed: %v", err)
	}

	out := mustRun(t, "security")
	if !strings.Contains(out, "Security Score") || !strings.Contains(out, "[WEAK/") {
		t.Errorf("unexpected security output: %q", out)
	}

	out = mustRun(t, "audit", "list")
	if !strings.Contains(out, "item.create success") {
		t.Errorf("expected create event, got %q", out)
	}
	out = mustRun(t, "audit", "verify")
	if !strings.Contains(out, "chain intact") {
		t.Errorf("expected intact chain, got %q", out)
	}
}

func TestCompletion(t *testing.T) {
	dir := setupTestCLI(t)
	registerCompletionFunctions()

	out := mustRun(t, "completion", "bash")
	if !strings.Contains(out, "lockbox") {
		t.Errorf("expected bash completion script, got %d bytes", len(out))
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("completion must not create the vault directory, stat err: %v", err)
	}

	ids, directive := completeItemID(itemShowCmd, nil, "")
	if len(ids) != 0 || directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected no completions without a vault, got %v %v", ids, directive)
	}

	mustRun(t, "folder", "create", "Work", "--id", "work")
	mustRun(t, "folder", "create", "Home", "--id", "home")

	resetFlags(rootCmd)
	itemMoveCmd.SetContext(context.Background())
	folders, _ := completeMoveArgs(itemMoveCmd, []string{"some-item"}, "wo")
	if len(folders) != 1 || folders[0] != "work\tWork" {
		t.Errorf("unexpected folder completions: %v", folders)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&vault.ValidationError{Field: "name", Reason: "empty"}, 2},
		{&vault.IntegrityError{Entity: "item", Reason: "dangling"}, 3},
		{&vault.NotFoundError{Entity: "item", ID: "x"}, 4},
		{&vault.StorageError{Op: "open", Err: errors.New("io")}, 5},
		{errors.New("other"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"1y", 365 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.input)
		if err != nil {
			t.Errorf("parseDuration(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := parseDuration("x"); err == nil {
		t.Error("expected error for short input")
	}
}
