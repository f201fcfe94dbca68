package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/lockbox/internal/config"
	"github.com/forest6511/lockbox/internal/logging"
	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/importer"
	"github.com/forest6511/lockbox/pkg/service"
	"github.com/forest6511/lockbox/pkg/vault"
)

// AuditDirName is the journal directory inside the vault directory.
const AuditDirName = "audit"

// annotationNoVault marks commands that run without opening the vault.
const annotationNoVault = "lockbox/no-vault"

// Persistent flags
var (
	configPath string
	vaultDir   string
	logLevel   string
	logFormat  string
)

var (
	cfg     *config.Config
	logger  = zerolog.Nop()
	store   *vault.Store
	journal *audit.Logger
	svc     *service.Service
)

var rootCmd = &cobra.Command{
	Use:   "lockbox",
	Short: "lockbox is a local credential vault",
	Long: `A local vault for login items, folders, URIs and custom fields,
stored in a single SQLite file. Bitwarden-style JSON exports can be
imported and merged repeatedly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE runs before every subcommand and opens the vault.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[annotationNoVault] == "true" {
			return nil
		}
		return openVault(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeVault()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.lockbox/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&vaultDir, "vault", "", "Vault directory (default ~/.lockbox)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: auto, json, console")
}

// openVault loads the configuration and opens the store, the audit journal
// and the service for cmd.
func openVault(cmd *cobra.Command) error {
	if err := loadConfig(); err != nil {
		return err
	}

	var err error
	logger, err = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}

	store, err = vault.Open(cmd.Context(), vaultPath(),
		vault.WithBusyTimeout(time.Duration(cfg.BusyTimeoutMS)*time.Millisecond),
		vault.WithLogger(logger))
	if err != nil {
		return err
	}

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.Audit {
		source := audit.SourceCLI
		if cmd == mcpServerCmd {
			source = audit.SourceMCP
		}
		journal, err = audit.Open(filepath.Join(cfg.VaultDir, AuditDirName), audit.WithSource(source))
		if err != nil {
			return err
		}
		opts = append(opts, service.WithRecorder(journal))
	}

	svc = service.New(store, opts...)
	logger.Debug().Str("vault", cfg.VaultDir).Str("command", cmd.CommandPath()).Msg("vault opened")
	return nil
}

// loadConfig reads the configuration and applies the persistent flags.
func loadConfig() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if vaultDir != "" {
		cfg.VaultDir = vaultDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg.Validate()
}

func vaultPath() string {
	return filepath.Join(cfg.VaultDir, vault.DBFileName)
}

// closeVault closes the store. It is safe to call more than once.
func closeVault() error {
	svc = nil
	journal = nil
	if store == nil {
		return nil
	}
	err := store.Close()
	store = nil
	return err
}

// exitCode maps an error class to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, vault.ErrValidation):
		return 2
	case errors.Is(err, vault.ErrIntegrity):
		return 3
	case errors.Is(err, vault.ErrNotFound):
		return 4
	case errors.Is(err, vault.ErrStorage):
		return 5
	default:
		return 1
	}
}

// describeImportError adds the record counts of a failed import.
func describeImportError(err error) error {
	var ie *importer.ImportError
	if errors.As(err, &ie) {
		return fmt.Errorf("import failed, nothing was written (%d records processed, %d remaining): %w",
			ie.Processed, ie.Remaining, ie.Err)
	}
	return err
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// readPasswordPrompt reads a password without echo from the terminal.
func readPasswordPrompt(cmd *cobra.Command, prompt string) (string, error) {
	if !isTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("--prompt-password requires a terminal (use --password-stdin)")
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr()) // Add newline after hidden input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(passwordBytes), nil
}

// readPasswordStdin reads the first line of standard input.
func readPasswordStdin(cmd *cobra.Command) (string, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	value := strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(value, "\r"), nil
}

// isTerminal returns true if the file descriptor is a terminal
func isTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// parseDuration parses a duration string like "30d", "1y", "24h"
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", valueStr)
	}

	switch unit {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(value) * 30 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		// Try standard time.ParseDuration
		return time.ParseDuration(s)
	}
}
