// Package audit keeps an append-only journal of vault mutations. Records are
// linked by an HMAC chain so that edits, deletions and reordering of past
// records are detected by Verify.
//
// Entity ids are stored as HMACs and error details are reduced to a class
// code, so the journal never holds names, usernames or secrets.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/forest6511/lockbox/pkg/vault"
)

// File names inside the audit directory
const (
	KeyFileName  = "audit.key"
	MetaFileName = "audit.meta"

	keySize = 32
	genesis = "genesis"

	// MinAuditDiskSpace is the free space required before a record is written.
	MinAuditDiskSpace = 1024 * 1024 // 1 MB
)

// Operation types
const (
	OpItemCreate   = "item.create"
	OpItemUpdate   = "item.update"
	OpItemMove     = "item.move"
	OpItemFavorite = "item.favorite"
	OpItemDelete   = "item.delete"

	OpFolderCreate = "folder.create"
	OpFolderRename = "folder.rename"
	OpFolderDelete = "folder.delete"

	OpVaultImport = "vault.import"
)

// Source identifies where the operation originated
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Error class codes
const (
	CodeValidation = "validation"
	CodeIntegrity  = "integrity"
	CodeNotFound   = "not_found"
	CodeStorage    = "storage"
	CodeUnknown    = "unknown"
)

// Event is a single journal record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"` // UUIDv7, time ordered
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision
	Operation string `json:"op"`
	Ref       string `json:"ref,omitempty"` // HMAC of the entity id
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	ErrorCode string `json:"error_code,omitempty"`
	Chain     Chain  `json:"chain"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// ChainState holds the persistent chain state
type ChainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

// Logger appends events to monthly JSONL files.
type Logger struct {
	dir       string
	hmacKey   []byte
	source    string
	sessionID string
	now       func() time.Time

	mu       sync.Mutex
	sequence int64
	prevHash string
}

// Option configures a Logger.
type Option func(*Logger)

// WithSource sets the source recorded on every event (default SourceCLI).
func WithSource(source string) Option {
	return func(l *Logger) { l.source = source }
}

// WithClock overrides the event clock.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// Open opens the journal in dir, creating the directory and a random key
// file on first use.
func Open(dir string, opts ...Option) (*Logger, error) {
	l := &Logger{
		dir:       dir,
		source:    SourceCLI,
		sessionID: uuid.NewString(),
		now:       time.Now,
		prevHash:  genesis,
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: failed to create directory: %w", err)
	}

	master, err := loadOrCreateKey(filepath.Join(dir, KeyFileName))
	if err != nil {
		return nil, err
	}

	// Derive HMAC key using HKDF-SHA256
	l.hmacKey = make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte("lockbox-audit-v1")), l.hmacKey); err != nil {
		return nil, fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}

	if err := l.loadChainState(); err != nil {
		return nil, err
	}
	return l, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != keySize {
			return nil, fmt.Errorf("audit: key file %s has unexpected size %d", path, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("audit: failed to read key: %w", err)
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("audit: failed to generate key: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to create key: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(key); err != nil {
		return nil, fmt.Errorf("audit: failed to write key: %w", err)
	}
	return key, nil
}

// Dir returns the journal directory.
func (l *Logger) Dir() string {
	return l.dir
}

// Record appends an event for op on the entity ref. A nil err records
// success; otherwise only the error class is kept.
func (l *Logger) Record(op, ref string, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	id, uerr := uuid.NewV7()
	if uerr != nil {
		return fmt.Errorf("audit: failed to generate event id: %w", uerr)
	}

	now := l.now().UTC()
	event := Event{
		Version:   1,
		ID:        id.String(),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: op,
		Source:    l.source,
		SessionID: l.sessionID,
		Result:    ResultSuccess,
	}
	if ref != "" {
		event.Ref = l.mac([]byte(ref))
	}
	if err != nil {
		event.Result = ResultError
		event.ErrorCode = ErrorCode(err)
	}

	event.Chain.Sequence = l.sequence + 1
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.mac(buildRecordData(&event))

	if err := l.writeEvent(now, &event); err != nil {
		return err
	}

	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

// ErrorCode maps an error to its class code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, vault.ErrValidation):
		return CodeValidation
	case errors.Is(err, vault.ErrIntegrity):
		return CodeIntegrity
	case errors.Is(err, vault.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, vault.ErrStorage):
		return CodeStorage
	default:
		return CodeUnknown
	}
}

func (l *Logger) mac(data []byte) string {
	h := hmac.New(sha256.New, l.hmacKey)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// buildRecordData creates the data to be HMACed. Every field except the
// record's own HMAC is covered.
func buildRecordData(e *Event) []byte {
	return []byte(fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		e.Version,
		e.ID,
		e.Timestamp,
		e.Operation,
		e.Ref,
		e.Source,
		e.SessionID,
		e.Result,
		e.ErrorCode,
		e.Chain.Sequence,
		e.Chain.PrevHash,
	))
}

// writeEvent writes an event to the log file of its month.
func (l *Logger) writeEvent(at time.Time, event *Event) error {
	path := filepath.Join(l.dir, at.Format("2006-01")+".jsonl")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.dir, MetaFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: failed to read chain state: %w", err)
	}

	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("audit: corrupt chain state: %w", err)
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(ChainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, MetaFileName), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid        bool     `json:"valid"`
	RecordsTotal int      `json:"records_total"`
	Errors       []string `json:"errors,omitempty"`
}

// Verify recomputes the chain over every log file.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := genesis
	var expectedSeq int64 = 1

	for i := range events {
		event := &events[i]
		result.RecordsTotal++

		if event.Chain.Sequence != expectedSeq {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d", event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s", event.ID))
		}
		if !hmac.Equal([]byte(event.Chain.HMAC), []byte(l.mac(buildRecordData(event)))) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		}

		expectedPrev = event.Chain.HMAC
		expectedSeq = event.Chain.Sequence + 1
	}

	if result.RecordsTotal > 0 && l.sequence != expectedSeq-1 {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(
			"journal ends at sequence %d but chain state expects %d", expectedSeq-1, l.sequence))
	}
	return result, nil
}

// List returns the most recent events after since (zero means no filter),
// oldest first. A limit of 0 returns all matching events.
func (l *Logger) List(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	if !since.IsZero() {
		filtered := events[:0]
		for _, event := range events {
			ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err != nil {
				continue
			}
			if ts.After(since) {
				filtered = append(filtered, event)
			}
		}
		events = filtered
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// readAll reads the events of every log file in chronological order.
func (l *Logger) readAll() ([]Event, error) {
	files, err := filepath.Glob(filepath.Join(l.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM names sort chronologically
	sort.Strings(files)

	var events []Event
	for _, file := range files {
		fileEvents, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", filepath.Base(file), err)
		}
		events = append(events, fileEvents...)
	}
	return events, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}
