// Package service is the vault access facade used by the CLI and the MCP
// server. It wraps a *vault.Store with id generation, revision stamping,
// read-modify-write transactions, age decoration and audit recording.
package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/importer"
	"github.com/forest6511/lockbox/pkg/security"
	"github.com/forest6511/lockbox/pkg/vault"
)

// Recorder receives one call per mutating operation. ref is the id of the
// affected entity and err the outcome of the operation.
type Recorder interface {
	Record(op, ref string, err error) error
}

// Service mediates every access to the vault.
type Service struct {
	store    *vault.Store
	importer *importer.Importer
	log      zerolog.Logger
	recorder Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Only ids are ever logged.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithRecorder enables audit recording of mutations.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// New creates a Service over an open store.
func New(store *vault.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.importer = importer.New(store, s.log)
	return s
}

// Store returns the underlying store.
func (s *Service) Store() *vault.Store {
	return s.store
}

// Import merges an export document into the vault.
func (s *Service) Import(ctx context.Context, doc *importer.Document, opts importer.Options) (*importer.ImportSummary, error) {
	summary, err := s.importer.Import(ctx, doc, opts)
	if !opts.DryRun {
		s.record(audit.OpVaultImport, "", err)
	}
	return summary, err
}

// SecurityReport scores every item with a password. Item ids are attached
// to issues only when includeIDs is set.
func (s *Service) SecurityReport(ctx context.Context, includeIDs bool) (*security.SecurityScore, error) {
	items, err := s.store.ListItems(ctx, vault.ItemQuery{})
	if err != nil {
		return nil, err
	}

	creds := make([]security.Credential, 0, len(items))
	for _, item := range items {
		creds = append(creds, security.Credential{
			ID:           item.ID,
			Name:         item.Name,
			Password:     item.Password,
			RevisionDate: item.RevisionDate,
		})
	}
	return security.NewCalculator(s.store.Now).Report(creds, includeIDs)
}

// Stats returns row counts.
func (s *Service) Stats(ctx context.Context) (*vault.Stats, error) {
	return s.store.Stats(ctx)
}

// CheckIntegrity runs the database consistency checks.
func (s *Service) CheckIntegrity(ctx context.Context) (*vault.IntegrityReport, error) {
	return s.store.CheckIntegrity(ctx)
}

// Tables describes the vault schema.
func (s *Service) Tables(ctx context.Context) ([]vault.Table, error) {
	return s.store.Tables(ctx)
}

// record forwards a mutation outcome to the recorder. A failing recorder
// does not undo the committed mutation; it is logged instead.
func (s *Service) record(op, ref string, err error) {
	ev := s.log.Debug().Str("op", op)
	if ref != "" {
		ev = ev.Str("id", ref)
	}
	if err != nil {
		ev.Str("result", "error").Msg("vault mutation failed")
	} else {
		ev.Msg("vault mutation")
	}

	if s.recorder == nil {
		return
	}
	if rerr := s.recorder.Record(op, ref, err); rerr != nil {
		s.log.Warn().Err(rerr).Str("op", op).Msg("failed to record audit event")
	}
}
