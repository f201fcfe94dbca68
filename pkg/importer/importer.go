package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/forest6511/lockbox/pkg/vault"
)

// errDryRun rolls back a dry-run transaction.
var errDryRun = errors.New("importer: dry run")

// Options controls an import.
type Options struct {
	// DryRun runs the full merge and then rolls it back.
	DryRun bool
}

// ImportSummary counts the rows written by one import.
type ImportSummary struct {
	FoldersImported int  `json:"folders_imported"`
	ItemsImported   int  `json:"items_imported"`
	URIsImported    int  `json:"uris_imported"`
	FieldsImported  int  `json:"fields_imported"`
	DryRun          bool `json:"dry_run,omitempty"`
}

// ImportError reports a failed import. Nothing from the document was
// committed.
type ImportError struct {
	Processed int // folder and item records merged before the failure
	Remaining int // records not reached
	Err       error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("importer: import aborted after %d of %d records: %v",
		e.Processed, e.Processed+e.Remaining, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// Importer merges export documents into a store.
type Importer struct {
	store *vault.Store
	log   zerolog.Logger
}

// New creates an Importer writing to store.
func New(store *vault.Store, log zerolog.Logger) *Importer {
	return &Importer{store: store, log: log}
}

// Import merges doc into the store in a single transaction. Folders are
// upserted first, then every item with its uris (replaced) and custom fields
// (appended). Any failure rolls the whole document back.
func (im *Importer) Import(ctx context.Context, doc *Document, opts Options) (*ImportSummary, error) {
	if doc == nil {
		return nil, &ImportError{Err: &vault.ValidationError{Field: "document", Reason: "must not be nil"}}
	}
	total := doc.Records()
	if err := doc.Validate(); err != nil {
		return nil, &ImportError{Remaining: total, Err: err}
	}
	if err := im.store.EnsureDiskSpace(doc.size); err != nil {
		return nil, &ImportError{Remaining: total, Err: err}
	}

	summary := &ImportSummary{}
	processed := 0

	err := im.store.Update(ctx, func(tx *vault.Tx) error {
		folders := make(map[string]bool, len(doc.Folders))
		for _, f := range doc.Folders {
			if err := tx.UpsertFolder(f.ID, f.Name); err != nil {
				return err
			}
			folders[f.ID] = true
			summary.FoldersImported++
			processed++
		}

		for i := range doc.Items {
			item := &doc.Items[i]
			if id := item.folderID(); id != "" && !folders[id] {
				return &vault.IntegrityError{
					Entity: "item",
					ID:     item.ID,
					Reason: fmt.Sprintf("folder %q is not in the document", id),
				}
			}

			if err := tx.UpsertItem(item.toVaultItem()); err != nil {
				return err
			}
			n, err := tx.ReplaceURIs(item.ID, item.uris())
			if err != nil {
				return err
			}
			for j := range item.Fields {
				if err := tx.AppendField(item.ID, item.Fields[j].toVaultField()); err != nil {
					return err
				}
			}

			summary.ItemsImported++
			summary.URIsImported += n
			summary.FieldsImported += len(item.Fields)
			processed++
			im.log.Debug().Str("item_id", item.ID).Int("uris", n).Int("fields", len(item.Fields)).Msg("item merged")
		}

		if opts.DryRun {
			return errDryRun
		}
		return nil
	})

	if errors.Is(err, errDryRun) {
		summary.DryRun = true
		im.log.Info().
			Int("folders", summary.FoldersImported).
			Int("items", summary.ItemsImported).
			Msg("dry run complete, nothing committed")
		return summary, nil
	}
	if err != nil {
		im.log.Warn().Err(err).Int("processed", processed).Int("total", total).Msg("import aborted")
		return nil, &ImportError{Processed: processed, Remaining: total - processed, Err: err}
	}

	im.log.Info().
		Int("folders", summary.FoldersImported).
		Int("items", summary.ItemsImported).
		Int("uris", summary.URIsImported).
		Int("fields", summary.FieldsImported).
		Msg("import committed")
	return summary, nil
}
