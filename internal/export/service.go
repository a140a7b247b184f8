// Package export provides data export and import as a single JSON
// document with one array per table.
package export

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/logging"
	"github.com/nalvarez/comanda/internal/models"
	"github.com/nalvarez/comanda/internal/store"
	"github.com/nalvarez/comanda/internal/store/local"
)

// FormatVersion is the export document format version string.
const FormatVersion = "1.0"

// Document is the export format: a format version, an export timestamp,
// and one record array per known table.
type Document struct {
	Version    string                     `json:"version"`
	ExportedAt int64                      `json:"exported_at"`
	Tables     map[string][]models.Record `json:"tables"`
}

// Service provides export/import over the local store.
type Service struct {
	local *local.Store
}

// NewService creates an export service.
func NewService(localStore *local.Store) *Service {
	return &Service{local: localStore}
}

// Export snapshots every known table into a document.
func (s *Service) Export(ctx context.Context) (*Document, error) {
	doc := &Document{
		Version:    FormatVersion,
		ExportedAt: time.Now().Unix(),
		Tables:     make(map[string][]models.Record),
	}

	total := 0
	for _, table := range models.KnownTables() {
		recs, err := s.local.Read(ctx, table, store.Query{})
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrExportFailed, "read "+table, err)
		}
		if recs == nil {
			recs = []models.Record{}
		}
		doc.Tables[table] = recs
		total += len(recs)
	}

	logging.Info("export completed", logging.Fields{"records": total})
	return doc, nil
}

// Import clears every known table's local data, then inserts the provided
// arrays verbatim. Ids and timestamps are preserved; there is no merge.
func (s *Service) Import(ctx context.Context, doc *Document) (int, error) {
	if doc == nil || doc.Version == "" {
		return 0, apperr.New(apperr.ErrImportFailed, "missing format version")
	}

	for _, table := range models.KnownTables() {
		if err := s.local.Clear(ctx, table); err != nil {
			return 0, apperr.Wrap(apperr.ErrImportFailed, "clear "+table, err)
		}
	}

	imported := 0
	for _, table := range models.KnownTables() {
		for _, rec := range doc.Tables[table] {
			if err := s.local.Put(ctx, table, rec); err != nil {
				return imported, apperr.Wrap(apperr.ErrImportFailed, "insert into "+table, err)
			}
			imported++
		}
	}

	logging.Info("import completed", logging.Fields{"records": imported})
	return imported, nil
}

// ExportToFile writes the export document to a file.
func (s *Service) ExportToFile(ctx context.Context, path string) (*Document, error) {
	doc, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrExportFailed, "encode document", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, apperr.Wrap(apperr.ErrExportFailed, "write "+path, err)
	}
	return doc, nil
}

// ImportFromFile reads and imports an export document from a file.
func (s *Service) ImportFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrImportFailed, "read "+path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, apperr.Wrap(apperr.ErrImportFailed, "decode document", err)
	}
	return s.Import(ctx, &doc)
}
