// Package store defines the backend contract shared by the remote service
// client and the local on-device store.
package store

import (
	"context"

	"github.com/nalvarez/comanda/internal/models"
)

// Kind identifies a backend implementation.
type Kind string

const (
	KindRemote Kind = "remote"
	KindLocal  Kind = "local"
)

// Backend is the capability interface both backend strategies implement.
// The facade holds exactly one primary backend, selected by configuration
// at startup.
type Backend interface {
	// Kind reports which strategy this backend is.
	Kind() Kind

	// Create inserts a new record. The record id is assigned by the caller;
	// backends must treat it as the canonical key.
	Create(ctx context.Context, table string, rec models.Record) (models.Record, error)

	// Read returns the records matching the query.
	Read(ctx context.Context, table string, q Query) ([]models.Record, error)

	// Update applies the patch to the record with the given id and returns
	// the updated record. A missing id is a NOT_FOUND error.
	Update(ctx context.Context, table, id string, patch models.Record) (models.Record, error)

	// Delete removes the record with the given id and returns it.
	// A missing id is a NOT_FOUND error.
	Delete(ctx context.Context, table, id string) (models.Record, error)
}
