// Package remote defines the contract of the remote store that owns all
// package and notification state, plus the one HTTP adapter that knows how
// to translate that backend's error surface into the classified taxonomy.
// Everything above this package is backend-agnostic.
package remote

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter maps a column to a rendered predicate, e.g. {"status": Eq("processing")}.
type Filter map[string]string

// Eq renders an equality predicate.
func Eq(value string) string { return "eq." + value }

// Lt renders a strictly-before predicate for timestamps.
func Lt(t time.Time) string { return "lt." + t.UTC().Format(time.RFC3339Nano) }

// Condition guards an update: the write is accepted only if the named field
// still equals the given value at write time.
type Condition struct {
	Field  string
	Equals string
}

// Store is the remote table surface consumed by the sync layer. Every error
// returned is already classified.
type Store interface {
	// Query decodes all records matching filter into dest (a slice pointer).
	Query(ctx context.Context, table string, filter Filter, dest any) error
	// Update patches one record, guarded by cond when non-nil, and decodes
	// the updated record into dest when non-nil. A condition that no longer
	// holds classifies as not-found.
	Update(ctx context.Context, table string, id uuid.UUID, patch map[string]any, cond *Condition, dest any) error
	// Delete removes one record.
	Delete(ctx context.Context, table string, id uuid.UUID) error
}
