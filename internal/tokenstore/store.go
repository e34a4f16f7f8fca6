package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/velocimex/uptoken/internal/validity"
)

// Store is the narrow repository over the persisted token document. A
// future implementation can swap in an embedded store without touching
// callers; FileStore is the only implementation today.
type Store interface {
	// Load returns the whole document. A missing or unparsable backing
	// file yields the canonical empty document, never an error.
	Load(ctx context.Context) *Document

	// Merge upserts each record by name into the existing data map without
	// disturbing unrelated entries, recomputes metadata, forces the
	// document status to success and persists atomically.
	Merge(ctx context.Context, records map[string]TokenRecord) (*Document, error)

	// Cleanup removes entries whose name is not in currentNames or whose
	// validity has lapsed at now, and persists only if something was
	// removed. Returns the removed names.
	Cleanup(ctx context.Context, currentNames []string, now time.Time) ([]string, error)

	// MarkError records a whole-run failure in status and metadata while
	// leaving the data section of an existing document untouched.
	MarkError(ctx context.Context, message string) error

	// GetToken returns the access token for name. With checkValidity set,
	// an expired record yields no token.
	GetToken(ctx context.Context, name string, checkValidity bool) (string, bool)

	// AllActive returns access tokens for every record with active status,
	// optionally filtered to those still valid.
	AllActive(ctx context.Context, checkValidity bool) map[string]string

	// Expired returns the records that are no longer valid.
	Expired(ctx context.Context) map[string]TokenRecord

	// Summary tallies the document by validity state.
	Summary(ctx context.Context) Summary

	// StatusDetail evaluates one record against the store's validity policy.
	StatusDetail(record TokenRecord, now time.Time) validity.Detail
}

// Summary counts document entries by validity state.
type Summary struct {
	Total      int
	Valid      int
	Expired    int
	NoValidity int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d valid, %d expired, %d without validity info", s.Valid, s.Expired, s.NoValidity)
}
