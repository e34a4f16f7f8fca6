package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/velocimex/uptoken/internal/validity"
)

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithGeneratedBy sets the provenance line stamped into document metadata
// on every merge.
func WithGeneratedBy(generatedBy string) FileStoreOption {
	return func(f *FileStore) {
		f.generatedBy = generatedBy
	}
}

// WithClock overrides the time source used for metadata stamps.
func WithClock(now func() time.Time) FileStoreOption {
	return func(f *FileStore) {
		f.now = now
	}
}

// FileStore keeps the token document in a single JSON file with atomic
// whole-document writes.
type FileStore struct {
	filePath    string
	policy      validity.Policy
	generatedBy string
	now         func() time.Time
}

// NewFileStore creates a FileStore for the given path, creating parent
// directories with 0700 permissions if they don't exist.
func NewFileStore(filePath string, policy validity.Policy, opts ...FileStoreOption) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("token file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	f := &FileStore{
		filePath:    filePath,
		policy:      policy,
		generatedBy: "uptoken multi-API authentication",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Path returns the location of the backing file.
func (f *FileStore) Path() string {
	return f.filePath
}

// Load returns the whole document, degrading to the canonical empty
// document on a missing or unparsable file.
func (f *FileStore) Load(ctx context.Context) *Document {
	raw, err := os.ReadFile(f.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.WarnContext(ctx, "token file unreadable, starting from empty document", "path", f.filePath, "error", err)
		}
		return emptyDocument()
	}

	doc, err := parseDocument(raw)
	if err != nil {
		slog.WarnContext(ctx, "token file unparsable, starting from empty document", "path", f.filePath, "error", err)
		return emptyDocument()
	}
	return doc
}

// Merge upserts the given records into the existing document and persists
// the result atomically. Unrelated entries survive untouched.
func (f *FileStore) Merge(ctx context.Context, records map[string]TokenRecord) (*Document, error) {
	doc := f.Load(ctx)
	now := f.now()

	updated := make([]string, 0, len(records))
	for name, record := range records {
		if _, exists := doc.Data[name]; exists {
			slog.InfoContext(ctx, "replacing existing token", "api", name)
		} else {
			slog.InfoContext(ctx, "adding new token", "api", name)
		}
		doc.Data[name] = record
		updated = append(updated, name)
	}
	slices.Sort(updated)

	previousUpdate := "N/A"
	if !doc.Metadata.LastUpdated.IsZero() {
		previousUpdate = doc.Metadata.LastUpdated.Format(time.RFC3339Nano)
	}
	lastCleanup := doc.Metadata.LastCleanup
	if lastCleanup.IsZero() {
		lastCleanup = now
	}

	doc.Metadata = Metadata{
		LastUpdated:    now,
		TotalTokens:    len(doc.Data),
		GeneratedBy:    f.generatedBy,
		PreviousUpdate: previousUpdate,
		UpdatedAPIs:    updated,
		LastCleanup:    lastCleanup,
	}
	doc.Status = StatusSuccess
	doc.Message = ""

	if err := f.persist(ctx, doc); err != nil {
		return nil, fmt.Errorf("persisting merged token document: %w", err)
	}
	slog.InfoContext(ctx, "token document updated", "path", f.filePath, "updated_apis", updated, "total_tokens", len(doc.Data))
	return doc, nil
}

// Cleanup removes entries for names no longer configured and entries whose
// validity has lapsed at now. The document is rewritten only when at least
// one entry was removed.
func (f *FileStore) Cleanup(ctx context.Context, currentNames []string, now time.Time) ([]string, error) {
	doc := f.Load(ctx)
	if len(doc.Data) == 0 {
		return nil, nil
	}

	configured := make(map[string]struct{}, len(currentNames))
	for _, name := range currentNames {
		configured[name] = struct{}{}
	}

	var removed []string
	for name, record := range doc.Data {
		_, stillConfigured := configured[name]

		reason := ""
		switch {
		case !stillConfigured:
			reason = "removed from config"
		case !record.ValidityAt.IsZero() && !now.Before(record.ValidityAt):
			reason = "expired"
		case record.ValidityAt.IsZero() && !record.GeneratedAt.IsZero() &&
			!f.policy.IsValid(record.GeneratedAt, time.Time{}, now):
			reason = "legacy expiration"
		default:
			continue
		}
		delete(doc.Data, name)
		removed = append(removed, name)
		slog.InfoContext(ctx, "removing stale token", "api", name, "reason", reason)
	}

	if len(removed) == 0 {
		return nil, nil
	}
	slices.Sort(removed)

	doc.Metadata.LastCleanup = now
	doc.Metadata.TotalTokens = len(doc.Data)

	if err := f.persist(ctx, doc); err != nil {
		return nil, fmt.Errorf("persisting cleaned token document: %w", err)
	}
	slog.InfoContext(ctx, "cleaned up stale tokens", "removed", removed)
	return removed, nil
}

// MarkError records a whole-run failure. The data section of an existing
// document is left as is so previously issued tokens remain usable.
func (f *FileStore) MarkError(ctx context.Context, message string) error {
	doc := f.Load(ctx)
	now := f.now()

	doc.Status = StatusError
	doc.Message = message
	doc.Metadata.LastUpdated = now
	doc.Metadata.ErrorOccurredAt = now
	doc.Metadata.GeneratedBy = f.generatedBy
	doc.Metadata.TotalTokens = len(doc.Data)

	if err := f.persist(ctx, doc); err != nil {
		return fmt.Errorf("persisting error document: %w", err)
	}
	return nil
}

// GetToken returns the access token for name, optionally requiring it to
// still be valid.
func (f *FileStore) GetToken(ctx context.Context, name string, checkValidity bool) (string, bool) {
	record, ok := f.Load(ctx).Data[name]
	if !ok {
		return "", false
	}
	if checkValidity && !f.policy.IsValid(record.GeneratedAt, record.ValidityAt, f.now()) {
		slog.WarnContext(ctx, "token has expired", "api", name)
		return "", false
	}
	return record.AccessToken, true
}

// AllActive returns access tokens for every record with active status,
// optionally filtered to those still valid.
func (f *FileStore) AllActive(ctx context.Context, checkValidity bool) map[string]string {
	active := make(map[string]string)
	now := f.now()
	for name, record := range f.Load(ctx).Data {
		if record.Status != RecordStatusActive {
			continue
		}
		if checkValidity && !f.policy.IsValid(record.GeneratedAt, record.ValidityAt, now) {
			slog.WarnContext(ctx, "token has expired", "api", name)
			continue
		}
		active[name] = record.AccessToken
	}
	return active
}

// Expired returns the records that are no longer valid.
func (f *FileStore) Expired(ctx context.Context) map[string]TokenRecord {
	expired := make(map[string]TokenRecord)
	now := f.now()
	for name, record := range f.Load(ctx).Data {
		if !f.policy.IsValid(record.GeneratedAt, record.ValidityAt, now) {
			expired[name] = record
		}
	}
	return expired
}

// Summary tallies the document by validity state.
func (f *FileStore) Summary(ctx context.Context) Summary {
	var s Summary
	now := f.now()
	for _, record := range f.Load(ctx).Data {
		s.Total++
		switch {
		case record.ValidityAt.IsZero():
			s.NoValidity++
		case f.policy.IsValid(record.GeneratedAt, record.ValidityAt, now):
			s.Valid++
		default:
			s.Expired++
		}
	}
	return s
}

// StatusDetail evaluates one record against the store's validity policy.
func (f *FileStore) StatusDetail(record TokenRecord, now time.Time) validity.Detail {
	return f.policy.StatusDetail(record.GeneratedAt, record.ValidityAt, now)
}

// persist writes the whole document atomically: temp file in the same
// directory, then rename, so a concurrent Load never observes a partial
// file. Permissions end up 0600 (the document holds live access tokens).
func (f *FileStore) persist(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(payload); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempName, f.filePath); err != nil {
		return err
	}
	return os.Chmod(f.filePath, 0600)
}
