// Package tokenstore persists the multi-account token document.
//
// All tokens live in one JSON document {status, data, metadata} that other
// processes consume directly, so the document is always written as a whole
// (temp file + atomic rename) and never partially overwritten: a merge or
// cleanup touches only the entries it names and leaves unrelated entries
// intact.
//
// A missing or unparsable file degrades to the canonical empty document
// rather than failing; the store assumes a single process owns the file
// for the duration of a run (no cross-process locking).
package tokenstore
