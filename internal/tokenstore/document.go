package tokenstore

import (
	"encoding/json"
	"time"
)

// Document status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPartial = "partial"
)

// RecordStatusActive marks a live token entry.
const RecordStatusActive = "active"

// TokenRecord is one account's access token. ValidityAt is always derived
// from GeneratedAt by the validity policy, never set independently; a zero
// ValidityAt marks a legacy record that predates validity stamping.
type TokenRecord struct {
	AccessToken string    `json:"access_token"`
	APIKey      string    `json:"api_key"`
	GeneratedAt time.Time `json:"generated_at"`
	ValidityAt  time.Time `json:"validity_at,omitzero"`
	Status      string    `json:"status"`
}

// Metadata describes the document's update history.
type Metadata struct {
	LastUpdated     time.Time `json:"last_updated,omitzero"`
	TotalTokens     int       `json:"total_tokens,omitempty"`
	GeneratedBy     string    `json:"generated_by,omitempty"`
	PreviousUpdate  string    `json:"previous_update,omitempty"` // RFC 3339 or "N/A"
	UpdatedAPIs     []string  `json:"updated_apis,omitempty"`
	LastCleanup     time.Time `json:"last_cleanup,omitzero"`
	ErrorOccurredAt time.Time `json:"error_occurred_at,omitzero"`
}

// Document is the persisted token table: one entry per API name.
type Document struct {
	Status   string                 `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Data     map[string]TokenRecord `json:"data"`
	Metadata Metadata               `json:"metadata"`
}

// emptyDocument is the canonical document returned when the backing file is
// missing or unreadable.
func emptyDocument() *Document {
	return &Document{
		Status: StatusSuccess,
		Data:   map[string]TokenRecord{},
	}
}

// parseDocument decodes raw file contents, accepting both the current
// {status, data, metadata} layout and the legacy flat layout where records
// sit at the top level next to an optional "metadata" key.
func parseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err == nil && doc.Status != "" {
		if doc.Data == nil {
			doc.Data = map[string]TokenRecord{}
		}
		return &doc, nil
	}

	// Legacy layout: name -> record at the top level.
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}

	legacy := emptyDocument()
	for name, msg := range flat {
		if name == "metadata" {
			if err := json.Unmarshal(msg, &legacy.Metadata); err != nil {
				return nil, err
			}
			continue
		}
		var record TokenRecord
		if err := json.Unmarshal(msg, &record); err != nil {
			return nil, err
		}
		legacy.Data[name] = record
	}
	return legacy, nil
}
