package models

import (
	"encoding/json"
	"time"
)

// SourcePayload is one raw document received from a data provider.
// There is at most one current row per (source, source_id).
type SourcePayload struct {
	ID          string          `json:"id" db:"id"`
	Source      string          `json:"source" db:"source"`
	SourceID    string          `json:"source_id" db:"source_id"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	Fingerprint string          `json:"fingerprint" db:"fingerprint"`
	IngestedAt  time.Time       `json:"ingested_at" db:"ingested_at"`
}

// IngestPayloadRequest is the request for storing a raw payload
type IngestPayloadRequest struct {
	Source   string          `json:"source" validate:"required"`
	SourceID string          `json:"source_id" validate:"required"`
	Payload  json.RawMessage `json:"payload" validate:"required"`
}

// IngestResult describes the outcome of storing a payload
type IngestResult struct {
	Payload *SourcePayload `json:"payload"`
	// IsNew is true when this is the first payload for the (source, source_id) key
	IsNew bool `json:"is_new"`
	// Unchanged is true when a re-ingest carried an identical document
	Unchanged bool `json:"unchanged"`
}
