// Package migration defines the core types and narrow interfaces shared by
// the job runner, API, and supporting infrastructure.
package migration

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore writes exported artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes lifecycle notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Notification is the payload published when a job changes state.
type Notification struct {
	JobID            uuid.UUID `json:"job_id"`
	Status           string    `json:"status"`
	MappingName      string    `json:"mapping_name,omitempty"`
	ProcessedRecords int64     `json:"processed_records"`
	TotalRecords     int64     `json:"total_records"`
	Message          string    `json:"message,omitempty"`
	At               time.Time `json:"at"`
}
