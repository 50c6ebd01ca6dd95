// Package store holds the external persistence collaborators: object
// storage for the recording artifact and the insert-style API for the
// durable recording record. The pipeline core only ever calls these; it
// never owns the data afterwards.
package store

import "context"

// Storage uploads artifacts to durable object storage. Uploads are
// non-overwriting: an existing object at path is an error.
type Storage interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
}

// Recording is the record persisted once per completed call.
type Recording struct {
	OwnerID               string `json:"ownerId"`
	FileName              string `json:"fileName"`
	StoragePath           string `json:"storagePath"`
	DurationSec           int    `json:"durationSec"`
	ByteSize              int    `json:"byteSize"`
	Status                string `json:"status"`
	LiveTranscriptionText string `json:"liveTranscriptionText"`
}

// Recordings persists recording records.
type Recordings interface {
	// Insert stores the record and returns its generated id.
	Insert(ctx context.Context, rec Recording) (string, error)
}
