package chunkstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrObjectNotFound reports a missing object id.
	ErrObjectNotFound = errors.New("chunk store: object not found")
	// ErrChunkNotFound reports a missing chunk index for an existing object.
	ErrChunkNotFound = errors.New("chunk store: chunk not found")
)

// ObjectInfo is the metadata the chunk store keeps per object.
type ObjectInfo struct {
	ID          string         `json:"id"`
	ContentType string         `json:"content_type"`
	FileName    string         `json:"file_name"`
	SizeBytes   int64          `json:"size_bytes"`
	ChunkSize   int            `json:"chunk_size"`
	UploadDate  time.Time      `json:"upload_date"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Store holds ordered binary segments addressed by object id and sequence
// index. Object ids are opaque to the store; chunk indices for one object
// form a contiguous range starting at zero.
type Store interface {
	// PutChunk persists one chunk. Chunks for one object are written by a
	// single writer in strictly increasing index order.
	PutChunk(ctx context.Context, objectID string, index int, data []byte) error
	// Finalize persists object metadata. It is idempotent: finalizing the
	// same object id again overwrites the metadata row.
	Finalize(ctx context.Context, info ObjectInfo) error
	// Stat returns metadata for a finalized object, or ErrObjectNotFound.
	Stat(ctx context.Context, objectID string) (*ObjectInfo, error)
	// ReadChunk returns the chunk at index, or ErrChunkNotFound.
	ReadChunk(ctx context.Context, objectID string, index int) ([]byte, error)
	// Delete removes every chunk and the metadata for an object. Deleting a
	// missing object is not an error.
	Delete(ctx context.Context, objectID string) error
	// ListObjectIDs returns the ids of all objects, finalized or not. Used
	// by the orphan sweep.
	ListObjectIDs(ctx context.Context) ([]string, error)
}
