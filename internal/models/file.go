package models

import (
	"fmt"
	"strings"
	"time"
)

// StorageMode describes where a file's bytes live.
type StorageMode string

const (
	// StorageModeInline embeds the payload directly in the stage record.
	StorageModeInline StorageMode = "inline"
	// StorageModeChunked stores the payload as ordered chunks in the chunk store.
	StorageModeChunked StorageMode = "chunked"
)

var validStorageModes = map[StorageMode]struct{}{
	StorageModeInline:  {},
	StorageModeChunked: {},
}

// ParseStorageMode parses and validates a storage mode string.
func ParseStorageMode(raw string) (StorageMode, error) {
	value := StorageMode(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("storage mode is required")
	}
	if _, ok := validStorageModes[value]; !ok {
		return "", fmt.Errorf("invalid storage mode: %s", value)
	}
	return value, nil
}

// ChunkedReference points into the chunk store. The relation is weak: the
// referenced object may be deleted independently, so deletion must be
// coordinated explicitly by the reference manager.
type ChunkedReference struct {
	StoreName string `json:"store_name"`
	ObjectID  string `json:"object_id"`
}

// FileDescriptor identifies one stored file attached to a stage.
//
// Exactly one of InlinePayload or ChunkedRef is populated, matching
// StorageMode.
type FileDescriptor struct {
	FileID        string            `json:"file_id"`
	StorageMode   string            `json:"storage_mode"`
	ContentType   string            `json:"content_type"`
	FileName      string            `json:"file_name"`
	SizeBytes     int64             `json:"size_bytes"`
	UploadDate    time.Time         `json:"upload_date"`
	Meta          map[string]any    `json:"meta,omitempty"`
	InlinePayload []byte            `json:"-"`
	ChunkedRef    *ChunkedReference `json:"chunked_ref,omitempty"`
}

// Inline reports whether the descriptor embeds its payload.
func (d *FileDescriptor) Inline() bool {
	return d != nil && d.StorageMode == string(StorageModeInline)
}

// Chunked reports whether the descriptor references the chunk store.
func (d *FileDescriptor) Chunked() bool {
	return d != nil && d.StorageMode == string(StorageModeChunked)
}

// Validate checks the single-payload invariant.
func (d *FileDescriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("file descriptor is required")
	}
	if strings.TrimSpace(d.FileID) == "" {
		return fmt.Errorf("file_id is required")
	}
	mode, err := ParseStorageMode(d.StorageMode)
	if err != nil {
		return err
	}
	switch mode {
	case StorageModeInline:
		if d.ChunkedRef != nil {
			return fmt.Errorf("inline descriptor must not carry a chunked reference")
		}
	case StorageModeChunked:
		if d.ChunkedRef == nil || strings.TrimSpace(d.ChunkedRef.ObjectID) == "" {
			return fmt.Errorf("chunked descriptor requires an object reference")
		}
		if len(d.InlinePayload) > 0 {
			return fmt.Errorf("chunked descriptor must not carry an inline payload")
		}
	}
	return nil
}
