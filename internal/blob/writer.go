package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"carevault/internal/chunkstore"
)

// ObjectWriter streams a payload into the chunk store as fixed-size chunks
// written in strictly increasing sequence order. It buffers at most one
// chunk; memory use is bounded by the chunk size, not the payload size.
//
// A writer serves exactly one object and is not safe for concurrent use.
// Writes to different object ids may proceed in parallel.
type ObjectWriter struct {
	ctx      context.Context
	store    chunkstore.Store
	objectID string
	buf      []byte
	next     int
	written  int64
	finished bool
	failed   bool
}

// NewObjectWriter opens a writer for a fresh object. The object id is
// assigned up front so chunks can be addressed before finalize.
func NewObjectWriter(ctx context.Context, store chunkstore.Store, chunkSize int) (*ObjectWriter, error) {
	if store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	return &ObjectWriter{
		ctx:      ctx,
		store:    store,
		objectID: uuid.NewString(),
		buf:      make([]byte, 0, chunkSize),
	}, nil
}

// ObjectID returns the id assigned to the object being written.
func (w *ObjectWriter) ObjectID() string {
	return w.objectID
}

// Write appends bytes to the current chunk buffer, flushing a full chunk to
// the store whenever the buffer reaches the configured length. A store
// failure surfaces as ErrStorageUnavailable; chunks already flushed are left
// in place for the orphan sweep, there is no rollback.
func (w *ObjectWriter) Write(p []byte) (int, error) {
	if w.finished {
		return 0, fmt.Errorf("write after finish")
	}
	if w.failed {
		return 0, fmt.Errorf("%w: writer is in a failed state", ErrStorageUnavailable)
	}

	total := 0
	for len(p) > 0 {
		space := cap(w.buf) - len(w.buf)
		n := min(space, len(p))
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
		total += n

		if len(w.buf) == cap(w.buf) {
			if err := w.flush(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Finish flushes the partial final chunk, finalizes object metadata, and
// returns the object id. Finalize is idempotent on the store side.
func (w *ObjectWriter) Finish(contentType, fileName string, meta map[string]any) (string, error) {
	if w.finished {
		return "", fmt.Errorf("finish called twice")
	}
	if w.failed {
		return "", fmt.Errorf("%w: writer is in a failed state", ErrStorageUnavailable)
	}

	if len(w.buf) > 0 {
		if err := w.flush(); err != nil {
			return "", err
		}
	}

	info := chunkstore.ObjectInfo{
		ID:          w.objectID,
		ContentType: contentType,
		FileName:    fileName,
		SizeBytes:   w.written,
		ChunkSize:   cap(w.buf),
		UploadDate:  time.Now().UTC(),
		Meta:        meta,
	}
	if err := w.store.Finalize(w.ctx, info); err != nil {
		w.failed = true
		return "", fmt.Errorf("%w: finalize object %s: %v", ErrStorageUnavailable, w.objectID, err)
	}

	w.finished = true
	return w.objectID, nil
}

// Size returns the number of payload bytes accepted so far.
func (w *ObjectWriter) Size() int64 {
	return w.written + int64(len(w.buf))
}

func (w *ObjectWriter) flush() error {
	if err := w.store.PutChunk(w.ctx, w.objectID, w.next, w.buf); err != nil {
		w.failed = true
		return fmt.Errorf("%w: write chunk %d of object %s: %v", ErrStorageUnavailable, w.next, w.objectID, err)
	}
	w.written += int64(len(w.buf))
	w.next++
	w.buf = w.buf[:0]
	return nil
}
