package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"carevault/internal/chunkstore"
)

func testChunkStore(t *testing.T) *chunkstore.SQLiteStore {
	t.Helper()
	cs, err := chunkstore.OpenSQLite(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatalf("open chunk store: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func randomPayload(t *testing.T, n int) []byte {
	t.Helper()
	payload := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(payload)
	return payload
}

func TestObjectWriterReaderRoundTrip(t *testing.T) {
	cs := testChunkStore(t)
	ctx := context.Background()

	payload := randomPayload(t, 1000)
	chunkSize := 64

	w, err := NewObjectWriter(ctx, cs, chunkSize)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	objectID, err := w.Finish("application/pdf", "scan.pdf", nil)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if objectID == "" {
		t.Fatal("expected object id")
	}
	if w.Size() != int64(len(payload)) {
		t.Errorf("size = %d, want %d", w.Size(), len(payload))
	}

	r, err := OpenObject(ctx, cs, objectID)
	if err != nil {
		t.Fatalf("open object: %v", err)
	}
	defer r.Close()

	info := r.Info()
	if info.SizeBytes != int64(len(payload)) || info.ChunkSize != chunkSize {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.ContentType != "application/pdf" || info.FileName != "scan.pdf" {
		t.Errorf("metadata not preserved: %+v", info)
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("reassembled payload differs from original")
	}
}

func TestObjectWriterChunkSequence(t *testing.T) {
	cs := testChunkStore(t)
	ctx := context.Background()

	// 1000 bytes over 64-byte chunks: 15 full chunks plus a 40-byte tail.
	payload := randomPayload(t, 1000)
	w, err := NewObjectWriter(ctx, cs, 64)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	// Feed in odd-sized pieces so writes straddle chunk boundaries.
	for len(payload) > 0 {
		n := min(37, len(payload))
		if _, err := w.Write(payload[:n]); err != nil {
			t.Fatalf("write: %v", err)
		}
		payload = payload[n:]
	}
	objectID, err := w.Finish("application/pdf", "", nil)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	for i := 0; i < 15; i++ {
		chunk, err := cs.ReadChunk(ctx, objectID, i)
		if err != nil {
			t.Fatalf("read chunk %d: %v", i, err)
		}
		if len(chunk) != 64 {
			t.Errorf("chunk %d has %d bytes, want 64", i, len(chunk))
		}
	}
	tail, err := cs.ReadChunk(ctx, objectID, 15)
	if err != nil {
		t.Fatalf("read tail: %v", err)
	}
	if len(tail) != 40 {
		t.Errorf("tail has %d bytes, want 40", len(tail))
	}
	if _, err := cs.ReadChunk(ctx, objectID, 16); !errors.Is(err, chunkstore.ErrChunkNotFound) {
		t.Errorf("expected no chunk 16, got %v", err)
	}
}

func TestObjectWriterEmptyPayload(t *testing.T) {
	cs := testChunkStore(t)
	ctx := context.Background()

	w, err := NewObjectWriter(ctx, cs, 64)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	objectID, err := w.Finish("image/png", "empty.png", nil)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	r, err := OpenObject(ctx, cs, objectID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(got))
	}
}

func TestObjectWriterFinishTwice(t *testing.T) {
	cs := testChunkStore(t)
	w, err := NewObjectWriter(context.Background(), cs, 64)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if _, err := w.Finish("image/png", "", nil); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := w.Finish("image/png", "", nil); err == nil {
		t.Fatal("expected error on second finish")
	}
	if _, err := w.Write([]byte("x")); err == nil {
		t.Fatal("expected error on write after finish")
	}
}

func TestOpenObjectMissing(t *testing.T) {
	cs := testChunkStore(t)
	_, err := OpenObject(context.Background(), cs, "no-such-object")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestObjectReaderMissingChunk(t *testing.T) {
	cs := testChunkStore(t)
	ctx := context.Background()

	// Object claims 12 bytes over 4-byte chunks but sequence 1 was never
	// written.
	if err := cs.PutChunk(ctx, "obj-gap", 0, []byte("aaaa")); err != nil {
		t.Fatalf("put chunk 0: %v", err)
	}
	if err := cs.PutChunk(ctx, "obj-gap", 2, []byte("cccc")); err != nil {
		t.Fatalf("put chunk 2: %v", err)
	}
	if err := cs.Finalize(ctx, chunkstore.ObjectInfo{
		ID: "obj-gap", ContentType: "application/pdf", SizeBytes: 12, ChunkSize: 4,
		UploadDate: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	r, err := OpenObject(ctx, cs, "obj-gap")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	_, err = r.Next()
	if !errors.Is(err, ErrReassembly) {
		t.Fatalf("expected ErrReassembly, got %v", err)
	}
	// The failure sticks across the io.Reader surface as well.
	if _, err := r.Read(make([]byte, 4)); !errors.Is(err, ErrReassembly) {
		t.Fatalf("expected sticky ErrReassembly, got %v", err)
	}
}

func TestObjectReaderShortChunk(t *testing.T) {
	cs := testChunkStore(t)
	ctx := context.Background()

	if err := cs.PutChunk(ctx, "obj-short", 0, []byte("aaa")); err != nil {
		t.Fatalf("put chunk: %v", err)
	}
	if err := cs.Finalize(ctx, chunkstore.ObjectInfo{
		ID: "obj-short", ContentType: "application/pdf", SizeBytes: 8, ChunkSize: 4,
		UploadDate: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	r, err := OpenObject(ctx, cs, "obj-short")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrReassembly) {
		t.Fatalf("expected ErrReassembly, got %v", err)
	}
}
