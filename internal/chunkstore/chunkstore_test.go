package chunkstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunks.db")
	st, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite chunk store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	st, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("create local chunk store: %v", err)
	}
	return st
}

func testBackends(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"sqlite": testSQLiteStore(t),
		"local":  testLocalStore(t),
	}
}

func TestPutReadDeleteChunks_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			chunks := [][]byte{
				bytes.Repeat([]byte{0x01}, 8),
				bytes.Repeat([]byte{0x02}, 8),
				[]byte{0x03, 0x04},
			}
			for i, data := range chunks {
				if err := st.PutChunk(ctx, "obj-1", i, data); err != nil {
					t.Fatalf("put chunk %d: %v", i, err)
				}
			}

			info := ObjectInfo{
				ID:          "obj-1",
				ContentType: "application/pdf",
				FileName:    "scan.pdf",
				SizeBytes:   18,
				ChunkSize:   8,
				UploadDate:  time.Now().UTC().Truncate(time.Millisecond),
				Meta:        map[string]any{"uploader": "dr-a"},
			}
			if err := st.Finalize(ctx, info); err != nil {
				t.Fatalf("finalize: %v", err)
			}

			got, err := st.Stat(ctx, "obj-1")
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if got.SizeBytes != 18 || got.ChunkSize != 8 || got.ContentType != "application/pdf" {
				t.Fatalf("unexpected object info: %#v", got)
			}
			if got.Meta["uploader"] != "dr-a" {
				t.Fatalf("expected meta roundtrip, got %v", got.Meta)
			}

			for i, want := range chunks {
				data, err := st.ReadChunk(ctx, "obj-1", i)
				if err != nil {
					t.Fatalf("read chunk %d: %v", i, err)
				}
				if !bytes.Equal(data, want) {
					t.Fatalf("chunk %d mismatch: got %d bytes, want %d", i, len(data), len(want))
				}
			}

			if _, err := st.ReadChunk(ctx, "obj-1", len(chunks)); !errors.Is(err, ErrChunkNotFound) {
				t.Fatalf("expected ErrChunkNotFound past end, got %v", err)
			}

			if err := st.Delete(ctx, "obj-1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := st.Stat(ctx, "obj-1"); !errors.Is(err, ErrObjectNotFound) {
				t.Fatalf("expected ErrObjectNotFound after delete, got %v", err)
			}
			if _, err := st.ReadChunk(ctx, "obj-1", 0); !errors.Is(err, ErrChunkNotFound) {
				t.Fatalf("expected ErrChunkNotFound after delete, got %v", err)
			}
		})
	}
}

func TestFinalize_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			info := ObjectInfo{ID: "obj-f", ContentType: "image/png", SizeBytes: 4, ChunkSize: 8, UploadDate: time.Now().UTC()}
			if err := st.Finalize(ctx, info); err != nil {
				t.Fatalf("first finalize: %v", err)
			}
			info.SizeBytes = 6
			if err := st.Finalize(ctx, info); err != nil {
				t.Fatalf("second finalize: %v", err)
			}
			got, err := st.Stat(ctx, "obj-f")
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if got.SizeBytes != 6 {
				t.Fatalf("expected last finalize to win, got size %d", got.SizeBytes)
			}
		})
	}
}

func TestStat_MissingObject(t *testing.T) {
	ctx := context.Background()
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.Stat(ctx, "no-such"); !errors.Is(err, ErrObjectNotFound) {
				t.Fatalf("expected ErrObjectNotFound, got %v", err)
			}
		})
	}
}

func TestDelete_MissingObjectIsNotAnError(t *testing.T) {
	ctx := context.Background()
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.Delete(ctx, "no-such"); err != nil {
				t.Fatalf("delete missing object: %v", err)
			}
		})
	}
}

func TestListObjectIDs_IncludesUnfinalizedObjects(t *testing.T) {
	ctx := context.Background()
	for name, st := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.PutChunk(ctx, "obj-orphan", 0, []byte{0x01}); err != nil {
				t.Fatalf("put orphan chunk: %v", err)
			}
			if err := st.PutChunk(ctx, "obj-done", 0, []byte{0x02}); err != nil {
				t.Fatalf("put chunk: %v", err)
			}
			if err := st.Finalize(ctx, ObjectInfo{ID: "obj-done", ContentType: "image/gif", SizeBytes: 1, ChunkSize: 8}); err != nil {
				t.Fatalf("finalize: %v", err)
			}

			ids, err := st.ListObjectIDs(ctx)
			if err != nil {
				t.Fatalf("list object ids: %v", err)
			}
			found := map[string]bool{}
			for _, id := range ids {
				found[id] = true
			}
			if !found["obj-orphan"] || !found["obj-done"] {
				t.Fatalf("expected both objects listed, got %v", ids)
			}
		})
	}
}

func TestLocalStore_RejectsTraversalObjectIDs(t *testing.T) {
	st := testLocalStore(t)
	ctx := context.Background()
	for _, id := range []string{"", "..", "../x", "a/b", `a\b`, ".hidden"} {
		if err := st.PutChunk(ctx, id, 0, []byte{0x01}); err == nil {
			t.Fatalf("expected put with object id %q to fail", id)
		}
	}
}
