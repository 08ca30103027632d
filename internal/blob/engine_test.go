package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"carevault/internal/chunkstore"
	"carevault/internal/models"
	"carevault/internal/store"
)

var _ RecordStore = (*store.Store)(nil)

type engineFixture struct {
	engine *Engine
	store  *store.Store
	chunks *chunkstore.SQLiteStore
	point  models.AttachmentPoint
}

func testEngine(t *testing.T, policy Policy) *engineFixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "carevault.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cs, err := chunkstore.OpenSQLite(filepath.Join(dir, "chunks.db"))
	if err != nil {
		t.Fatalf("open chunk store: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })

	e, err := NewEngine(s, cs, "chunks", policy)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	p := &models.Patient{ID: "pt-0001", GivenName: "Ada", FamilyName: "Lovelace"}
	if err := s.CreatePatient(ctx, p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	ep := &models.Episode{ID: "ep-0001", PatientID: p.ID, Title: "initial workup", StartedAt: time.Now().UTC()}
	if err := s.CreateEpisode(ctx, ep); err != nil {
		t.Fatalf("create episode: %v", err)
	}
	st := &models.Stage{ID: "st-0001", EpisodeID: ep.ID, PatientID: p.ID, Title: "imaging"}
	if err := s.CreateStage(ctx, st); err != nil {
		t.Fatalf("create stage: %v", err)
	}

	return &engineFixture{
		engine: e,
		store:  s,
		chunks: cs,
		point:  models.AttachmentPoint{PatientID: p.ID, EpisodeID: ep.ID, StageID: st.ID},
	}
}

func fetchAll(t *testing.T, f *engineFixture, fileID string) ([]byte, models.FileDescriptor) {
	t.Helper()
	content, err := f.engine.FetchFile(context.Background(), f.point, fileID)
	if err != nil {
		t.Fatalf("fetch %s: %v", fileID, err)
	}
	defer content.Reader.Close()
	payload, err := io.ReadAll(content.Reader)
	if err != nil {
		t.Fatalf("read %s: %v", fileID, err)
	}
	return payload, content.Descriptor
}

func TestStoreFileSmallGoesInline(t *testing.T) {
	f := testEngine(t, NewPolicy(0, 0, 0, 0, nil))
	ctx := context.Background()

	payload := []byte("tiny image")
	desc, err := f.engine.StoreFile(ctx, f.point,
		StoreInput{FileID: "fl-0001", ContentType: "image/png", FileName: "thumb.png"},
		bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !desc.Inline() {
		t.Fatalf("expected inline storage, got %s", desc.StorageMode)
	}
	if desc.SizeBytes != int64(len(payload)) {
		t.Errorf("size = %d, want %d", desc.SizeBytes, len(payload))
	}

	got, fetched := fetchAll(t, f, "fl-0001")
	if !bytes.Equal(got, payload) {
		t.Fatal("fetched payload differs")
	}
	if !fetched.Inline() || fetched.ContentType != "image/png" {
		t.Errorf("unexpected descriptor: %+v", fetched)
	}

	// No chunk store objects for an inline file.
	ids, err := f.chunks.ListObjectIDs(ctx)
	if err != nil {
		t.Fatalf("list objects: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected empty chunk store, got %v", ids)
	}
}

func TestStoreFileLargeGoesChunked(t *testing.T) {
	f := testEngine(t, NewPolicy(64, 0, 32, 0, nil))
	ctx := context.Background()

	payload := randomPayload(t, 200)
	desc, err := f.engine.StoreFile(ctx, f.point,
		StoreInput{FileID: "fl-0001", ContentType: "application/pdf", FileName: "scan.pdf"},
		bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !desc.Chunked() {
		t.Fatalf("expected chunked storage, got %s", desc.StorageMode)
	}
	if desc.ChunkedRef.StoreName != "chunks" || desc.ChunkedRef.ObjectID == "" {
		t.Errorf("unexpected reference: %+v", desc.ChunkedRef)
	}
	if len(desc.InlinePayload) != 0 {
		t.Error("chunked descriptor must not embed payload")
	}

	info, err := f.chunks.Stat(ctx, desc.ChunkedRef.ObjectID)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.SizeBytes != 200 || info.ChunkSize != 32 {
		t.Errorf("unexpected object info: %+v", info)
	}

	got, _ := fetchAll(t, f, "fl-0001")
	if !bytes.Equal(got, payload) {
		t.Fatal("fetched payload differs")
	}
}

func TestStoreFileChunkCountAtDefaults(t *testing.T) {
	f := testEngine(t, NewPolicy(0, 0, 0, 0, nil))
	ctx := context.Background()

	// 2 MiB over 261120-byte chunks: 8 full chunks plus an 8192-byte tail.
	payload := randomPayload(t, 2<<20)
	desc, err := f.engine.StoreFile(ctx, f.point,
		StoreInput{FileID: "fl-0001", ContentType: "application/pdf"},
		bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !desc.Chunked() {
		t.Fatalf("expected chunked storage, got %s", desc.StorageMode)
	}

	objectID := desc.ChunkedRef.ObjectID
	tail, err := f.chunks.ReadChunk(ctx, objectID, 8)
	if err != nil {
		t.Fatalf("read tail chunk: %v", err)
	}
	if len(tail) != 8192 {
		t.Errorf("tail chunk has %d bytes, want 8192", len(tail))
	}
	if _, err := f.chunks.ReadChunk(ctx, objectID, 9); !errors.Is(err, chunkstore.ErrChunkNotFound) {
		t.Errorf("expected exactly 9 chunks, got %v", err)
	}
}

func TestStoreFileRejectsContentTypeBeforeWriting(t *testing.T) {
	f := testEngine(t, NewPolicy(0, 0, 0, 0, nil))
	ctx := context.Background()

	_, err := f.engine.StoreFile(ctx, f.point,
		StoreInput{FileID: "fl-0001", ContentType: "text/plain"},
		bytes.NewReader([]byte("nope")), 4)
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("expected ErrUnsupportedMediaType, got %v", err)
	}

	// Nothing was attached and nothing reached the chunk store.
	files, err := f.engine.ListFiles(ctx, f.point.PatientID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %d", len(files))
	}
	ids, err := f.chunks.ListObjectIDs(ctx)
	if err != nil {
		t.Fatalf("list objects: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected empty chunk store, got %v", ids)
	}
}

func TestStoreFileMissingStage(t *testing.T) {
	f := testEngine(t, NewPolicy(64, 0, 32, 0, nil))
	ctx := context.Background()
	badPoint := f.point
	badPoint.StageID = "st-none"

	// Inline path: the conditional append fails.
	_, err := f.engine.StoreFile(ctx, badPoint,
		StoreInput{FileID: "fl-0001", ContentType: "image/png"},
		bytes.NewReader([]byte("x")), 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("inline: expected ErrNotFound, got %v", err)
	}

	// Chunked path: the stage check fails before any chunk is written.
	_, err = f.engine.StoreFile(ctx, badPoint,
		StoreInput{FileID: "fl-0002", ContentType: "application/pdf"},
		bytes.NewReader(randomPayload(t, 200)), 200)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("chunked: expected ErrNotFound, got %v", err)
	}
	ids, err := f.chunks.ListObjectIDs(ctx)
	if err != nil {
		t.Fatalf("list objects: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("chunks written for unresolved stage: %v", ids)
	}
}

func TestStoreFileDuplicateID(t *testing.T) {
	f := testEngine(t, NewPolicy(0, 0, 0, 0, nil))
	ctx := context.Background()

	in := StoreInput{FileID: "fl-dup", ContentType: "image/png"}
	if _, err := f.engine.StoreFile(ctx, f.point, in, bytes.NewReader([]byte("a")), 1); err != nil {
		t.Fatalf("first store: %v", err)
	}
	_, err := f.engine.StoreFile(ctx, f.point, in, bytes.NewReader([]byte("b")), 1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for duplicate id, got %v", err)
	}
}

func TestStoreFileSizeExceeded(t *testing.T) {
	f := testEngine(t, NewPolicy(16, 16, 8, 64, nil))
	ctx := context.Background()

	// Declared size over the maximum fails up front.
	_, err := f.engine.StoreFile(ctx, f.point,
		StoreInput{FileID: "fl-0001", ContentType: "application/pdf"},
		bytes.NewReader(randomPayload(t, 100)), 100)
	if !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("expected ErrSizeExceeded, got %v", err)
	}

	// A stream longer than its declared size is caught mid-upload; chunks
	// already flushed stay behind as sweepable orphans.
	_, err = f.engine.StoreFile(ctx, f.point,
		StoreInput{FileID: "fl-0002", ContentType: "application/pdf"},
		bytes.NewReader(randomPayload(t, 100)), 60)
	if !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("expected ErrSizeExceeded mid-upload, got %v", err)
	}
	ids, err := f.chunks.ListObjectIDs(ctx)
	if err != nil {
		t.Fatalf("list objects: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected one orphaned object, got %v", ids)
	}
	files, err := f.engine.ListFiles(ctx, f.point.PatientID)
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("no descriptor should be attached, got %d", len(files))
	}
}

func TestStoreFileBase64Inline(t *testing.T) {
	f := testEngine(t, NewPolicy(0, 0, 0, 0, nil))
	ctx := context.Background()

	payload := []byte("a small scanned note")
	encoded := base64.StdEncoding.EncodeToString(payload)

	desc, err := f.engine.StoreFileBase64(ctx, f.point,
		StoreInput{FileID: "fl-0001", ContentType: "image/jpeg", FileName: "note.jpg"}, encoded)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !desc.Inline() {
		t.Fatalf("expected inline storage, got %s", desc.StorageMode)
	}
	got, _ := fetchAll(t, f, "fl-0001")
	if !bytes.Equal(got, payload) {
		t.Fatal("fetched payload differs")
	}
}

func TestStoreFileBase64Chunked(t *testing.T) {
	f := testEngine(t, NewPolicy(1<<20, 64, 32, 0, nil))
	ctx := context.Background()

	payload := randomPayload(t, 500)
	encoded := base64.StdEncoding.EncodeToString(payload)

	desc, err := f.engine.StoreFileBase64(ctx, f.point,
		StoreInput{FileID: "fl-0001", ContentType: "application/pdf"}, encoded)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !desc.Chunked() {
		t.Fatalf("expected chunked storage, got %s", desc.StorageMode)
	}
	if desc.SizeBytes != int64(len(payload)) {
		t.Errorf("size = %d, want %d", desc.SizeBytes, len(payload))
	}
	got, _ := fetchAll(t, f, "fl-0001")
	if !bytes.Equal(got, payload) {
		t.Fatal("fetched payload differs")
	}
}

func TestStoreFileBase64Malformed(t *testing.T) {
	f := testEngine(t, NewPolicy(0, 0, 0, 0, nil))

	_, err := f.engine.StoreFileBase64(context.Background(), f.point,
		StoreInput{FileID: "fl-0001", ContentType: "image/png"}, "not!!valid@@base64")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestFetchFileMissing(t *testing.T) {
	f := testEngine(t, NewPolicy(0, 0, 0, 0, nil))

	_, err := f.engine.FetchFile(context.Background(), f.point, "fl-none")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveFileInline(t *testing.T) {
	f := testEngine(t, NewPolicy(0, 0, 0, 0, nil))
	ctx := context.Background()

	if _, err := f.engine.StoreFile(ctx, f.point,
		StoreInput{FileID: "fl-0001", ContentType: "image/png"},
		bytes.NewReader([]byte("x")), 1); err != nil {
		t.Fatalf("store: %v", err)
	}

	removed, err := f.engine.RemoveFile(ctx, f.point, "fl-0001")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}

	removed, err = f.engine.RemoveFile(ctx, f.point, "fl-0001")
	if err != nil {
		t.Fatalf("remove again: %v", err)
	}
	if removed {
		t.Error("second removal should report false")
	}
}

func TestRemoveFileChunkedDeletesObject(t *testing.T) {
	f := testEngine(t, NewPolicy(64, 0, 32, 0, nil))
	ctx := context.Background()

	desc, err := f.engine.StoreFile(ctx, f.point,
		StoreInput{FileID: "fl-0001", ContentType: "application/pdf"},
		bytes.NewReader(randomPayload(t, 200)), 200)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	removed, err := f.engine.RemoveFile(ctx, f.point, "fl-0001")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}

	if _, err := f.chunks.Stat(ctx, desc.ChunkedRef.ObjectID); !errors.Is(err, chunkstore.ErrObjectNotFound) {
		t.Errorf("object should be deleted, got %v", err)
	}
	if _, err := f.engine.FetchFile(ctx, f.point, "fl-0001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("descriptor should be gone, got %v", err)
	}
}

func TestListFilesAcrossStages(t *testing.T) {
	f := testEngine(t, NewPolicy(0, 0, 0, 0, nil))
	ctx := context.Background()

	second := &models.Stage{ID: "st-0002", EpisodeID: f.point.EpisodeID, PatientID: f.point.PatientID, Title: "followup"}
	if err := f.store.CreateStage(ctx, second); err != nil {
		t.Fatalf("create stage: %v", err)
	}
	secondPoint := f.point
	secondPoint.StageID = second.ID

	if _, err := f.engine.StoreFile(ctx, f.point,
		StoreInput{FileID: "fl-0001", ContentType: "image/png"},
		bytes.NewReader([]byte("a")), 1); err != nil {
		t.Fatalf("store first: %v", err)
	}
	if _, err := f.engine.StoreFile(ctx, secondPoint,
		StoreInput{FileID: "fl-0002", ContentType: "image/png"},
		bytes.NewReader([]byte("b")), 1); err != nil {
		t.Fatalf("store second: %v", err)
	}

	files, err := f.engine.ListFiles(ctx, f.point.PatientID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
}

func TestStoreFileValidatesInput(t *testing.T) {
	f := testEngine(t, NewPolicy(0, 0, 0, 0, nil))
	ctx := context.Background()

	_, err := f.engine.StoreFile(ctx, f.point,
		StoreInput{ContentType: "image/png"}, bytes.NewReader([]byte("x")), 1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("missing file id: expected ErrValidation, got %v", err)
	}

	badPoint := f.point
	badPoint.PatientID = ""
	_, err = f.engine.StoreFile(ctx, badPoint,
		StoreInput{FileID: "fl-0001", ContentType: "image/png"}, bytes.NewReader([]byte("x")), 1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("empty patient id: expected ErrValidation, got %v", err)
	}
}
