package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"carevault/internal/chunkstore"
	"carevault/internal/models"
)

// RecordStore is the parent document store surface the engine depends on.
// Append and remove are atomic conditional operations scoped to the
// patient -> episode -> stage path; the engine never does read-modify-write
// on a cached copy of the file list.
type RecordStore interface {
	StageExists(ctx context.Context, point models.AttachmentPoint) (bool, error)
	// AppendStageFile appends a descriptor to the addressed stage's file
	// list. inserted is false when the attachment point does not resolve.
	AppendStageFile(ctx context.Context, point models.AttachmentPoint, desc *models.FileDescriptor) (inserted bool, err error)
	// GetStageFile returns the descriptor by file id, or nil when either the
	// attachment point or the file id does not resolve.
	GetStageFile(ctx context.Context, point models.AttachmentPoint, fileID string) (*models.FileDescriptor, error)
	// RemoveStageFile removes the descriptor row. removed is false when no
	// matching descriptor existed.
	RemoveStageFile(ctx context.Context, point models.AttachmentPoint, fileID string) (removed bool, err error)
	ListFilesByPatient(ctx context.Context, patientID string) ([]models.FileDescriptor, error)
}

// StoreInput carries caller-supplied descriptor fields for an upload.
type StoreInput struct {
	FileID      string
	ContentType string
	FileName    string
	Meta        map[string]any
}

// FileContent is a resolved file: its descriptor plus a streaming reader
// over the payload bytes.
type FileContent struct {
	Descriptor models.FileDescriptor
	Reader     io.ReadCloser
}

// Engine is the blob reference manager. It selects a storage tier per
// upload, moves payload bytes through the inline codec or the chunked
// writer/reader, and keeps descriptors attached to the record tree.
//
// Store clients are injected at construction; the engine holds no global
// state and no locks. Concurrency safety for attach/detach on one stage
// comes from the record store's atomic conditional updates.
type Engine struct {
	records   RecordStore
	chunks    chunkstore.Store
	storeName string
	policy    Policy
}

// NewEngine constructs an engine over the given stores. storeName labels the
// chunk store in chunked references.
func NewEngine(records RecordStore, chunks chunkstore.Store, storeName string, policy Policy) (*Engine, error) {
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if chunks == nil {
		return nil, fmt.Errorf("chunk store is required")
	}
	if strings.TrimSpace(storeName) == "" {
		storeName = "chunks"
	}
	return &Engine{records: records, chunks: chunks, storeName: storeName, policy: policy}, nil
}

// Policy returns the engine's storage policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// StoreFile stores an already-decoded binary payload of the given size and
// attaches the resulting descriptor to the addressed stage. Content type
// validation precedes the storage decision; the storage decision is a pure
// function of size.
func (e *Engine) StoreFile(ctx context.Context, point models.AttachmentPoint, in StoreInput, r io.Reader, size int64) (models.FileDescriptor, error) {
	var zero models.FileDescriptor
	if err := validatePoint(point); err != nil {
		return zero, err
	}
	if err := validateInput(in); err != nil {
		return zero, err
	}
	if r == nil {
		return zero, fmt.Errorf("%w: payload reader is required", ErrValidation)
	}
	if size < 0 {
		return zero, fmt.Errorf("%w: payload size is required", ErrValidation)
	}
	if err := e.policy.CheckContentType(in.ContentType); err != nil {
		return zero, err
	}
	if err := e.policy.CheckSize(size); err != nil {
		return zero, err
	}

	if e.policy.Decide(size, SourceRaw) == models.StorageModeInline {
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return zero, fmt.Errorf("%w: payload shorter than declared size: %v", ErrValidation, err)
		}
		return e.attachInline(ctx, point, in, payload)
	}

	return e.storeChunked(ctx, point, in, r)
}

// StoreFileBase64 stores a base64 text payload. The storage decision uses a
// size estimated from the encoded length, against the base64-path threshold.
func (e *Engine) StoreFileBase64(ctx context.Context, point models.AttachmentPoint, in StoreInput, encoded string) (models.FileDescriptor, error) {
	var zero models.FileDescriptor
	if err := validatePoint(point); err != nil {
		return zero, err
	}
	if err := validateInput(in); err != nil {
		return zero, err
	}
	if encoded == "" {
		return zero, fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if err := e.policy.CheckContentType(in.ContentType); err != nil {
		return zero, err
	}
	estimated := EstimateDecodedSize(len(encoded))
	if err := e.policy.CheckSize(estimated); err != nil {
		return zero, err
	}

	if e.policy.Decide(estimated, SourceBase64) == models.StorageModeInline {
		payload, err := decodeAll(encoded, e.policy.ChunkSize)
		if err != nil {
			return zero, err
		}
		return e.attachInline(ctx, point, in, payload)
	}

	decoder, err := NewBase64Decoder(encoded, e.policy.ChunkSize)
	if err != nil {
		return zero, err
	}
	return e.storeChunked(ctx, point, in, &decoderReader{decoder: decoder})
}

// FetchFile resolves a descriptor and returns its payload as a stream. For
// inline files the embedded bytes are returned directly; for chunked files
// the stream reassembles chunks lazily in chunk-bounded memory.
func (e *Engine) FetchFile(ctx context.Context, point models.AttachmentPoint, fileID string) (*FileContent, error) {
	if err := validatePoint(point); err != nil {
		return nil, err
	}
	desc, err := e.resolve(ctx, point, fileID)
	if err != nil {
		return nil, err
	}

	if desc.Inline() {
		return &FileContent{
			Descriptor: *desc,
			Reader:     io.NopCloser(bytes.NewReader(desc.InlinePayload)),
		}, nil
	}

	reader, err := OpenObject(ctx, e.chunks, desc.ChunkedRef.ObjectID)
	if err != nil {
		return nil, err
	}
	return &FileContent{Descriptor: *desc, Reader: reader}, nil
}

// RemoveFile detaches a descriptor from its stage. For chunked files the
// chunk data is deleted first, then the descriptor row: a crash between the
// two steps leaves a sweepable chunk-store orphan instead of a dangling
// reference. Returns false when no matching descriptor existed.
func (e *Engine) RemoveFile(ctx context.Context, point models.AttachmentPoint, fileID string) (bool, error) {
	if err := validatePoint(point); err != nil {
		return false, err
	}
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return false, fmt.Errorf("%w: file id is required", ErrValidation)
	}

	desc, err := e.records.GetStageFile(ctx, point, fileID)
	if err != nil {
		return false, fmt.Errorf("%w: lookup file %s: %v", ErrStorageUnavailable, fileID, err)
	}
	if desc == nil {
		return false, nil
	}

	if desc.Chunked() {
		if err := e.chunks.Delete(ctx, desc.ChunkedRef.ObjectID); err != nil {
			// Descriptor stays in place; the object is still addressable and
			// the caller may retry the whole removal.
			return false, fmt.Errorf("%w: delete object %s: %v", ErrStorageUnavailable, desc.ChunkedRef.ObjectID, err)
		}
	}

	removed, err := e.records.RemoveStageFile(ctx, point, fileID)
	if err != nil {
		return false, fmt.Errorf("%w: remove descriptor %s: %v", ErrStorageUnavailable, fileID, err)
	}
	return removed, nil
}

// ListFiles aggregates descriptors across all episodes and stages of one
// patient. Audit surface only; it plays no part in storage decisions.
func (e *Engine) ListFiles(ctx context.Context, patientID string) ([]models.FileDescriptor, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient id is required", ErrValidation)
	}
	files, err := e.records.ListFilesByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: list files for patient %s: %v", ErrStorageUnavailable, patientID, err)
	}
	return files, nil
}

func (e *Engine) resolve(ctx context.Context, point models.AttachmentPoint, fileID string) (*models.FileDescriptor, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, fmt.Errorf("%w: file id is required", ErrValidation)
	}
	desc, err := e.records.GetStageFile(ctx, point, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup file %s: %v", ErrStorageUnavailable, fileID, err)
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: file %s at %s/%s/%s", ErrNotFound, fileID, point.PatientID, point.EpisodeID, point.StageID)
	}
	return desc, nil
}

func (e *Engine) attachInline(ctx context.Context, point models.AttachmentPoint, in StoreInput, payload []byte) (models.FileDescriptor, error) {
	var zero models.FileDescriptor
	desc := EncodeInline(payload, in.ContentType, in.FileName)
	desc.FileID = in.FileID
	desc.Meta = in.Meta
	if err := e.attach(ctx, point, &desc); err != nil {
		return zero, err
	}
	return desc, nil
}

func (e *Engine) storeChunked(ctx context.Context, point models.AttachmentPoint, in StoreInput, r io.Reader) (models.FileDescriptor, error) {
	var zero models.FileDescriptor

	// Fail before any chunk is written when the coordinate cannot resolve.
	exists, err := e.records.StageExists(ctx, point)
	if err != nil {
		return zero, fmt.Errorf("%w: check stage: %v", ErrStorageUnavailable, err)
	}
	if !exists {
		return zero, fmt.Errorf("%w: stage %s/%s/%s", ErrNotFound, point.PatientID, point.EpisodeID, point.StageID)
	}

	writer, err := NewObjectWriter(ctx, e.chunks, e.policy.ChunkSize)
	if err != nil {
		return zero, err
	}

	limit := e.policy.MaxUploadBytes
	if _, err := io.Copy(writer, io.LimitReader(r, limit+1)); err != nil {
		return zero, err
	}
	if writer.Size() > limit {
		// Already-flushed chunks are orphans for the sweep.
		return zero, fmt.Errorf("%w: payload exceeds maximum of %d bytes", ErrSizeExceeded, limit)
	}

	objectID, err := writer.Finish(in.ContentType, in.FileName, ownerMeta(point, in))
	if err != nil {
		return zero, err
	}

	desc := models.FileDescriptor{
		FileID:      in.FileID,
		StorageMode: string(models.StorageModeChunked),
		ContentType: in.ContentType,
		FileName:    in.FileName,
		SizeBytes:   writer.Size(),
		UploadDate:  time.Now().UTC(),
		Meta:        in.Meta,
		ChunkedRef:  &models.ChunkedReference{StoreName: e.storeName, ObjectID: objectID},
	}
	if err := e.attach(ctx, point, &desc); err != nil {
		// The stage vanished or the insert failed after a complete upload;
		// drop the object best-effort rather than leave a guaranteed orphan.
		_ = e.chunks.Delete(ctx, objectID)
		return zero, err
	}
	return desc, nil
}

func (e *Engine) attach(ctx context.Context, point models.AttachmentPoint, desc *models.FileDescriptor) error {
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	inserted, err := e.records.AppendStageFile(ctx, point, desc)
	if err != nil {
		if isDuplicateFile(err) {
			return fmt.Errorf("%w: file id %s already exists in stage %s", ErrValidation, desc.FileID, point.StageID)
		}
		return fmt.Errorf("%w: attach file %s: %v", ErrStorageUnavailable, desc.FileID, err)
	}
	if !inserted {
		return fmt.Errorf("%w: stage %s/%s/%s", ErrNotFound, point.PatientID, point.EpisodeID, point.StageID)
	}
	return nil
}

func validatePoint(point models.AttachmentPoint) error {
	if strings.TrimSpace(point.PatientID) == "" {
		return fmt.Errorf("%w: patient id is required", ErrValidation)
	}
	if strings.TrimSpace(point.EpisodeID) == "" {
		return fmt.Errorf("%w: episode id is required", ErrValidation)
	}
	if strings.TrimSpace(point.StageID) == "" {
		return fmt.Errorf("%w: stage id is required", ErrValidation)
	}
	return nil
}

func validateInput(in StoreInput) error {
	if strings.TrimSpace(in.FileID) == "" {
		return fmt.Errorf("%w: file id is required", ErrValidation)
	}
	return nil
}

// ownerMeta records the owning coordinate in the chunk-store object metadata
// for chunked entries, merged over caller metadata.
func ownerMeta(point models.AttachmentPoint, in StoreInput) map[string]any {
	meta := make(map[string]any, len(in.Meta)+4)
	for k, v := range in.Meta {
		meta[k] = v
	}
	meta["patient_id"] = point.PatientID
	meta["episode_id"] = point.EpisodeID
	meta["stage_id"] = point.StageID
	meta["file_id"] = in.FileID
	return meta
}

func decodeAll(encoded string, chunkSize int) ([]byte, error) {
	decoder, err := NewBase64Decoder(encoded, chunkSize)
	if err != nil {
		return nil, err
	}
	out := []byte{}
	for {
		chunk, err := decoder.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}

// decoderReader streams decoded base64 chunks as an io.Reader for the
// chunked writer.
type decoderReader struct {
	decoder *Base64Decoder
	pending []byte
}

func (d *decoderReader) Read(p []byte) (int, error) {
	for len(d.pending) == 0 {
		chunk, err := d.decoder.Next()
		if err != nil {
			return 0, err
		}
		d.pending = chunk
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func isDuplicateFile(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
