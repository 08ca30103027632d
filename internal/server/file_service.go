package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"carevault/internal/blob"
	"carevault/internal/chunkstore"
	"carevault/internal/models"
	"carevault/internal/store"
)

// FileService orchestrates file workflows on top of the blob engine: id
// allocation, attachment point checks, and the orphaned object sweep.
type FileService struct {
	store  *store.Store
	engine *blob.Engine
	chunks chunkstore.Store
}

// NewFileService constructs a FileService.
func NewFileService(st *store.Store, engine *blob.Engine, chunks chunkstore.Store) *FileService {
	return &FileService{store: st, engine: engine, chunks: chunks}
}

// UploadInput carries caller-supplied file metadata for an upload. FileID
// is optional; a fresh id is allocated when it is empty.
type UploadInput struct {
	FileID      string
	ContentType string
	FileName    string
	Meta        map[string]any
}

// SweepResult reports one orphan sweep run.
type SweepResult struct {
	CandidateCount int
	DeletedCount   int
	FailedCount    int
	ObjectIDs      []string
	DryRun         bool
}

// Upload stores a payload stream at the attachment point. size is the
// declared payload length; the engine enforces it during streaming.
func (s *FileService) Upload(ctx context.Context, point models.AttachmentPoint, in UploadInput, r io.Reader, size int64) (models.FileDescriptor, error) {
	fileID, err := s.resolveFileID(in.FileID)
	if err != nil {
		return models.FileDescriptor{}, err
	}
	desc, err := s.engine.StoreFile(ctx, point, blob.StoreInput{
		FileID:      fileID,
		ContentType: in.ContentType,
		FileName:    in.FileName,
		Meta:        in.Meta,
	}, r, size)
	if err != nil {
		return models.FileDescriptor{}, engineError(err)
	}
	return desc, nil
}

// UploadBase64 decodes and stores base64-encoded content.
func (s *FileService) UploadBase64(ctx context.Context, point models.AttachmentPoint, in UploadInput, encoded string) (models.FileDescriptor, error) {
	if strings.TrimSpace(encoded) == "" {
		return models.FileDescriptor{}, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired)
	}
	fileID, err := s.resolveFileID(in.FileID)
	if err != nil {
		return models.FileDescriptor{}, err
	}
	desc, err := s.engine.StoreFileBase64(ctx, point, blob.StoreInput{
		FileID:      fileID,
		ContentType: in.ContentType,
		FileName:    in.FileName,
		Meta:        in.Meta,
	}, encoded)
	if err != nil {
		return models.FileDescriptor{}, engineError(err)
	}
	return desc, nil
}

// resolveFileID allocates a file id, or checks a caller-supplied one for
// format and uniqueness before any payload bytes move.
func (s *FileService) resolveFileID(fileID string) (string, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		id, err := store.GenerateFileID(s.store.FileIDExists)
		if err != nil {
			return "", internalError(err)
		}
		return id, nil
	}
	if !validateFileID(fileID) {
		return "", badRequestCode(fmt.Errorf("invalid file_id"), ErrCodeInvalidID)
	}
	exists, err := s.store.FileIDExists(fileID)
	if err != nil {
		return "", storeFailure(err)
	}
	if exists {
		return "", conflictCode(fmt.Errorf("file id %s already exists", fileID), ErrCodeFileIDExists)
	}
	return fileID, nil
}

// Resolve returns the descriptor without payload bytes.
func (s *FileService) Resolve(ctx context.Context, point models.AttachmentPoint, fileID string) (*models.FileDescriptor, error) {
	desc, err := s.store.GetStageFile(ctx, point, fileID)
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, notFoundCode(fmt.Errorf("file not found"), ErrCodeFileNotFound)
	}
	desc.InlinePayload = nil
	return desc, nil
}

// Fetch returns the descriptor plus a payload reader.
func (s *FileService) Fetch(ctx context.Context, point models.AttachmentPoint, fileID string) (*blob.FileContent, error) {
	content, err := s.engine.FetchFile(ctx, point, fileID)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, notFoundCode(fmt.Errorf("file not found"), ErrCodeFileNotFound)
		}
		return nil, engineError(err)
	}
	return content, nil
}

// Remove detaches a file and deletes its chunk object if it had one.
func (s *FileService) Remove(ctx context.Context, point models.AttachmentPoint, fileID string) (bool, error) {
	removed, err := s.engine.RemoveFile(ctx, point, fileID)
	if err != nil {
		return false, engineError(err)
	}
	return removed, nil
}

// ListByPatient returns all files attached anywhere under one patient.
func (s *FileService) ListByPatient(ctx context.Context, patientID string) ([]models.FileDescriptor, error) {
	exists, err := s.store.PatientExists(patientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFoundCode(fmt.Errorf("patient not found"), ErrCodePatientNotFound)
	}
	files, err := s.engine.ListFiles(ctx, patientID)
	if err != nil {
		return nil, engineError(err)
	}
	for i := range files {
		files[i].InlinePayload = nil
	}
	return files, nil
}

// ListByStage returns the ordered file list of one stage.
func (s *FileService) ListByStage(ctx context.Context, point models.AttachmentPoint) ([]models.FileDescriptor, error) {
	stage, err := s.store.GetStage(ctx, point)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, notFoundCode(fmt.Errorf("stage not found"), ErrCodeStageNotFound)
	}
	files, err := s.store.ListStageFiles(ctx, point)
	if err != nil {
		return nil, err
	}
	for i := range files {
		files[i].InlinePayload = nil
	}
	return files, nil
}

// SweepOrphans removes chunk objects no descriptor references. A dry run
// only reports candidates. Objects written by uploads in flight may show
// up as candidates, so sweeps should run against quiesced stores.
func (s *FileService) SweepOrphans(ctx context.Context, dryRun bool) (SweepResult, error) {
	result := SweepResult{DryRun: dryRun}
	if s == nil || s.chunks == nil {
		return result, internalError(fmt.Errorf("file service is not configured"))
	}

	referenced, err := s.store.ReferencedObjectIDs(ctx)
	if err != nil {
		return result, err
	}
	objectIDs, err := s.chunks.ListObjectIDs(ctx)
	if err != nil {
		return result, internalError(fmt.Errorf("list chunk objects: %w", err))
	}

	var orphans []string
	for _, id := range objectIDs {
		if _, ok := referenced[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	result.CandidateCount = len(orphans)
	result.ObjectIDs = orphans

	if dryRun {
		return result, nil
	}

	for _, id := range orphans {
		if err := s.chunks.Delete(ctx, id); err != nil {
			result.FailedCount++
			continue
		}
		result.DeletedCount++
	}
	return result, nil
}
