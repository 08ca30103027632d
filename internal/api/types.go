package api

import (
	"time"

	"carevault/internal/models"
)

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// InfoResponse reports server identity and record counts.
type InfoResponse struct {
	DBPath        string `json:"db_path"`
	ChunkStore    string `json:"chunk_store"`
	SchemaVersion int    `json:"schema_version"`
	Patients      int    `json:"patients"`
	Episodes      int    `json:"episodes"`
	Stages        int    `json:"stages"`
	Files         int    `json:"files"`
}

// PatientCreateRequest creates a new patient record.
type PatientCreateRequest struct {
	GivenName  string         `json:"given_name"`
	FamilyName string         `json:"family_name"`
	BirthDate  string         `json:"birth_date,omitempty"`
	Sex        string         `json:"sex,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// PatientUpdateRequest carries partial patient updates.
type PatientUpdateRequest struct {
	GivenName  *string        `json:"given_name,omitempty"`
	FamilyName *string        `json:"family_name,omitempty"`
	BirthDate  *string        `json:"birth_date,omitempty"`
	Sex        *string        `json:"sex,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// EpisodeCreateRequest creates a treatment episode under a patient.
type EpisodeCreateRequest struct {
	Title     string     `json:"title"`
	Diagnosis string     `json:"diagnosis,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// StageCreateRequest creates a stage under an episode.
type StageCreateRequest struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

// FileUploadBase64Request uploads base64-encoded file content. FileID is
// optional; the server allocates one when it is empty.
type FileUploadBase64Request struct {
	FileID      string         `json:"file_id,omitempty"`
	ContentType string         `json:"content_type"`
	FileName    string         `json:"file_name,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	Content     string         `json:"content"`
}

// FileResponse is the wire form of a stored file descriptor.
type FileResponse struct {
	FileID      string                   `json:"file_id"`
	StorageMode string                   `json:"storage_mode"`
	ContentType string                   `json:"content_type"`
	FileName    string                   `json:"file_name,omitempty"`
	SizeBytes   int64                    `json:"size_bytes"`
	UploadDate  time.Time                `json:"upload_date"`
	Meta        map[string]any           `json:"meta,omitempty"`
	ChunkedRef  *models.ChunkedReference `json:"chunked_ref,omitempty"`
}

// FileResponseFromDescriptor maps a descriptor to its wire form. The inline
// payload never travels with the descriptor; content has its own endpoint.
func FileResponseFromDescriptor(desc models.FileDescriptor) FileResponse {
	return FileResponse{
		FileID:      desc.FileID,
		StorageMode: desc.StorageMode,
		ContentType: desc.ContentType,
		FileName:    desc.FileName,
		SizeBytes:   desc.SizeBytes,
		UploadDate:  desc.UploadDate,
		Meta:        desc.Meta,
		ChunkedRef:  desc.ChunkedRef,
	}
}

// DeleteResponse acknowledges a removal.
type DeleteResponse struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

// SweepRequest triggers an orphaned chunk object sweep.
type SweepRequest struct {
	DryRun bool `json:"dry_run"`
}

// SweepResponse reports one sweep run.
type SweepResponse struct {
	CandidateCount int      `json:"candidate_count"`
	DeletedCount   int      `json:"deleted_count"`
	FailedCount    int      `json:"failed_count"`
	ObjectIDs      []string `json:"object_ids"`
	DryRun         bool     `json:"dry_run"`
}
