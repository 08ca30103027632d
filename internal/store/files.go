package store

import (
	"context"
	"database/sql"
	"fmt"

	"carevault/internal/models"
)

// StageExists reports whether the attachment point resolves along the full
// patient, episode, stage path.
func (s *Store) StageExists(ctx context.Context, point models.AttachmentPoint) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM stages st
		JOIN episodes e ON e.id = st.episode_id
		WHERE st.id = ? AND e.id = ? AND e.patient_id = ?
		LIMIT 1`,
		point.StageID, point.EpisodeID, point.PatientID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AppendStageFile appends a descriptor to the addressed stage's file list.
// The path check and the insert happen in one statement so a concurrently
// deleted stage can never gain a dangling descriptor. inserted is false when
// the attachment point does not resolve.
func (s *Store) AppendStageFile(ctx context.Context, point models.AttachmentPoint, desc *models.FileDescriptor) (bool, error) {
	if err := desc.Validate(); err != nil {
		return false, err
	}

	meta, err := metaToJSON(desc.Meta)
	if err != nil {
		return false, err
	}

	var inlinePayload any
	var storeName, objectID any
	if desc.Inline() {
		inlinePayload = desc.InlinePayload
	} else {
		storeName = desc.ChunkedRef.StoreName
		objectID = desc.ChunkedRef.ObjectID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_files (stage_id, file_id, position, storage_mode, content_type,
			file_name, size_bytes, upload_date, meta, inline_payload, store_name, object_id)
		SELECT st.id, ?,
			COALESCE((SELECT MAX(position) + 1 FROM stage_files WHERE stage_id = st.id), 0),
			?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM stages st
		JOIN episodes e ON e.id = st.episode_id
		WHERE st.id = ? AND e.id = ? AND e.patient_id = ?`,
		desc.FileID, desc.StorageMode, desc.ContentType,
		nullIfEmpty(desc.FileName), desc.SizeBytes, formatTime(desc.UploadDate),
		meta, inlinePayload, storeName, objectID,
		point.StageID, point.EpisodeID, point.PatientID)
	if err != nil {
		return false, fmt.Errorf("append file %s: %w", desc.FileID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetStageFile returns the descriptor by file id, or nil when either the
// attachment point or the file id does not resolve.
func (s *Store) GetStageFile(ctx context.Context, point models.AttachmentPoint, fileID string) (*models.FileDescriptor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT f.file_id, f.storage_mode, f.content_type, f.file_name, f.size_bytes,
			f.upload_date, f.meta, f.inline_payload, f.store_name, f.object_id
		FROM stage_files f
		JOIN stages st ON st.id = f.stage_id
		JOIN episodes e ON e.id = st.episode_id
		WHERE f.file_id = ? AND st.id = ? AND e.id = ? AND e.patient_id = ?`,
		fileID, point.StageID, point.EpisodeID, point.PatientID)
	desc, err := scanFileDescriptor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", fileID, err)
	}
	return desc, nil
}

// RemoveStageFile removes the descriptor row. removed is false when no
// matching descriptor existed along the addressed path.
func (s *Store) RemoveStageFile(ctx context.Context, point models.AttachmentPoint, fileID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM stage_files
		WHERE file_id = ? AND stage_id = ?
		AND EXISTS (
			SELECT 1 FROM stages st
			JOIN episodes e ON e.id = st.episode_id
			WHERE st.id = stage_files.stage_id AND e.id = ? AND e.patient_id = ?
		)`,
		fileID, point.StageID, point.EpisodeID, point.PatientID)
	if err != nil {
		return false, fmt.Errorf("remove file %s: %w", fileID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListStageFiles returns the addressed stage's file list in attach order.
func (s *Store) ListStageFiles(ctx context.Context, point models.AttachmentPoint) ([]models.FileDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.file_id, f.storage_mode, f.content_type, f.file_name, f.size_bytes,
			f.upload_date, f.meta, f.inline_payload, f.store_name, f.object_id
		FROM stage_files f
		JOIN stages st ON st.id = f.stage_id
		JOIN episodes e ON e.id = st.episode_id
		WHERE st.id = ? AND e.id = ? AND e.patient_id = ?
		ORDER BY f.position`,
		point.StageID, point.EpisodeID, point.PatientID)
	if err != nil {
		return nil, fmt.Errorf("list files for stage %s: %w", point.StageID, err)
	}
	defer rows.Close()

	var files []models.FileDescriptor
	for rows.Next() {
		desc, err := scanFileDescriptor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *desc)
	}
	return files, rows.Err()
}

// ListFilesByPatient returns every descriptor attached anywhere under the
// patient, ordered by stage and list position.
func (s *Store) ListFilesByPatient(ctx context.Context, patientID string) ([]models.FileDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.file_id, f.storage_mode, f.content_type, f.file_name, f.size_bytes,
			f.upload_date, f.meta, f.inline_payload, f.store_name, f.object_id
		FROM stage_files f
		JOIN stages st ON st.id = f.stage_id
		JOIN episodes e ON e.id = st.episode_id
		WHERE e.patient_id = ?
		ORDER BY e.started_at, e.id, st.created_at, st.id, f.position`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list files for patient %s: %w", patientID, err)
	}
	defer rows.Close()

	var files []models.FileDescriptor
	for rows.Next() {
		desc, err := scanFileDescriptor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *desc)
	}
	return files, rows.Err()
}

// ReferencedObjectIDs returns the set of chunk store object ids referenced by
// any attached file. The orphan sweep subtracts this set from the store's
// object listing.
func (s *Store) ReferencedObjectIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT object_id FROM stage_files WHERE object_id IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("list referenced objects: %w", err)
	}
	defer rows.Close()

	referenced := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		referenced[id] = struct{}{}
	}
	return referenced, rows.Err()
}

func scanFileDescriptor(row rowScanner) (*models.FileDescriptor, error) {
	var desc models.FileDescriptor
	var fileName, meta, storeName, objectID sql.NullString
	var uploadDate string
	var inlinePayload []byte

	err := row.Scan(&desc.FileID, &desc.StorageMode, &desc.ContentType, &fileName,
		&desc.SizeBytes, &uploadDate, &meta, &inlinePayload, &storeName, &objectID)
	if err != nil {
		return nil, err
	}

	desc.FileName = fileName.String
	if desc.Meta, err = metaFromJSON(meta); err != nil {
		return nil, err
	}
	if desc.UploadDate, err = parseTime(uploadDate); err != nil {
		return nil, err
	}
	if desc.Chunked() {
		desc.ChunkedRef = &models.ChunkedReference{
			StoreName: storeName.String,
			ObjectID:  objectID.String,
		}
	} else {
		desc.InlinePayload = inlinePayload
	}
	return &desc, nil
}
