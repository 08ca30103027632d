package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carevault/internal/models"
)

// CreatePatient inserts a new patient record.
func (s *Store) CreatePatient(ctx context.Context, p *models.Patient) error {
	if p == nil {
		return fmt.Errorf("patient is required")
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	meta, err := metaToJSON(p.Meta)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patients (id, given_name, family_name, birth_date, sex, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GivenName, p.FamilyName,
		nullIfEmpty(p.BirthDate), nullIfEmpty(p.Sex), meta,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

// GetPatient returns the patient by id, or nil when not found.
func (s *Store) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, given_name, family_name, birth_date, sex, meta, created_at, updated_at
		FROM patients WHERE id = ?`, id)
	p, err := scanPatient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

// ListPatients returns all patients ordered by creation time.
func (s *Store) ListPatients(ctx context.Context) ([]models.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, given_name, family_name, birth_date, sex, meta, created_at, updated_at
		FROM patients ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, *p)
	}
	return patients, rows.Err()
}

// UpdatePatient rewrites the mutable fields of a patient record.
func (s *Store) UpdatePatient(ctx context.Context, p *models.Patient) error {
	if p == nil {
		return fmt.Errorf("patient is required")
	}
	p.UpdatedAt = time.Now().UTC()

	meta, err := metaToJSON(p.Meta)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE patients SET given_name = ?, family_name = ?, birth_date = ?, sex = ?, meta = ?, updated_at = ?
		WHERE id = ?`,
		p.GivenName, p.FamilyName, nullIfEmpty(p.BirthDate), nullIfEmpty(p.Sex), meta,
		formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("patient %s not found", p.ID)
	}
	return nil
}

// DeletePatient removes a patient and, via cascade, its episodes, stages and
// file references. Chunk store objects are not touched; the orphan sweep
// reclaims them.
func (s *Store) DeletePatient(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM patients WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete patient %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CreateEpisode inserts a new episode under an existing patient.
func (s *Store) CreateEpisode(ctx context.Context, e *models.Episode) error {
	if e == nil {
		return fmt.Errorf("episode is required")
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, patient_id, title, diagnosis, started_at, created_at, updated_at)
		SELECT ?, p.id, ?, ?, ?, ?, ?
		FROM patients p WHERE p.id = ?`,
		e.ID, e.Title, nullIfEmpty(e.Diagnosis), nullTime(e.StartedAt),
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt), e.PatientID)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("patient %s not found", e.PatientID)
	}
	return nil
}

// GetEpisode returns the episode by id scoped to a patient, or nil when the
// pair does not resolve.
func (s *Store) GetEpisode(ctx context.Context, patientID, id string) (*models.Episode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, patient_id, title, diagnosis, started_at, created_at, updated_at
		FROM episodes WHERE id = ? AND patient_id = ?`, id, patientID)
	e, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %s: %w", id, err)
	}
	return e, nil
}

// ListEpisodes returns all episodes of a patient ordered by start time.
func (s *Store) ListEpisodes(ctx context.Context, patientID string) ([]models.Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, title, diagnosis, started_at, created_at, updated_at
		FROM episodes WHERE patient_id = ? ORDER BY started_at, id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []models.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, *e)
	}
	return episodes, rows.Err()
}

// CreateStage inserts a new stage under an existing episode. The episode is
// resolved through its patient so a mismatched pair is rejected.
func (s *Store) CreateStage(ctx context.Context, st *models.Stage) error {
	if st == nil {
		return fmt.Errorf("stage is required")
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stages (id, episode_id, title, notes, created_at, updated_at)
		SELECT ?, e.id, ?, ?, ?, ?
		FROM episodes e WHERE e.id = ? AND e.patient_id = ?`,
		st.ID, st.Title, nullIfEmpty(st.Notes),
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt),
		st.EpisodeID, st.PatientID)
	if err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("episode %s not found for patient %s", st.EpisodeID, st.PatientID)
	}
	return nil
}

// GetStage returns the stage addressed by an attachment point, or nil when
// the point does not resolve.
func (s *Store) GetStage(ctx context.Context, point models.AttachmentPoint) (*models.Stage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT st.id, st.episode_id, e.patient_id, st.title, st.notes, st.created_at, st.updated_at
		FROM stages st
		JOIN episodes e ON e.id = st.episode_id
		WHERE st.id = ? AND e.id = ? AND e.patient_id = ?`,
		point.StageID, point.EpisodeID, point.PatientID)
	st, err := scanStage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stage %s: %w", point.StageID, err)
	}
	return st, nil
}

// ListStages returns all stages of an episode ordered by creation time.
func (s *Store) ListStages(ctx context.Context, patientID, episodeID string) ([]models.Stage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.id, st.episode_id, e.patient_id, st.title, st.notes, st.created_at, st.updated_at
		FROM stages st
		JOIN episodes e ON e.id = st.episode_id
		WHERE e.id = ? AND e.patient_id = ?
		ORDER BY st.created_at, st.id`, episodeID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var stages []models.Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stages = append(stages, *st)
	}
	return stages, rows.Err()
}

func scanPatient(row rowScanner) (*models.Patient, error) {
	var p models.Patient
	var birthDate, sex, meta sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.GivenName, &p.FamilyName, &birthDate, &sex, &meta, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.BirthDate = birthDate.String
	p.Sex = sex.String
	if p.Meta, err = metaFromJSON(meta); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanEpisode(row rowScanner) (*models.Episode, error) {
	var e models.Episode
	var diagnosis, startedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.PatientID, &e.Title, &diagnosis, &startedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Diagnosis = diagnosis.String
	if e.StartedAt, err = parseTime(startedAt.String); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanStage(row rowScanner) (*models.Stage, error) {
	var st models.Stage
	var notes sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&st.ID, &st.EpisodeID, &st.PatientID, &st.Title, &notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	st.Notes = notes.String
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}
