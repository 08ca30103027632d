package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carevault/internal/api"
	"carevault/internal/models"
	"carevault/internal/store"
)

// PatientService handles patient record tree operations: patients,
// episodes, stages. File handling lives in FileService.
type PatientService struct {
	store *store.Store
}

// NewPatientService constructs a PatientService.
func NewPatientService(st *store.Store) *PatientService {
	return &PatientService{store: st}
}

// CreatePatient validates the request and inserts a new patient record.
func (s *PatientService) CreatePatient(ctx context.Context, req api.PatientCreateRequest) (*models.Patient, error) {
	given, err := validatePersonName("given_name", req.GivenName)
	if err != nil {
		return nil, err
	}
	family, err := validatePersonName("family_name", req.FamilyName)
	if err != nil {
		return nil, err
	}
	birthDate, err := validateBirthDate(req.BirthDate)
	if err != nil {
		return nil, err
	}
	sex, err := validateSex(req.Sex)
	if err != nil {
		return nil, err
	}

	id, err := store.GeneratePatientID(s.store.PatientExists)
	if err != nil {
		return nil, internalError(err)
	}

	now := time.Now().UTC()
	patient := &models.Patient{
		ID:         id,
		GivenName:  given,
		FamilyName: family,
		BirthDate:  birthDate,
		Sex:        sex,
		Meta:       req.Meta,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreatePatient(ctx, patient); err != nil {
		return nil, err
	}
	return patient, nil
}

// GetPatient resolves one patient by id.
func (s *PatientService) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	patient, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, notFoundCode(fmt.Errorf("patient not found"), ErrCodePatientNotFound)
	}
	return patient, nil
}

// ListPatients returns all patients.
func (s *PatientService) ListPatients(ctx context.Context) ([]models.Patient, error) {
	return s.store.ListPatients(ctx)
}

// UpdatePatient applies a partial update. Absent fields keep their value.
func (s *PatientService) UpdatePatient(ctx context.Context, id string, req api.PatientUpdateRequest) (*models.Patient, error) {
	patient, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.GivenName != nil {
		given, err := validatePersonName("given_name", *req.GivenName)
		if err != nil {
			return nil, err
		}
		patient.GivenName = given
	}
	if req.FamilyName != nil {
		family, err := validatePersonName("family_name", *req.FamilyName)
		if err != nil {
			return nil, err
		}
		patient.FamilyName = family
	}
	if req.BirthDate != nil {
		birthDate, err := validateBirthDate(*req.BirthDate)
		if err != nil {
			return nil, err
		}
		patient.BirthDate = birthDate
	}
	if req.Sex != nil {
		sex, err := validateSex(*req.Sex)
		if err != nil {
			return nil, err
		}
		patient.Sex = sex
	}
	if req.Meta != nil {
		patient.Meta = req.Meta
	}

	patient.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdatePatient(ctx, patient); err != nil {
		return nil, err
	}
	return patient, nil
}

// DeletePatient removes a patient and, through the schema cascade, its
// episodes, stages and file descriptors. Chunk objects referenced by
// deleted descriptors become sweep candidates.
func (s *PatientService) DeletePatient(ctx context.Context, id string) (bool, error) {
	return s.store.DeletePatient(ctx, id)
}

// CreateEpisode inserts an episode under an existing patient.
func (s *PatientService) CreateEpisode(ctx context.Context, patientID string, req api.EpisodeCreateRequest) (*models.Episode, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, badRequestCode(fmt.Errorf("title is required"), ErrCodeMissingRequired)
	}

	id, err := store.GenerateEpisodeID(s.store.EpisodeExists)
	if err != nil {
		return nil, internalError(err)
	}

	now := time.Now().UTC()
	startedAt := now
	if req.StartedAt != nil {
		startedAt = req.StartedAt.UTC()
	}
	episode := &models.Episode{
		ID:        id,
		PatientID: patientID,
		Title:     title,
		Diagnosis: strings.TrimSpace(req.Diagnosis),
		StartedAt: startedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateEpisode(ctx, episode); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, notFoundCode(err, ErrCodePatientNotFound)
		}
		return nil, err
	}
	return episode, nil
}

// GetEpisode resolves one episode scoped to its patient.
func (s *PatientService) GetEpisode(ctx context.Context, patientID, episodeID string) (*models.Episode, error) {
	episode, err := s.store.GetEpisode(ctx, patientID, episodeID)
	if err != nil {
		return nil, err
	}
	if episode == nil {
		return nil, notFoundCode(fmt.Errorf("episode not found"), ErrCodeEpisodeNotFound)
	}
	return episode, nil
}

// ListEpisodes returns a patient's episodes in start order.
func (s *PatientService) ListEpisodes(ctx context.Context, patientID string) ([]models.Episode, error) {
	if err := s.ensurePatientExists(patientID); err != nil {
		return nil, err
	}
	return s.store.ListEpisodes(ctx, patientID)
}

// CreateStage inserts a stage under an existing patient/episode pair.
func (s *PatientService) CreateStage(ctx context.Context, patientID, episodeID string, req api.StageCreateRequest) (*models.Stage, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, badRequestCode(fmt.Errorf("title is required"), ErrCodeMissingRequired)
	}

	id, err := store.GenerateStageID(s.store.StageIDExists)
	if err != nil {
		return nil, internalError(err)
	}

	now := time.Now().UTC()
	stage := &models.Stage{
		ID:        id,
		EpisodeID: episodeID,
		PatientID: patientID,
		Title:     title,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateStage(ctx, stage); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, notFoundCode(err, ErrCodeEpisodeNotFound)
		}
		return nil, err
	}
	return stage, nil
}

// ListStages returns the stages of one episode in creation order.
func (s *PatientService) ListStages(ctx context.Context, patientID, episodeID string) ([]models.Stage, error) {
	if _, err := s.GetEpisode(ctx, patientID, episodeID); err != nil {
		return nil, err
	}
	return s.store.ListStages(ctx, patientID, episodeID)
}

func (s *PatientService) ensurePatientExists(id string) error {
	exists, err := s.store.PatientExists(id)
	if err != nil {
		return err
	}
	if !exists {
		return notFoundCode(fmt.Errorf("patient not found"), ErrCodePatientNotFound)
	}
	return nil
}
