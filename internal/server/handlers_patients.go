package server

import (
	"fmt"
	"net/http"

	"carevault/internal/api"
	"carevault/internal/models"
)

func (s *Server) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var req api.PatientCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	patient, err := s.patients.CreatePatient(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, patient)
}

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := s.patients.ListPatients(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if patients == nil {
		patients = []models.Patient{}
	}
	s.writeJSON(w, http.StatusOK, patients)
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	id, err := requirePatientID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	patient, err := s.patients.GetPatient(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, patient)
}

func (s *Server) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := requirePatientID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req api.PatientUpdateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	patient, err := s.patients.UpdatePatient(r.Context(), id, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, patient)
}

func (s *Server) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	id, err := requirePatientID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	removed, err := s.patients.DeletePatient(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !removed {
		s.writeServiceError(w, r, notFoundCode(fmt.Errorf("patient not found"), ErrCodePatientNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{ID: id, Removed: true})
}

func (s *Server) handleCreateEpisode(w http.ResponseWriter, r *http.Request) {
	patientID, err := requirePatientID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req api.EpisodeCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	episode, err := s.patients.CreateEpisode(r.Context(), patientID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, episode)
}

func (s *Server) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	patientID, err := requirePatientID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	episodes, err := s.patients.ListEpisodes(r.Context(), patientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if episodes == nil {
		episodes = []models.Episode{}
	}
	s.writeJSON(w, http.StatusOK, episodes)
}

func (s *Server) handleGetEpisode(w http.ResponseWriter, r *http.Request) {
	patientID, err := requirePatientID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	episodeID := r.PathValue("episode_id")
	if !validateEpisodeID(episodeID) {
		s.writeServiceError(w, r, badRequestCode(fmt.Errorf("invalid episode_id"), ErrCodeInvalidID))
		return
	}

	episode, err := s.patients.GetEpisode(r.Context(), patientID, episodeID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, episode)
}

func (s *Server) handleCreateStage(w http.ResponseWriter, r *http.Request) {
	patientID, err := requirePatientID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	episodeID := r.PathValue("episode_id")
	if !validateEpisodeID(episodeID) {
		s.writeServiceError(w, r, badRequestCode(fmt.Errorf("invalid episode_id"), ErrCodeInvalidID))
		return
	}

	var req api.StageCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	stage, err := s.patients.CreateStage(r.Context(), patientID, episodeID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, stage)
}

func (s *Server) handleListStages(w http.ResponseWriter, r *http.Request) {
	patientID, err := requirePatientID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	episodeID := r.PathValue("episode_id")
	if !validateEpisodeID(episodeID) {
		s.writeServiceError(w, r, badRequestCode(fmt.Errorf("invalid episode_id"), ErrCodeInvalidID))
		return
	}

	stages, err := s.patients.ListStages(r.Context(), patientID, episodeID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if stages == nil {
		stages = []models.Stage{}
	}
	s.writeJSON(w, http.StatusOK, stages)
}
