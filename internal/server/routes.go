package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)

	// Patients.
	mux.HandleFunc("POST /v1/patients", s.handleCreatePatient)
	mux.HandleFunc("GET /v1/patients", s.handleListPatients)
	mux.HandleFunc("GET /v1/patients/{patient_id}", s.handleGetPatient)
	mux.HandleFunc("PATCH /v1/patients/{patient_id}", s.handleUpdatePatient)
	mux.HandleFunc("DELETE /v1/patients/{patient_id}", s.handleDeletePatient)

	// Episodes.
	mux.HandleFunc("POST /v1/patients/{patient_id}/episodes", s.handleCreateEpisode)
	mux.HandleFunc("GET /v1/patients/{patient_id}/episodes", s.handleListEpisodes)
	mux.HandleFunc("GET /v1/patients/{patient_id}/episodes/{episode_id}", s.handleGetEpisode)

	// Stages.
	mux.HandleFunc("POST /v1/patients/{patient_id}/episodes/{episode_id}/stages", s.handleCreateStage)
	mux.HandleFunc("GET /v1/patients/{patient_id}/episodes/{episode_id}/stages", s.handleListStages)

	// Files on a stage.
	mux.HandleFunc("POST /v1/patients/{patient_id}/episodes/{episode_id}/stages/{stage_id}/files", s.handleUploadFile)
	mux.HandleFunc("POST /v1/patients/{patient_id}/episodes/{episode_id}/stages/{stage_id}/files/base64", s.handleUploadFileBase64)
	mux.HandleFunc("GET /v1/patients/{patient_id}/episodes/{episode_id}/stages/{stage_id}/files", s.handleListStageFiles)
	mux.HandleFunc("GET /v1/patients/{patient_id}/episodes/{episode_id}/stages/{stage_id}/files/{file_id}", s.handleGetFile)
	mux.HandleFunc("GET /v1/patients/{patient_id}/episodes/{episode_id}/stages/{stage_id}/files/{file_id}/content", s.handleDownloadFile)
	mux.HandleFunc("DELETE /v1/patients/{patient_id}/episodes/{episode_id}/stages/{stage_id}/files/{file_id}", s.handleDeleteFile)

	// Cross-episode file listing.
	mux.HandleFunc("GET /v1/patients/{patient_id}/files", s.handleListPatientFiles)

	// Admin.
	mux.HandleFunc("POST /v1/admin/sweep", s.handleAdminSweep)

	return s.withRequestLogging(s.withAPIToken(mux))
}

// withAPIToken enforces the static bearer token when one is configured.
// The health endpoint stays open for probes.
func (s *Server) withAPIToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) != 1 {
			s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("missing or invalid api token")))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
