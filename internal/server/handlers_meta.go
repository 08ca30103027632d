package server

import (
	"net/http"

	"carevault/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.StoreInfo(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	resp := api.InfoResponse{
		DBPath:        s.dbPath,
		ChunkStore:    s.chunkBackend,
		SchemaVersion: info.SchemaVersion,
		Patients:      info.Patients,
		Episodes:      info.Episodes,
		Stages:        info.Stages,
		Files:         info.Files,
	}

	s.writeJSON(w, http.StatusOK, resp)
}
