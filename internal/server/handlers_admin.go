package server

import (
	"fmt"
	"net/http"
	"strings"

	"carevault/internal/api"
	"carevault/internal/auth"
)

const adminTokenHeader = "X-Admin-Token"

func (s *Server) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdminToken(w, r) {
		return
	}
	if !s.acquireLimiter(s.sweepLimiter, w, r, "sweep") {
		return
	}
	defer s.releaseLimiter(s.sweepLimiter)

	var req api.SweepRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if !req.DryRun && r.Header.Get("X-Confirm") != "true" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("non-dry-run requires X-Confirm: true header"), ErrCodeMissingRequired))
		return
	}

	result, err := s.files.SweepOrphans(r.Context(), req.DryRun)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := api.SweepResponse{
		CandidateCount: result.CandidateCount,
		DeletedCount:   result.DeletedCount,
		FailedCount:    result.FailedCount,
		ObjectIDs:      result.ObjectIDs,
		DryRun:         result.DryRun,
	}
	if resp.ObjectIDs == nil {
		resp.ObjectIDs = []string{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// requireAdminToken checks the admin token header against the configured
// bcrypt hash. With no hash configured, admin endpoints are disabled.
func (s *Server) requireAdminToken(w http.ResponseWriter, r *http.Request) bool {
	if strings.TrimSpace(s.adminTokenHash) == "" {
		s.writeErrorReq(w, r, http.StatusForbidden, makeAPIError(
			http.StatusForbidden, "forbidden", ErrCodeForbidden,
			fmt.Errorf("admin operations require a configured admin token")))
		return false
	}
	token := strings.TrimSpace(r.Header.Get(adminTokenHeader))
	if !auth.VerifyToken(s.adminTokenHash, token) {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("missing or invalid admin token")))
		return false
	}
	return true
}
