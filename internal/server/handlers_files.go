package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"carevault/internal/api"
	"carevault/internal/models"
)

// uploadBodySlack covers multipart framing and form fields on top of the
// payload limit.
const uploadBodySlack = 1 << 20

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if !s.acquireLimiter(s.uploadLimiter, w, r, "upload") {
		return
	}
	defer s.releaseLimiter(s.uploadLimiter)

	point, err := requireAttachmentPoint(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	maxBody := s.engine.Policy().MaxUploadBytes + uploadBodySlack
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(s.multipartMem); err != nil {
		s.writeServiceError(w, r, classifyMultipartError(err))
		return
	}

	file, header, err := r.FormFile("content")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired))
		return
	}
	defer file.Close()

	meta, err := parseMetaFormValue(r.FormValue("meta"))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	buffered := bufio.NewReader(file)
	contentType := strings.TrimSpace(r.FormValue("content_type"))
	if contentType == "" {
		contentType = strings.TrimSpace(header.Header.Get("Content-Type"))
	}
	if contentType == "" {
		peek, _ := buffered.Peek(512)
		contentType = http.DetectContentType(peek)
	}

	desc, err := s.files.Upload(r.Context(), point, UploadInput{
		FileID:      strings.TrimSpace(r.FormValue("file_id")),
		ContentType: contentType,
		FileName:    firstNonEmpty(strings.TrimSpace(r.FormValue("file_name")), header.Filename),
		Meta:        meta,
	}, buffered, header.Size)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, api.FileResponseFromDescriptor(desc))
}

func (s *Server) handleUploadFileBase64(w http.ResponseWriter, r *http.Request) {
	if !s.acquireLimiter(s.uploadLimiter, w, r, "upload") {
		return
	}
	defer s.releaseLimiter(s.uploadLimiter)

	point, err := requireAttachmentPoint(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	var req api.FileUploadBase64Request
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	desc, err := s.files.UploadBase64(r.Context(), point, UploadInput{
		FileID:      req.FileID,
		ContentType: req.ContentType,
		FileName:    req.FileName,
		Meta:        req.Meta,
	}, req.Content)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, api.FileResponseFromDescriptor(desc))
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	point, fileID, ok := s.filePathParams(w, r)
	if !ok {
		return
	}

	desc, err := s.files.Resolve(r.Context(), point, fileID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FileResponseFromDescriptor(*desc))
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	point, fileID, ok := s.filePathParams(w, r)
	if !ok {
		return
	}

	content, err := s.files.Fetch(r.Context(), point, fileID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	desc := content.Descriptor
	w.Header().Set("Content-Type", firstNonEmpty(desc.ContentType, "application/octet-stream"))
	w.Header().Set("Content-Length", strconv.FormatInt(desc.SizeBytes, 10))
	if desc.FileName != "" {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", desc.FileName))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, content.Reader); err != nil {
		// Headers are out; all that is left is logging the broken stream.
		s.log().Warn("file content stream aborted",
			"method", r.Method, "path", r.URL.Path, "file_id", fileID, "error", err)
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	point, fileID, ok := s.filePathParams(w, r)
	if !ok {
		return
	}

	removed, err := s.files.Remove(r.Context(), point, fileID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !removed {
		s.writeServiceError(w, r, notFoundCode(fmt.Errorf("file not found"), ErrCodeFileNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{ID: fileID, Removed: true})
}

func (s *Server) handleListStageFiles(w http.ResponseWriter, r *http.Request) {
	point, err := requireAttachmentPoint(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	files, err := s.files.ListByStage(r.Context(), point)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fileResponses(files))
}

func (s *Server) handleListPatientFiles(w http.ResponseWriter, r *http.Request) {
	patientID, err := requirePatientID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	files, err := s.files.ListByPatient(r.Context(), patientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fileResponses(files))
}

func (s *Server) filePathParams(w http.ResponseWriter, r *http.Request) (models.AttachmentPoint, string, bool) {
	point, err := requireAttachmentPoint(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return point, "", false
	}
	fileID, err := requireFileID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return point, "", false
	}
	return point, fileID, true
}

func fileResponses(files []models.FileDescriptor) []api.FileResponse {
	out := make([]api.FileResponse, 0, len(files))
	for _, desc := range files {
		out = append(out, api.FileResponseFromDescriptor(desc))
	}
	return out
}

func parseMetaFormValue(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, badRequestCode(fmt.Errorf("meta must be a JSON object"), ErrCodeInvalidArgument)
	}
	return meta, nil
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return payloadTooLarge(fmt.Errorf("request body too large"))
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}
