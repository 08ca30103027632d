package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"carevault/internal/models"
)

func TestClientGetFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantPath := "/v1/patients/pt-0001/episodes/ep-0001/stages/st-0001/files/fl-0001"
		if r.URL.Path != wantPath {
			t.Errorf("path = %s, want %s", r.URL.Path, wantPath)
		}
		_ = json.NewEncoder(w).Encode(FileResponse{FileID: "fl-0001", StorageMode: "inline"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	point := models.AttachmentPoint{PatientID: "pt-0001", EpisodeID: "ep-0001", StageID: "st-0001"}
	resp, err := c.GetFile(context.Background(), point, "fl-0001")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if resp.FileID != "fl-0001" || resp.StorageMode != "inline" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClientUploadFileMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("content")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		payload, _ := io.ReadAll(file)
		if string(payload) != "file bytes" {
			t.Errorf("payload = %q", payload)
		}
		if header.Filename != "scan.pdf" {
			t.Errorf("filename = %q", header.Filename)
		}
		if got := r.FormValue("content_type"); got != "application/pdf" {
			t.Errorf("content_type = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(FileResponse{FileID: "fl-0001", StorageMode: "chunked"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	point := models.AttachmentPoint{PatientID: "pt-0001", EpisodeID: "ep-0001", StageID: "st-0001"}
	resp, err := c.UploadFile(context.Background(), point, "scan.pdf", "application/pdf",
		bytes.NewReader([]byte("file bytes")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.FileID != "fl-0001" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClientDecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ErrorResponse{
			Error: "file not found", Code: "not_found", ErrorCode: 2004,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	point := models.AttachmentPoint{PatientID: "pt-0001", EpisodeID: "ep-0001", StageID: "st-0001"}
	_, err := c.GetFile(context.Background(), point, "fl-none")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "not_found" || apiErr.ErrorCode != 2004 {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestClientDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("pdf bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	point := models.AttachmentPoint{PatientID: "pt-0001", EpisodeID: "ep-0001", StageID: "st-0001"}
	var buf bytes.Buffer
	contentType, err := c.DownloadFile(context.Background(), point, "fl-0001", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if contentType != "application/pdf" {
		t.Errorf("content type = %q", contentType)
	}
	if buf.String() != "pdf bytes" {
		t.Errorf("payload = %q", buf.String())
	}
}
