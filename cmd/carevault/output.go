package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"carevault/internal/api"
	"carevault/internal/models"
)

func writeJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func writePatientDetail(p models.Patient) error {
	lines := []string{
		fmt.Sprintf("id: %s", p.ID),
		fmt.Sprintf("given_name: %s", p.GivenName),
		fmt.Sprintf("family_name: %s", p.FamilyName),
	}
	if p.BirthDate != "" {
		lines = append(lines, fmt.Sprintf("birth_date: %s", p.BirthDate))
	}
	if p.Sex != "" {
		lines = append(lines, fmt.Sprintf("sex: %s", p.Sex))
	}
	lines = append(lines,
		fmt.Sprintf("created_at: %s", formatTime(p.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(p.UpdatedAt)),
	)
	for _, line := range lines {
		if err := writePlain("%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func writeFileLine(f api.FileResponse) error {
	name := f.FileName
	if name == "" {
		name = "-"
	}
	return writePlain("%s  %-8s  %10d  %s  %s\n",
		f.FileID, f.StorageMode, f.SizeBytes, f.ContentType, name)
}

func writeFileList(files []api.FileResponse) error {
	for _, f := range files {
		if err := writeFileLine(f); err != nil {
			return err
		}
	}
	return nil
}

func writeFileDetail(f api.FileResponse) error {
	lines := []string{
		fmt.Sprintf("file_id: %s", f.FileID),
		fmt.Sprintf("storage_mode: %s", f.StorageMode),
		fmt.Sprintf("content_type: %s", f.ContentType),
		fmt.Sprintf("size_bytes: %d", f.SizeBytes),
		fmt.Sprintf("upload_date: %s", formatTime(f.UploadDate)),
	}
	if f.FileName != "" {
		lines = append(lines, fmt.Sprintf("file_name: %s", f.FileName))
	}
	if f.ChunkedRef != nil {
		lines = append(lines, fmt.Sprintf("store_name: %s", f.ChunkedRef.StoreName))
		lines = append(lines, fmt.Sprintf("object_id: %s", f.ChunkedRef.ObjectID))
	}
	for _, line := range lines {
		if err := writePlain("%s\n", line); err != nil {
			return err
		}
	}
	return nil
}
