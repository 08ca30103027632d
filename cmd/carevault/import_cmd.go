package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"carevault/internal/api"
	"carevault/internal/config"
	"carevault/internal/models"
)

// importDocument is the YAML shape accepted by `carevault import`.
type importDocument struct {
	Patients []importPatient `yaml:"patients"`
}

type importPatient struct {
	GivenName  string          `yaml:"given_name"`
	FamilyName string          `yaml:"family_name"`
	BirthDate  string          `yaml:"birth_date"`
	Sex        string          `yaml:"sex"`
	Episodes   []importEpisode `yaml:"episodes"`
}

type importEpisode struct {
	Title     string        `yaml:"title"`
	Diagnosis string        `yaml:"diagnosis"`
	StartedAt string        `yaml:"started_at"`
	Stages    []importStage `yaml:"stages"`
}

type importStage struct {
	Title string       `yaml:"title"`
	Notes string       `yaml:"notes"`
	Files []importFile `yaml:"files"`
}

type importFile struct {
	Path        string `yaml:"path"`
	ContentType string `yaml:"content_type"`
}

type importResult struct {
	Patients int `json:"patients"`
	Episodes int `json:"episodes"`
	Stages   int `json:"stages"`
	Files    int `json:"files"`
}

func newImportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Bulk-import patients, episodes, stages and files from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var doc importDocument
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if len(doc.Patients) == 0 {
				return fmt.Errorf("%s contains no patients", args[0])
			}

			baseDir := filepath.Dir(args[0])
			return withClient(cfg, func(client *api.Client) error {
				result, err := runImport(cmd.Context(), client, doc, baseDir)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(result)
				}
				return writePlain("imported %d patients, %d episodes, %d stages, %d files\n",
					result.Patients, result.Episodes, result.Stages, result.Files)
			})
		},
	}
}

func runImport(ctx context.Context, client *api.Client, doc importDocument, baseDir string) (importResult, error) {
	var result importResult
	for pi, p := range doc.Patients {
		patient, err := client.CreatePatient(ctx, api.PatientCreateRequest{
			GivenName:  p.GivenName,
			FamilyName: p.FamilyName,
			BirthDate:  p.BirthDate,
			Sex:        p.Sex,
		})
		if err != nil {
			return result, fmt.Errorf("patient %d: %w", pi, err)
		}
		result.Patients++

		for ei, e := range p.Episodes {
			req := api.EpisodeCreateRequest{Title: e.Title, Diagnosis: e.Diagnosis}
			if e.StartedAt != "" {
				startedAt, err := time.Parse(time.RFC3339, e.StartedAt)
				if err != nil {
					return result, fmt.Errorf("patient %d episode %d: invalid started_at: %w", pi, ei, err)
				}
				req.StartedAt = &startedAt
			}
			episode, err := client.CreateEpisode(ctx, patient.ID, req)
			if err != nil {
				return result, fmt.Errorf("patient %s episode %d: %w", patient.ID, ei, err)
			}
			result.Episodes++

			for si, st := range e.Stages {
				stage, err := client.CreateStage(ctx, patient.ID, episode.ID,
					api.StageCreateRequest{Title: st.Title, Notes: st.Notes})
				if err != nil {
					return result, fmt.Errorf("episode %s stage %d: %w", episode.ID, si, err)
				}
				result.Stages++

				point := models.AttachmentPoint{
					PatientID: patient.ID,
					EpisodeID: episode.ID,
					StageID:   stage.ID,
				}
				for _, f := range st.Files {
					if err := importOneFile(ctx, client, point, f, baseDir); err != nil {
						return result, fmt.Errorf("stage %s: %w", stage.ID, err)
					}
					result.Files++
				}
			}
		}
	}
	return result, nil
}

func importOneFile(ctx context.Context, client *api.Client, point models.AttachmentPoint, f importFile, baseDir string) error {
	path := f.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = client.UploadFile(ctx, point, filepath.Base(path), contentType, file)
	if err != nil {
		return fmt.Errorf("upload %s: %w", f.Path, err)
	}
	return nil
}
