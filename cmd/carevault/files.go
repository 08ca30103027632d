package main

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"carevault/internal/api"
	"carevault/internal/config"
	"carevault/internal/models"
)

func newFileCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Upload, download and manage clinical record files",
	}

	cmd.AddCommand(
		newFileUploadCmd(cfg, jsonOutput),
		newFileShowCmd(cfg, jsonOutput),
		newFileDownloadCmd(cfg),
		newFileDeleteCmd(cfg, jsonOutput),
		newFileListCmd(cfg, jsonOutput),
	)
	return cmd
}

func attachmentPointFromArgs(args []string) models.AttachmentPoint {
	return models.AttachmentPoint{
		PatientID: args[0],
		EpisodeID: args[1],
		StageID:   args[2],
	}
}

func newFileUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		contentType string
		asBase64    bool
	)

	cmd := &cobra.Command{
		Use:   "upload <patient-id> <episode-id> <stage-id> <path>",
		Short: "Upload a file to a stage",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			point := attachmentPointFromArgs(args)
			path := args[3]

			if contentType == "" {
				contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
			}
			if contentType == "" {
				return fmt.Errorf("cannot infer content type for %s; pass --content-type", path)
			}

			return withClient(cfg, func(client *api.Client) error {
				var resp api.FileResponse
				if asBase64 {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					resp, err = client.UploadFileBase64(cmd.Context(), point, api.FileUploadBase64Request{
						ContentType: contentType,
						FileName:    filepath.Base(path),
						Content:     base64.StdEncoding.EncodeToString(data),
					})
					if err != nil {
						return err
					}
				} else {
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()
					resp, err = client.UploadFile(cmd.Context(), point, filepath.Base(path), contentType, f)
					if err != nil {
						return err
					}
				}

				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s (%s, %d bytes)\n", resp.FileID, resp.StorageMode, resp.SizeBytes)
			})
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (inferred from extension when omitted)")
	cmd.Flags().BoolVar(&asBase64, "base64", false, "send content base64-encoded as JSON instead of multipart")
	return cmd
}

func newFileShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <patient-id> <episode-id> <stage-id> <file-id>",
		Short: "Show a file descriptor",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetFile(cmd.Context(), attachmentPointFromArgs(args), args[3])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeFileDetail(resp)
			})
		},
	}
}

func newFileDownloadCmd(cfg *config.Config) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "download <patient-id> <episode-id> <stage-id> <file-id>",
		Short: "Download file content",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				out := os.Stdout
				if outPath != "" {
					f, err := os.Create(outPath)
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}
				_, err := client.DownloadFile(cmd.Context(), attachmentPointFromArgs(args), args[3], out)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write content to a file instead of stdout")
	return cmd
}

func newFileDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <patient-id> <episode-id> <stage-id> <file-id>",
		Short: "Detach a file and delete its stored content",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeleteFile(cmd.Context(), attachmentPointFromArgs(args), args[3])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("deleted %s\n", resp.ID)
			})
		},
	}
}

func newFileListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list <patient-id> [<episode-id> <stage-id>]",
		Short: "List files for a patient or a single stage",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				return fmt.Errorf("pass either just a patient id or patient, episode and stage ids")
			}
			return withClient(cfg, func(client *api.Client) error {
				var (
					files []api.FileResponse
					err   error
				)
				if len(args) == 3 {
					files, err = client.ListStageFiles(cmd.Context(), attachmentPointFromArgs(args))
				} else {
					files, err = client.ListPatientFiles(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(files)
				}
				return writeFileList(files)
			})
		},
	}
}
