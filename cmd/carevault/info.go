package main

import (
	"github.com/spf13/cobra"

	"carevault/internal/api"
	"carevault/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database and chunk store info",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}
				resp.DBPath = cfg.DBPath

				if *jsonOutput {
					return writeJSON(resp)
				}

				_ = writePlain("db_path: %s\n", resp.DBPath)
				_ = writePlain("chunk_store: %s\n", resp.ChunkStore)
				_ = writePlain("schema_version: %d\n", resp.SchemaVersion)
				_ = writePlain("patients: %d\n", resp.Patients)
				_ = writePlain("episodes: %d\n", resp.Episodes)
				_ = writePlain("stages: %d\n", resp.Stages)
				_ = writePlain("files: %d\n", resp.Files)
				return nil
			})
		},
	}
}
