package main

import (
	"github.com/spf13/cobra"

	"carevault/internal/api"
	"carevault/internal/auth"
	"carevault/internal/config"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminSweepCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminTokenCmd(jsonOutput))
	return cmd
}

func newAdminSweepCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove orphaned chunk store objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force && !dryRun {
				dryRun = true
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Sweep(cmd.Context(), api.SweepRequest{DryRun: dryRun}, force)
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(resp)
				}

				if resp.DryRun {
					if err := writePlain("dry run: %d orphaned objects would be removed\n", resp.CandidateCount); err != nil {
						return err
					}
				} else {
					if err := writePlain("removed %d orphaned objects (%d failed)\n", resp.DeletedCount, resp.FailedCount); err != nil {
						return err
					}
				}
				for _, id := range resp.ObjectIDs {
					if err := writePlain("  %s\n", id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be removed without deleting")
	cmd.Flags().BoolVar(&force, "force", false, "actually delete objects (required for non-dry-run)")
	return cmd
}

func newAdminTokenCmd(jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Generate an admin token and its config hash",
		Long: "Generates a random admin token and prints the bcrypt hash to store " +
			"as admin_token_hash in the config. The plain token is shown once; " +
			"pass it to admin requests via CAREVAULT_ADMIN_TOKEN.",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateToken()
			if err != nil {
				return err
			}
			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}

			if *jsonOutput {
				return writeJSON(map[string]string{"token": token, "hash": hash})
			}
			if err := writePlain("token: %s\n", token); err != nil {
				return err
			}
			if err := writePlain("hash: %s\n", hash); err != nil {
				return err
			}
			return writePlain("store the hash with: carevault config set admin_token_hash %q\n", hash)
		},
	}
}
