package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"carevault/internal/api"
	"carevault/internal/config"
	"carevault/internal/models"
)

func newPatientCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Manage patient records",
	}

	cmd.AddCommand(
		newPatientCreateCmd(cfg, jsonOutput),
		newPatientShowCmd(cfg, jsonOutput),
		newPatientListCmd(cfg, jsonOutput),
		newPatientUpdateCmd(cfg, jsonOutput),
		newPatientDeleteCmd(cfg, jsonOutput),
	)
	return cmd
}

func newPatientCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		givenName  string
		familyName string
		birthDate  string
		sex        string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a patient record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				patient, err := client.CreatePatient(cmd.Context(), api.PatientCreateRequest{
					GivenName:  givenName,
					FamilyName: familyName,
					BirthDate:  birthDate,
					Sex:        sex,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(patient)
				}
				return writePlain("%s\n", patient.ID)
			})
		},
	}

	cmd.Flags().StringVar(&givenName, "given-name", "", "given name (required)")
	cmd.Flags().StringVar(&familyName, "family-name", "", "family name (required)")
	cmd.Flags().StringVar(&birthDate, "birth-date", "", "birth date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&sex, "sex", "", "sex (female, male, other, unknown)")
	_ = cmd.MarkFlagRequired("given-name")
	_ = cmd.MarkFlagRequired("family-name")
	return cmd
}

func newPatientShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <patient-id>",
		Short: "Show a patient record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				patient, err := client.GetPatient(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(patient)
				}
				return writePatientDetail(patient)
			})
		},
	}
}

func newPatientListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				patients, err := client.ListPatients(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(patients)
				}
				for _, p := range patients {
					if err := writePlain("%s  %s, %s\n", p.ID, p.FamilyName, p.GivenName); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newPatientUpdateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		givenName  string
		familyName string
		birthDate  string
		sex        string
	)

	cmd := &cobra.Command{
		Use:   "update <patient-id>",
		Short: "Update a patient record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.PatientUpdateRequest{}
			if cmd.Flags().Changed("given-name") {
				req.GivenName = &givenName
			}
			if cmd.Flags().Changed("family-name") {
				req.FamilyName = &familyName
			}
			if cmd.Flags().Changed("birth-date") {
				req.BirthDate = &birthDate
			}
			if cmd.Flags().Changed("sex") {
				req.Sex = &sex
			}

			return withClient(cfg, func(client *api.Client) error {
				patient, err := client.UpdatePatient(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(patient)
				}
				return writePatientDetail(patient)
			})
		},
	}

	cmd.Flags().StringVar(&givenName, "given-name", "", "new given name")
	cmd.Flags().StringVar(&familyName, "family-name", "", "new family name")
	cmd.Flags().StringVar(&birthDate, "birth-date", "", "new birth date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&sex, "sex", "", "new sex value")
	return cmd
}

func newPatientDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <patient-id>",
		Short: "Delete a patient and everything attached to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("deleting a patient removes all episodes, stages and files; re-run with --force")
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeletePatient(cmd.Context(), args[0])
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

	cmd.Flags().BoolVar(&force, "force", false, "confirm the delete")
	return cmd
}

func newEpisodeCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "episode",
		Short: "Manage treatment episodes",
	}

	cmd.AddCommand(
		newEpisodeCreateCmd(cfg, jsonOutput),
		newEpisodeListCmd(cfg, jsonOutput),
	)
	return cmd
}

func newEpisodeCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		title     string
		diagnosis string
		startedAt string
	)

	cmd := &cobra.Command{
		Use:   "create <patient-id>",
		Short: "Create an episode under a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.EpisodeCreateRequest{Title: title, Diagnosis: diagnosis}
			if startedAt != "" {
				parsed, err := time.Parse(time.RFC3339, startedAt)
				if err != nil {
					return fmt.Errorf("invalid --started-at (want RFC3339): %w", err)
				}
				req.StartedAt = &parsed
			}

			return withClient(cfg, func(client *api.Client) error {
				episode, err := client.CreateEpisode(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(episode)
				}
				return writePlain("%s\n", episode.ID)
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "episode title (required)")
	cmd.Flags().StringVar(&diagnosis, "diagnosis", "", "diagnosis code or text")
	cmd.Flags().StringVar(&startedAt, "started-at", "", "episode start time (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newEpisodeListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list <patient-id>",
		Short: "List a patient's episodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				episodes, err := client.ListEpisodes(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(episodes)
				}
				for _, e := range episodes {
					if err := writeEpisodeLine(e); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func writeEpisodeLine(e models.Episode) error {
	diagnosis := e.Diagnosis
	if diagnosis == "" {
		diagnosis = "-"
	}
	return writePlain("%s  %s  %s  %s\n", e.ID, formatTime(e.StartedAt), diagnosis, e.Title)
}

func newStageCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Manage episode stages",
	}

	cmd.AddCommand(
		newStageCreateCmd(cfg, jsonOutput),
		newStageListCmd(cfg, jsonOutput),
	)
	return cmd
}

func newStageCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		title string
		notes string
	)

	cmd := &cobra.Command{
		Use:   "create <patient-id> <episode-id>",
		Short: "Create a stage under an episode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				stage, err := client.CreateStage(cmd.Context(), args[0], args[1],
					api.StageCreateRequest{Title: title, Notes: notes})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(stage)
				}
				return writePlain("%s\n", stage.ID)
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "stage title (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "stage notes")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newStageListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list <patient-id> <episode-id>",
		Short: "List an episode's stages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				stages, err := client.ListStages(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(stages)
				}
				for _, st := range stages {
					if err := writePlain("%s  %s\n", st.ID, st.Title); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
