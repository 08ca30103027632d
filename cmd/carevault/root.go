package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"carevault/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "carevault",
		Short: "Carevault stores clinical record files in inline or chunked form",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newInfoCmd(cfg, &jsonOutput),
		newPatientCmd(cfg, &jsonOutput),
		newEpisodeCmd(cfg, &jsonOutput),
		newStageCmd(cfg, &jsonOutput),
		newFileCmd(cfg, &jsonOutput),
		newImportCmd(cfg, &jsonOutput),
		newAdminCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
	)

	return cmd
}
