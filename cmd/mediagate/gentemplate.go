package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/opencast/mediagate/internal/config"
)

func newGenConfigTemplateCommand() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "gen-config-template",
		Short: "Emit an annotated configuration template",
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := config.Template()
			if err != nil {
				return err
			}
			if out == "" {
				_, err := cmd.OutOrStdout().Write(tmpl)
				return err
			}
			return os.WriteFile(out, tmpl, 0o644)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the template to this file instead of stdout")
	return cmd
}
