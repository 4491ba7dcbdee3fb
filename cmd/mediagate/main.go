package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mediagate",
		Short:         "Authorizing HTTP gateway in front of a media platform's static file tree",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (overrides search path and $MEDIAGATE_CONFIG_PATH)")

	root.AddCommand(newRunCommand(&configPath))
	root.AddCommand(newCheckCommand(&configPath))
	root.AddCommand(newGenConfigTemplateCommand())

	return root
}
