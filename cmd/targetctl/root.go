package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "targetctl",
		Short:         "Inspect ad-targeting decisions and analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// .env is optional
			_ = godotenv.Load()
		},
	}

	root.AddCommand(newDecideCommand())
	root.AddCommand(newAnonymizeCommand())
	root.AddCommand(newTokenCommand())
	return root
}
