package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var dir string

	rootCmd := &cobra.Command{
		Use:     "otter",
		Short:   "Household finance: import, sync, and reconcile transactions",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dir, "dir", ".", "household data directory")

	rootCmd.AddCommand(
		newInitCommand(),
		newAccountsCommand(&dir),
		newCategoriesCommand(&dir),
		newImportCommand(&dir),
		newSyncCommand(&dir),
		newExportCommand(&dir),
		newRunsCommand(&dir),
		newServeCommand(&dir),
	)

	return rootCmd
}
