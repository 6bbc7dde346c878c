package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRunsCommand(dir *string) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent import and sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), *dir, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			runs, err := e.household.Runs(limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(os.Stdout, runs)
			}
			if len(runs) == 0 {
				fmt.Println("No runs yet")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tRUN\tSOURCE\tINPUT\tSTATUS\tCREATED\tUPDATED\tUNCHANGED\tSKIPPED\tRULES")
			for _, r := range runs {
				input := r.Input
				if input == "" {
					input = r.AccountID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
					r.Timestamp.Local().Format("2006-01-02 15:04"), r.RunID, r.Source, input, r.Status,
					r.Created, r.Updated, r.Unchanged, r.Skipped, r.RulesApplied)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
