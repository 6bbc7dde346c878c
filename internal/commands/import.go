package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/gitops"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/importer"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/service"
)

func newImportCommand(dir *string) *cobra.Command {
	var (
		format   string
		account  string
		execute  bool
		skipRows []int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Preview or execute a CSV import (without a file, every CSV in import/)",
		Long: "Reconciles bank CSV rows against stored transactions. Without --execute the\n" +
			"command only prints what would happen. With --execute and no file argument,\n" +
			"each CSV in import/ is applied and moved to import/processed/.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, *dir, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			registry := importer.DefaultRegistry()
			svc := service.NewImportService(e.household)

			var files []importer.FileInfo
			inbox := len(args) == 0
			if inbox {
				files, err = importer.Scan(e.root)
				if err != nil {
					return err
				}
				if len(files) == 0 {
					fmt.Println("No CSV files in import/")
					return nil
				}
				if len(skipRows) > 0 && len(files) > 1 {
					return fmt.Errorf("--skip-rows needs a single file")
				}
			} else {
				files = []importer.FileInfo{{Name: filepath.Base(args[0]), Path: args[0]}}
			}

			for _, f := range files {
				records, err := registry.ParseFile(format, f.Path)
				if err != nil {
					return err
				}
				req := service.ImportRequest{
					Records:        records,
					DefaultAccount: account,
					Input:          f.Name,
					SkipRows:       skipRows,
				}

				if !execute {
					report, err := svc.Preview(ctx, req)
					if err != nil {
						return err
					}
					if asJSON {
						if err := writeJSON(os.Stdout, report); err != nil {
							return err
						}
						continue
					}
					fmt.Printf("== %s\n", f.Name)
					if err := printReport(os.Stdout, report); err != nil {
						return err
					}
					continue
				}

				res, err := svc.Execute(ctx, req)
				if err != nil {
					return fmt.Errorf("importing %s: %w", f.Name, err)
				}
				if asJSON {
					if err := writeJSON(os.Stdout, res); err != nil {
						return err
					}
				} else {
					fmt.Printf("== %s\n", f.Name)
					printResult(os.Stdout, res)
				}
				if inbox {
					if err := importer.MarkProcessed(e.root, f.Name); err != nil {
						return err
					}
					snapshot(ctx, e, fmt.Sprintf("import: %s (run %s)", f.Name, res.RunID))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "generic", "CSV format (chase, generic)")
	cmd.Flags().StringVar(&account, "account", "", "account name or id for rows that name none")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply the import instead of previewing it")
	cmd.Flags().IntSliceVar(&skipRows, "skip-rows", nil, "row numbers to leave out (execute only)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// snapshot commits the household directory when it is a git repository.
// The run is already committed to the database, so failures only warn.
func snapshot(ctx context.Context, e *env, message string) {
	if !gitops.IsRepo(e.root) || !gitops.Available() {
		return
	}
	hash, err := gitops.Snapshot(ctx, e.root, message)
	if err != nil {
		e.log.Warn().Err(err).Msg("git snapshot failed")
		return
	}
	if hash != "" {
		e.log.Info().Str("commit", hash).Msg("snapshot committed")
	}
}
