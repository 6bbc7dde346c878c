package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/export"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/storage"
)

func newExportCommand(dir *string) *cobra.Command {
	var (
		format  string
		account string
		from    string
		to      string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored transactions as CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, *dir, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			var filter storage.TransactionFilter
			if account != "" {
				acct, err := e.accounts.ByName(ctx, account)
				if err != nil {
					return err
				}
				filter.AccountID = acct.ID
			}
			if filter.From, err = optionalDate("--from", from); err != nil {
				return err
			}
			if filter.To, err = optionalDate("--to", to); err != nil {
				return err
			}

			txns, err := e.store.ListTransactions(ctx, filter)
			if err != nil {
				return err
			}
			accts, err := e.accounts.All(ctx)
			if err != nil {
				return err
			}
			cats, err := e.accounts.Categories(ctx)
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if output != "" {
				if !filepath.IsAbs(output) {
					output = filepath.Join(e.root, "exports", output)
				}
				if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
					return fmt.Errorf("creating export dir: %w", err)
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := export.Write(w, format, txns, export.NewNames(accts, cats)); err != nil {
				return err
			}
			if output != "" {
				fmt.Printf("Exported %d transactions to %s\n", len(txns), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "csv or json")
	cmd.Flags().StringVar(&account, "account", "", "only this account (name)")
	cmd.Flags().StringVar(&from, "from", "", "first date, inclusive")
	cmd.Flags().StringVar(&to, "to", "", "last date, inclusive")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (relative paths go under exports/)")
	return cmd
}

func optionalDate(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := reconcile.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q: %w", flag, s, err)
	}
	return d, nil
}
