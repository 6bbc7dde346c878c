package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/banksync"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/config"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/service"
)

func newSyncCommand(dir *string) *cobra.Command {
	var (
		account  string
		feedFile string
		execute  bool
		skipRows []int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Preview or execute a bank sync for one account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, *dir, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			acct, err := e.accounts.ByName(ctx, account)
			if err != nil {
				return err
			}

			source, err := feedSource(e, feedFile)
			if err != nil {
				return err
			}
			svc := service.NewSyncService(e.household, source)

			if !execute {
				report, err := svc.Preview(ctx, acct.ID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(os.Stdout, report)
				}
				fmt.Printf("== %s\n", acct.Name)
				return printReport(os.Stdout, report)
			}

			res, err := svc.Execute(ctx, acct.ID, skipRows)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(os.Stdout, res)
			}
			fmt.Printf("== %s\n", acct.Name)
			printResult(os.Stdout, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account name (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&feedFile, "feed-file", "", "read the feed from a saved JSON file instead of the aggregator")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply the sync instead of previewing it")
	cmd.Flags().IntSliceVar(&skipRows, "skip-rows", nil, "row numbers to leave out (execute only)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// feedSource picks the saved feed file when given, else the aggregator.
func feedSource(e *env, feedFile string) (banksync.Source, error) {
	if feedFile != "" {
		return banksync.FileSource{Path: feedFile}, nil
	}
	cfg := e.cfg.Sync
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sync.base_url is not set in %s (or pass --feed-file)", config.FileName)
	}
	return banksync.NewClient(banksync.ClientOptions{
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.Timeout,
		RetryMax: cfg.RetryMax,
		Logger:   e.log,
	})
}
