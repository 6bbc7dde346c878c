package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

func newAccountsCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage household accounts",
	}
	cmd.AddCommand(
		newAccountsListCommand(dir),
		newAccountsAddCommand(dir),
		newAccountsImportCommand(dir),
	)
	return cmd
}

func newAccountsListCommand(dir *string) *cobra.Command {
	var asCSV bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), *dir, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			if asCSV {
				return e.accounts.Export(cmd.Context(), os.Stdout)
			}

			accts, err := e.accounts.All(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tSOURCE\tBALANCE\tID")
			for _, a := range accts {
				source := "manual"
				if !a.IsManual {
					source = "synced:" + a.ExternalID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Name, a.Type, source, a.Balance.StringFixed(2), a.ID)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asCSV, "csv", false, "write accounts.csv format instead of a table")
	return cmd
}

func newAccountsAddCommand(dir *string) *cobra.Command {
	var (
		name       string
		typ        string
		externalID string
		balance    string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account (synced when --external-id is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bal := decimal.Zero
			if balance != "" {
				var err error
				bal, err = decimal.NewFromString(balance)
				if err != nil {
					return fmt.Errorf("parsing --balance %q: %w", balance, err)
				}
			}

			e, err := openEnv(cmd.Context(), *dir, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			acct, err := e.accounts.Add(cmd.Context(), model.Account{
				Name:       name,
				Type:       model.AccountType(strings.ToLower(typ)),
				ExternalID: externalID,
				IsManual:   externalID == "",
				Balance:    bal,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Added account %s (%s)\n", acct.Name, acct.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "account name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&typ, "type", string(model.AccountTypeChecking), "checking, savings, credit, cash, investment, or loan")
	cmd.Flags().StringVar(&externalID, "external-id", "", "bank aggregator account id")
	cmd.Flags().StringVar(&balance, "balance", "", "opening balance")
	return cmd
}

func newAccountsImportCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <accounts.csv>",
		Short: "Add accounts from an accounts CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), *dir, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.accounts.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Added %d accounts\n", n)
			return nil
		},
	}
}

func newCategoriesCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage budget categories",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), *dir, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			cats, err := e.accounts.Categories(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tID")
			for _, c := range cats {
				fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.ID)
			}
			return tw.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), *dir, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			created, err := e.accounts.AddCategory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !created {
				fmt.Printf("Category %q already exists\n", args[0])
				return nil
			}
			fmt.Printf("Added category %q\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add)
	return cmd
}
