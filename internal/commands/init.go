package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/accounts"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/config"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/gitops"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/rules"
)

func newInitCommand() *cobra.Command {
	var (
		name   string
		useGit bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new household data directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.Context(), absDir, name, useGit)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "household name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().BoolVar(&useGit, "git", false, "track config, rules and processed imports in a git repository")

	return cmd
}

func runInit(ctx context.Context, dir, name string, useGit bool) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	dirs := []string{
		"rules",
		"logs",
		"exports",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	cfg := config.Default(name)
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	if err := rules.Save(filepath.Join(dir, cfg.Rules.Path), nil); err != nil {
		return fmt.Errorf("writing rules: %w", err)
	}

	gitignore := cfg.Database.DSN + "*\nlogs/\nexports/\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "import", ".gitkeep"), []byte{}, 0o644); err != nil {
		return fmt.Errorf("writing .gitkeep: %w", err)
	}

	e, err := openEnv(ctx, dir, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.accounts.Seed(ctx, accounts.DefaultAccounts(), accounts.DefaultCategories())
	if err != nil {
		return fmt.Errorf("seeding accounts: %w", err)
	}

	fmt.Printf("Initialized household %q at %s (%d accounts, %d categories)\n", name, dir, res.Accounts, res.Categories)

	if !useGit {
		return nil
	}
	if err := gitops.Init(ctx, dir); err != nil {
		return err
	}
	hash, err := gitops.Snapshot(ctx, dir, "init: "+name)
	if err != nil {
		return err
	}
	fmt.Printf("Committed %s\n", hash)
	return nil
}
