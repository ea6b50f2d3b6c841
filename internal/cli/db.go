package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"perfhrm/internal/domain/evaluation"
	"perfhrm/internal/platform/config"
	"perfhrm/internal/platform/db"
	"perfhrm/migrations"
)

func newMigrateCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			pool, err := db.Connect(ctx, cfg)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer pool.Close()

			if dir == "" {
				dir = cfg.MigrationsDir
			}
			if dir != "" {
				err = db.Migrate(ctx, pool, dir)
			} else {
				err = db.MigrateFS(ctx, pool, migrations.FS)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Read migrations from this directory instead of the embedded set")
	return cmd
}

func newSeedCommand() *cobra.Command {
	var fixturesFile string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Install roles and permissions, and import assignment fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			pool, err := db.Connect(ctx, cfg)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer pool.Close()

			if err := db.Seed(ctx, pool); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			if fixturesFile == "" {
				fixturesFile = cfg.FixturesFile
			}
			if fixturesFile == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "roles seeded")
				return nil
			}
			fixtures, err := evaluation.LoadFixturesFile(fixturesFile)
			if err != nil {
				return err
			}
			if err := evaluation.NewDirectory(pool).Import(ctx, fixtures); err != nil {
				return fmt.Errorf("import fixtures: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "roles seeded, %d period(s) imported\n", len(fixtures.Periods))
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturesFile, "fixtures", "", "YAML file with WBS assignments and evaluation lines")
	return cmd
}
