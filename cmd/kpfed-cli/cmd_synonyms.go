package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/persistorai/kpfed/internal/canon"
	"github.com/persistorai/kpfed/internal/db"
	"github.com/persistorai/kpfed/internal/db/migrations"
	"github.com/persistorai/kpfed/internal/dbpool"
)

func newSynonymsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synonyms",
		Short: "Manage the curie synonym table",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a YAML synonyms file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := canon.LoadGroups(args[0])
			if err != nil {
				return err
			}
			ids := 0
			for i := range groups {
				ids += len(groups[i].Members())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d groups, %d curies\n", len(groups), ids)
			return nil
		},
	})

	var databaseURL string

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a YAML synonyms file into postgres",
		Long: `Apply pending migrations, then upsert every group of the file into the
curie_synonyms table. Running servers pick up the change through
LISTEN/NOTIFY.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}

			groups, err := canon.LoadGroups(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			log := logrus.New()
			log.SetOutput(cmd.ErrOrStderr())
			log.SetLevel(logrus.WarnLevel)

			pool, err := dbpool.NewPool(ctx, databaseURL,
				dbpool.WithMaxConns(2), dbpool.WithApplicationName("kpfed-cli"), dbpool.WithStatementTimeout(time.Minute))
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
				return err
			}

			n, err := canon.NewStore(pool, log).Import(ctx, groups)
			if err != nil {
				return fmt.Errorf("importing synonyms: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d groups (%d rows)\n", len(groups), n)
			return nil
		},
	}
	importCmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (env: DATABASE_URL)")
	cmd.AddCommand(importCmd)

	return cmd
}
