package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aldoetobex/civic-grievance-backend/pkg/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Schema and data migrations",
	}
	cmd.AddCommand(newMigrateSchemaCmd(), newMigrateCategoriesCmd())
	return cmd
}

func newMigrateSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create or update every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd)
			db, err := openDB()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Info().Msg("schema up to date")
			return nil
		},
	}
}

func newMigrateCategoriesCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Rewrite legacy category values to the current set",
		Long: `Rewrites grievance and budget categories stored by older releases
(for example "infrastructure" or "electricity") to the current category set.
With --dry-run nothing is written and the matching row counts are printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd)
			db, err := openDB()
			if err != nil {
				return err
			}
			rewrites, err := database.MigrateLegacyCategories(db, dryRun)
			if err != nil {
				return err
			}
			if len(rewrites) == 0 {
				log.Info().Msg("no legacy categories found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COLUMN\tFROM\tTO\tROWS")
			var total int64
			for _, r := range rewrites {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.Column, r.From, r.To, r.Rows)
				total += r.Rows
			}
			if err := w.Flush(); err != nil {
				return err
			}
			log.Info().Bool("dry_run", dryRun).Int64("rows", total).Msg("legacy categories")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only count matching rows")
	return cmd
}
