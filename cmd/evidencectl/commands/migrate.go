package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/evidence-custody/internal/app"
	"github.com/bryanwahyu/evidence-custody/internal/infra/db/migrations"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, d, err := app.Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.Up(db, d, slog.Default()); err != nil {
				return err
			}
			version, dirty, err := migrations.Version(db, d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d (dirty=%t)\n", d, version, dirty)
			return nil
		},
	}
}
