package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/evidence-custody/internal/app"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

func NewVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute hashes of every stored object referenced by the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, sess tenancy.Session) error {
				rep, err := a.Integrity.VerifyTenant(ctx, sess)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
				if !rep.OK() {
					return fmt.Errorf("%d of %d objects failed verification", len(rep.Problems), rep.Checked)
				}
				return nil
			})
		},
	}
}
