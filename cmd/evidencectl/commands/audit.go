package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/evidence-custody/internal/app"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

func NewAuditCommand() *cobra.Command {
	var (
		limit  int
		global bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit events of the tenant, or global events with --global",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if global {
				ctx := cmd.Context()
				a, err := openApp(ctx)
				if err != nil {
					return err
				}
				defer a.Close()
				actor, err := login(ctx, a)
				if err != nil {
					return err
				}
				list, err := a.AuditLog.ListGlobal(ctx, actor, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			}
			return withSession(cmd, func(ctx context.Context, a *app.App, sess tenancy.Session) error {
				list, err := a.AuditLog.List(ctx, sess, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum events")
	cmd.Flags().BoolVar(&global, "global", false, "tenant and user management events")
	return cmd
}
