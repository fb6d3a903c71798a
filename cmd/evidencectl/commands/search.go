package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/evidence-custody/internal/app"
	"github.com/bryanwahyu/evidence-custody/internal/domain/search"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

func NewSearchCommand() *cobra.Command {
	var (
		risk  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search indexed inspections by filename or excerpt",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := search.Query{Risk: strings.ToUpper(risk), Limit: limit}
			if len(args) == 1 {
				q.Text = args[0]
			}
			return withSession(cmd, func(ctx context.Context, a *app.App, sess tenancy.Session) error {
				list, err := a.Search.Query(ctx, sess, q)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	}
	cmd.Flags().StringVar(&risk, "risk", "", "LOW, MEDIUM or HIGH")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results")
	return cmd
}
