package commands

import (
	"github.com/spf13/cobra"
)

func NewBootstrapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first superadmin and the default tenant",
		Long: `bootstrap creates the superadmin from evidence.bootstrapAdminUsername and
EVIDENCE_BOOTSTRAP_PASSWORD when no user exists yet, and the default tenant
when it is missing. Running it again changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
