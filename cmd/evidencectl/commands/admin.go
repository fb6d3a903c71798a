package commands

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/evidence-custody/internal/app"
	apptenancy "github.com/bryanwahyu/evidence-custody/internal/application/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

// withActor runs fn as the logged-in user without a tenant session.
func withActor(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, actor tenancy.Actor) error) error {
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
	return fn(ctx, a, actor)
}

func NewTenantsCommand() *cobra.Command {
	tenants := &cobra.Command{
		Use:   "tenants",
		Short: "Manage tenants",
	}
	tenants.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, a *app.App, actor tenancy.Actor) error {
				list, err := a.Tenancy.ListTenants(ctx, actor)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	})
	tenants.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a tenant unless the name exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, a *app.App, actor tenancy.Actor) error {
				t, created, err := a.Tenancy.CreateTenant(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"tenant": t, "created": created})
			})
		},
	})
	for _, active := range []bool{true, false} {
		use := "deactivate <tenant>"
		if active {
			use = "activate <tenant>"
		}
		tenants.AddCommand(&cobra.Command{
			Use:   use,
			Short: "Set a tenant's active flag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withActor(cmd, func(ctx context.Context, a *app.App, actor tenancy.Actor) error {
					t, err := a.Tenancy.ResolveTenant(ctx, args[0])
					if err != nil {
						return err
					}
					return a.Tenancy.SetTenantActive(ctx, actor, t.ID, active)
				})
			},
		})
	}
	return tenants
}

func NewUsersCommand() *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}
	users.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users visible to the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, a *app.App, actor tenancy.Actor) error {
				list, err := a.Tenancy.ListUsers(ctx, actor)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	})

	var (
		role       string
		newPass    string
		userTenant string
	)
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd, func(ctx context.Context, a *app.App, actor tenancy.Actor) error {
				c := apptenancy.CreateUserCommand{
					Username: args[0],
					Password: newPass,
					Role:     tenancy.Role(role),
				}
				if userTenant != "" {
					t, err := a.Tenancy.ResolveTenant(ctx, userTenant)
					if err != nil {
						return err
					}
					c.TenantID = &t.ID
				}
				u, err := a.Tenancy.CreateUser(ctx, actor, c)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), u)
			})
		},
	}
	create.Flags().StringVar(&role, "role", string(tenancy.RoleAnalyst), "superadmin, tenant_admin, analyst, auditor or viewer")
	create.Flags().StringVar(&newPass, "new-password", "", "password for the new user")
	create.Flags().StringVar(&userTenant, "in-tenant", "", "tenant id or name of the new user")
	users.AddCommand(create)
	return users
}
