package main

import (
	"log/slog"
	"os"

	"github.com/bryanwahyu/evidence-custody/cmd/evidencectl/commands"
)

func Execute() {
	err := commands.GetRootCmd().Execute()
	if err != nil {
		slog.Error("Error executing command", "err", err)
		os.Exit(1)
	}
}

func init() {
	root := commands.GetRootCmd()
	root.AddCommand(commands.NewMigrateCommand())
	root.AddCommand(commands.NewBootstrapCommand())
	root.AddCommand(commands.NewInspectCommand())
	root.AddCommand(commands.NewVerifyCommand())
	root.AddCommand(commands.NewExportCommand())
	root.AddCommand(commands.NewSearchCommand())
	root.AddCommand(commands.NewAuditCommand())
	root.AddCommand(commands.NewTenantsCommand())
	root.AddCommand(commands.NewUsersCommand())
	root.AddCommand(commands.NewDataFlowsCommand())
}

func main() {
	Execute()
}
