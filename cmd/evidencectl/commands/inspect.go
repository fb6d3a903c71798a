package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/evidence-custody/internal/app"
	appinspections "github.com/bryanwahyu/evidence-custody/internal/application/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

func NewInspectCommand() *cobra.Command {
	var (
		text string
		name string
	)
	cmd := &cobra.Command{
		Use:   "inspect [files...]",
		Short: "Inspect files (or --text) and record the runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && text == "" {
				return fmt.Errorf("give files or --text")
			}
			return withSession(cmd, func(ctx context.Context, a *app.App, sess tenancy.Session) error {
				var outcomes []appinspections.Outcome
				if text != "" {
					out, err := a.Inspections.InspectText(ctx, sess, appinspections.InspectTextCommand{Name: name, Text: text})
					if err != nil {
						return err
					}
					outcomes = append(outcomes, out)
				}
				for _, path := range args {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					out, err := a.Inspections.InspectFile(ctx, sess, appinspections.InspectFileCommand{
						Filename:   filepath.Base(path),
						Data:       data,
						UploadedBy: sess.Actor.Username,
					})
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					outcomes = append(outcomes, out)
				}
				return printJSON(cmd.OutOrStdout(), outcomes)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "inspect this text instead of files")
	cmd.Flags().StringVar(&name, "name", "", "name recorded for --text")
	return cmd
}
