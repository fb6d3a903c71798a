package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/evidence-custody/internal/app"
	appdataflows "github.com/bryanwahyu/evidence-custody/internal/application/dataflows"
	"github.com/bryanwahyu/evidence-custody/internal/domain/dataflows"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

func NewDataFlowsCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dataflows",
		Short: "Save and load data flow maps",
	}

	var name string
	save := &cobra.Command{
		Use:   "save <flows.json|->",
		Short: "Save a map from a JSON list of flows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}
			flows, err := readFlows(src)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return withSession(cmd, func(ctx context.Context, a *app.App, sess tenancy.Session) error {
				m, err := a.DataFlows.Save(ctx, sess, appdataflows.SaveCommand{Name: name, Flows: flows})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}
	save.Flags().StringVar(&name, "name", "", "map name")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved maps, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, sess tenancy.Session) error {
				maps, err := a.DataFlows.List(ctx, sess, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), maps)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", appdataflows.DefaultListLimit, "maximum maps")

	var mermaid bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one map as JSON or a Mermaid flowchart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid map id %q", args[0])
			}
			return withSession(cmd, func(ctx context.Context, a *app.App, sess tenancy.Session) error {
				m, err := a.DataFlows.Load(ctx, sess, id)
				if err != nil {
					return err
				}
				if mermaid {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), m.Mermaid())
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}
	show.Flags().BoolVar(&mermaid, "mermaid", false, "print a Mermaid flowchart")

	root.AddCommand(save, list, show)
	return root
}

// readFlows accepts a bare JSON array of flows or an object with a
// "flows" key, as written by the API.
func readFlows(r io.Reader) ([]dataflows.Flow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	var flows []dataflows.Flow
	if len(data) > 0 && data[0] == '{' {
		var doc struct {
			Flows []dataflows.Flow `json:"flows"`
		}
		err = json.Unmarshal(data, &doc)
		flows = doc.Flows
	} else {
		err = json.Unmarshal(data, &flows)
	}
	if err != nil {
		return nil, err
	}
	if len(flows) == 0 {
		return nil, fmt.Errorf("no flows")
	}
	return flows, nil
}
