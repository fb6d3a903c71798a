package commands

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/evidence-custody/internal/domain/dataflows"
	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
)

func TestExportSelection(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		ids      []int64
		want     inspections.Selection
		wantErr  string
	}{
		{
			name: "recent by default",
			want: inspections.Selection{Mode: inspections.SelectMostRecent, Limit: 25},
		},
		{
			name: "ids win over recent",
			ids:  []int64{3, 4},
			want: inspections.Selection{Mode: inspections.SelectIDs, IDs: []int64{3, 4}},
		},
		{
			name: "inclusive day range",
			from: "2026-01-01",
			to:   "2026-01-31",
			want: inspections.Selection{
				Mode: inspections.SelectDateRange,
				From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2026, 1, 31, 23, 59, 59, 999999999, time.UTC),
			},
		},
		{
			name: "single day",
			from: "2026-02-02",
			to:   "2026-02-02",
			want: inspections.Selection{
				Mode: inspections.SelectDateRange,
				From: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2026, 2, 2, 23, 59, 59, 999999999, time.UTC),
			},
		},
		{name: "from without to", from: "2026-01-01", wantErr: "given together"},
		{name: "to without from", to: "2026-01-31", wantErr: "given together"},
		{name: "reversed range", from: "2026-02-01", to: "2026-01-31", wantErr: "before --from"},
		{name: "bad from", from: "01/02/2026", to: "2026-01-31", wantErr: "--from"},
		{name: "bad to", from: "2026-01-01", to: "tomorrow", wantErr: "--to"},
		{name: "ids with range", from: "2026-01-01", to: "2026-01-31", ids: []int64{1}, wantErr: "cannot be combined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := exportSelection(25, tt.from, tt.to, tt.ids)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// run executes cmd without a config file or database; every case here
// fails during flag or argument handling.
func run(cmd *cobra.Command, stdin string, args ...string) error {
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestCommandArgumentErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.json")
	tests := []struct {
		name    string
		cmd     func() *cobra.Command
		stdin   string
		args    []string
		wantErr string
	}{
		{"export half range", NewExportCommand, "", []string{"--from", "2026-01-01"}, "given together"},
		{"export bad ids", NewExportCommand, "", []string{"--ids", "3,x"}, "invalid argument"},
		{"export positional", NewExportCommand, "", []string{"extra"}, "unknown command"},
		{"inspect nothing", NewInspectCommand, "", nil, "give files or --text"},
		{"search two terms", NewSearchCommand, "", []string{"a", "b"}, "at most 1 arg"},
		{"verify positional", NewVerifyCommand, "", []string{"now"}, "unknown command"},
		{"dataflows show bad id", NewDataFlowsCommand, "", []string{"show", "abc"}, "invalid map id"},
		{"dataflows show zero id", NewDataFlowsCommand, "", []string{"show", "0"}, "invalid map id"},
		{"dataflows save missing file", NewDataFlowsCommand, "", []string{"save", missing}, "absent.json"},
		{"dataflows save empty stdin", NewDataFlowsCommand, "[]", []string{"save", "-"}, "no flows"},
		{"dataflows save bad json", NewDataFlowsCommand, "{", []string{"save", "-"}, "-:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.cmd(), tt.stdin, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadFlows(t *testing.T) {
	want := []dataflows.Flow{{Source: "HR", Destination: "Payroll", CUIPresent: true}}

	flows, err := readFlows(strings.NewReader(`[{"source":"HR","destination":"Payroll","cui_present":true}]`))
	require.NoError(t, err)
	assert.Equal(t, want, flows)

	flows, err = readFlows(strings.NewReader(`
	{"name": "ignored", "flows": [{"source":"HR","destination":"Payroll","cui_present":true}]}`))
	require.NoError(t, err)
	assert.Equal(t, want, flows)

	_, err = readFlows(strings.NewReader(`{"flows": []}`))
	assert.Error(t, err)
	_, err = readFlows(strings.NewReader(``))
	assert.Error(t, err)
}
