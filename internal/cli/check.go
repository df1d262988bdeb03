package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	service "github.com/okian/steamwatch/internal/app"
	"github.com/okian/steamwatch/internal/domain/types"
)

// NewCheckCommand creates the check command: one cycle, then exit. Without a
// bot token new items are only logged.
func NewCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a single check cycle and print its report",
		Long: `Run one check cycle over every registered inventory and print the
cycle report. Snapshots are updated exactly as a scheduled cycle would.

Example:
  steamwatch check --config ./steamwatch.yaml
  steamwatch check --format json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runCheck(ctx context.Context, opts *RootOptions, out io.Writer) error {
	cfg, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	svc, err := service.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	report, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}
	return printReport(out, opts.Format, report, svc.Statuses())
}

func printReport(out io.Writer, format string, report types.CycleReport, statuses []types.TargetStatus) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Report  types.CycleReport    `json:"report"`
			Targets []types.TargetStatus `json:"targets"`
		}{report, statuses})
	}

	fmt.Fprintf(out, "cycle %s: %d targets, %d failed, %d new items, %d notified, %d notify failures (%s)\n",
		report.CycleID, report.Targets, report.Failed, report.NewItems, report.Notified, report.NotifyFailed, report.Duration)
	for _, st := range statuses {
		state := "ok"
		if st.ConsecutiveFailures > 0 {
			state = st.LastErrorKind + ": " + st.LastError
		}
		fmt.Fprintf(out, "  %s/%d  new=%d  %s\n", st.AccountID, st.GameID, st.LastNewItems, state)
	}
	return nil
}
