package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	service "github.com/okian/steamwatch/internal/app"
)

// NewPruneCommand creates the prune command: one retention pass, then exit.
func NewPruneCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "prune",
		Short:        "Remove stale snapshot rows once",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrune(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runPrune(ctx context.Context, opts *RootOptions, out io.Writer) error {
	cfg, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	svc, err := service.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	n, err := svc.Prune(ctx)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		_, err = fmt.Fprintf(out, "{\"pruned\":%d}\n", n)
		return err
	}
	_, err = fmt.Fprintf(out, "pruned %d snapshot rows\n", n)
	return err
}
