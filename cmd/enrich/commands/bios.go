package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/enrich/internal/bios"
)

func newBiosCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bios",
		Short: "Write and grade professional bios",
		Long: `Write a professional bio for every profile in a CSV export.

A bio shorter than the required length is regenerated with a higher target,
up to five times. Accepted bios are rated by the model and written with
their token usage and cost to bio_data.xlsx.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, "bios", opts, setInputCSV, func(ctx context.Context, rt *runtime) (outcome, error) {
				res, err := bios.New(bios.Config{
					InputCSV:        rt.cfg.InputCSV,
					ResultsDir:      rt.cfg.ResultsDir,
					Workers:         rt.cfg.Workers,
					CheckpointEvery: rt.cfg.CheckpointEvery,
					MaxRows:         opts.maxRows,
				}, rt.deps).Run(ctx)
				if err != nil {
					return outcome{}, fmt.Errorf("bios: %w", err)
				}
				return outcome{interrupted: res.Interrupted}, nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "profile export CSV (default $ENRICH_INPUT_CSV)")
	return cmd
}
