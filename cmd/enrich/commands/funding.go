package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/enrich/internal/funding"
	"github.com/MikeSquared-Agency/enrich/internal/scrape"
)

const pageTimeout = 30 * time.Second

func newFundingCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "funding",
		Short: "Extract funding rounds from news articles",
		Long: `Fetch every article listed in a CSV (TASK_ID, SOURCE, ARTICLE TITLE),
extract the funding-round details with the model, and write output.csv and
result.xlsx. output.csv is rewritten every few articles as a partial save.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, "funding", opts, setInputCSV, func(ctx context.Context, rt *runtime) (outcome, error) {
				res, err := funding.New(funding.Config{
					InputCSV:   rt.cfg.InputCSV,
					ResultsDir: rt.cfg.ResultsDir,
					Workers:    rt.cfg.Workers,
					SaveEvery:  rt.cfg.CheckpointEvery,
					MaxRows:    opts.maxRows,
				}, scrape.NewFetcher(pageTimeout, rt.logger), rt.deps).Run(ctx)
				if err != nil {
					return outcome{}, fmt.Errorf("funding: %w", err)
				}
				return outcome{interrupted: res.Interrupted}, nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "article list CSV (default $ENRICH_INPUT_CSV)")
	return cmd
}
