package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/enrich/internal/config"
	"github.com/MikeSquared-Agency/enrich/internal/contacts"
)

func newContactsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Rank the top five contacts per company",
		Long: `Rank the contacts of each company in a contact export.

Rows are grouped by COMPANY_ID, companies are ordered by their mean
CONFIDENCE_SCORE, and each company's rows are sent to the model in batches.
The five best contacts per company are written to result.xlsx.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, "contacts", opts, setInputCSV, func(ctx context.Context, rt *runtime) (outcome, error) {
				res, err := contacts.New(contacts.Config{
					InputCSV:        rt.cfg.InputCSV,
					ResultsDir:      rt.cfg.ResultsDir,
					Workers:         rt.cfg.Workers,
					BatchSize:       rt.cfg.BatchSize,
					CheckpointEvery: rt.cfg.CheckpointEvery,
					MaxRows:         opts.maxRows,
				}, rt.deps).Run(ctx)
				if err != nil {
					return outcome{}, fmt.Errorf("contacts: %w", err)
				}
				return outcome{interrupted: res.Interrupted}, nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "contact export CSV (default $ENRICH_INPUT_CSV)")
	return cmd
}

func setInputCSV(c *config.Config, in string) { c.InputCSV = in }
