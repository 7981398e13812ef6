package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/enrich/internal/chunker"
	"github.com/MikeSquared-Agency/enrich/internal/config"
	"github.com/MikeSquared-Agency/enrich/internal/pipeline"
	"github.com/MikeSquared-Agency/enrich/internal/scrape"
	"github.com/MikeSquared-Agency/enrich/internal/warehouse"
)

const downloadTimeout = 60 * time.Second

func newCompaniesCmd(opts *options) *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "companies",
		Short: "Extract company profiles from filings",
		Long: `Extract company profiles from filing documents.

Document URLs come from the warehouse query when WAREHOUSE_URL is set; when
the warehouse is unavailable or returns nothing, the .txt files in the input
directory are used instead. Each document is split into overlapping token
chunks, every chunk is sent to the model, and the per-chunk answers are
merged into one row of result.xlsx.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, "companies", opts, func(c *config.Config, in string) { c.InputDir = in }, func(ctx context.Context, rt *runtime) (outcome, error) {
				return runCompanies(ctx, rt, opts.maxRows, resume)
			})
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "directory of .txt documents (default $ENRICH_INPUT_DIR)")
	cmd.Flags().BoolVar(&resume, "resume", false, "continue from the checkpoint of an interrupted run")
	return cmd
}

func runCompanies(ctx context.Context, rt *runtime, maxDocs int, resume bool) (outcome, error) {
	cfg := rt.cfg

	tok, err := chunker.NewBPE(chunker.DefaultEncoding)
	if err != nil {
		return outcome{}, err
	}
	ch, err := chunker.New(tok, cfg.ChunkTokens, cfg.ChunkOverlap)
	if err != nil {
		return outcome{}, err
	}

	var urls pipeline.URLSource
	if cfg.WarehouseURL != "" {
		urls = warehouse.Source{
			DatabaseURL: cfg.WarehouseURL,
			Query:       cfg.WarehouseQuery,
			Attempts:    warehouse.DefaultAttempts,
			Delay:       warehouse.DefaultDelay,
			Logger:      rt.logger,
		}
	} else {
		rt.logger.Info("warehouse not configured, using input directory", "dir", cfg.InputDir)
	}

	c := pipeline.NewCompanies(pipeline.CompaniesConfig{
		InputDir:        cfg.InputDir,
		ResultsDir:      cfg.ResultsDir,
		Workers:         cfg.Workers,
		CheckpointEvery: cfg.CheckpointEvery,
		MaxDocuments:    maxDocs,
		Resume:          resume,
	}, urls, scrape.NewFetcher(downloadTimeout, rt.logger), ch, rt.deps)

	res, err := c.Run(ctx)
	if errors.Is(err, pipeline.ErrNoDocuments) {
		rt.logger.Warn("no output: nothing to process", "input_dir", cfg.InputDir)
		return outcome{}, nil
	}
	if err != nil {
		return outcome{failures: res.Failures}, fmt.Errorf("companies: %w", err)
	}
	return outcome{interrupted: res.Interrupted, failures: res.Failures}, nil
}
