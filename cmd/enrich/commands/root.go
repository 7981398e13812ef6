// Package commands implements the enrich CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// options are the flags shared by every batch command.
type options struct {
	outputDir string
	workers   int
	maxRows   int
	input     string
}

func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "LLM-backed enrichment of company, contact and article data",
		Long: `enrich runs batch enrichment jobs against the Anthropic API.

  companies  extract company profiles from filings (warehouse URLs or local .txt files)
  contacts   rank the best five contacts per company in a contact export
  bios       write and grade professional bios for a profile export
  funding    pull funding-round details out of news articles

Settings come from the environment (a .env file is loaded when present);
flags override them for a single run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.outputDir, "output-dir", "", "results directory (default $ENRICH_RESULTS_DIR)")
	cmd.PersistentFlags().IntVar(&opts.workers, "workers", 0, "concurrent units of work (default $ENRICH_WORKERS)")
	cmd.PersistentFlags().IntVar(&opts.maxRows, "max-rows", 0, "process at most this many rows or documents (0 = all)")

	cmd.AddCommand(newCompaniesCmd(opts))
	cmd.AddCommand(newContactsCmd(opts))
	cmd.AddCommand(newBiosCmd(opts))
	cmd.AddCommand(newFundingCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}
