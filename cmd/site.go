package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/orchestrator"
)

// newSiteCmd is the child side of the process runner. It crawls one site and
// writes the JSON array of records to stdout; logs go to stderr.
func newSiteCmd() *cobra.Command {
	var end, dateFormat string
	cmd := &cobra.Command{
		Use:    orchestrator.SiteCommand + " <name>",
		Short:  "Crawls one site and prints its records as JSON",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			site, err := crawler.ParseSite(args[0])
			if err != nil {
				return err
			}
			params, err := orchestrator.ParseRunParams(end, dateFormat)
			if err != nil {
				return err
			}
			records, err := a.CrawlSite(cmd.Context(), site, params)
			if err != nil {
				return err
			}
			a.Logger().Debug("site done", zap.String("site", string(site)), zap.Int("records", len(records)))
			return orchestrator.EncodeRecords(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&end, "end", "", "oldest publication time to keep")
	cmd.Flags().StringVar(&dateFormat, "date-format", orchestrator.DefaultDateFormat, "strftime format of --end")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
