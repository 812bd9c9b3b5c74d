package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/metrics"
	"github.com/JakeFAU/crypto-news-crawler/internal/orchestrator"
)

type crawlOptions struct {
	sites       []string
	end         string
	dateFormat  string
	inProcess   bool
	metricsAddr string
}

// siteSpec is one --site value.
type siteSpec struct {
	Name        string
	Destination string
}

// parseSiteSpecs parses "name" or "name=destination" values. With no values
// every known site is crawled to its default destination.
func parseSiteSpecs(values []string) ([]siteSpec, error) {
	if len(values) == 0 {
		all := crawler.Sites()
		specs := make([]siteSpec, 0, len(all))
		for _, s := range all {
			specs = append(specs, siteSpec{Name: string(s)})
		}
		return specs, nil
	}
	specs := make([]siteSpec, 0, len(values))
	for _, raw := range values {
		name, dest, _ := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("--site %q: missing site name", raw)
		}
		if _, err := crawler.ParseSite(name); err != nil {
			return nil, fmt.Errorf("--site %q: %w", raw, err)
		}
		specs = append(specs, siteSpec{Name: name, Destination: strings.TrimSpace(dest)})
	}
	return specs, nil
}

func newCrawlCmd(cfgFile *string) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the selected sites concurrently and writes one file per site",
		Long: `Crawls every selected site back to --end and writes each site's records
as a JSON array. Sites run in child processes unless --in-process is set.

A --site value is a site name, optionally followed by =destination where the
destination is a local path or a gs://bucket/object URI.`,
		Example: `  newscrawler crawl --end "2025-01-01 00:00"
  newscrawler crawl --site hankyung=out/hk.json --site investing --end "2025-01-01 00:00"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts, *cfgFile)
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&opts.sites, "site", nil, "site to crawl as name[=destination]; repeatable (default all sites)")
	f.StringVar(&opts.end, "end", "", "oldest publication time to keep")
	f.StringVar(&opts.dateFormat, "date-format", orchestrator.DefaultDateFormat, "strftime format of --end")
	f.BoolVar(&opts.inProcess, "in-process", false, "run sites as goroutines instead of child processes")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while crawling")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions, cfgFile string) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	logger := a.Logger()

	params, err := orchestrator.ParseRunParams(opts.end, opts.dateFormat)
	if err != nil {
		return err
	}
	specs, err := parseSiteSpecs(opts.sites)
	if err != nil {
		return err
	}

	addr := opts.metricsAddr
	if addr == "" {
		addr = a.Config().Metrics.Addr
	}
	if addr != "" {
		stop := serveMetrics(addr, logger)
		defer stop()
	}

	var runner orchestrator.Runner
	if opts.inProcess {
		runner = orchestrator.InProcess{Crawl: a.CrawlSite}
	} else {
		var childArgs []string
		if cfgFile != "" {
			childArgs = append(childArgs, "--config", cfgFile)
		}
		proc, err := orchestrator.NewProcess(childArgs...)
		if err != nil {
			return err
		}
		proc.Stderr = cmd.ErrOrStderr()
		runner = proc
	}

	orch, err := a.Orchestrator(ctx, runner)
	if err != nil {
		return err
	}
	for _, s := range specs {
		if err := orch.Register(s.Name, s.Destination); err != nil {
			return err
		}
	}

	logger.Info("crawl starting",
		zap.Int("sites", len(specs)),
		zap.Time("cutoff", params.Cutoff),
		zap.Bool("in_process", opts.inProcess),
	)
	runErr := orch.Run(ctx, params)
	persistErr := orch.Persist(context.WithoutCancel(ctx))
	if runErr != nil {
		logger.Warn("some sites failed", zap.Error(runErr))
	}
	total := 0
	for _, res := range orch.Results() {
		total += len(res.Records)
	}
	logger.Info("crawl finished", zap.String("run_id", orch.RunID()), zap.Int("records", total))
	return errors.Join(runErr, persistErr)
}

func serveMetrics(addr string, logger *zap.Logger) func() {
	srv := metrics.NewServer(addr)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}
