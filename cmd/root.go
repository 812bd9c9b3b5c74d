// Package cmd defines the newscrawler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crypto-news-crawler/internal/app"
	"github.com/JakeFAU/crypto-news-crawler/internal/config"
	"github.com/JakeFAU/crypto-news-crawler/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp builds the services shared by every subcommand.
var newApp = func(cfgFile string) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger), nil
}

// session owns the App built for one invocation so it is closed on every
// exit path, including a failed RunE.
type session struct {
	app *app.App
}

func (s *session) close() {
	if s.app == nil {
		return
	}
	a := s.app
	s.app = nil
	if err := a.Close(); err != nil {
		a.Logger().Warn("close services", zap.Error(err))
	}
	_ = a.Logger().Sync()
}

func newRootCmd(s *session) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "newscrawler",
		Short: "Crawls Korean and global crypto news sites back to a cutoff time.",
		Long: `newscrawler walks the listing pages of a fixed set of crypto news sites,
extracts every article newer than the cutoff and writes one JSON array per site.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			s.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); NEWSCRAWLER_* env vars override it")

	cmd.AddCommand(newCrawlCmd(&cfgFile))
	cmd.AddCommand(newSiteCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// run executes the command line in args and closes the App afterwards,
// whether or not the command succeeded.
func run(ctx context.Context, args []string) error {
	s := &session{}
	defer s.close()
	root := newRootCmd(s)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signalContext()
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "newscrawler:", err)
		os.Exit(1)
	}
}
