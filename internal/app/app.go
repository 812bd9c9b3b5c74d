// Package app builds the long-lived services a command needs from Config and
// releases them on Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/crypto-news-crawler/internal/clock/system"
	"github.com/JakeFAU/crypto-news-crawler/internal/config"
	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/crypto-news-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/crypto-news-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/crypto-news-crawler/internal/id/uuid"
	"github.com/JakeFAU/crypto-news-crawler/internal/orchestrator"
	"github.com/JakeFAU/crypto-news-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/crypto-news-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/crypto-news-crawler/internal/sites"
	"github.com/JakeFAU/crypto-news-crawler/internal/storage"
	"github.com/JakeFAU/crypto-news-crawler/internal/storage/gcs"
	"github.com/JakeFAU/crypto-news-crawler/internal/storage/postgres"
)

// App holds the shared services for one command invocation.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	mu        sync.Mutex
	fetcher   crawler.Fetcher
	browser   crawler.Browser
	closeFns  []func() error
	gcsClient *gcstorage.Client
}

// New creates an App. Services are built on first use.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// OnClose registers fn to run when the App is closed.
func (a *App) OnClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onClose(fn)
}

// onClose requires a.mu.
func (a *App) onClose(fn func() error) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases every service in reverse creation order.
func (a *App) Close() error {
	a.mu.Lock()
	fns := a.closeFns
	a.closeFns = nil
	a.mu.Unlock()
	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fetcher returns the shared document fetcher.
func (a *App) Fetcher() crawler.Fetcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetcher != nil {
		return a.fetcher
	}
	fc := a.cfg.Fetch
	limiter := ratelimit.New(ratelimit.Config{RPS: fc.RequestsPerSecond, Burst: fc.Burst})
	a.fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:       fc.UserAgent,
		FollowRedirects: fc.FollowRedirects,
		Timeout:         fc.Timeout(),
		MaxRetry:        fc.MaxRetry,
		RetryDelay:      fc.RetryDelay(),
		MaxConcurrency:  fc.MaxConcurrency,
	}, collyfetcher.WithLimiter(limiter), collyfetcher.WithLogger(a.logger))
	return a.fetcher
}

// Browser returns the headless browser, or a browser that refuses every page
// when headless mode is disabled.
func (a *App) Browser() (crawler.Browser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.browser != nil {
		return a.browser, nil
	}
	hc := a.cfg.Headless
	if !hc.Enabled {
		a.browser = headless.NewNoop()
		return a.browser, nil
	}
	b, err := headless.NewChromedp(headless.Config{
		MaxParallel:       hc.MaxParallel,
		UserAgent:         a.cfg.Fetch.UserAgent,
		NavigationTimeout: time.Duration(hc.NavTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("init headless browser: %w", err)
	}
	a.onClose(func() error { b.Close(); return nil })
	a.browser = b
	return b, nil
}

// CrawlSite runs one site in this process.
func (a *App) CrawlSite(ctx context.Context, site crawler.Site, params orchestrator.RunParams) ([]crawler.Article, error) {
	browser, err := a.Browser()
	if err != nil {
		return nil, err
	}
	deps := sites.Deps{
		Fetcher: a.Fetcher(),
		Browser: browser,
		Logger:  a.logger,
	}
	return sites.Crawl(ctx, site, deps, a.SiteSettings(params))
}

// SiteSettings maps configuration onto a site run.
func (a *App) SiteSettings(params orchestrator.RunParams) sites.Settings {
	return sites.Settings{
		Cutoff:              params.Cutoff,
		Politeness:          a.cfg.Walker.Politeness(),
		MaxConsecutiveSkips: a.cfg.Walker.MaxConsecutiveSkips,
		IDWindow:            a.cfg.Walker.IDWindow,
		BaseURLs:            a.cfg.BaseURLs(),
		ResolverAttempts:    a.cfg.Resolver.MaxAttempts,
		ResolverRetryDelay:  a.cfg.Resolver.RetryDelay(),
		ClickPollInterval:   a.cfg.Headless.ClickPollInterval(),
		ClickPollAttempts:   a.cfg.Headless.ClickPollAttempts,
	}
}

// Orchestrator wires an orchestrator with the configured sinks.
func (a *App) Orchestrator(ctx context.Context, runner orchestrator.Runner) (*orchestrator.Orchestrator, error) {
	opts := orchestrator.Options{
		Runner:    runner,
		Blobs:     storage.NewRouter(a.openBucket),
		IDs:       uuid.New(),
		Clock:     system.New(nil),
		OutputDir: a.cfg.Output.Dir,
		Logger:    a.logger,
	}
	if a.cfg.DB.DSN != "" {
		store, err := postgres.NewArticleStore(ctx, postgres.Config{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.Table,
			MaxConns: a.cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.onClose(func() error { store.Close(); return nil })
		a.mu.Unlock()
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		opts.Articles = store
	}
	if a.cfg.PubSub.Topic != "" {
		pub, err := pubsub.Connect(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.onClose(pub.Close)
		a.mu.Unlock()
		opts.Publisher = pub
		opts.Topic = a.cfg.PubSub.Topic
	}
	return orchestrator.New(opts)
}

func (a *App) openBucket(ctx context.Context, bucket string) (crawler.BlobStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gcsClient == nil {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.gcsClient = client
		a.onClose(client.Close)
	}
	return gcs.New(a.gcsClient, gcs.Config{Bucket: bucket, Prefix: a.cfg.Output.GCSPrefix})
}
