// Package resolver finds the newest article id on client-rendered feeds by
// driving a headless browser.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/metrics"
)

// ErrNoStartingID is returned when every browser session failed.
var ErrNoStartingID = errors.New("resolver: no starting id")

// Config describes the feed page and how to read its first item.
type Config struct {
	FeedURL string
	// TabSelector is clicked before reading the feed. Empty skips the click.
	TabSelector  string
	ItemSelector string
	// LinkSelector is evaluated inside the page; the last match's href is used.
	LinkSelector string
	MaxAttempts  int
	RetryDelay   crawler.Delay
}

// Resolver runs bounded browser sessions against one feed.
type Resolver struct {
	cfg     Config
	browser crawler.Browser
	pauser  crawler.Pauser
	logger  *zap.Logger
}

// New constructs a Resolver. MaxAttempts defaults to 10.
func New(cfg Config, browser crawler.Browser, pauser crawler.Pauser, logger *zap.Logger) *Resolver {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, browser: browser, pauser: pauser, logger: logger}
}

// LatestID returns the trailing numeric id of the feed's first item.
func (r *Resolver) LatestID(ctx context.Context) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrNoStartingID, err)
		}
		id, err := r.session(ctx)
		if err == nil {
			metrics.ObserveResolverAttempt("ok")
			r.logger.Info("resolved latest id", zap.Int("id", id), zap.Int("attempt", attempt))
			return id, nil
		}
		lastErr = err
		metrics.ObserveResolverAttempt("error")
		r.logger.Warn("resolver session failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Error(err),
		)
		if attempt < r.cfg.MaxAttempts {
			r.pauser.Pause(ctx, r.cfg.RetryDelay.Draw())
		}
	}
	return 0, fmt.Errorf("%w after %d attempts: %w", ErrNoStartingID, r.cfg.MaxAttempts, lastErr)
}

func (r *Resolver) session(ctx context.Context) (int, error) {
	page, err := r.browser.NewPage(ctx)
	if err != nil {
		return 0, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			r.logger.Debug("close page failed", zap.Error(cerr))
		}
	}()

	if err := page.Navigate(ctx, r.cfg.FeedURL); err != nil {
		return 0, fmt.Errorf("navigate %s: %w", r.cfg.FeedURL, err)
	}
	if r.cfg.TabSelector != "" {
		if err := page.WaitVisible(ctx, r.cfg.TabSelector); err != nil {
			return 0, fmt.Errorf("wait for tab: %w", err)
		}
		if err := page.Click(ctx, r.cfg.TabSelector); err != nil {
			return 0, fmt.Errorf("click tab: %w", err)
		}
	}
	if err := page.WaitVisible(ctx, r.cfg.ItemSelector); err != nil {
		return 0, fmt.Errorf("wait for first item: %w", err)
	}
	hrefs, err := page.Hrefs(ctx, r.cfg.LinkSelector)
	if err != nil {
		return 0, fmt.Errorf("read item links: %w", err)
	}
	if len(hrefs) == 0 {
		return 0, fmt.Errorf("no links match %q", r.cfg.LinkSelector)
	}
	return TrailingID(hrefs[len(hrefs)-1])
}

var trailingDigits = regexp.MustCompile(`(\d+)/?(?:[?#].*)?$`)

// TrailingID parses the last numeric path segment of href.
func TrailingID(href string) (int, error) {
	m := trailingDigits.FindStringSubmatch(href)
	if m == nil {
		return 0, fmt.Errorf("no trailing id in %q", href)
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("parse id in %q: %w", href, err)
	}
	return id, nil
}
