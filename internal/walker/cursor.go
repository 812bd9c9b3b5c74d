package walker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/extract"
)

// Signal tells the walker what to do with a fetched listing.
type Signal int

const (
	// SignalProceed means the listing is usable.
	SignalProceed Signal = iota
	// SignalSkip means the listing failed; advance and try the next one.
	SignalSkip
	// SignalStop means there are no further listings.
	SignalStop
)

// Listing is one unit of pagination.
type Listing struct {
	Label string
	Body  []byte
	// URLs is set by cursors that know their article URLs without parsing.
	URLs []string
	// Final marks the last listing of a bounded range.
	Final bool
}

// Cursor abstracts how a site pages through its listings.
type Cursor interface {
	Fetch(ctx context.Context) (Listing, Signal)
	Extract(listing Listing) ([]string, error)
	Advance()
	Close() error
}

// PageCursor walks numbered listing pages (?page=N).
type PageCursor struct {
	fetcher  crawler.Fetcher
	urlFor   func(page int) string
	selector string
	base     *url.URL
	// StopOnRedirect treats any redirect as the end of the listing.
	stopOnRedirect bool
	page           int
}

// NewPageCursor starts at page 1.
func NewPageCursor(fetcher crawler.Fetcher, urlFor func(page int) string, selector string, base *url.URL, stopOnRedirect bool) *PageCursor {
	return &PageCursor{
		fetcher:        fetcher,
		urlFor:         urlFor,
		selector:       selector,
		base:           base,
		stopOnRedirect: stopOnRedirect,
		page:           1,
	}
}

// Page reports the current page number.
func (c *PageCursor) Page() int { return c.page }

// Fetch retrieves the current listing page.
func (c *PageCursor) Fetch(ctx context.Context) (Listing, Signal) {
	target := c.urlFor(c.page)
	listing := Listing{Label: target}
	out := c.fetcher.Fetch(ctx, target)
	if c.stopOnRedirect && out.Redirected() {
		return listing, SignalStop
	}
	if !out.OK() {
		return listing, SignalSkip
	}
	listing.Body = out.Body
	return listing, SignalProceed
}

// Extract returns the article links on the page.
func (c *PageCursor) Extract(listing Listing) ([]string, error) {
	return extract.ListingLinks(listing.Body, c.selector, c.base)
}

// Advance moves to the next page.
func (c *PageCursor) Advance() { c.page++ }

// Close is a no-op.
func (c *PageCursor) Close() error { return nil }

// MinArticleID is the lowest id an id-range walk visits.
const MinArticleID = 2

// IDRangeCursor walks numeric article ids backward in windows.
type IDRangeCursor struct {
	urlFor func(id int) string
	window int
	next   int
}

// NewIDRangeCursor starts at latest and visits window+1 ids per listing.
func NewIDRangeCursor(latest, window int, urlFor func(id int) string) *IDRangeCursor {
	if window < 0 {
		window = 0
	}
	return &IDRangeCursor{urlFor: urlFor, window: window, next: latest}
}

// Next reports the id the following window starts from.
func (c *IDRangeCursor) Next() int { return c.next }

// Fetch builds the URLs of the current window without any network access.
func (c *IDRangeCursor) Fetch(context.Context) (Listing, Signal) {
	if c.next < MinArticleID {
		return Listing{Label: "ids exhausted"}, SignalStop
	}
	low := c.next - c.window
	if low < MinArticleID {
		low = MinArticleID
	}
	urls := make([]string, 0, c.next-low+1)
	for id := c.next; id >= low; id-- {
		urls = append(urls, c.urlFor(id))
	}
	return Listing{
		Label: fmt.Sprintf("ids %d..%d", c.next, low),
		URLs:  urls,
		Final: c.next-c.window-1 < MinArticleID,
	}, SignalProceed
}

// Extract returns the window's URLs.
func (c *IDRangeCursor) Extract(listing Listing) ([]string, error) {
	return listing.URLs, nil
}

// Advance moves below the current window.
func (c *IDRangeCursor) Advance() { c.next = c.next - c.window - 1 }

// Close is a no-op.
func (c *IDRangeCursor) Close() error { return nil }

// ClickNextConfig describes a "load more" feed.
type ClickNextConfig struct {
	ListURL      string
	ItemSelector string
	MoreSelector string
	// PollInterval and PollAttempts bound the wait for new items after a click.
	PollInterval time.Duration
	PollAttempts int
}

// ClickNextCursor drives a browser page, clicking the load-more control to
// reveal older items.
type ClickNextCursor struct {
	cfg     ClickNextConfig
	page    crawler.Page
	base    *url.URL
	pauser  crawler.Pauser
	logger  *zap.Logger
	seen    int
	started bool
	clicks  int
	pending bool
}

// NewClickNextCursor wraps an open page. The cursor owns the page and closes it.
func NewClickNextCursor(cfg ClickNextConfig, page crawler.Page, base *url.URL, pauser crawler.Pauser, logger *zap.Logger) *ClickNextCursor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 20
	}
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickNextCursor{cfg: cfg, page: page, base: base, pauser: pauser, logger: logger}
}

// Fetch loads the feed on first use and clicks load-more afterwards.
// The listing carries only the items revealed since the previous fetch.
func (c *ClickNextCursor) Fetch(ctx context.Context) (Listing, Signal) {
	label := "click " + strconv.Itoa(c.clicks)
	if !c.started {
		if err := c.page.Navigate(ctx, c.cfg.ListURL); err != nil {
			c.logger.Warn("feed navigation failed", zap.String("url", c.cfg.ListURL), zap.Error(err))
			return Listing{Label: label}, SignalStop
		}
		if err := c.page.WaitVisible(ctx, c.cfg.ItemSelector); err != nil {
			c.logger.Warn("feed items never appeared", zap.Error(err))
			return Listing{Label: label}, SignalStop
		}
		c.started = true
	} else if c.pending {
		c.pending = false
		more, err := c.page.Count(ctx, c.cfg.MoreSelector)
		if err != nil || more == 0 {
			return Listing{Label: label}, SignalStop
		}
		if err := c.page.Click(ctx, c.cfg.MoreSelector); err != nil {
			c.logger.Info("load-more click failed", zap.Error(err))
			return Listing{Label: label}, SignalStop
		}
		if !c.waitForGrowth(ctx) {
			return Listing{Label: label}, SignalStop
		}
	}

	hrefs, err := c.page.Hrefs(ctx, c.cfg.ItemSelector)
	if err != nil {
		c.logger.Warn("read feed links failed", zap.Error(err))
		return Listing{Label: label}, SignalStop
	}
	if len(hrefs) < c.seen {
		c.seen = 0
	}
	fresh := hrefs[c.seen:]
	c.seen = len(hrefs)
	urls := make([]string, 0, len(fresh))
	for _, h := range fresh {
		if abs := extract.Resolve(c.base, h); abs != "" {
			urls = append(urls, abs)
		}
	}
	return Listing{Label: label, URLs: urls}, SignalProceed
}

func (c *ClickNextCursor) waitForGrowth(ctx context.Context) bool {
	for i := 0; i < c.cfg.PollAttempts; i++ {
		n, err := c.page.Count(ctx, c.cfg.ItemSelector)
		if err == nil && n > c.seen {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.pauser.Pause(ctx, c.cfg.PollInterval)
	}
	return false
}

// Extract returns the newly revealed item URLs.
func (c *ClickNextCursor) Extract(listing Listing) ([]string, error) {
	return listing.URLs, nil
}

// Advance arms the next load-more click.
func (c *ClickNextCursor) Advance() {
	if c.started {
		c.pending = true
		c.clicks++
	}
}

// Close releases the browser page.
func (c *ClickNextCursor) Close() error {
	return c.page.Close()
}
