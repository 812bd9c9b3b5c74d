// Package sites holds the per-site crawl recipes: root URLs, listing
// patterns, selectors, and which pagination cursor each site uses.
package sites

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/extract"
	"github.com/JakeFAU/crypto-news-crawler/internal/resolver"
	"github.com/JakeFAU/crypto-news-crawler/internal/walker"
)

// Default site roots.
var DefaultBaseURLs = map[crawler.Site]string{
	crawler.SiteInvesting:   "https://kr.investing.com",
	crawler.SiteHankyung:    "https://www.hankyung.com",
	crawler.SiteBloomingbit: "https://bloomingbit.io",
	crawler.SiteCoinreaders: "https://www.coinreaders.com",
	crawler.SiteBlockstreet: "https://www.blockstreet.co.kr",
}

// Category names attached to records.
const (
	CategoryCrypto              = "암호화폐"
	CategoryCoinreadersBreaking = "Breaking_news"
	CategoryCoinreadersCrypto   = "Crypto&Blockchain"
)

// Selectors used against listing pages and browser-rendered feeds.
const (
	hankyungLinks    = "h2.news-tit a"
	investingLinks   = `article[data-test="article-item"] a`
	coinreadersLinks = "div.sub_read_list_box a"

	bloomingbitTab   = "#feedRealTimeHeader ul li:nth-child(1) button"
	bloomingbitItem  = "#feedRealTimeContainer section"
	bloomingbitFirst = "#feedRealTimeContainer section:first-of-type a"

	blockstreetItems = "#newsList > section a"
	blockstreetMore  = "#container > div:nth-child(2) > div > button"
)

// Settings tune a single site run.
type Settings struct {
	Cutoff              time.Time
	Politeness          crawler.Delay
	MaxConsecutiveSkips int
	// IDWindow is the number of ids below the current one visited per
	// iteration on numeric-id feeds.
	IDWindow int
	// BaseURLs overrides DefaultBaseURLs per site.
	BaseURLs           map[crawler.Site]string
	ResolverAttempts   int
	ResolverRetryDelay crawler.Delay
	ClickPollInterval  time.Duration
	ClickPollAttempts  int
}

// Deps are the collaborators a site run needs.
type Deps struct {
	Fetcher    crawler.Fetcher
	Browser    crawler.Browser
	Strategies *extract.Registry
	Pauser     crawler.Pauser
	Logger     *zap.Logger
}

type run struct {
	site     crawler.Site
	base     *url.URL
	deps     Deps
	settings Settings
	strategy extract.Strategy
	logger   *zap.Logger
}

// Crawl walks every category of site back to the cutoff and returns its
// records with duplicate URLs removed, first occurrence kept.
func Crawl(ctx context.Context, site crawler.Site, deps Deps, settings Settings) ([]crawler.Article, error) {
	if !site.Valid() {
		return nil, fmt.Errorf("%w: %q", crawler.ErrUnknownSite, site)
	}
	if deps.Strategies == nil {
		deps.Strategies = extract.Default()
	}
	if deps.Pauser == nil {
		deps.Pauser = crawler.TimerPauser{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	strategy, ok := deps.Strategies.Lookup(site)
	if !ok {
		return nil, fmt.Errorf("no extraction strategy for %s", site)
	}
	base, err := baseURL(site, settings.BaseURLs)
	if err != nil {
		return nil, err
	}
	r := &run{
		site:     site,
		base:     base,
		deps:     deps,
		settings: settings,
		strategy: strategy,
		logger:   deps.Logger.With(zap.String("site", string(site))),
	}

	var records []crawler.Article
	switch site {
	case crawler.SiteHankyung:
		records = r.paged(ctx, CategoryCrypto, "/koreamarket/news/crypto?page=%d", hankyungLinks, false)
	case crawler.SiteInvesting:
		records = r.walk(ctx, CategoryCrypto, walker.NewPageCursor(deps.Fetcher, r.investingPage, investingLinks, base, true))
	case crawler.SiteCoinreaders:
		records, err = r.coinreaders(ctx)
	case crawler.SiteBloomingbit:
		records, err = r.bloomingbit(ctx)
	case crawler.SiteBlockstreet:
		records, err = r.blockstreet(ctx)
	}
	if err != nil {
		return nil, err
	}
	return Dedupe(records), nil
}

func baseURL(site crawler.Site, overrides map[crawler.Site]string) (*url.URL, error) {
	raw := DefaultBaseURLs[site]
	if o, ok := overrides[site]; ok && o != "" {
		raw = o
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("base url for %s: %w", site, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url for %s: %q is not absolute", site, raw)
	}
	return u, nil
}

func (r *run) abs(path string) string {
	return r.base.String() + path
}

func (r *run) walk(ctx context.Context, category string, cursor walker.Cursor) []crawler.Article {
	cfg := walker.Config{
		Site:                r.site,
		Category:            category,
		Cutoff:              r.settings.Cutoff,
		Politeness:          r.settings.Politeness,
		MaxConsecutiveSkips: r.settings.MaxConsecutiveSkips,
	}
	return walker.New(cfg, cursor, r.deps.Fetcher, r.strategy, r.deps.Logger, walker.WithPauser(r.deps.Pauser)).Run(ctx)
}

func (r *run) paged(ctx context.Context, category, pattern, selector string, stopOnRedirect bool) []crawler.Article {
	urlFor := func(page int) string { return r.abs(fmt.Sprintf(pattern, page)) }
	return r.walk(ctx, category, walker.NewPageCursor(r.deps.Fetcher, urlFor, selector, r.base, stopOnRedirect))
}

// investingPage maps page 1 to the bare listing; later pages append the number.
func (r *run) investingPage(page int) string {
	if page <= 1 {
		return r.abs("/news/cryptocurrency-news")
	}
	return r.abs(fmt.Sprintf("/news/cryptocurrency-news/%d", page))
}

func (r *run) coinreaders(ctx context.Context) ([]crawler.Article, error) {
	sections := []struct{ category, code string }{
		{CategoryCoinreadersBreaking, "sc16"},
		{CategoryCoinreadersCrypto, "sc21"},
	}
	results := make([][]crawler.Article, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range sections {
		g.Go(func() error {
			pattern := "/sub.html?page=%d&section=" + s.code + "&section2="
			results[i] = r.paged(gctx, s.category, pattern, coinreadersLinks, false)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []crawler.Article
	for _, res := range results {
		out = append(out, res...)
	}
	return out, nil
}

func (r *run) bloomingbit(ctx context.Context) ([]crawler.Article, error) {
	if r.deps.Browser == nil {
		return nil, fmt.Errorf("%s: %w: browser unavailable", r.site, resolver.ErrNoStartingID)
	}
	res := resolver.New(resolver.Config{
		FeedURL:      r.abs("/ko/feed"),
		TabSelector:  bloomingbitTab,
		ItemSelector: bloomingbitItem,
		LinkSelector: bloomingbitFirst,
		MaxAttempts:  r.settings.ResolverAttempts,
		RetryDelay:   r.settings.ResolverRetryDelay,
	}, r.deps.Browser, r.deps.Pauser, r.logger)
	latest, err := res.LatestID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.site, err)
	}
	urlFor := func(id int) string { return r.abs(fmt.Sprintf("/ko/feed/news/%d", id)) }
	// The category comes from each article page.
	return r.walk(ctx, "", walker.NewIDRangeCursor(latest, r.settings.IDWindow, urlFor)), nil
}

func (r *run) blockstreet(ctx context.Context) ([]crawler.Article, error) {
	if r.deps.Browser == nil {
		return nil, fmt.Errorf("%s: browser unavailable", r.site)
	}
	page, err := r.deps.Browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: open page: %w", r.site, err)
	}
	cursor := walker.NewClickNextCursor(walker.ClickNextConfig{
		ListURL:      r.abs("/coin-news"),
		ItemSelector: blockstreetItems,
		MoreSelector: blockstreetMore,
		PollInterval: r.settings.ClickPollInterval,
		PollAttempts: r.settings.ClickPollAttempts,
	}, page, r.base, r.deps.Pauser, r.logger)
	return r.walk(ctx, CategoryCrypto, cursor), nil
}

// Dedupe drops records whose URL was already seen, keeping order.
func Dedupe(records []crawler.Article) []crawler.Article {
	out := make([]crawler.Article, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.URL]; dup {
			continue
		}
		seen[rec.URL] = struct{}{}
		out = append(out, rec)
	}
	return out
}
