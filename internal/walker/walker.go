// Package walker implements the per-site listing walk: fetch a listing,
// extract its article URLs, fetch and extract the articles concurrently,
// trim the batch against the cutoff, then continue or stop.
package walker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/extract"
	"github.com/JakeFAU/crypto-news-crawler/internal/metrics"
	"github.com/JakeFAU/crypto-news-crawler/internal/timestamp"
)

type state int

const (
	stateFetchingListing state = iota
	stateExtractingURLs
	stateFetchingArticles
	stateTrimming
	stateContinue
	stateStop
)

func (s state) String() string {
	switch s {
	case stateFetchingListing:
		return "FETCHING_LISTING"
	case stateExtractingURLs:
		return "EXTRACTING_URLS"
	case stateFetchingArticles:
		return "FETCHING_ARTICLES"
	case stateTrimming:
		return "TRIMMING"
	case stateContinue:
		return "CONTINUE"
	default:
		return "STOP"
	}
}

const defaultMaxSkips = 5

// Config controls one walk.
type Config struct {
	Site     crawler.Site
	Category string
	Cutoff   time.Time
	// Politeness is drawn after every listing before moving on.
	Politeness crawler.Delay
	// MaxConsecutiveSkips stops a walk whose listings keep failing.
	MaxConsecutiveSkips int
}

// Walker runs the listing state machine for one site category.
type Walker struct {
	cfg      Config
	cursor   Cursor
	fetcher  crawler.Fetcher
	strategy extract.Strategy
	pauser   crawler.Pauser
	logger   *zap.Logger
}

// Option customizes a Walker.
type Option func(*Walker)

// WithPauser replaces the politeness timer.
func WithPauser(p crawler.Pauser) Option {
	return func(w *Walker) { w.pauser = p }
}

// New constructs a Walker.
func New(cfg Config, cursor Cursor, fetcher crawler.Fetcher, strategy extract.Strategy, logger *zap.Logger, opts ...Option) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConsecutiveSkips <= 0 {
		cfg.MaxConsecutiveSkips = defaultMaxSkips
	}
	w := &Walker{
		cfg:      cfg,
		cursor:   cursor,
		fetcher:  fetcher,
		strategy: strategy,
		pauser:   crawler.TimerPauser{},
		logger: logger.With(
			zap.String("site", string(cfg.Site)),
			zap.String("category", cfg.Category),
		),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run walks listings until a stop condition and returns the kept records,
// newest first in listing order. Records gathered before a failure are kept.
func (w *Walker) Run(ctx context.Context) []crawler.Article {
	defer func() {
		if err := w.cursor.Close(); err != nil {
			w.logger.Warn("close cursor failed", zap.Error(err))
		}
	}()

	var (
		records []crawler.Article
		seen    = make(map[string]struct{})
		listing Listing
		urls    []string
		batch   []crawler.Article
		skips   int
		stopped bool
	)

	st := stateFetchingListing
	for st != stateStop {
		if ctx.Err() != nil {
			w.logger.Info("walk canceled", zap.Stringer("state", st))
			break
		}
		switch st {
		case stateFetchingListing:
			var sig Signal
			listing, sig = w.cursor.Fetch(ctx)
			switch sig {
			case SignalStop:
				w.logger.Info("listing signaled end of range", zap.String("listing", listing.Label))
				metrics.ObserveListing(string(w.cfg.Site), "stop")
				st = stateStop
			case SignalSkip:
				skips++
				metrics.ObserveListing(string(w.cfg.Site), "skipped")
				w.logger.Warn("listing fetch failed; skipping",
					zap.String("listing", listing.Label),
					zap.Int("consecutive_skips", skips),
				)
				if skips >= w.cfg.MaxConsecutiveSkips {
					w.logger.Error("too many consecutive listing failures; stopping")
					st = stateStop
					break
				}
				st = stateContinue
			default:
				skips = 0
				metrics.ObserveListing(string(w.cfg.Site), "ok")
				st = stateExtractingURLs
			}

		case stateExtractingURLs:
			found, err := w.cursor.Extract(listing)
			if err != nil {
				w.logger.Warn("listing extraction failed; skipping", zap.String("listing", listing.Label), zap.Error(err))
				st = stateContinue
				break
			}
			if len(found) == 0 {
				w.logger.Info("listing has no articles; stopping", zap.String("listing", listing.Label))
				st = stateStop
				break
			}
			urls = unseen(found, seen)
			if len(urls) == 0 {
				// A site that clamps out-of-range pages serves its last page again.
				w.logger.Info("listing repeats already seen articles; stopping",
					zap.String("listing", listing.Label),
					zap.Int("found", len(found)),
				)
				metrics.ObserveListing(string(w.cfg.Site), "repeated")
				st = stateStop
				break
			}
			st = stateFetchingArticles

		case stateFetchingArticles:
			batch = w.collect(ctx, urls)
			st = stateTrimming

		case stateTrimming:
			kept, reached := timestamp.TrimBeforeCutoff(batch, w.cfg.Cutoff)
			records = append(records, kept...)
			for i := len(kept); i < len(batch); i++ {
				metrics.ObserveArticle(string(w.cfg.Site), "trimmed")
			}
			w.logger.Debug("batch trimmed",
				zap.String("listing", listing.Label),
				zap.Int("batch", len(batch)),
				zap.Int("kept", len(kept)),
				zap.Bool("cutoff_reached", reached),
			)
			switch {
			case reached:
				w.logger.Info("cutoff reached; stopping", zap.String("listing", listing.Label))
				stopped = true
				st = stateStop
			case listing.Final:
				w.logger.Info("listing range exhausted; stopping", zap.String("listing", listing.Label))
				stopped = true
				st = stateStop
			default:
				st = stateContinue
			}

		case stateContinue:
			w.pauser.Pause(ctx, w.cfg.Politeness.Draw())
			w.cursor.Advance()
			st = stateFetchingListing
		}
	}

	w.logger.Info("walk finished", zap.Int("records", len(records)), zap.Bool("boundary_reached", stopped))
	return records
}

// collect fetches urls concurrently and extracts them in listing order.
// Failed items are logged and dropped.
func (w *Walker) collect(ctx context.Context, urls []string) []crawler.Article {
	if len(urls) == 0 {
		return nil
	}
	site := string(w.cfg.Site)
	outcomes := w.fetcher.FetchAll(ctx, urls)
	batch := make([]crawler.Article, 0, len(urls))
	for i, out := range outcomes {
		if !out.OK() {
			metrics.ObserveArticle(site, "fetch_failed")
			w.logger.Warn("article fetch failed",
				zap.String("url", urls[i]),
				zap.Int("status", out.StatusCode),
				zap.String("reason", out.Reason),
				zap.String("error_kind", string(out.ErrorKind)),
				zap.Int("attempts", out.Attempts),
				zap.Error(out.Err),
			)
			continue
		}
		rec, err := w.strategy.Extract(extract.Page{URL: urls[i], Category: w.cfg.Category, HTML: out.Body})
		if err != nil {
			metrics.ObserveArticle(site, "extract_failed")
			w.logger.Warn("article extraction failed", zap.String("url", urls[i]), zap.Error(err))
			continue
		}
		metrics.ObserveArticle(site, "ok")
		batch = append(batch, rec)
	}
	return batch
}

func unseen(urls []string, seen map[string]struct{}) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
