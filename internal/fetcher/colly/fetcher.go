// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/metrics"
)

const maxRedirects = 10

// Config controls collector behavior and the retry loop.
type Config struct {
	UserAgent       string
	FollowRedirects bool
	Timeout         time.Duration
	// MaxRetry is the total number of attempts per URL.
	MaxRetry   int
	RetryDelay crawler.Delay
	// MaxConcurrency caps in-flight requests for FetchAll; zero means unbounded.
	MaxConcurrency int
}

type waiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements crawler.Fetcher using a fresh Colly collector per attempt.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	limiter   waiter
	pauser    crawler.Pauser
	logger    *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter consults l before every attempt.
func WithLimiter(l waiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithPauser replaces the timer used between retries.
func WithPauser(p crawler.Pauser) Option {
	return func(f *Fetcher) { f.pauser = p }
}

// WithTransport replaces the pooled HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.transport = rt }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	f := &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
		pauser:    crawler.TimerPauser{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a GET with up to MaxRetry attempts. Only a 200 response is
// treated as success; every other outcome waits a random RetryDelay and retries.
func (f *Fetcher) Fetch(ctx context.Context, url string) crawler.FetchOutcome {
	out := crawler.FetchOutcome{URL: url}
	for attempt := 1; attempt <= f.cfg.MaxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return canceled(url, err, out.Attempts)
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, url); err != nil {
				return canceled(url, err, out.Attempts)
			}
		}

		start := time.Now()
		out = f.attempt(ctx, url)
		out.Attempts = attempt
		metrics.ObserveFetchAttempt(url, outcomeLabel(out), time.Since(start))
		if out.OK() {
			return out
		}

		f.logger.Debug("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("status", out.StatusCode),
			zap.String("error_kind", string(out.ErrorKind)),
			zap.Error(out.Err),
		)
		if out.ErrorKind == crawler.ErrorKindCanceled {
			return out
		}
		if attempt < f.cfg.MaxRetry {
			f.pauser.Pause(ctx, f.cfg.RetryDelay.Draw())
		}
	}
	return out
}

// FetchAll fetches urls concurrently, bounded by MaxConcurrency, and returns
// the outcomes in the order of urls regardless of completion order.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []crawler.FetchOutcome {
	outcomes := make([]crawler.FetchOutcome, len(urls))
	var g errgroup.Group
	if f.cfg.MaxConcurrency > 0 {
		g.SetLimit(f.cfg.MaxConcurrency)
	}
	for i, u := range urls {
		g.Go(func() error {
			outcomes[i] = f.Fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors
	return outcomes
}

func (f *Fetcher) attempt(ctx context.Context, url string) crawler.FetchOutcome {
	done := make(chan crawler.FetchOutcome, 1)
	go func() {
		done <- f.visit(url)
	}()

	select {
	case <-ctx.Done():
		return canceled(url, ctx.Err(), 0)
	case out := <-done:
		return out
	}
}

func (f *Fetcher) visit(url string) crawler.FetchOutcome {
	var (
		out      crawler.FetchOutcome
		hookErr  error
		trail    redirectTrail
		finalURL = url
	)
	collector := f.buildCollector(&trail)
	f.configureCollectorHooks(collector, &out, &hookErr)

	err := collector.Visit(url)
	if err == nil {
		err = hookErr
	}
	if err != nil {
		// Transport failures carry no status or history, only the classification.
		return crawler.FetchOutcome{
			URL:       url,
			Err:       err,
			ErrorKind: classifyError(err),
		}
	}

	if trail.final != "" {
		finalURL = trail.final
	}
	out.URL = url
	out.FinalURL = finalURL
	out.Redirects = trail.hops
	if out.StatusCode != http.StatusOK {
		out.Body = nil
		out.ErrorKind = crawler.ErrorKindStatus
	}
	return out
}

type redirectTrail struct {
	hops  []string
	final string
}

func (f *Fetcher) buildCollector(trail *redirectTrail) *colly.Collector {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)
	collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		trail.hops = append(trail.hops, via[len(via)-1].URL.String())
		if !f.cfg.FollowRedirects {
			return http.ErrUseLastResponse
		}
		trail.final = req.URL.String()
		return nil
	})
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, out *crawler.FetchOutcome, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		out.StatusCode = r.StatusCode
		out.Reason = http.StatusText(r.StatusCode)
		out.Body = append([]byte{}, r.Body...)
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func canceled(url string, err error, attempts int) crawler.FetchOutcome {
	return crawler.FetchOutcome{
		URL:       url,
		Err:       fmt.Errorf("fetch canceled: %w", err),
		ErrorKind: crawler.ErrorKindCanceled,
		Attempts:  attempts,
	}
}

func outcomeLabel(out crawler.FetchOutcome) string {
	if out.OK() {
		return "ok"
	}
	return string(out.ErrorKind)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
