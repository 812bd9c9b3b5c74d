// Package headless drives a headless Chrome through chromedp for sites whose
// listings are rendered client-side.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

// Config controls the behavior of the headless browser.
type Config struct {
	// MaxParallel caps open tabs; zero means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Browser implements crawler.Browser on top of one Chrome allocator.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a browser backed by chromedp. Chrome is not started
// until the first page is opened.
func NewChromedp(cfg Config) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser process down.
func (b *Browser) Close() {
	b.allocCancel()
}

// NewPage opens a tab. The returned page holds a parallelism slot until closed.
func (b *Browser) NewPage(ctx context.Context) (crawler.Page, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(b.allocator)
	// The first Run allocates the tab; it must use the tab context itself.
	if err := chromedp.Run(tabCtx, b.setupAction()); err != nil {
		cancel()
		b.release()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &Page{
		ctx:     tabCtx,
		cancel:  cancel,
		timeout: b.cfg.NavigationTimeout,
		release: b.release,
	}, nil
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// Page is one chromedp tab.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	release func()
	once    sync.Once
}

// Navigate loads url and waits for the body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

// WaitVisible blocks until selector matches a visible node.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Click clicks the first visible node matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Count returns how many nodes currently match selector without waiting.
func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	var n int
	if err := p.run(ctx, chromedp.Evaluate(countScript(selector), &n)); err != nil {
		return 0, err
	}
	return n, nil
}

// Hrefs returns the href attribute of every node matching selector, in document order.
func (p *Page) Hrefs(ctx context.Context, selector string) ([]string, error) {
	var hrefs []string
	if err := p.run(ctx, chromedp.Evaluate(hrefsScript(selector), &hrefs)); err != nil {
		return nil, err
	}
	return hrefs, nil
}

// Close closes the tab and frees its slot. It is safe to call more than once.
func (p *Page) Close() error {
	var err error
	p.once.Do(func() {
		if cerr := chromedp.Cancel(p.ctx); cerr != nil && !errors.Is(cerr, chromedp.ErrInvalidContext) {
			err = fmt.Errorf("close tab: %w", cerr)
		}
		p.cancel()
		if p.release != nil {
			p.release()
		}
	})
	return err
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func countScript(selector string) string {
	return fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
}

func hrefsScript(selector string) string {
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(function (el) { return el.getAttribute("href") || ""; })`,
		jsString(selector),
	)
}

func jsString(s string) string {
	quoted, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(quoted)
}
