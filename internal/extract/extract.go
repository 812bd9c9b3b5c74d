// Package extract holds one parsing strategy per supported site. Each strategy
// is a pure function from article HTML to a normalized record.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/timestamp"
)

// ErrMissingElement is wrapped by Error when a required node is absent.
var ErrMissingElement = errors.New("required element missing")

// Page is the input of a strategy.
type Page struct {
	URL string
	// Category is supplied by the walker; strategies that read the category
	// from the page use it as a fallback.
	Category string
	HTML     []byte
}

// Error describes why a page could not be turned into a record.
type Error struct {
	Site  crawler.Site
	URL   string
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s field %q from %s: %v", e.Site, e.Field, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Strategy turns one article page into a record.
type Strategy interface {
	Extract(page Page) (crawler.Article, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(page Page) (crawler.Article, error)

// Extract calls f.
func (f StrategyFunc) Extract(page Page) (crawler.Article, error) {
	return f(page)
}

// Registry maps sites to their strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[crawler.Site]Strategy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[crawler.Site]Strategy)}
}

// Register binds s to site. Registering a site twice is an error.
func (r *Registry) Register(site crawler.Site, s Strategy) error {
	if !site.Valid() {
		return fmt.Errorf("register strategy: %w: %q", crawler.ErrUnknownSite, site)
	}
	if s == nil {
		return fmt.Errorf("register strategy for %s: strategy is nil", site)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[site]; exists {
		return fmt.Errorf("register strategy: %s already registered", site)
	}
	r.strategies[site] = s
	return nil
}

// Lookup returns the strategy for site.
func (r *Registry) Lookup(site crawler.Site) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[site]
	return s, ok
}

// Default returns a registry with every supported site registered.
func Default() *Registry {
	r := NewRegistry()
	for site, fn := range map[crawler.Site]StrategyFunc{
		crawler.SiteInvesting:   Investing,
		crawler.SiteHankyung:    Hankyung,
		crawler.SiteBloomingbit: Bloomingbit,
		crawler.SiteCoinreaders: Coinreaders,
		crawler.SiteBlockstreet: Blockstreet,
	} {
		if err := r.Register(site, fn); err != nil {
			panic(err)
		}
	}
	return r
}

// document parses the page and prepares an error helper bound to it.
type document struct {
	*goquery.Document
	site crawler.Site
	page Page
}

func parse(site crawler.Site, page Page) (*document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return nil, &Error{Site: site, URL: page.URL, Field: "html", Err: err}
	}
	return &document{Document: doc, site: site, page: page}, nil
}

func (d *document) fail(field string, err error) error {
	if err == nil {
		err = ErrMissingElement
	}
	return &Error{Site: d.site, URL: d.page.URL, Field: field, Err: err}
}

// requireText returns the trimmed text of the first match of selector.
func (d *document) requireText(field, selector string) (string, error) {
	sel := d.Find(selector).First()
	if sel.Length() == 0 {
		return "", d.fail(field, nil)
	}
	return strings.TrimSpace(sel.Text()), nil
}

// requireHTML returns the outer HTML of the first match of selector.
func (d *document) requireHTML(field, selector string) (string, error) {
	sel := d.Find(selector).First()
	if sel.Length() == 0 {
		return "", d.fail(field, nil)
	}
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", d.fail(field, err)
	}
	return strings.TrimSpace(html), nil
}

// timestamp normalizes raw for the document's site.
func (d *document) timestamp(field, raw string) (*string, error) {
	canonical, err := timestamp.Normalize(d.site, raw)
	if err != nil {
		return nil, d.fail(field, err)
	}
	return &canonical, nil
}

func (d *document) record(title, content string) crawler.Article {
	note := d.site.Note()
	return crawler.Article{
		Title:    title,
		Content:  content,
		URL:      d.page.URL,
		Category: d.page.Category,
		Website:  d.site,
		Note:     &note,
	}
}

// joinTexts joins the trimmed, non-empty texts of sel with ", ".
func joinTexts(sel *goquery.Selection) *string {
	names := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			names = append(names, name)
		}
	})
	return crawler.Optional(strings.Join(names, ", "))
}
