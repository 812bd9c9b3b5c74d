package walker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/extract"
	"github.com/JakeFAU/crypto-news-crawler/internal/timestamp"
)

type fakeFetcher struct {
	mu       sync.Mutex
	outcomes map[string]crawler.FetchOutcome
	calls    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{outcomes: make(map[string]crawler.FetchOutcome)}
}

func (f *fakeFetcher) set(u string, body string) {
	f.outcomes[u] = crawler.FetchOutcome{URL: u, FinalURL: u, StatusCode: 200, Body: []byte(body), Attempts: 1}
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) crawler.FetchOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, u)
	if out, ok := f.outcomes[u]; ok {
		return out
	}
	return crawler.FetchOutcome{URL: u, StatusCode: 404, Reason: "Not Found", ErrorKind: crawler.ErrorKindStatus, Attempts: 1}
}

func (f *fakeFetcher) FetchAll(ctx context.Context, urls []string) []crawler.FetchOutcome {
	out := make([]crawler.FetchOutcome, len(urls))
	for i, u := range urls {
		out[i] = f.Fetch(ctx, u)
	}
	return out
}

func (f *fakeFetcher) called(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == u {
			return true
		}
	}
	return false
}

type recordingPauser struct{ delays []time.Duration }

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) { p.delays = append(p.delays, d) }

// bodyStrategy treats an article body as "title|first upload time".
var bodyStrategy = extract.StrategyFunc(func(page extract.Page) (crawler.Article, error) {
	parts := strings.SplitN(string(page.HTML), "|", 2)
	if len(parts) != 2 {
		return crawler.Article{}, &extract.Error{Site: crawler.SiteHankyung, URL: page.URL, Field: "title", Err: extract.ErrMissingElement}
	}
	return crawler.Article{
		Title:           parts[0],
		FirstUploadTime: crawler.Optional(parts[1]),
		URL:             page.URL,
		Category:        page.Category,
		Website:         crawler.SiteHankyung,
	}, nil
})

func listingHTML(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range links {
		fmt.Fprintf(&b, `<h2 class="news-tit"><a href="%s">x</a></h2>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func mustCutoff(t *testing.T, v string) time.Time {
	t.Helper()
	c, err := timestamp.Parse(v)
	require.NoError(t, err)
	return c
}

func pageURL(p int) string { return fmt.Sprintf("https://example.test/list?page=%d", p) }

func newPageWalker(t *testing.T, f *fakeFetcher, cutoff string, p crawler.Pauser) *Walker {
	t.Helper()
	base, err := url.Parse("https://example.test/")
	require.NoError(t, err)
	cursor := NewPageCursor(f, pageURL, "h2.news-tit a", base, false)
	cfg := Config{
		Site:       crawler.SiteHankyung,
		Category:   "암호화폐",
		Cutoff:     mustCutoff(t, cutoff),
		Politeness: crawler.Delay{Min: 2 * time.Second, Max: 3 * time.Second},
	}
	return New(cfg, cursor, f, bodyStrategy, zap.NewNop(), WithPauser(p))
}

func TestWalkerStopsAtCutoff(t *testing.T) {
	type page struct {
		links    []string
		articles map[string]string
	}
	tests := []struct {
		name       string
		pages      []page
		cutoff     string
		wantTitles []string
	}{
		{
			name: "two links per page",
			pages: []page{
				{links: []string{"/a/1", "/a/2"}, articles: map[string]string{
					"/a/1": "one|2024-03-02 10:00",
					"/a/2": "two|2024-03-02 09:00",
				}},
				{links: []string{"/a/3", "/a/4"}, articles: map[string]string{
					"/a/3": "three|2024-03-01 12:00",
					"/a/4": "four|2024-02-28 08:00",
				}},
				{links: []string{"/a/5"}, articles: map[string]string{
					"/a/5": "five|2024-02-27 08:00",
				}},
			},
			cutoff:     "2024-03-01 00:00",
			wantTitles: []string{"one", "two", "three"},
		},
		{
			name: "three new then one of two",
			pages: []page{
				{links: []string{"/a/1", "/a/2", "/a/3"}, articles: map[string]string{
					"/a/1": "one|2024-12-31 23:00",
					"/a/2": "two|2024-12-31 12:00",
					"/a/3": "three|2024-12-30 18:00",
				}},
				{links: []string{"/a/4", "/a/5"}, articles: map[string]string{
					"/a/4": "four|2024-12-30 10:00",
					"/a/5": "five|2024-12-29 08:00",
				}},
				{links: []string{"/a/6"}, articles: map[string]string{
					"/a/6": "six|2024-12-28 08:00",
				}},
			},
			cutoff:     "2024-12-30 00:00",
			wantTitles: []string{"one", "two", "three", "four"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			for i, pg := range tt.pages {
				f.set(pageURL(i+1), listingHTML(pg.links...))
				for path, body := range pg.articles {
					f.set("https://example.test"+path, body)
				}
			}

			p := &recordingPauser{}
			records := newPageWalker(t, f, tt.cutoff, p).Run(context.Background())

			titles := make([]string, len(records))
			for i, r := range records {
				titles[i] = r.Title
			}
			assert.Equal(t, tt.wantTitles, titles)
			assert.False(t, f.called(pageURL(3)), "walk must stop once the cutoff is crossed")
			require.Len(t, p.delays, 1)
			assert.GreaterOrEqual(t, p.delays[0], 2*time.Second)
			assert.LessOrEqual(t, p.delays[0], 3*time.Second)
		})
	}
}

func TestWalkerStopsWhenListingRepeats(t *testing.T) {
	f := newFakeFetcher()
	for p := 1; p <= 50; p++ {
		f.set(pageURL(p), listingHTML("/a/1", "/a/2"))
	}
	f.set("https://example.test/a/1", "one|2024-03-02 10:00")
	f.set("https://example.test/a/2", "two|2024-03-02 09:00")

	records := newPageWalker(t, f, "2024-01-01 00:00", &recordingPauser{}).Run(context.Background())

	require.Len(t, records, 2)
	assert.True(t, f.called(pageURL(2)))
	assert.False(t, f.called(pageURL(3)), "a page of already seen links ends the walk")
	assert.Len(t, f.calls, 4)
}

func TestWalkerStopsOnEmptyListing(t *testing.T) {
	f := newFakeFetcher()
	f.set(pageURL(1), listingHTML("/a/1"))
	f.set(pageURL(2), listingHTML())
	f.set("https://example.test/a/1", "one|2024-03-02 10:00")

	records := newPageWalker(t, f, "2024-01-01 00:00", &recordingPauser{}).Run(context.Background())

	require.Len(t, records, 1)
	assert.False(t, f.called(pageURL(3)))
}

func TestWalkerSkipsFailedListing(t *testing.T) {
	f := newFakeFetcher()
	f.set(pageURL(1), listingHTML("/a/1"))
	// page 2 is missing and returns 404
	f.set(pageURL(3), listingHTML("/a/3"))
	f.set(pageURL(4), listingHTML())
	f.set("https://example.test/a/1", "one|2024-03-02 10:00")
	f.set("https://example.test/a/3", "three|2024-03-02 08:00")

	records := newPageWalker(t, f, "2024-01-01 00:00", &recordingPauser{}).Run(context.Background())

	require.Len(t, records, 2)
	assert.Equal(t, "three", records[1].Title)
	assert.True(t, f.called(pageURL(4)))
}

func TestWalkerStopsAfterConsecutiveSkips(t *testing.T) {
	f := newFakeFetcher()
	w := newPageWalker(t, f, "2024-01-01 00:00", &recordingPauser{})
	w.cfg.MaxConsecutiveSkips = 3

	records := w.Run(context.Background())

	assert.Empty(t, records)
	assert.Len(t, f.calls, 3)
}

func TestWalkerDropsFailedArticles(t *testing.T) {
	f := newFakeFetcher()
	f.set(pageURL(1), listingHTML("/a/1", "/a/broken", "/a/missing", "/a/2"))
	f.set(pageURL(2), listingHTML())
	f.set("https://example.test/a/1", "one|2024-03-02 10:00")
	f.set("https://example.test/a/broken", "no separator")
	f.set("https://example.test/a/2", "two|2024-03-02 09:00")

	records := newPageWalker(t, f, "2024-01-01 00:00", &recordingPauser{}).Run(context.Background())

	require.Len(t, records, 2)
	assert.Equal(t, []string{"one", "two"}, []string{records[0].Title, records[1].Title})
}

func TestWalkerKeepsRecordsWithoutTimestamp(t *testing.T) {
	f := newFakeFetcher()
	f.set(pageURL(1), listingHTML("/a/1"))
	f.set(pageURL(2), listingHTML())
	f.set("https://example.test/a/1", "undated|")

	strategy := extract.StrategyFunc(func(page extract.Page) (crawler.Article, error) {
		rec, err := bodyStrategy(page)
		rec.FirstUploadTime = crawler.Optional("")
		return rec, err
	})
	base, _ := url.Parse("https://example.test/")
	w := New(Config{Site: crawler.SiteHankyung, Cutoff: mustCutoff(t, "2030-01-01 00:00")},
		NewPageCursor(f, pageURL, "h2.news-tit a", base, false), f, strategy, nil, WithPauser(&recordingPauser{}))

	records := w.Run(context.Background())
	require.Len(t, records, 1)
	assert.Nil(t, records[0].FirstUploadTime)
}

func TestWalkerDeduplicatesAcrossListings(t *testing.T) {
	f := newFakeFetcher()
	f.set(pageURL(1), listingHTML("/a/1", "/a/2"))
	f.set(pageURL(2), listingHTML("/a/2", "/a/3"))
	f.set(pageURL(3), listingHTML())
	f.set("https://example.test/a/1", "one|2024-03-02 10:00")
	f.set("https://example.test/a/2", "two|2024-03-02 09:00")
	f.set("https://example.test/a/3", "three|2024-03-02 08:00")

	records := newPageWalker(t, f, "2024-01-01 00:00", &recordingPauser{}).Run(context.Background())

	require.Len(t, records, 3)
	assert.Equal(t, "three", records[2].Title)
}

func TestPageCursorStopsOnRedirect(t *testing.T) {
	f := newFakeFetcher()
	f.outcomes[pageURL(1)] = crawler.FetchOutcome{
		URL: pageURL(1), FinalURL: "https://example.test/", StatusCode: 200,
		Body: []byte("home"), Redirects: []string{pageURL(1)},
	}
	c := NewPageCursor(f, pageURL, "a", nil, true)

	_, sig := c.Fetch(context.Background())
	assert.Equal(t, SignalStop, sig)

	lenient := NewPageCursor(f, pageURL, "a", nil, false)
	listing, sig := lenient.Fetch(context.Background())
	assert.Equal(t, SignalProceed, sig)
	assert.Equal(t, []byte("home"), listing.Body)
}

func TestIDRangeCursorWindows(t *testing.T) {
	c := NewIDRangeCursor(25, 10, func(id int) string { return fmt.Sprintf("n/%d", id) })

	l, sig := c.Fetch(context.Background())
	require.Equal(t, SignalProceed, sig)
	assert.Len(t, l.URLs, 11)
	assert.Equal(t, "n/25", l.URLs[0])
	assert.Equal(t, "n/15", l.URLs[10])
	assert.False(t, l.Final)

	c.Advance()
	assert.Equal(t, 14, c.Next())
	l, sig = c.Fetch(context.Background())
	require.Equal(t, SignalProceed, sig)
	assert.Equal(t, "n/14", l.URLs[0])
	assert.Equal(t, "n/4", l.URLs[10])
	assert.False(t, l.Final)

	c.Advance()
	l, sig = c.Fetch(context.Background())
	require.Equal(t, SignalProceed, sig)
	assert.Equal(t, []string{"n/3", "n/2"}, l.URLs)
	assert.True(t, l.Final)

	c.Advance()
	_, sig = c.Fetch(context.Background())
	assert.Equal(t, SignalStop, sig)
}

func TestIDRangeCursorBelowMinimum(t *testing.T) {
	c := NewIDRangeCursor(1, 20, func(id int) string { return fmt.Sprint(id) })
	_, sig := c.Fetch(context.Background())
	assert.Equal(t, SignalStop, sig)
}

func TestWalkerIDRangeExhaustion(t *testing.T) {
	f := newFakeFetcher()
	urlFor := func(id int) string { return fmt.Sprintf("https://example.test/news/%d", id) }
	for id := 2; id <= 6; id++ {
		f.set(urlFor(id), fmt.Sprintf("n%d|2024-03-02 10:0%d", id, id))
	}
	w := New(Config{Site: crawler.SiteBloomingbit, Cutoff: mustCutoff(t, "2024-01-01 00:00")},
		NewIDRangeCursor(6, 2, urlFor), f, bodyStrategy, zap.NewNop(), WithPauser(&recordingPauser{}))

	records := w.Run(context.Background())

	require.Len(t, records, 5)
	assert.Equal(t, "n6", records[0].Title)
	assert.Equal(t, "n2", records[4].Title)
	assert.False(t, f.called(urlFor(1)))
}

type fakePage struct {
	hrefs      []string
	batches    [][]string
	clicks     int
	navigated  string
	navErr     error
	closed     bool
	moreHidden bool
}

func (p *fakePage) Navigate(_ context.Context, u string) error {
	p.navigated = u
	if p.navErr != nil {
		return p.navErr
	}
	p.hrefs = append(p.hrefs, p.batches[0]...)
	return nil
}

func (p *fakePage) WaitVisible(context.Context, string) error { return nil }

func (p *fakePage) Click(context.Context, string) error {
	p.clicks++
	if p.clicks < len(p.batches) {
		p.hrefs = append(p.hrefs, p.batches[p.clicks]...)
	}
	return nil
}

func (p *fakePage) Count(_ context.Context, selector string) (int, error) {
	if selector == "button.more" {
		if p.moreHidden {
			return 0, nil
		}
		return 1, nil
	}
	return len(p.hrefs), nil
}

func (p *fakePage) Hrefs(context.Context, string) ([]string, error) {
	return append([]string(nil), p.hrefs...), nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

func clickConfig() ClickNextConfig {
	return ClickNextConfig{
		ListURL:      "https://example.test/coin-news",
		ItemSelector: "#newsList > section a",
		MoreSelector: "button.more",
		PollInterval: time.Millisecond,
		PollAttempts: 3,
	}
}

func TestClickNextCursorRevealsNewItems(t *testing.T) {
	page := &fakePage{batches: [][]string{{"/n/3", "/n/2"}, {"/n/1"}}}
	base, _ := url.Parse("https://example.test/")
	c := NewClickNextCursor(clickConfig(), page, base, &recordingPauser{}, nil)

	l, sig := c.Fetch(context.Background())
	require.Equal(t, SignalProceed, sig)
	assert.Equal(t, []string{"https://example.test/n/3", "https://example.test/n/2"}, l.URLs)
	assert.Equal(t, "https://example.test/coin-news", page.navigated)

	c.Advance()
	l, sig = c.Fetch(context.Background())
	require.Equal(t, SignalProceed, sig)
	assert.Equal(t, []string{"https://example.test/n/1"}, l.URLs)

	// the third click reveals nothing
	c.Advance()
	_, sig = c.Fetch(context.Background())
	assert.Equal(t, SignalStop, sig)

	require.NoError(t, c.Close())
	assert.True(t, page.closed)
}

func TestClickNextCursorStopsWithoutControl(t *testing.T) {
	page := &fakePage{batches: [][]string{{"/n/1"}}, moreHidden: true}
	c := NewClickNextCursor(clickConfig(), page, nil, &recordingPauser{}, nil)

	_, sig := c.Fetch(context.Background())
	require.Equal(t, SignalProceed, sig)
	c.Advance()
	_, sig = c.Fetch(context.Background())
	assert.Equal(t, SignalStop, sig)
	assert.Zero(t, page.clicks)
}

func TestClickNextCursorStopsOnNavigationFailure(t *testing.T) {
	page := &fakePage{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	c := NewClickNextCursor(clickConfig(), page, nil, &recordingPauser{}, nil)

	_, sig := c.Fetch(context.Background())
	assert.Equal(t, SignalStop, sig)
}

func TestWalkerClosesCursor(t *testing.T) {
	page := &fakePage{batches: [][]string{{"https://example.test/n/1"}}, moreHidden: true}
	f := newFakeFetcher()
	f.set("https://example.test/n/1", "one|2024-03-02 10:00")
	c := NewClickNextCursor(clickConfig(), page, nil, &recordingPauser{}, nil)
	w := New(Config{Site: crawler.SiteBlockstreet, Cutoff: mustCutoff(t, "2024-01-01 00:00")},
		c, f, bodyStrategy, zap.NewNop(), WithPauser(&recordingPauser{}))

	records := w.Run(context.Background())

	require.Len(t, records, 1)
	assert.True(t, page.closed)
}

func TestWalkerHonorsCanceledContext(t *testing.T) {
	f := newFakeFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := newPageWalker(t, f, "2024-01-01 00:00", &recordingPauser{}).Run(ctx)

	assert.Empty(t, records)
	assert.Empty(t, f.calls)
}
