package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crypto-news-crawler/internal/clock/system"
	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	pubmemory "github.com/JakeFAU/crypto-news-crawler/internal/publisher/memory"
	"github.com/JakeFAU/crypto-news-crawler/internal/storage/memory"
)

type stubRunner struct {
	mu    sync.Mutex
	calls []crawler.Site
	fn    func(site crawler.Site) ([]crawler.Article, error)
}

func (r *stubRunner) RunSite(_ context.Context, site crawler.Site, _ RunParams) ([]crawler.Article, error) {
	r.mu.Lock()
	r.calls = append(r.calls, site)
	r.mu.Unlock()
	return r.fn(site)
}

type recordingStore struct {
	mu    sync.Mutex
	runs  []string
	count int
}

func (s *recordingStore) UpsertArticles(_ context.Context, runID string, records []crawler.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, runID)
	s.count += len(records)
	return nil
}

type fixedIDs string

func (f fixedIDs) NewID() (string, error) { return string(f), nil }

func article(site crawler.Site, url string) crawler.Article {
	return crawler.Article{
		Title:           "비트코인 <속보>",
		FirstUploadTime: crawler.Optional("2024-12-27 15:30"),
		Content:         "<p>본문</p>",
		URL:             url,
		Category:        "암호화폐",
		Website:         site,
		Note:            crawler.Optional(site.Note()),
	}
}

func newTestOrchestrator(t *testing.T, runner Runner, opts Options) (*Orchestrator, *memory.BlobStore) {
	t.Helper()
	blobs := memory.NewBlobStore()
	opts.Runner = runner
	opts.Blobs = blobs
	opts.OutputDir = "out"
	opts.Clock = system.Fixed(time.Date(2024, 12, 28, 0, 0, 0, 0, time.UTC))
	o, err := New(opts)
	require.NoError(t, err)
	return o, blobs
}

func TestRegisterValidatesSites(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, &stubRunner{}, Options{})
	require.NoError(t, o.Register("hankyung", ""))
	require.NoError(t, o.Register(" Investing ", "gs://bucket/investing.json"))
	err := o.Register("coindesk", "")
	assert.ErrorIs(t, err, crawler.ErrUnknownSite)

	assert.Equal(t, []crawler.Site{crawler.SiteHankyung, crawler.SiteInvesting}, o.Sites())
	results := o.Results()
	assert.Equal(t, filepath.Join("out", "hankyung_data.json"), results[crawler.SiteHankyung].Destination)
	assert.Equal(t, "gs://bucket/investing.json", results[crawler.SiteInvesting].Destination)

	require.NoError(t, o.Register("hankyung", "elsewhere.json"))
	assert.Len(t, o.Sites(), 2)
	assert.Equal(t, "elsewhere.json", o.Results()[crawler.SiteHankyung].Destination)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Blobs: memory.NewBlobStore()})
	assert.Error(t, err)
	_, err = New(Options{Runner: &stubRunner{}})
	assert.Error(t, err)
}

func TestRunIsolatesFailingSite(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{fn: func(site crawler.Site) ([]crawler.Article, error) {
		if site == crawler.SiteInvesting {
			return nil, errors.New("exit status 2")
		}
		return []crawler.Article{article(site, "https://"+string(site)+"/1")}, nil
	}}
	o, _ := newTestOrchestrator(t, runner, Options{IDs: fixedIDs("run-1")})
	for _, name := range []string{"hankyung", "investing", "coinreaders"} {
		require.NoError(t, o.Register(name, ""))
	}

	err := o.Run(context.Background(), RunParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSiteFailed)
	assert.Contains(t, err.Error(), "investing")
	assert.Equal(t, "run-1", o.RunID())

	results := o.Results()
	assert.Len(t, results[crawler.SiteHankyung].Records, 1)
	assert.Len(t, results[crawler.SiteCoinreaders].Records, 1)
	assert.NotNil(t, results[crawler.SiteInvesting].Records)
	assert.Empty(t, results[crawler.SiteInvesting].Records)
	assert.Error(t, results[crawler.SiteInvesting].Err)
	assert.Len(t, runner.calls, 3)
}

func TestRunWithInProcessPanic(t *testing.T) {
	t.Parallel()

	runner := InProcess{Crawl: func(_ context.Context, site crawler.Site, _ RunParams) ([]crawler.Article, error) {
		if site == crawler.SiteBlockstreet {
			panic("browser crashed")
		}
		return []crawler.Article{article(site, "u")}, nil
	}}
	o, _ := newTestOrchestrator(t, runner, Options{})
	require.NoError(t, o.Register("blockstreet", ""))
	require.NoError(t, o.Register("hankyung", ""))

	err := o.Run(context.Background(), RunParams{})
	assert.ErrorIs(t, err, ErrSiteFailed)
	assert.ErrorContains(t, err, "browser crashed")
	assert.Len(t, o.Results()[crawler.SiteHankyung].Records, 1)
	assert.NotEmpty(t, o.RunID())
}

func TestRunWithoutSites(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, &stubRunner{}, Options{})
	assert.Error(t, o.Run(context.Background(), RunParams{}))
}

func TestPersistWritesEverySite(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{fn: func(site crawler.Site) ([]crawler.Article, error) {
		if site == crawler.SiteInvesting {
			return nil, errors.New("boom")
		}
		return []crawler.Article{article(site, "https://www.hankyung.com/article/1")}, nil
	}}
	store := &recordingStore{}
	pub := pubmemory.New()
	o, blobs := newTestOrchestrator(t, runner, Options{
		IDs:       fixedIDs("run-7"),
		Articles:  store,
		Publisher: pub,
		Topic:     "news-persisted",
	})
	require.NoError(t, o.Register("hankyung", ""))
	require.NoError(t, o.Register("investing", "custom/investing.json"))
	require.Error(t, o.Run(context.Background(), RunParams{}))

	require.NoError(t, o.Persist(context.Background()))

	obj, ok := blobs.Get(filepath.Join("out", "hankyung_data.json"))
	require.True(t, ok)
	assert.Equal(t, "application/json", obj.ContentType)
	text := string(obj.Data)
	assert.Contains(t, text, "비트코인 <속보>", "non-ASCII and HTML characters stay unescaped")
	assert.Contains(t, text, "\n    {\n        \"news_title\"")
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(obj.Data, &decoded))
	require.Len(t, decoded, 1)
	assert.Nil(t, decoded[0]["news_last_upload_time"])
	assert.Equal(t, "국내 사이트", decoded[0]["note"])

	failed, ok := blobs.Get("custom/investing.json")
	require.True(t, ok)
	assert.Equal(t, "[]\n", string(failed.Data))

	assert.Equal(t, []string{"run-7"}, store.runs)
	assert.Equal(t, 1, store.count)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	first := msgs[0].Payload.(SitePersisted)
	assert.Equal(t, EventSitePersisted, first.Event)
	assert.Equal(t, "run-7", first.RunID)
	assert.Equal(t, crawler.SiteHankyung, first.Site)
	assert.Equal(t, 1, first.Records)
	assert.Equal(t, "memory://"+filepath.Join("out", "hankyung_data.json"), first.URI)
	assert.False(t, first.Failed)
	assert.True(t, msgs[1].Payload.(SitePersisted).Failed)
}

func TestPersistReportsPublishFailure(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	pub.FailWith(errors.New("unavailable"))
	runner := &stubRunner{fn: func(crawler.Site) ([]crawler.Article, error) { return nil, nil }}
	o, blobs := newTestOrchestrator(t, runner, Options{Publisher: pub, Topic: "t"})
	require.NoError(t, o.Register("hankyung", ""))
	require.NoError(t, o.Run(context.Background(), RunParams{}))

	err := o.Persist(context.Background())
	assert.ErrorContains(t, err, "unavailable")
	_, ok := blobs.Get(filepath.Join("out", "hankyung_data.json"))
	assert.True(t, ok, "output is written even when the notification fails")
}

func TestEncodeRecords(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	require.NoError(t, EncodeRecords(&b, nil))
	assert.Equal(t, "[]\n", b.String())

	b.Reset()
	require.NoError(t, EncodeRecords(&b, []crawler.Article{article(crawler.SiteHankyung, "https://x/1?a=1&b=2")}))
	out := b.String()
	assert.Contains(t, out, `"news_url": "https://x/1?a=1&b=2"`)
	keys := []string{
		"news_title", "news_first_upload_time", "news_last_upload_time", "news_author",
		"news_content", "news_url", "news_category", "news_website", "note",
	}
	last := -1
	for _, k := range keys {
		idx := strings.Index(out, `"`+k+`"`)
		require.Greater(t, idx, last, k)
		last = idx
	}

	records, err := DecodeRecords([]byte(out))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, crawler.SiteHankyung, records[0].Website)

	_, err = DecodeRecords([]byte("  "))
	assert.Error(t, err)
	records, err = DecodeRecords([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, records)
}

func TestParseRunParams(t *testing.T) {
	t.Parallel()

	p, err := ParseRunParams("2024-12-30 00:00", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultDateFormat, p.DateFormat)
	assert.Equal(t, time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), p.Cutoff)

	p, err = ParseRunParams("30/12/2024", "%d/%m/%Y")
	require.NoError(t, err)
	assert.Equal(t, 30, p.Cutoff.Day())

	_, err = ParseRunParams("", "%Y")
	assert.Error(t, err)
	_, err = ParseRunParams("yesterday", "%Y-%m-%d")
	assert.Error(t, err)
}
