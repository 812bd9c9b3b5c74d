// Package orchestrator fans site crawls out across isolated runners, keeps
// each site's records, and persists them to their destinations.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/metrics"
)

// ErrSiteFailed wraps the error of a site whose run produced no records.
var ErrSiteFailed = errors.New("site run failed")

// EventSitePersisted names the notification sent after a site is written.
const EventSitePersisted = "site_persisted"

// DefaultOutputDir is where destinations default to.
const DefaultOutputDir = "datas/news_data"

// SiteResult is the per-site accumulation.
type SiteResult struct {
	Site        crawler.Site
	Destination string
	Records     []crawler.Article
	Err         error
	Duration    time.Duration
}

// SitePersisted is the notification payload.
type SitePersisted struct {
	Event       string       `json:"event"`
	RunID       string       `json:"run_id"`
	Site        crawler.Site `json:"site"`
	Records     int          `json:"records"`
	URI         string       `json:"uri"`
	Failed      bool         `json:"failed"`
	PersistedAt time.Time    `json:"persisted_at"`
}

// Options wires an Orchestrator. Runner and Blobs are required.
type Options struct {
	Runner Runner
	// Blobs receives the destination string as its path.
	Blobs     crawler.BlobStore
	Articles  crawler.ArticleStore
	Publisher crawler.Publisher
	Topic     string
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	OutputDir string
	Logger    *zap.Logger
}

// Orchestrator owns the registered sites and their results.
type Orchestrator struct {
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	order   []crawler.Site
	results map[crawler.Site]*SiteResult
	runID   string
}

// New validates opts and returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if opts.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	if opts.Clock == nil {
		opts.Clock = utcClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		opts:    opts,
		logger:  opts.Logger,
		results: make(map[crawler.Site]*SiteResult),
	}, nil
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// DefaultDestination returns {dir}/{site}_data.json.
func DefaultDestination(dir string, site crawler.Site) string {
	return filepath.Join(dir, string(site)+"_data.json")
}

// Register adds a site. An empty destination uses the default file name.
// Registering a site again replaces its destination.
func (o *Orchestrator) Register(name, destination string) error {
	site, err := crawler.ParseSite(name)
	if err != nil {
		return err
	}
	if destination == "" {
		destination = DefaultDestination(o.opts.OutputDir, site)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if res, ok := o.results[site]; ok {
		res.Destination = destination
		return nil
	}
	o.order = append(o.order, site)
	o.results[site] = &SiteResult{Site: site, Destination: destination, Records: []crawler.Article{}}
	return nil
}

// Sites returns the registered sites in registration order.
func (o *Orchestrator) Sites() []crawler.Site {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]crawler.Site(nil), o.order...)
}

// RunID returns the id of the current run, or "" before Run.
func (o *Orchestrator) RunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runID
}

// Run crawls every registered site concurrently and waits for all of them.
// A failed site keeps an empty record list; the returned error joins the
// per-site failures, each wrapping ErrSiteFailed.
func (o *Orchestrator) Run(ctx context.Context, params RunParams) error {
	sites := o.Sites()
	if len(sites) == 0 {
		return errors.New("no sites registered")
	}
	runID, err := o.newRunID()
	if err != nil {
		return err
	}
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("run started",
		zap.Int("sites", len(sites)),
		zap.Time("cutoff", params.Cutoff),
	)

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(sites))
	)
	for i, site := range sites {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = o.runSite(ctx, logger, site, params)
		}()
	}
	wg.Wait()

	err = errors.Join(errs...)
	logger.Info("run finished", zap.Bool("failures", err != nil))
	return err
}

func (o *Orchestrator) runSite(ctx context.Context, logger *zap.Logger, site crawler.Site, params RunParams) error {
	logger = logger.With(zap.String("site", string(site)))
	started := o.opts.Clock.Now()
	records, err := o.opts.Runner.RunSite(ctx, site, params)
	elapsed := o.opts.Clock.Now().Sub(started)
	if err != nil {
		records = []crawler.Article{}
		err = fmt.Errorf("%w: %s: %w", ErrSiteFailed, site, err)
		logger.Error("site run failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		metrics.ObserveSiteRun(string(site), "failed", 0)
	} else {
		if records == nil {
			records = []crawler.Article{}
		}
		logger.Info("site run finished", zap.Int("records", len(records)), zap.Duration("elapsed", elapsed))
		metrics.ObserveSiteRun(string(site), "ok", len(records))
	}

	o.mu.Lock()
	res := o.results[site]
	res.Records = records
	res.Err = err
	res.Duration = elapsed
	o.mu.Unlock()
	return err
}

func (o *Orchestrator) newRunID() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.opts.IDs == nil {
		o.runID = o.opts.Clock.Now().UTC().Format("20060102T150405Z")
		return o.runID, nil
	}
	id, err := o.opts.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("run id: %w", err)
	}
	o.runID = id
	return id, nil
}

// Results returns a snapshot of every registered site's result.
func (o *Orchestrator) Results() map[crawler.Site]SiteResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[crawler.Site]SiteResult, len(o.results))
	for site, res := range o.results {
		cp := *res
		cp.Records = append([]crawler.Article{}, res.Records...)
		out[site] = cp
	}
	return out
}

// Persist writes each site's records to its destination, including an empty
// array for failed sites, then feeds the optional article store and
// publisher. It attempts every site and joins the errors.
func (o *Orchestrator) Persist(ctx context.Context) error {
	results := o.Results()
	runID := o.RunID()
	var errs []error
	for _, site := range o.Sites() {
		if err := o.persistSite(ctx, runID, results[site]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) persistSite(ctx context.Context, runID string, res SiteResult) error {
	logger := o.logger.With(zap.String("run_id", runID), zap.String("site", string(res.Site)))

	var buf bytes.Buffer
	if err := EncodeRecords(&buf, res.Records); err != nil {
		return fmt.Errorf("%s: %w", res.Site, err)
	}
	uri, err := o.opts.Blobs.PutObject(ctx, res.Destination, "application/json", &buf)
	if err != nil {
		logger.Error("write output failed", zap.String("destination", res.Destination), zap.Error(err))
		return fmt.Errorf("%s: write %s: %w", res.Site, res.Destination, err)
	}
	logger.Info("output written", zap.String("uri", uri), zap.Int("records", len(res.Records)))

	var errs []error
	if o.opts.Articles != nil && len(res.Records) > 0 {
		if err := o.opts.Articles.UpsertArticles(ctx, runID, res.Records); err != nil {
			logger.Error("article upsert failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: upsert: %w", res.Site, err))
		}
	}
	if o.opts.Publisher != nil && o.opts.Topic != "" {
		event := SitePersisted{
			Event:       EventSitePersisted,
			RunID:       runID,
			Site:        res.Site,
			Records:     len(res.Records),
			URI:         uri,
			Failed:      res.Err != nil,
			PersistedAt: o.opts.Clock.Now(),
		}
		if _, err := o.opts.Publisher.Publish(ctx, o.opts.Topic, event); err != nil {
			logger.Warn("publish notification failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: publish: %w", res.Site, err))
		}
	}
	return errors.Join(errs...)
}
