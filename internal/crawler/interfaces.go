package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves documents with retries.
type Fetcher interface {
	// Fetch blocks until the URL is retrieved or its retries are exhausted.
	Fetch(ctx context.Context, url string) FetchOutcome
	// FetchAll fetches every URL concurrently and returns outcomes in input order.
	FetchAll(ctx context.Context, urls []string) []FetchOutcome
}

// Browser opens headless browser tabs.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// Page is one browser tab. Callers must Close it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Count(ctx context.Context, selector string) (int, error)
	Hrefs(ctx context.Context, selector string) ([]string, error)
	Close() error
}

// BlobStore writes serialized output and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ArticleStore receives persisted records for downstream indexing.
type ArticleStore interface {
	UpsertArticles(ctx context.Context, runID string, records []Article) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pauser sleeps between requests.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
