// Package storage routes output destinations to blob stores: plain paths and
// file:// URIs go to the local filesystem, gs://bucket/object to GCS.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/storage/local"
)

// Destination schemes.
const (
	SchemeFile = "file"
	SchemeGCS  = "gs"
)

// Destination is a parsed output location.
type Destination struct {
	Scheme string
	// Bucket is set for gs destinations.
	Bucket string
	// Path is a filesystem path or an object name.
	Path string
}

// ParseDestination accepts a plain path, a file:// URI or gs://bucket/object.
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, errors.New("destination is empty")
	}
	if !strings.Contains(raw, "://") {
		return Destination{Scheme: SchemeFile, Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("parse destination %q: %w", raw, err)
	}
	switch u.Scheme {
	case SchemeFile:
		p := u.Path
		if u.Host != "" {
			// file://relative/path keeps the host as the first segment.
			p = u.Host + p
		}
		if p == "" {
			return Destination{}, fmt.Errorf("destination %q has no path", raw)
		}
		return Destination{Scheme: SchemeFile, Path: p}, nil
	case SchemeGCS:
		object := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || object == "" {
			return Destination{}, fmt.Errorf("destination %q must be gs://bucket/object", raw)
		}
		return Destination{Scheme: SchemeGCS, Bucket: u.Host, Path: object}, nil
	default:
		return Destination{}, fmt.Errorf("unsupported destination scheme %q", u.Scheme)
	}
}

// BucketOpener returns a blob store writing to bucket.
type BucketOpener func(ctx context.Context, bucket string) (crawler.BlobStore, error)

// Router implements crawler.BlobStore where the path is a destination string.
type Router struct {
	openBucket BucketOpener

	mu      sync.Mutex
	buckets map[string]crawler.BlobStore
}

// NewRouter creates a Router. openBucket may be nil, in which case gs://
// destinations are rejected.
func NewRouter(openBucket BucketOpener) *Router {
	return &Router{openBucket: openBucket, buckets: make(map[string]crawler.BlobStore)}
}

// PutObject writes data to the store destination selects.
func (r *Router) PutObject(ctx context.Context, destination string, contentType string, data io.Reader) (string, error) {
	dest, err := ParseDestination(destination)
	if err != nil {
		return "", err
	}
	switch dest.Scheme {
	case SchemeGCS:
		store, err := r.bucket(ctx, dest.Bucket)
		if err != nil {
			return "", err
		}
		return store.PutObject(ctx, dest.Path, contentType, data)
	default:
		dir, name := filepath.Split(filepath.Clean(dest.Path))
		if dir == "" {
			dir = "."
		}
		store, err := local.New(local.Config{BaseDir: dir})
		if err != nil {
			return "", fmt.Errorf("open %s: %w", dir, err)
		}
		return store.PutObject(ctx, name, contentType, data)
	}
}

func (r *Router) bucket(ctx context.Context, name string) (crawler.BlobStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.buckets[name]; ok {
		return store, nil
	}
	if r.openBucket == nil {
		return nil, fmt.Errorf("gs://%s: cloud storage is not configured", name)
	}
	store, err := r.openBucket(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", name, err)
	}
	r.buckets[name] = store
	return store, nil
}
