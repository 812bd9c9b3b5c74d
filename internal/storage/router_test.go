package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
	"github.com/JakeFAU/crypto-news-crawler/internal/storage/memory"
)

func TestParseDestination(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    Destination
		wantErr bool
	}{
		{raw: "datas/news_data/hankyung_data.json", want: Destination{Scheme: SchemeFile, Path: "datas/news_data/hankyung_data.json"}},
		{raw: "file:///tmp/out.json", want: Destination{Scheme: SchemeFile, Path: "/tmp/out.json"}},
		{raw: "file://out/x.json", want: Destination{Scheme: SchemeFile, Path: "out/x.json"}},
		{raw: "gs://news-bucket/runs/investing.json", want: Destination{Scheme: SchemeGCS, Bucket: "news-bucket", Path: "runs/investing.json"}},
		{raw: "gs://news-bucket/", wantErr: true},
		{raw: "s3://bucket/key", wantErr: true},
		{raw: "  ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseDestination(tc.raw)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestRouterWritesLocalFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r := NewRouter(nil)
	target := filepath.Join(dir, "nested", "hankyung_data.json")

	uri, err := r.PutObject(context.Background(), target, "application/json", strings.NewReader("[]"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))

	uri, err = r.PutObject(context.Background(), "file://"+filepath.Join(dir, "b.json"), "", strings.NewReader("[1]"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uri, "/b.json"))
}

func TestRouterCachesBuckets(t *testing.T) {
	t.Parallel()

	opened := 0
	mem := memory.NewBlobStore()
	r := NewRouter(func(_ context.Context, bucket string) (crawler.BlobStore, error) {
		opened++
		assert.Equal(t, "news-bucket", bucket)
		return mem, nil
	})

	for _, name := range []string{"a.json", "b.json"} {
		_, err := r.PutObject(context.Background(), "gs://news-bucket/"+name, "application/json", strings.NewReader("[]"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, opened)
	assert.Equal(t, []string{"a.json", "b.json"}, mem.Paths())
}

func TestRouterGCSErrors(t *testing.T) {
	t.Parallel()

	_, err := NewRouter(nil).PutObject(context.Background(), "gs://b/o.json", "", strings.NewReader(""))
	assert.Error(t, err)

	failing := NewRouter(func(context.Context, string) (crawler.BlobStore, error) {
		return nil, errors.New("no credentials")
	})
	_, err = failing.PutObject(context.Background(), "gs://b/o.json", "", strings.NewReader(""))
	assert.ErrorContains(t, err, "no credentials")
}
