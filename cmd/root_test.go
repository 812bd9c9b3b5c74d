package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crypto-news-crawler/internal/app"
	"github.com/JakeFAU/crypto-news-crawler/internal/config"
)

// stubApp replaces newApp for one test and reports how often the App was closed.
func stubApp(t *testing.T) *int {
	t.Helper()
	closed := new(int)
	orig := newApp
	newApp = func(string) (*app.App, error) {
		cfg, err := config.Load("")
		if err != nil {
			return nil, err
		}
		a := app.New(cfg, zap.NewNop())
		a.OnClose(func() error {
			*closed++
			return nil
		})
		return a, nil
	}
	t.Cleanup(func() { newApp = orig })
	return closed
}

func TestRunClosesAppWhenCommandFails(t *testing.T) {
	closed := stubApp(t)

	err := run(context.Background(), []string{"site", "coindesk", "--end", "2025-01-01 00:00"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown site")
	assert.Equal(t, 1, *closed)
}

func TestRunClosesAppOnBadCutoff(t *testing.T) {
	closed := stubApp(t)

	err := run(context.Background(), []string{"crawl", "--site", "hankyung", "--in-process", "--end", "not a date"})

	require.Error(t, err)
	assert.Equal(t, 1, *closed)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	closed := stubApp(t)
	a, err := newApp("")
	require.NoError(t, err)

	s := &session{app: a}
	s.close()
	s.close()

	assert.Equal(t, 1, *closed)
}
