package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

// ErrDisabled is returned when headless browsing is turned off.
var ErrDisabled = errors.New("headless browser not configured")

// Noop implements crawler.Browser but never opens a page.
type Noop struct{}

// NewNoop creates a new Noop browser.
func NewNoop() *Noop {
	return &Noop{}
}

// NewPage always fails with ErrDisabled.
func (Noop) NewPage(context.Context) (crawler.Page, error) {
	return nil, ErrDisabled
}
