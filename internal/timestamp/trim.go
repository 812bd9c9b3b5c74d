package timestamp

import (
	"time"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

// TrimBeforeCutoff returns the records whose first upload time is not earlier
// than cutoff, in their original order, and whether anything was dropped.
// Records without a first upload time are kept. The input is never modified.
func TrimBeforeCutoff(records []crawler.Article, cutoff time.Time) ([]crawler.Article, bool) {
	kept := make([]crawler.Article, 0, len(records))
	reached := false
	for _, rec := range records {
		if rec.FirstUploadTime != nil {
			if t, err := Parse(*rec.FirstUploadTime); err == nil && t.Before(cutoff) {
				reached = true
				continue
			}
		}
		kept = append(kept, rec)
	}
	return kept, reached
}
