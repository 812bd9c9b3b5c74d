package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

// Hankyung parses https://www.hankyung.com/article/... pages.
func Hankyung(page Page) (crawler.Article, error) {
	doc, err := parse(crawler.SiteHankyung, page)
	if err != nil {
		return crawler.Article{}, err
	}
	title, err := doc.requireText("title", "h1.headline")
	if err != nil {
		return crawler.Article{}, err
	}

	// The first date span is the upload time, the second (when present) the last edit.
	dates := doc.Find("span.txt-date")
	if dates.Length() == 0 {
		return crawler.Article{}, doc.fail("first_upload_time", nil)
	}
	first, err := doc.timestamp("first_upload_time", dates.Eq(0).Text())
	if err != nil {
		return crawler.Article{}, err
	}
	var last *string
	if dates.Length() > 1 {
		if last, err = doc.timestamp("last_upload_time", dates.Eq(1).Text()); err != nil {
			return crawler.Article{}, err
		}
	}

	content, err := doc.requireHTML("content", "div#articletxt")
	if err != nil {
		return crawler.Article{}, err
	}

	authors := make([]string, 0)
	doc.Find("div.author.link.subs_author_list").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Find("a").First().Text()); name != "" {
			authors = append(authors, name)
		}
	})

	rec := doc.record(title, content)
	rec.FirstUploadTime = first
	rec.LastUploadTime = last
	rec.Author = crawler.Optional(strings.Join(authors, ", "))
	return rec, nil
}
