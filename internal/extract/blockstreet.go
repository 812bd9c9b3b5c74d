package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

const (
	blockstreetRegistered = "등록"
	blockstreetModified   = "수정"
)

// Blockstreet parses https://www.blockstreet.co.kr/news/view?... pages. Dates
// are labeled spans such as "등록 2024-12-27 15:30".
func Blockstreet(page Page) (crawler.Article, error) {
	doc, err := parse(crawler.SiteBlockstreet, page)
	if err != nil {
		return crawler.Article{}, err
	}
	title, err := doc.requireText("title", "h1.headline")
	if err != nil {
		return crawler.Article{}, err
	}

	var (
		first, last *string
		dateErr     error
	)
	doc.Find("div.datetime span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		fields := strings.Fields(s.Text())
		if len(fields) < 3 {
			return true
		}
		value := fields[1] + " " + fields[2]
		switch fields[0] {
		case blockstreetRegistered:
			first, dateErr = doc.timestamp("first_upload_time", value)
		case blockstreetModified:
			last, dateErr = doc.timestamp("last_upload_time", value)
		}
		return dateErr == nil
	})
	if dateErr != nil {
		return crawler.Article{}, dateErr
	}
	if first == nil {
		return crawler.Article{}, doc.fail("first_upload_time", nil)
	}

	content, err := doc.requireHTML("content", "div.view-body.fs3")
	if err != nil {
		return crawler.Article{}, err
	}

	rec := doc.record(title, content)
	rec.FirstUploadTime = first
	rec.LastUploadTime = last
	rec.Author = joinTexts(doc.Find("div.byline span a"))
	return rec, nil
}
