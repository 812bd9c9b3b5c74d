package extract

import (
	"strings"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

// BloomingbitDefaultCategory is used when the feed label is missing.
const BloomingbitDefaultCategory = "전체 뉴스"

// Bloomingbit parses https://bloomingbit.io/ko/feed/news/{id} pages. The feed
// mixes categories, so the category comes from the page. Both timestamps are
// optional on this site: short flash items carry neither.
func Bloomingbit(page Page) (crawler.Article, error) {
	doc, err := parse(crawler.SiteBloomingbit, page)
	if err != nil {
		return crawler.Article{}, err
	}
	title, err := doc.requireText("title", "h1._feedDetailContet_newsContentTitle__ftCYu")
	if err != nil {
		return crawler.Article{}, err
	}

	var first, last *string
	if sel := doc.Find("span._feedReporterWithDatePublished_createDate__pphI_").First(); sel.Length() > 0 {
		if first, err = doc.timestamp("first_upload_time", sel.Text()); err != nil {
			return crawler.Article{}, err
		}
	}
	if sel := doc.Find("span._feedReporterWithDatePublished_updateDate__xCxls").First(); sel.Length() > 0 {
		if last, err = doc.timestamp("last_upload_time", sel.Text()); err != nil {
			return crawler.Article{}, err
		}
	}

	content, err := doc.requireHTML("content", "div._feedMainContent_feedDetailArticle__B_0Sy")
	if err != nil {
		return crawler.Article{}, err
	}

	rec := doc.record(title, content)
	rec.FirstUploadTime = first
	rec.LastUploadTime = last
	rec.Author = joinTexts(doc.Find("span._feedReporterWithDatePublished_newsReporter__nRjik"))
	rec.Category = BloomingbitDefaultCategory
	if label := strings.TrimSpace(doc.Find("h3._feedType_feedTypeLabel__DQpII").First().Text()); label != "" {
		rec.Category = label
	}
	return rec, nil
}
