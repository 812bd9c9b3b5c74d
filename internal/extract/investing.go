package extract

import "github.com/JakeFAU/crypto-news-crawler/internal/crawler"

// Investing parses https://kr.investing.com/news/cryptocurrency-news/... pages.
// Articles carry no author.
func Investing(page Page) (crawler.Article, error) {
	doc, err := parse(crawler.SiteInvesting, page)
	if err != nil {
		return crawler.Article{}, err
	}
	title, err := doc.requireText("title", "h1#articleTitle")
	if err != nil {
		return crawler.Article{}, err
	}
	// The publication line is the second flex row under the headline.
	stamp := doc.Find("div.flex.flex-row.items-center").Eq(1).Find("span").First()
	if stamp.Length() == 0 {
		return crawler.Article{}, doc.fail("first_upload_time", nil)
	}
	first, err := doc.timestamp("first_upload_time", stamp.Text())
	if err != nil {
		return crawler.Article{}, err
	}
	content, err := doc.requireHTML("content", "div#article")
	if err != nil {
		return crawler.Article{}, err
	}

	rec := doc.record(title, content)
	rec.FirstUploadTime = first
	return rec, nil
}
