package extract

import "github.com/JakeFAU/crypto-news-crawler/internal/crawler"

// Coinreaders parses https://www.coinreaders.com/{id} pages. The site shows a
// single publication time and no edit time.
func Coinreaders(page Page) (crawler.Article, error) {
	doc, err := parse(crawler.SiteCoinreaders, page)
	if err != nil {
		return crawler.Article{}, err
	}
	title, err := doc.requireText("title", "h1.read_title")
	if err != nil {
		return crawler.Article{}, err
	}
	byline := doc.Find("div.writer_time").First()
	if byline.Length() == 0 {
		return crawler.Article{}, doc.fail("first_upload_time", nil)
	}
	first, err := doc.timestamp("first_upload_time", byline.Text())
	if err != nil {
		return crawler.Article{}, err
	}
	content, err := doc.requireHTML("content", "div#textinput")
	if err != nil {
		return crawler.Article{}, err
	}

	rec := doc.record(title, content)
	rec.FirstUploadTime = first
	rec.Author = joinTexts(byline.Find("span.writer"))
	return rec, nil
}
