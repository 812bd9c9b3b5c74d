package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

func sampleArticles() []crawler.Article {
	return []crawler.Article{
		{
			Title:           "비트코인, 10만 달러 돌파",
			FirstUploadTime: crawler.Optional("2024-12-27 15:30"),
			Author:          crawler.Optional("김기자"),
			Content:         "<div>본문</div>",
			URL:             "https://www.hankyung.com/article/1",
			Category:        "암호화폐",
			Website:         crawler.SiteHankyung,
			Note:            crawler.Optional(crawler.NoteDomestic),
		},
		{
			Title:    "속보",
			Content:  "<div>짧은 본문</div>",
			URL:      "https://www.hankyung.com/article/2",
			Category: "암호화폐",
			Website:  crawler.SiteHankyung,
		},
	}
}

func TestUpsertArticles(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArticleStoreWithPool(mock, "")
	require.NoError(t, err)

	recs := sampleArticles()
	mock.ExpectBegin()
	for _, rec := range recs {
		mock.ExpectExec("INSERT INTO news_articles").
			WithArgs(
				string(rec.Website), rec.URL, rec.Title, rec.FirstUploadTime, rec.LastUploadTime,
				rec.Author, rec.Content, rec.Category, rec.Note, "run-1",
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, store.UpsertArticles(context.Background(), "run-1", recs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertArticlesRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArticleStoreWithPool(mock, "crypto_news")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO crypto_news").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err = store.UpsertArticles(context.Background(), "run-1", sampleArticles())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https://www.hankyung.com/article/1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertArticlesEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArticleStoreWithPool(mock, "")
	require.NoError(t, err)
	require.NoError(t, store.UpsertArticles(context.Background(), "run-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArticleStoreWithPool(mock, "")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS news_articles").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewArticleStoreWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewArticleStoreWithPool(nil, "")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewArticleStoreWithPool(mock, "drop table;")
	assert.Error(t, err)

	_, err = NewArticleStore(context.Background(), Config{})
	assert.Error(t, err)
}
