package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

// EncodeRecords writes records as an indented JSON array with non-ASCII text
// left unescaped. A nil slice is written as [].
func EncodeRecords(w io.Writer, records []crawler.Article) error {
	if records == nil {
		records = []crawler.Article{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return nil
}

// DecodeRecords reads a JSON array written by EncodeRecords.
func DecodeRecords(data []byte) ([]crawler.Article, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("decode records: empty output")
	}
	var records []crawler.Article
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if records == nil {
		records = []crawler.Article{}
	}
	return records, nil
}
