package orchestrator

import (
	"fmt"
	"time"

	"github.com/JakeFAU/crypto-news-crawler/internal/timestamp"
)

// DefaultDateFormat is used when the caller gives no date format.
const DefaultDateFormat = "%Y-%m-%d %H:%M"

// RunParams carries the cutoff for one run.
type RunParams struct {
	// EndDatetime and DateFormat are the raw inputs, forwarded to child processes.
	EndDatetime string
	DateFormat  string
	Cutoff      time.Time
}

// ParseRunParams validates the cutoff boundary.
func ParseRunParams(endDatetime, dateFormat string) (RunParams, error) {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	if endDatetime == "" {
		return RunParams{}, fmt.Errorf("end datetime is required")
	}
	cutoff, err := timestamp.ParseCutoff(endDatetime, dateFormat)
	if err != nil {
		return RunParams{}, err
	}
	return RunParams{EndDatetime: endDatetime, DateFormat: dateFormat, Cutoff: cutoff}, nil
}
