// Package timestamp turns the date strings each site prints into one canonical
// "YYYY-MM-DD HH:MM" form and trims record batches against a cutoff.
//
// All times are naive wall-clock values in the sites' local time; they are
// parsed in UTC only so that comparisons are well defined.
package timestamp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

// Layout is the canonical timestamp layout.
const Layout = "2006-01-02 15:04"

// ErrUnparsable marks a raw string that does not match its site's format.
var ErrUnparsable = errors.New("unparsable timestamp")

// ParseError reports which site and input failed to normalize.
type ParseError struct {
	Site crawler.Site
	Raw  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s timestamp %q", ErrUnparsable, e.Site, e.Raw)
}

func (e *ParseError) Unwrap() error {
	return ErrUnparsable
}

type rule func(raw string) (time.Time, bool)

var (
	// "2024. 12. 27. 오후 3:25", "게시 2024-12-27 오후 03:25", "2024.12.27 PM 3:25"
	meridiemPattern = regexp.MustCompile(
		`(\d{4})\s*[-./]\s*(\d{1,2})\s*[-./]\s*(\d{1,2})\.?\s*(오전|오후|AM|PM|am|pm)\s*(\d{1,2}):(\d{2})`)
	// "2024.12.27 15:30"
	dottedPattern = regexp.MustCompile(`(\d{4})\.(\d{1,2})\.(\d{1,2})\.?\s+(\d{1,2}):(\d{2})`)
	// "2024-12-27 15:30"
	dashedPattern = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})\s+(\d{1,2}):(\d{2})`)
	// "2024/12/27 15:30" once brackets are stripped
	slashedPattern = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})\s+(\d{1,2}):(\d{2})$`)
)

var rules = map[crawler.Site]rule{
	crawler.SiteInvesting:   meridiem,
	crawler.SiteBloomingbit: meridiem,
	crawler.SiteHankyung:    twentyFourHour(dottedPattern),
	crawler.SiteBlockstreet: twentyFourHour(dashedPattern),
	crawler.SiteCoinreaders: trailingDateTime,
}

// Normalize parses raw with site's rule and returns the canonical form.
func Normalize(site crawler.Site, raw string) (string, error) {
	t, err := ParseRaw(site, raw)
	if err != nil {
		return "", err
	}
	return t.Format(Layout), nil
}

// ParseRaw parses raw with site's rule.
func ParseRaw(site crawler.Site, raw string) (time.Time, error) {
	r, ok := rules[site]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: no timestamp rule for %q", crawler.ErrUnknownSite, site)
	}
	t, ok := r(strings.TrimSpace(raw))
	if !ok {
		return time.Time{}, &ParseError{Site: site, Raw: raw}
	}
	return t, nil
}

// Parse reads a canonical timestamp.
func Parse(canonical string) (time.Time, error) {
	t, err := time.Parse(Layout, canonical)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse canonical timestamp: %w", err)
	}
	return t, nil
}

func meridiem(raw string) (time.Time, bool) {
	m := meridiemPattern.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, false
	}
	hour, err := strconv.Atoi(m[5])
	if err != nil || hour < 1 || hour > 12 {
		return time.Time{}, false
	}
	switch strings.ToUpper(m[4]) {
	case "오후", "PM":
		if hour != 12 {
			hour += 12
		}
	default:
		if hour == 12 {
			hour = 0
		}
	}
	return assemble(m[1], m[2], m[3], strconv.Itoa(hour), m[6])
}

func twentyFourHour(pattern *regexp.Regexp) rule {
	return func(raw string) (time.Time, bool) {
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			return time.Time{}, false
		}
		return assemble(m[1], m[2], m[3], m[4], m[5])
	}
}

// trailingDateTime reads the last two whitespace separated tokens, such as
// "기자 | 기사입력 2024/12/27 [15:30]".
func trailingDateTime(raw string) (time.Time, bool) {
	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return time.Time{}, false
	}
	date := fields[len(fields)-2]
	clock := strings.Trim(fields[len(fields)-1], "[]")
	date = strings.ReplaceAll(date, "-", "/")
	m := slashedPattern.FindStringSubmatch(date + " " + clock)
	if m == nil {
		return time.Time{}, false
	}
	return assemble(m[1], m[2], m[3], m[4], m[5])
}

func assemble(parts ...string) (time.Time, bool) {
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}
	value := fmt.Sprintf("%04d-%02d-%02d %02d:%02d", nums[0], nums[1], nums[2], nums[3], nums[4])
	t, err := time.Parse(Layout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
