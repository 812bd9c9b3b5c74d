package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// Site identifies one supported news source.
type Site string

// Supported sites. The set is closed; anything else is a configuration error.
const (
	SiteInvesting   Site = "investing"
	SiteHankyung    Site = "hankyung"
	SiteBloomingbit Site = "bloomingbit"
	SiteCoinreaders Site = "coinreaders"
	SiteBlockstreet Site = "blockstreet"
)

// Notes attached to every record of a site.
const (
	NoteDomestic = "국내 사이트"
	NoteForeign  = "해외 사이트"
)

// ErrUnknownSite is returned when a name is not part of the supported set.
var ErrUnknownSite = errors.New("unknown site")

var allSites = []Site{
	SiteInvesting,
	SiteHankyung,
	SiteBloomingbit,
	SiteCoinreaders,
	SiteBlockstreet,
}

// Sites returns the supported sites in a stable order.
func Sites() []Site {
	out := make([]Site, len(allSites))
	copy(out, allSites)
	return out
}

// ParseSite validates a site name.
func ParseSite(name string) (Site, error) {
	candidate := Site(strings.ToLower(strings.TrimSpace(name)))
	if !candidate.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSite, name)
	}
	return candidate, nil
}

// Valid reports whether s belongs to the supported set.
func (s Site) Valid() bool {
	for _, known := range allSites {
		if s == known {
			return true
		}
	}
	return false
}

// Note returns the annotation stored on the site's records.
func (s Site) Note() string {
	if s == SiteInvesting {
		return NoteForeign
	}
	return NoteDomestic
}

func (s Site) String() string {
	return string(s)
}

// Article is the normalized record produced for one article page.
// Field order matches the persisted JSON layout.
type Article struct {
	Title           string  `json:"news_title"`
	FirstUploadTime *string `json:"news_first_upload_time"`
	LastUploadTime  *string `json:"news_last_upload_time"`
	Author          *string `json:"news_author"`
	Content         string  `json:"news_content"`
	URL             string  `json:"news_url"`
	Category        string  `json:"news_category"`
	Website         Site    `json:"news_website"`
	Note            *string `json:"note"`
}

// Optional returns nil for an empty string and a pointer to s otherwise.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ErrorKind classifies why a fetch produced no document.
type ErrorKind string

// Error kinds reported on FetchOutcome.
const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindStatus            ErrorKind = "status"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindDNS               ErrorKind = "dns"
	ErrorKindConnectionRefused ErrorKind = "connection_refused"
	ErrorKindConnectionReset   ErrorKind = "connection_reset"
	ErrorKindTLS               ErrorKind = "tls"
	ErrorKindCanceled          ErrorKind = "canceled"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// FetchOutcome is the result of one logical fetch, including its retries.
// Body is non-nil only when the final attempt returned 200.
type FetchOutcome struct {
	URL        string
	FinalURL   string
	Body       []byte
	StatusCode int
	Reason     string
	Redirects  []string
	ErrorKind  ErrorKind
	Err        error
	Attempts   int
}

// OK reports whether a document was retrieved.
func (o FetchOutcome) OK() bool {
	return o.Body != nil
}

// Redirected reports whether the server redirected the request at least once.
func (o FetchOutcome) Redirected() bool {
	return len(o.Redirects) > 0
}
