package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

// Runner crawls one site and returns its records.
type Runner interface {
	RunSite(ctx context.Context, site crawler.Site, params RunParams) ([]crawler.Article, error)
}

// CrawlFunc crawls a site in the current process.
type CrawlFunc func(ctx context.Context, site crawler.Site, params RunParams) ([]crawler.Article, error)

// InProcess runs sites as goroutines. A panic in one site is converted to an
// error for that site only.
type InProcess struct {
	Crawl CrawlFunc
}

// RunSite calls Crawl, recovering panics.
func (r InProcess) RunSite(ctx context.Context, site crawler.Site, params RunParams) (records []crawler.Article, err error) {
	defer func() {
		if p := recover(); p != nil {
			records = nil
			err = fmt.Errorf("%s panicked: %v", site, p)
		}
	}()
	return r.Crawl(ctx, site, params)
}

// SiteCommand is the subcommand a child process runs.
const SiteCommand = "site"

// Process runs each site in a child process of Executable. The child receives
// Args, then "site <name> --end <end> --date-format <format>", and must write
// the JSON record array to stdout. Its stderr is passed through.
type Process struct {
	Executable string
	Args       []string
	Env        []string
	Stderr     io.Writer
}

// NewProcess re-executes the running binary.
func NewProcess(args ...string) (*Process, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &Process{Executable: exe, Args: args, Stderr: os.Stderr}, nil
}

// RunSite starts the child and decodes its output.
func (p *Process) RunSite(ctx context.Context, site crawler.Site, params RunParams) ([]crawler.Article, error) {
	args := append(append([]string(nil), p.Args...),
		SiteCommand, string(site),
		"--end", params.EndDatetime,
		"--date-format", params.DateFormat,
	)
	cmd := exec.CommandContext(ctx, p.Executable, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = p.Stderr
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s child process: %w", site, err)
	}
	records, err := DecodeRecords(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s child output: %w", site, err)
	}
	return records, nil
}
