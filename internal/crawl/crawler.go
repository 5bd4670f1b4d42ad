// internal/crawl/crawler.go
package crawl

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markysoft/vani/internal/wait"
)

// Page is a single tab the crawler drives. A browser session satisfies it, as
// does StaticPage.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitForIdle(ctx context.Context) error
	MatchingHrefs(ctx context.Context, patterns []string) ([]string, error)
}

// Options tune a crawl.
type Options struct {
	// Patterns select the links to follow. Without patterns only the start
	// page is loaded.
	Patterns []string
	// PageLoadWait is a fixed pause after every load.
	PageLoadWait time.Duration
	// AjaxWait bounds the wait for in-flight requests after the pause. Zero
	// skips that wait.
	AjaxWait time.Duration
	// MaxPages stops the crawl after that many loads. Zero means no limit.
	MaxPages int
	// SameSite drops links outside the start URL's registrable domain.
	SameSite bool
}

// Visit is one page the crawler loaded.
type Visit struct {
	URL   string   `json:"url"`
	Links []string `json:"links"`
	Error string   `json:"error,omitempty"`
}

// Crawler walks every page reachable from a start URL through links that
// match the configured patterns. It loads pages one at a time in a single tab.
type Crawler struct {
	page   Page
	opts   Options
	logger *zap.Logger
}

// New creates a Crawler over page.
func New(page Page, opts Options, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{page: page, opts: opts, logger: logger.Named("crawler")}
}

// Crawl loads start, then keeps loading the first queued link whose visit key
// has not been seen, until the queue is empty or MaxPages is reached. Links
// are queued in the order the page reports them. A page that fails to load is
// recorded with its error and the crawl goes on; a done ctx ends it with the
// visits so far.
func (c *Crawler) Crawl(ctx context.Context, start string) ([]Visit, error) {
	for _, p := range c.opts.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("invalid href pattern %q: %w", p, err)
		}
	}

	var scope *Scope
	if c.opts.SameSite {
		s, err := NewScope(start)
		if err != nil {
			return nil, err
		}
		scope = s
	}

	visits := make([]Visit, 0)
	visited := make(map[string]struct{})
	queue := []string{start}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return visits, err
		}
		if c.opts.MaxPages > 0 && len(visits) >= c.opts.MaxPages {
			c.logger.Info("Page limit reached, stopping crawl.", zap.Int("max_pages", c.opts.MaxPages), zap.Int("queued", len(queue)))
			break
		}

		url := queue[0]
		queue = queue[1:]
		key := VisitKey(url)
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}

		found, err := c.visit(ctx, url)
		if ctx.Err() != nil {
			return visits, ctx.Err()
		}
		v := Visit{URL: url, Links: make([]string, 0, len(found))}
		if err != nil {
			c.logger.Warn("Failed to crawl page.", zap.String("url", url), zap.Error(err))
			v.Error = err.Error()
		}

		for _, link := range found {
			if scope != nil && !scope.Contains(link) {
				c.logger.Debug("Skipping out of scope link.", zap.String("link", link))
				continue
			}
			v.Links = append(v.Links, link)
			queue = append(queue, link)
		}
		visits = append(visits, v)
	}

	c.logger.Info("Crawl finished.", zap.String("start", start), zap.Int("pages", len(visits)))
	return visits, nil
}

// visit loads url, lets it settle and returns the matching links.
func (c *Crawler) visit(ctx context.Context, url string) ([]string, error) {
	log := c.logger.With(zap.String("url", url))
	log.Debug("Opening page.")

	if err := c.page.Navigate(ctx, url); err != nil {
		return nil, err
	}

	if c.opts.PageLoadWait > 0 {
		t := time.NewTimer(c.opts.PageLoadWait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}

	if c.opts.AjaxWait > 0 {
		idleCtx, cancel := context.WithTimeout(ctx, c.opts.AjaxWait)
		err := c.page.WaitForIdle(idleCtx)
		cancel()
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, wait.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			log.Debug("Requests still in flight, scanning anyway.", zap.Duration("ajax_wait", c.opts.AjaxWait))
		default:
			return nil, fmt.Errorf("failed waiting for requests: %w", err)
		}
	}

	if len(c.opts.Patterns) == 0 {
		return nil, nil
	}
	return c.page.MatchingHrefs(ctx, c.opts.Patterns)
}

var jsessionID = regexp.MustCompile(`(?i);jsessionid[^?#]*`)

// VisitKey is the identity of url in the visited set: any ;jsessionid path
// parameter (in either case) and the fragment are dropped.
func VisitKey(url string) string {
	key := jsessionID.ReplaceAllString(url, "")
	if i := strings.IndexByte(key, '#'); i >= 0 {
		key = key[:i]
	}
	return key
}
