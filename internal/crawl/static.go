// internal/crawl/static.go
package crawl

import (
	"context"
	"errors"
	"sync"

	"github.com/markysoft/vani/internal/browser/network"
	"github.com/markysoft/vani/internal/links"
)

// ErrNoDocument is returned when links are requested before a page loaded.
var ErrNoDocument = errors.New("no page loaded")

var _ Page = (*StaticPage)(nil)

// StaticPage is a Page backed by plain HTTP fetches. Scripts never run, so
// there is nothing to wait for after a load.
type StaticPage struct {
	fetcher *network.Fetcher
	scanner *links.Scanner

	mu  sync.Mutex
	doc *links.HTMLDocument
}

// NewStaticPage creates a StaticPage.
func NewStaticPage(fetcher *network.Fetcher, scanner *links.Scanner) *StaticPage {
	return &StaticPage{fetcher: fetcher, scanner: scanner}
}

// Navigate fetches url and makes it the current document. On failure the
// page is left without a document.
func (p *StaticPage) Navigate(ctx context.Context, url string) error {
	doc, err := p.fetcher.FetchDocument(ctx, url)
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	return err
}

// WaitForIdle returns at once.
func (p *StaticPage) WaitForIdle(context.Context) error { return nil }

// MatchingHrefs scans the current document.
func (p *StaticPage) MatchingHrefs(ctx context.Context, patterns []string) ([]string, error) {
	p.mu.Lock()
	doc := p.doc
	p.mu.Unlock()
	if doc == nil {
		return nil, ErrNoDocument
	}
	return p.scanner.GetMatchingHrefs(ctx, doc, patterns)
}
