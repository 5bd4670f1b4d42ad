// internal/links/html_document.go
package links

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLDocument is a Document parsed from markup, with hrefs resolved the way a
// browser resolves the href property: against <base href> if present, else
// against the page URL.
type HTMLDocument struct {
	doc     *goquery.Document
	pageURL *url.URL
}

// NewHTMLDocument parses r as the page at pageURL.
func NewHTMLDocument(r io.Reader, pageURL string) (*HTMLDocument, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &HTMLDocument{doc: doc, pageURL: base}, nil
}

// ParseHTML is NewHTMLDocument for a string.
func ParseHTML(markup, pageURL string) (*HTMLDocument, error) {
	return NewHTMLDocument(strings.NewReader(markup), pageURL)
}

// Title returns the trimmed page title.
func (d *HTMLDocument) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Hrefs implements Document. Anchors without an href attribute are skipped;
// unparsable hrefs are reported as written.
func (d *HTMLDocument) Hrefs(context.Context) ([]string, error) {
	base := d.baseURL()
	hrefs := make([]string, 0)
	d.doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		raw, _ := sel.Attr("href")
		hrefs = append(hrefs, resolve(base, raw))
	})
	return hrefs, nil
}

func (d *HTMLDocument) baseURL() *url.URL {
	raw, ok := d.doc.Find("base[href]").First().Attr("href")
	if !ok {
		return d.pageURL
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return d.pageURL
	}
	return d.pageURL.ResolveReference(ref)
}

func resolve(base *url.URL, raw string) string {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}
