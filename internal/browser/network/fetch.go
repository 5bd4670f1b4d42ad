// internal/browser/network/fetch.go
package network

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/markysoft/vani/internal/links"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes caps how much of a document is read.
const DefaultMaxBodyBytes int64 = 16 << 20

// Fetcher loads pages over plain HTTP for link scans that do not need a
// browser. Scripts on the page never run, so only anchors present in the
// served markup are seen.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewFetcher creates a Fetcher from config.
func NewFetcher(config *ClientConfig, maxBodyBytes int64) *Fetcher {
	if config == nil {
		config = NewClientConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Fetcher{
		client:       NewClient(config),
		userAgent:    config.UserAgent,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.Named("fetch"),
	}
}

// FetchDocument retrieves rawURL and parses it into an HTMLDocument whose
// anchors resolve against the final URL after redirects.
func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) (*links.HTMLDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %s", rawURL, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, _ := mime.ParseMediaType(ct)
		if mediaType != "" && !strings.Contains(mediaType, "html") {
			return nil, fmt.Errorf("failed to fetch %s: content type %q is not HTML", rawURL, mediaType)
		}
	}

	finalURL := resp.Request.URL.String()
	doc, err := links.NewHTMLDocument(io.LimitReader(resp.Body, f.maxBodyBytes), finalURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", finalURL, err)
	}

	f.logger.Debug("Fetched document.",
		zap.String("url", rawURL),
		zap.String("final_url", finalURL),
		zap.Int("status", resp.StatusCode),
		zap.Bool("decoded", resp.Uncompressed),
	)
	return doc, nil
}
