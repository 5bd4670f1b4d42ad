// internal/links/scanner.go
package links

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"
)

// Document yields the resolved href of every anchor currently in a page, in
// document order. A resolved href is the absolute URL a browser reports for
// the anchor's href property, not the raw attribute text.
type Document interface {
	Hrefs(ctx context.Context) ([]string, error)
}

// Scanner matches anchor hrefs against caller supplied patterns.
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a Scanner.
func NewScanner(logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{logger: logger.Named("links")}
}

// GetMatchingHrefs returns, for each pattern in order, the resolved href of
// every anchor in doc that matches it, in document order. An href that matches
// several patterns, or appears on several anchors, is reported each time.
// Empty hrefs are never reported, even for a pattern that matches the empty
// string. Patterns are unanchored regular expressions; a malformed one aborts
// the scan with its compile error.
func (s *Scanner) GetMatchingHrefs(ctx context.Context, doc Document, patterns []string) ([]string, error) {
	result := make([]string, 0)
	if len(patterns) == 0 {
		return result, nil
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid href pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	hrefs, err := doc.Hrefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read anchors: %w", err)
	}

	for _, re := range compiled {
		for _, href := range hrefs {
			if href != "" && re.MatchString(href) {
				result = append(result, href)
			}
		}
	}

	s.logger.Debug("Scanned anchors.",
		zap.Int("anchors", len(hrefs)),
		zap.Int("patterns", len(patterns)),
		zap.Int("matches", len(result)),
	)
	return result, nil
}

// StaticDocument is a Document over a fixed list of resolved hrefs.
type StaticDocument []string

// Hrefs implements Document.
func (d StaticDocument) Hrefs(context.Context) ([]string, error) {
	out := make([]string, len(d))
	copy(out, d)
	return out, nil
}
