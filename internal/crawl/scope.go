// internal/crawl/scope.go
package crawl

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope is the registrable domain (eTLD+1) of a start URL. Hosts that are IP
// addresses or have no public suffix form a scope of their own.
type Scope struct {
	root string
}

// NewScope derives the scope of start.
func NewScope(start string) (*Scope, error) {
	u, err := url.Parse(start)
	if err != nil {
		return nil, fmt.Errorf("invalid start url %q: %w", start, err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("start url must have a hostname: %s", start)
	}

	root := strings.ToLower(host)
	if net.ParseIP(host) == nil {
		// Public Suffix List, so example.co.uk is a site and co.uk is not.
		if domain, err := publicsuffix.EffectiveTLDPlusOne(root); err == nil {
			root = domain
		}
	}
	return &Scope{root: root}, nil
}

// Root returns the domain that defines the scope.
func (s *Scope) Root() string { return s.root }

// Contains reports whether link is on the root domain or one of its subdomains.
// Unparsable links are outside.
func (s *Scope) Contains(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == s.root || strings.HasSuffix(host, "."+s.root)
}
