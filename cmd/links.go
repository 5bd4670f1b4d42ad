// cmd/links.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markysoft/vani/internal/browser"
	"github.com/markysoft/vani/internal/browser/network"
	"github.com/markysoft/vani/internal/config"
	"github.com/markysoft/vani/internal/links"
	"github.com/markysoft/vani/internal/observability"
)

// linkResult is the output for one scanned page.
type linkResult struct {
	URL   string   `json:"url"`
	Hrefs []string `json:"hrefs"`
}

// linkScanFunc scans one page.
type linkScanFunc func(ctx context.Context, url string, patterns []string) ([]string, error)

func newLinksCmd() *cobra.Command {
	var (
		patterns []string
		static   bool
	)
	cmd := &cobra.Command{
		Use:   "links <url>...",
		Short: "Print the resolved hrefs of every anchor matching a pattern",
		Long: `Loads each page and prints the resolved href of every anchor that matches at
least one --pattern (an unanchored regular expression). Patterns are applied
in the order given; an href matching two patterns is printed twice.

With --static the page is fetched over HTTP and parsed without a browser, so
anchors added by scripts are not seen.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := observability.GetLogger()

			scan := staticScanner(cfg, logger)
			if !static {
				manager, err := browser.NewManager(ctx, logger, cfg)
				if err != nil {
					return err
				}
				defer func() {
					if err := manager.Shutdown(browser.Detach(ctx)); err != nil {
						logger.Warn("Browser shutdown failed.", zap.Error(err))
					}
				}()
				scan = manager.ScanLinks
			}

			results, err := scanAll(ctx, args, patterns, cfg.Fetch().Concurrency, scan)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringArrayVarP(&patterns, "pattern", "p", nil, "href pattern (repeatable)")
	cmd.Flags().BoolVar(&static, "static", false, "fetch pages over HTTP instead of using a browser")
	return cmd
}

// newFetcher builds the HTTP fetcher for browserless scans.
func newFetcher(cfg config.Interface, logger *zap.Logger) *network.Fetcher {
	fc := cfg.Fetch()
	clientCfg := network.NewClientConfig()
	clientCfg.RequestTimeout = fc.Timeout
	clientCfg.MaxRedirects = fc.MaxRedirects
	clientCfg.UserAgent = fc.UserAgent
	clientCfg.InsecureSkipVerify = fc.InsecureSkipVerify
	clientCfg.Logger = logger
	return network.NewFetcher(clientCfg, fc.MaxBodyBytes)
}

// staticScanner scans pages fetched with the HTTP client.
func staticScanner(cfg config.Interface, logger *zap.Logger) linkScanFunc {
	fetcher := newFetcher(cfg, logger)
	scanner := links.NewScanner(logger)
	return func(ctx context.Context, url string, patterns []string) ([]string, error) {
		doc, err := fetcher.FetchDocument(ctx, url)
		if err != nil {
			return nil, err
		}
		return scanner.GetMatchingHrefs(ctx, doc, patterns)
	}
}

// scanAll scans urls with at most limit scans in flight. Results keep the
// order of urls; the first failure cancels the rest.
func scanAll(ctx context.Context, urls, patterns []string, limit int, scan linkScanFunc) ([]linkResult, error) {
	results := make([]linkResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, u := range urls {
		g.Go(func() error {
			hrefs, err := scan(gctx, u, patterns)
			if err != nil {
				return fmt.Errorf("scan %s: %w", u, err)
			}
			results[i] = linkResult{URL: u, Hrefs: hrefs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
