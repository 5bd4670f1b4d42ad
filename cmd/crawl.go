// cmd/crawl.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markysoft/vani/internal/browser"
	"github.com/markysoft/vani/internal/crawl"
	"github.com/markysoft/vani/internal/links"
	"github.com/markysoft/vani/internal/observability"
)

func newCrawlCmd() *cobra.Command {
	var (
		patterns []string
		static   bool
		sameSite bool
		maxPages int
	)
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Follow matching links from a page until no unvisited match remains",
		Long: `Loads the start page, then every page reached through an anchor whose href
matches a --pattern, one page at a time. After each load the crawler pauses
for crawl.page_load_wait and then waits up to crawl.ajax_wait for in-flight
requests. Pages that differ only in a ;jsessionid parameter or a fragment are
loaded once.

Prints one entry per loaded page with the links it contributed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cc := cfg.Crawl()
			if cmd.Flags().Changed("max-pages") {
				cc.MaxPages = maxPages
			}

			var page crawl.Page
			if static {
				page = crawl.NewStaticPage(newFetcher(cfg, logger), links.NewScanner(logger))
			} else {
				manager, err := browser.NewManager(ctx, logger, cfg)
				if err != nil {
					return err
				}
				defer func() {
					if err := manager.Shutdown(browser.Detach(ctx)); err != nil {
						logger.Warn("Browser shutdown failed.", zap.Error(err))
					}
				}()
				s, err := manager.NewSession(ctx)
				if err != nil {
					return err
				}
				defer func() {
					if err := s.Close(browser.Detach(ctx)); err != nil {
						logger.Warn("Failed to close crawl session.", zap.Error(err))
					}
				}()
				page = s
			}

			crawler := crawl.New(page, crawl.Options{
				Patterns:     patterns,
				PageLoadWait: cc.PageLoadWait,
				AjaxWait:     cc.AjaxWait,
				MaxPages:     cc.MaxPages,
				SameSite:     sameSite,
			}, logger)
			visits, err := crawler.Crawl(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), visits)
		},
	}
	cmd.Flags().StringArrayVarP(&patterns, "pattern", "p", nil, "href pattern of links to follow (repeatable)")
	cmd.Flags().BoolVar(&static, "static", false, "fetch pages over HTTP instead of using a browser")
	cmd.Flags().BoolVar(&sameSite, "same-site", false, "only follow links on the start page's registrable domain")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many pages (overrides crawl.max_pages)")
	return cmd
}
