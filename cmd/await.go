// cmd/await.go
package cmd

import (
	"context"
	"errors"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markysoft/vani/api/schemas"
	"github.com/markysoft/vani/internal/browser"
	"github.com/markysoft/vani/internal/observability"
)

type awaitResult struct {
	URL      string                  `json:"url"`
	Pattern  string                  `json:"pattern,omitempty"`
	Matched  bool                    `json:"matched"`
	Idle     bool                    `json:"idle"`
	Requests []schemas.RequestRecord `json:"requests"`
}

func newAwaitCmd() *cobra.Command {
	var (
		pattern string
		click   string
		idle    bool
	)
	cmd := &cobra.Command{
		Use:   "await <url>",
		Short: "Load a page and wait for a matching request or for the network to go idle",
		Long: `Loads the page and waits until it starts an XHR or fetch request whose URL
matches --pattern. With --click the element is clicked after the load and only
requests started after the click count. With --idle the command also waits
until no tracked request is in flight.

Fails when wait.timeout passes first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pattern == "" && !idle {
				return errors.New("nothing to wait for: set --pattern or --idle")
			}
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Tracking().Enabled {
				return errors.New("request tracking is disabled; waits would never succeed")
			}
			ctx := cmd.Context()
			logger := observability.GetLogger()

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
			defer s.Close(browser.Detach(ctx))

			res, err := awaitOnPage(ctx, s, args[0], pattern, click, idle)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "request URL pattern to wait for")
	cmd.Flags().StringVar(&click, "click", "", "CSS selector to click before waiting")
	cmd.Flags().BoolVar(&idle, "idle", false, "wait until no tracked request is in flight")
	return cmd
}

func awaitOnPage(ctx context.Context, s *browser.Session, url, pattern, click string, idle bool) (*awaitResult, error) {
	res := &awaitResult{URL: url, Pattern: pattern}

	since := s.Tracker().Now()
	if err := s.Navigate(ctx, url); err != nil {
		return nil, err
	}

	switch {
	case click != "":
		action := func(ctx context.Context) (interface{}, error) {
			return nil, s.RunActions(ctx, chromedp.Click(click, chromedp.ByQuery))
		}
		if pattern != "" {
			if _, err := s.WaitAfter(ctx, pattern, false, action); err != nil {
				return nil, err
			}
			res.Matched = true
		} else if _, err := action(ctx); err != nil {
			return nil, err
		}
	case pattern != "":
		// Navigation resets the log, so everything left in it started after since.
		if err := s.WaitForRequest(ctx, pattern, since); err != nil {
			return nil, err
		}
		res.Matched = true
	}

	if idle {
		if err := s.WaitForIdle(ctx); err != nil {
			return nil, err
		}
		res.Idle = true
	}
	res.Requests = s.Tracker().Records()
	return res, nil
}
