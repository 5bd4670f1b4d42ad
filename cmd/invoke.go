// cmd/invoke.go
package cmd

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markysoft/vani/api/schemas"
	"github.com/markysoft/vani/internal/browser"
	"github.com/markysoft/vani/internal/observability"
)

// call is one parsed --call flag.
type call struct {
	Target string
	Method string
	Args   []interface{}
}

// resultRef matches "$N", a reference to the result of the Nth call.
var resultRef = regexp.MustCompile(`^\$(\d+)$`)

// invoker is the part of a session the invoke command needs.
type invoker interface {
	Invoke(ctx context.Context, ref, method string, args []interface{}) (schemas.Result, error)
}

func newInvokeCmd() *cobra.Command {
	var calls []string
	cmd := &cobra.Command{
		Use:   "invoke <url> --call [target.]method[=<json args>]...",
		Short: "Call page methods through the reference broker",
		Long: `Loads the page and runs each --call in order on the same tab. A call names a
method, optionally prefixed by a registered target, and a JSON array of
arguments. An argument "$N" is replaced by the result of call N (from 0), so
element sets can be passed on as handles:

  vani invoke https://example.com \
    --call 'find=["ul a"]' --call 'count=["$0"]' --call 'attr=["$0","href"]'

Methods of the document target: find, count, text, attr, title, url, hrefs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseCalls(calls)
			if err != nil {
				return err
			}
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
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

			if err := s.Navigate(ctx, args[0]); err != nil {
				return err
			}
			results, err := runCalls(ctx, s, parsed)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringArrayVar(&calls, "call", nil, "[target.]method[=<json array>] (repeatable)")
	_ = cmd.MarkFlagRequired("call")
	return cmd
}

// parseCall parses "[target.]method[=<json array>]".
func parseCall(raw string) (call, error) {
	head, rawArgs, hasArgs := strings.Cut(raw, "=")
	head = strings.TrimSpace(head)
	if head == "" {
		return call{}, fmt.Errorf("call %q: missing method", raw)
	}

	var c call
	if target, method, ok := strings.Cut(head, "."); ok {
		c.Target, c.Method = target, method
	} else {
		c.Method = head
	}
	if c.Method == "" {
		return call{}, fmt.Errorf("call %q: missing method", raw)
	}

	if hasArgs && strings.TrimSpace(rawArgs) != "" {
		if err := json.UnmarshalFromString(rawArgs, &c.Args); err != nil {
			return call{}, fmt.Errorf("call %q: arguments must be a JSON array: %w", raw, err)
		}
	}
	return c, nil
}

func parseCalls(raws []string) ([]call, error) {
	calls := make([]call, 0, len(raws))
	for _, raw := range raws {
		c, err := parseCall(raw)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, nil
}

// runCalls invokes calls in order, substituting "$N" arguments with earlier
// results. It stops at the first failure.
func runCalls(ctx context.Context, inv invoker, calls []call) ([]schemas.Result, error) {
	results := make([]schemas.Result, 0, len(calls))
	for i, c := range calls {
		args, err := substituteResults(c.Args, results)
		if err != nil {
			return nil, fmt.Errorf("call %d (%s): %w", i, c.Method, err)
		}
		res, err := inv.Invoke(ctx, c.Target, c.Method, args)
		if err != nil {
			return nil, fmt.Errorf("call %d (%s): %w", i, c.Method, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func substituteResults(args []interface{}, results []schemas.Result) ([]interface{}, error) {
	if args == nil {
		return nil, nil
	}
	out := make([]interface{}, len(args))
	for i, arg := range args {
		s, ok := arg.(string)
		if !ok {
			out[i] = arg
			continue
		}
		m := resultRef.FindStringSubmatch(s)
		if m == nil {
			out[i] = arg
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n >= len(results) {
			return nil, fmt.Errorf("argument %d refers to result %d, which does not exist yet", i, n)
		}
		out[i] = results[n].Interface()
	}
	return out, nil
}
