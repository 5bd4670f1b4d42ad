// internal/browser/session/elements.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/markysoft/vani/internal/broker"
)

// ErrInvalidArgument is returned when a page method receives arguments of the
// wrong number or type.
var ErrInvalidArgument = errors.New("invalid argument")

// ElementSet is the result of a selector query. It is a library object: the
// broker keeps it in the handle registry and callers only see its key. Node
// references go stale when the page navigates.
type ElementSet struct {
	Selector string
	Nodes    []*cdp.Node
}

// WrapperKind implements broker.Wrapper.
func (e *ElementSet) WrapperKind() string { return "ElementSet" }

func (e *ElementSet) Len() int { return len(e.Nodes) }

// pageTargets exposes read-only document methods through the broker.
type pageTargets struct {
	exec  ActionExecutor
	hrefs func(ctx context.Context) ([]string, error)
}

func (p *pageTargets) document() broker.MethodTable {
	return broker.MethodTable{
		"find":  p.find,
		"count": p.count,
		"text":  p.text,
		"attr":  p.attr,
		"title": p.title,
		"url":   p.url,
		"hrefs": p.listHrefs,
	}
}

// find(selector[, within]) queries the document, or the descendants of every
// element in within.
func (p *pageTargets) find(ctx context.Context, args []interface{}) (interface{}, error) {
	selector, err := stringArg(args, 0, "selector")
	if err != nil {
		return nil, err
	}
	set := &ElementSet{Selector: selector}

	if len(args) < 2 {
		if err := p.exec.RunActions(ctx, chromedp.Nodes(selector, &set.Nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
			return nil, fmt.Errorf("query %q: %w", selector, err)
		}
		return set, nil
	}

	within, err := elementSetArg(args, 1)
	if err != nil {
		return nil, err
	}
	for _, parent := range within.Nodes {
		var nodes []*cdp.Node
		if err := p.exec.RunActions(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0), chromedp.FromNode(parent))); err != nil {
			return nil, fmt.Errorf("query %q within %q: %w", selector, within.Selector, err)
		}
		set.Nodes = append(set.Nodes, nodes...)
	}
	return set, nil
}

func (p *pageTargets) count(_ context.Context, args []interface{}) (interface{}, error) {
	set, err := elementSetArg(args, 0)
	if err != nil {
		return nil, err
	}
	return set.Len(), nil
}

// text returns the combined text content of every element, like jQuery's text().
func (p *pageTargets) text(ctx context.Context, args []interface{}) (interface{}, error) {
	set, err := elementSetArg(args, 0)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, n := range set.Nodes {
		var part string
		if err := p.exec.RunActions(ctx, chromedp.TextContent([]cdp.NodeID{n.NodeID}, &part, chromedp.ByNodeID)); err != nil {
			return nil, fmt.Errorf("text of %q: %w", set.Selector, err)
		}
		sb.WriteString(part)
	}
	return sb.String(), nil
}

// attr returns the attribute of the first element, or nil when the set is
// empty or the attribute is absent.
func (p *pageTargets) attr(ctx context.Context, args []interface{}) (interface{}, error) {
	set, err := elementSetArg(args, 0)
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, 1, "name")
	if err != nil {
		return nil, err
	}
	if set.Len() == 0 {
		return nil, nil
	}

	var (
		value string
		ok    bool
	)
	ids := []cdp.NodeID{set.Nodes[0].NodeID}
	if err := p.exec.RunActions(ctx, chromedp.AttributeValue(ids, name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return nil, fmt.Errorf("attribute %q of %q: %w", name, set.Selector, err)
	}
	if !ok {
		return nil, nil
	}
	return value, nil
}

func (p *pageTargets) title(ctx context.Context, _ []interface{}) (interface{}, error) {
	var title string
	if err := p.exec.RunActions(ctx, chromedp.Title(&title)); err != nil {
		return nil, err
	}
	return title, nil
}

func (p *pageTargets) url(ctx context.Context, _ []interface{}) (interface{}, error) {
	var location string
	if err := p.exec.RunActions(ctx, chromedp.Location(&location)); err != nil {
		return nil, err
	}
	return location, nil
}

func (p *pageTargets) listHrefs(ctx context.Context, _ []interface{}) (interface{}, error) {
	return p.hrefs(ctx)
}

func stringArg(args []interface{}, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidArgument, name)
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string, got %T", ErrInvalidArgument, name, args[i])
	}
	return s, nil
}

func elementSetArg(args []interface{}, i int) (*ElementSet, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: missing element set", ErrInvalidArgument)
	}
	set, ok := args[i].(*ElementSet)
	if !ok || set == nil {
		return nil, fmt.Errorf("%w: expected an element set handle, got %T", ErrInvalidArgument, args[i])
	}
	return set, nil
}
