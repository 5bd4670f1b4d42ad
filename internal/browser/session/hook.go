// internal/browser/session/hook.go
package session

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/markysoft/vani/internal/tracking"
)

// requestHook feeds CDP network events for a tab into a tracker. It sees
// every request the page dispatches before it leaves the browser.
type requestHook struct {
	tracker *tracking.Tracker
	logger  *zap.Logger
	types   map[network.ResourceType]bool

	mu      sync.Mutex
	pending map[network.RequestID]struct{}
}

func newRequestHook(tracker *tracking.Tracker, resourceTypes []string, logger *zap.Logger) *requestHook {
	types := make(map[network.ResourceType]bool, len(resourceTypes))
	for _, rt := range resourceTypes {
		types[network.ResourceType(rt)] = true
	}
	return &requestHook{
		tracker: tracker,
		logger:  logger.Named("hook"),
		types:   types,
		pending: make(map[network.RequestID]struct{}),
	}
}

// install registers the listener on the tab behind ctx and attaches the
// tracker. Must run before the first navigation so no request is missed.
func (h *requestHook) install(ctx context.Context) {
	chromedp.ListenTarget(ctx, h.handleEvent)
	h.tracker.Attach()
}

// handleEvent runs on chromedp's event goroutine and must not block.
func (h *requestHook) handleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		h.onRequest(ev)
	case *network.EventLoadingFinished:
		h.onDone(ev.RequestID)
	case *network.EventLoadingFailed:
		h.onDone(ev.RequestID)
	case *page.EventFrameNavigated:
		if ev.Frame != nil && ev.Frame.ParentID == "" {
			h.onMainFrameNavigated(ev.Frame.URL)
		}
	}
}

func (h *requestHook) onRequest(ev *network.EventRequestWillBeSent) {
	if ev.Request == nil || !h.types[ev.Type] {
		return
	}

	h.mu.Lock()
	_, redirect := h.pending[ev.RequestID]
	if !redirect {
		h.pending[ev.RequestID] = struct{}{}
	}
	h.mu.Unlock()

	// A redirect reuses the request ID; the page dispatched only one request.
	if redirect {
		return
	}

	cfg := tracking.RequestConfig{
		URL:     ev.Request.URL,
		Method:  ev.Request.Method,
		Type:    string(ev.Type),
		Options: requestOptions(ev),
	}
	// Events can reach us well after dispatch; stamp the browser's send time.
	if ev.WallTime != nil {
		cfg.SentAt = ev.WallTime.Time()
	}

	h.tracker.Begin()
	h.tracker.RecordStart(cfg)
}

func (h *requestHook) onDone(id network.RequestID) {
	h.mu.Lock()
	_, tracked := h.pending[id]
	delete(h.pending, id)
	h.mu.Unlock()

	if tracked {
		h.tracker.Finish()
	}
}

func (h *requestHook) onMainFrameNavigated(url string) {
	h.mu.Lock()
	h.pending = make(map[network.RequestID]struct{})
	h.mu.Unlock()

	h.tracker.Reset()
	h.logger.Debug("Main frame navigated; request log reset.", zap.String("url", url))
}

func requestOptions(ev *network.EventRequestWillBeSent) map[string]interface{} {
	opts := map[string]interface{}{
		"method":    ev.Request.Method,
		"type":      string(ev.Type),
		"requestId": string(ev.RequestID),
	}
	if len(ev.Request.Headers) > 0 {
		headers := make(map[string]interface{}, len(ev.Request.Headers))
		for k, v := range ev.Request.Headers {
			headers[k] = v
		}
		opts["headers"] = headers
	}
	if ev.Request.HasPostData {
		opts["hasPostData"] = true
	}
	if ev.FrameID != "" {
		opts["frameId"] = string(ev.FrameID)
	}
	if ev.Initiator != nil {
		opts["initiator"] = string(ev.Initiator.Type)
	}
	return opts
}
