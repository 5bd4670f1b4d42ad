// internal/browser/session/interfaces.go
package session

import (
	"context"

	"github.com/chromedp/chromedp"
)

// ActionExecutor runs chromedp actions against a tab. Implementations combine
// the operational ctx with the long-lived tab context so actions keep their
// CDP connection while honouring the caller's deadline.
type ActionExecutor interface {
	RunActions(ctx context.Context, actions ...chromedp.Action) error
}
