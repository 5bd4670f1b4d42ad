// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markysoft/vani/api/schemas"
	"github.com/markysoft/vani/internal/broker"
	"github.com/markysoft/vani/internal/browser/shim"
	"github.com/markysoft/vani/internal/config"
	"github.com/markysoft/vani/internal/links"
	"github.com/markysoft/vani/internal/tracking"
	"github.com/markysoft/vani/internal/wait"
)

// ErrClosed is returned by operations on a closed or uninitialized session.
var ErrClosed = errors.New("session is not open")

const closeTimeout = 10 * time.Second

// Session is one browser tab with its own request tracker, link scanner and
// reference broker. Nothing is shared between sessions.
type Session struct {
	id       string
	cfg      config.Interface
	logger   *zap.Logger
	allocCtx context.Context

	tracker  *tracking.Tracker
	scanner  *links.Scanner
	broker   *broker.Broker
	linkShim shim.Script
	ns       string

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

var _ ActionExecutor = (*Session)(nil)

// New prepares a session whose tab will be created from parentCtx, a chromedp
// browser or allocator context. Initialize must be called next.
func New(parentCtx context.Context, cfg config.Interface, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New().String()
	log := logger.Named("session").With(zap.String("session_id", id[:8]))

	brokerCfg := cfg.Broker()
	linkShim, err := shim.LinkUtils(brokerCfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to build page shim: %w", err)
	}

	return &Session{
		id:       id,
		cfg:      cfg,
		logger:   log,
		allocCtx: parentCtx,
		tracker:  tracking.New(tracking.WithLogger(log)),
		scanner:  links.NewScanner(log),
		broker:   broker.New(broker.NewRegistry(brokerCfg.Namespace, brokerCfg.Registry), broker.WithLogger(log)),
		linkShim: linkShim,
		ns:       brokerCfg.Namespace,
	}, nil
}

func (s *Session) ID() string { return s.id }

// Initialize opens the tab, installs the request hook when tracking is
// enabled, registers the page shim for every new document and populates the
// broker's targets.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil || s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session already initialized")
	}
	tabCtx, cancel := chromedp.NewContext(s.allocCtx)
	s.ctx, s.cancel = tabCtx, cancel
	s.mu.Unlock()

	if s.cfg.Tracking().Enabled {
		newRequestHook(s.tracker, s.cfg.Tracking().ResourceTypes, s.logger).install(tabCtx)
	} else {
		s.logger.Info("Request tracking disabled; request queries will always report false.")
	}

	// The first Run creates the tab and binds it to tabCtx, so it must not run
	// under the caller's ctx. The caller's deadline is honoured by cancelling
	// the tab instead.
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(tabCtx,
			network.Enable(),
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(s.linkShim.Source).Do(ctx)
				return err
			}),
		)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		cancel()
		<-errCh
		err = ctx.Err()
	}
	if err != nil {
		_ = s.Close(Detach(ctx))
		return fmt.Errorf("failed to open tab: %w", err)
	}

	targets := &pageTargets{exec: s, hrefs: s.hrefs}
	document := targets.document()
	s.broker.SetRoot(document)
	if err := s.broker.Register("document", document); err != nil {
		return err
	}

	s.logger.Info("Browser session initialized.", zap.Bool("tracking", s.tracker.Enabled()))
	return nil
}

func (s *Session) tabContext() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.closed {
		return nil, ErrClosed
	}
	return s.ctx, nil
}

// RunActions implements ActionExecutor.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := s.tabContext()
	if err != nil {
		return err
	}
	runCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url in the tab and makes sure the page shim is present.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Browser().NavigationTimeout)
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.RunActions(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return s.ensureShim(ctx)
}

// ensureShim installs the link helpers into the current document when a
// page replaced or removed them.
func (s *Session) ensureShim(ctx context.Context) error {
	var present bool
	if err := s.RunActions(ctx, chromedp.Evaluate(s.linkShim.Detect, &present)); err != nil {
		return fmt.Errorf("failed to detect page shim: %w", err)
	}
	if present {
		return nil
	}
	if err := s.RunActions(ctx, chromedp.Evaluate(s.linkShim.Source, nil)); err != nil {
		return fmt.Errorf("failed to inject page shim: %w", err)
	}
	s.logger.Debug("Injected page shim.", zap.String("script", s.linkShim.Name))
	return nil
}

// Tracker returns the tab's request tracker.
func (s *Session) Tracker() *tracking.Tracker { return s.tracker }

// Broker returns the tab's reference broker. Callers may register further
// targets on it.
func (s *Session) Broker() *broker.Broker { return s.broker }

// HasRequestSince reports whether the page started a request matching
// pattern after since (Unix milliseconds on the tracker clock).
func (s *Session) HasRequestSince(pattern string, since int64) (bool, error) {
	return s.tracker.HasRequestSince(pattern, since)
}

// Hrefs implements links.Document over the live page.
func (s *Session) Hrefs(ctx context.Context) ([]string, error) {
	return s.hrefs(ctx)
}

func (s *Session) hrefs(ctx context.Context) ([]string, error) {
	if err := s.ensureShim(ctx); err != nil {
		return nil, err
	}
	var hrefs []string
	if err := s.RunActions(ctx, chromedp.Evaluate(shim.HrefsExpression(s.ns), &hrefs)); err != nil {
		return nil, fmt.Errorf("failed to read anchors: %w", err)
	}
	return hrefs, nil
}

// MatchingHrefs returns the resolved hrefs of the page's anchors matching
// any of patterns. See links.Scanner for ordering.
func (s *Session) MatchingHrefs(ctx context.Context, patterns []string) ([]string, error) {
	return s.scanner.GetMatchingHrefs(ctx, s, patterns)
}

// Invoke dereferences handle keys in args and calls method on the target
// registered as ref.
func (s *Session) Invoke(ctx context.Context, ref, method string, args []interface{}) (schemas.Result, error) {
	if _, err := s.tabContext(); err != nil {
		return schemas.Result{}, err
	}
	resolved, err := s.broker.Deref(args)
	if err != nil {
		return schemas.Result{}, err
	}
	return s.broker.Invoke(ctx, ref, method, resolved)
}

func (s *Session) waitOptions(interval time.Duration) wait.Options {
	w := s.cfg.Wait()
	return wait.Options{Interval: interval, Timeout: w.Timeout, Settle: w.Settle}
}

// WaitForRequest blocks until a request matching pattern started after since.
func (s *Session) WaitForRequest(ctx context.Context, pattern string, since int64) error {
	return wait.ForRequest(ctx, s.tracker, pattern, since, s.waitOptions(s.cfg.Wait().RequestInterval))
}

// WaitForIdle blocks until no tracked request is in flight.
func (s *Session) WaitForIdle(ctx context.Context) error {
	return wait.ForIdle(ctx, s.tracker, s.waitOptions(s.cfg.Wait().IdleInterval))
}

// WaitAfter runs action and waits for a request matching pattern that it
// triggered. With skipOnZero a zero result from action skips the wait.
func (s *Session) WaitAfter(ctx context.Context, pattern string, skipOnZero bool, action wait.Action) (interface{}, error) {
	opts := s.waitOptions(s.cfg.Wait().RequestInterval)
	opts.SkipOnZero = skipOnZero
	return wait.AfterAction(ctx, s.tracker, pattern, opts, action)
}

// Close closes the tab. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tabCtx, cancel := s.ctx, s.cancel
	s.mu.Unlock()

	if tabCtx == nil {
		return nil
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, closeTimeout)
	defer cancelWait()

	// chromedp.Cancel closes the tab gracefully; cancel releases the context.
	err := chromedp.Cancel(tabCtx)
	cancel()
	select {
	case <-tabCtx.Done():
	case <-waitCtx.Done():
		s.logger.Warn("Timed out waiting for tab to close.")
	}

	s.logger.Debug("Browser session closed.",
		zap.Int("requests", s.tracker.Len()),
		zap.Int("handles", s.broker.Registry().Len()),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close tab: %w", err)
	}
	return nil
}
