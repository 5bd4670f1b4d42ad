// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/markysoft/vani/internal/browser/session"
	"github.com/markysoft/vani/internal/config"
)

// ErrShutdown is returned when a session is requested from a manager that is
// shutting down.
var ErrShutdown = errors.New("browser manager is shut down")

const defaultStartupTimeout = 30 * time.Second

// Manager owns the Chromium process. Every session is a tab of that one
// browser.
type Manager struct {
	logger *zap.Logger
	cfg    config.Interface

	// allocatorCtx manages the browser process. browserCtx is the first tab;
	// session tabs are derived from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	mu       sync.Mutex
	shutdown bool
	// wg tracks open sessions for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser and waits until it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.Interface) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...")

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), DefaultAllocatorOptions(m.cfg.Browser())...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	timeout := m.cfg.Browser().StartupTimeout
	if timeout <= 0 {
		timeout = defaultStartupTimeout
	}
	startCtx, cancelStart := context.WithTimeout(ctx, timeout)
	defer cancelStart()

	// The first Run starts the process and binds it to browserCtx, so it
	// cannot carry the startup deadline itself.
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(browserCtx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-startCtx.Done():
		browserCancel()
		<-errCh
		err = startCtx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.allocatorCtx, m.allocatorCancel = allocCtx, allocCancel
	m.browserCtx, m.browserCancel = browserCtx, browserCancel
	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// DefaultAllocatorOptions assembles the Chromium options for cfg on top of
// chromedp's defaults.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// allocatorFlags returns the command-line flags layered over chromedp's
// defaults. A false value removes a default flag.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"enable-automation":         false,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
		"disable-extensions":        true,
		"disable-gpu":               cfg.Headless,
	}
	if !cfg.Headless {
		flags["headless"] = false
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}

	// Containers on Linux usually have neither a usable sandbox nor a large /dev/shm.
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

// NewSession opens a new tab with its own tracker, scanner and broker. The
// returned session must be closed.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	m.wg.Add(1)
	m.mu.Unlock()

	s, err := session.New(m.browserCtx, m.cfg, m.logger)
	if err != nil {
		m.wg.Done()
		return nil, err
	}
	if err := s.Initialize(ctx); err != nil {
		m.wg.Done()
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.logger.Debug("New session created.", zap.String("session_id", s.ID()))
	return &Session{Session: s, wg: &m.wg}, nil
}

// ScanLinks opens a temporary session, loads url and returns the hrefs
// matching any of patterns.
func (m *Manager) ScanLinks(ctx context.Context, url string, patterns []string) ([]string, error) {
	s, err := m.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Close(Detach(ctx)); err != nil {
			m.logger.Warn("Failed to close temporary session.", zap.Error(err))
		}
	}()

	if err := s.Navigate(ctx, url); err != nil {
		return nil, err
	}
	return s.MatchingHrefs(ctx, patterns)
}

// Shutdown waits for open sessions, bounded by ctx, then terminates the
// browser process. It is safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	m.logger.Info("Browser manager shutdown initiated. Waiting for active sessions to complete...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions have completed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	closeCtx, cancel := context.WithTimeout(Detach(ctx), defaultStartupTimeout)
	defer cancel()
	err := chromedp.Cancel(m.browserCtx)
	m.browserCancel()
	m.allocatorCancel()
	select {
	case <-m.allocatorCtx.Done():
	case <-closeCtx.Done():
		m.logger.Warn("Timed out waiting for browser process to exit.")
	}

	m.logger.Info("Browser process terminated.")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// Session is a managed tab. Closing it releases its slot in the manager.
type Session struct {
	*session.Session
	wg     *sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// Close closes the tab and signals the manager exactly once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.Session.Close(ctx)
	s.closed = true
	s.wg.Done()
	return err
}

// Detach is re-exported for callers that clean up after a cancelled request.
func Detach(ctx context.Context) context.Context { return session.Detach(ctx) }
