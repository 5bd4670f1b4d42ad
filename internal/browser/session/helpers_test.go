// internal/browser/session/helpers_test.go
package session

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/markysoft/vani/internal/config"
)

var chromeCandidates = []string{
	"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "headless-shell",
}

// requireChrome skips the test when no Chromium binary is installed.
func requireChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chromium binary found in PATH")
	return ""
}

// newTestAllocator starts a headless browser shared by one test.
func newTestAllocator(t *testing.T, execPath string) context.Context {
	t.Helper()
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(execPath))
	if runtime.GOOS == "linux" {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-dev-shm-usage", true))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	t.Cleanup(cancel)
	return allocCtx
}

// newTestSession opens an initialized session with fast waits.
func newTestSession(t *testing.T, mutate func(*config.Config)) *Session {
	t.Helper()
	execPath := requireChrome(t)

	cfg := config.NewDefaultConfig()
	cfg.WaitCfg.RequestInterval = 20 * time.Millisecond
	cfg.WaitCfg.IdleInterval = 20 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	s, err := New(newTestAllocator(t, execPath), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// fakeExecutor records chromedp calls without a browser.
type fakeExecutor struct {
	calls int
	err   error
}

func (f *fakeExecutor) RunActions(_ context.Context, actions ...chromedp.Action) error {
	f.calls += len(actions)
	return f.err
}
