// internal/browser/manager_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/markysoft/vani/internal/config"
)

func TestAllocatorFlags(t *testing.T) {
	t.Run("Headless", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: true})
		_, overridden := flags["headless"]
		assert.False(t, overridden, "headless mode keeps chromedp's default flag")
		assert.Equal(t, false, flags["enable-automation"])
		assert.Equal(t, true, flags["disable-gpu"])
		assert.Equal(t, false, flags["ignore-certificate-errors"])
	})

	t.Run("Headful", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: false})
		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, false, flags["disable-gpu"])
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{IgnoreTLSErrors: true})
		assert.Equal(t, true, flags["ignore-certificate-errors"])
	})

	t.Run("CustomArgs", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{
			Args: []string{"--custom-arg1", "window-size=1280,720", "--", "--enable-automation"},
		})
		assert.Equal(t, true, flags["custom-arg1"])
		assert.Equal(t, "1280,720", flags["window-size"])
		assert.Equal(t, true, flags["enable-automation"], "explicit args win over built-in flags")
		_, empty := flags[""]
		assert.False(t, empty)
	})

	t.Run("LinuxSandbox", func(t *testing.T) {
		if runtime.GOOS != "linux" {
			t.Skip("linux only")
		}
		flags := allocatorFlags(config.BrowserConfig{})
		assert.Equal(t, true, flags["no-sandbox"])
		assert.Equal(t, true, flags["disable-dev-shm-usage"])
	})
}

func TestDefaultAllocatorOptions(t *testing.T) {
	base := len(DefaultAllocatorOptions(config.BrowserConfig{Headless: true}))
	withExtras := DefaultAllocatorOptions(config.BrowserConfig{
		Headless:  true,
		UserAgent: "vani-test",
		ExecPath:  "/usr/bin/chromium",
	})
	assert.Equal(t, base+2, len(withExtras))
}

func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chromium binary found in PATH")
	return ""
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.BrowserCfg.ExecPath = findChrome(t)
	cfg.BrowserCfg.Headless = true

	m, err := NewManager(context.Background(), zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func TestManager(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/a">a</a><a href="/b">b</a><a href="/docs/a">docs</a></body></html>`)
	}))
	defer server.Close()

	m := newTestManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	t.Run("ScanLinks", func(t *testing.T) {
		hrefs, err := m.ScanLinks(ctx, server.URL, []string{`/a$`})
		require.NoError(t, err)
		assert.Equal(t, []string{server.URL + "/a", server.URL + "/docs/a"}, hrefs)
	})

	t.Run("ConcurrentSessionsAreIsolated", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make([]string, 2)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s, err := m.NewSession(ctx)
				if !assert.NoError(t, err) {
					return
				}
				defer s.Close(ctx)
				ids[i] = s.ID()
				assert.NoError(t, s.Navigate(ctx, server.URL))
				assert.True(t, s.Tracker().Enabled())
			}(i)
		}
		wg.Wait()
		assert.NotEqual(t, ids[0], ids[1])
	})

	t.Run("CloseTwice", func(t *testing.T) {
		s, err := m.NewSession(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Close(ctx))
		require.NoError(t, s.Close(ctx))
	})
}

func TestManager_ShutdownRejectsNewSessions(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx))

	_, err := m.NewSession(ctx)
	assert.ErrorIs(t, err, ErrShutdown)
}
