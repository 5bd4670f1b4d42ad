// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "vani", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser().StartupTimeout)
	assert.True(t, cfg.Tracking().Enabled)
	assert.Equal(t, []string{"XHR", "Fetch"}, cfg.Tracking().ResourceTypes)
	assert.Equal(t, 5*time.Second, cfg.Wait().Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Wait().RequestInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Wait().IdleInterval)
	assert.Equal(t, "vani", cfg.Broker().Namespace)
	assert.Equal(t, "jqueryCache", cfg.Broker().Registry)
	assert.Equal(t, int64(16<<20), cfg.Fetch().MaxBodyBytes)
	assert.Equal(t, 4, cfg.Fetch().Concurrency)
	assert.Equal(t, time.Second, cfg.Crawl().PageLoadWait)
	assert.Equal(t, time.Second, cfg.Crawl().AjaxWait)
	assert.Zero(t, cfg.Crawl().MaxPages)

	assert.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad log format", func(c *Config) { c.LoggerCfg.Format = "xml" }, "logger.format"},
		{"zero startup timeout", func(c *Config) { c.BrowserCfg.StartupTimeout = 0 }, "browser.startup_timeout"},
		{"no resource types", func(c *Config) { c.TrackingCfg.ResourceTypes = nil }, "tracking.resource_types must not be empty"},
		{"unknown resource type", func(c *Config) { c.TrackingCfg.ResourceTypes = []string{"XHR", "Ajax"} }, `unknown resource type "Ajax"`},
		{"zero wait timeout", func(c *Config) { c.WaitCfg.Timeout = 0 }, "wait.timeout"},
		{"zero idle interval", func(c *Config) { c.WaitCfg.IdleInterval = 0 }, "wait.idle_interval"},
		{"negative settle", func(c *Config) { c.WaitCfg.Settle = -time.Second }, "wait.settle"},
		{"dotted namespace", func(c *Config) { c.BrokerCfg.Namespace = "my.ns" }, "broker.namespace"},
		{"dotted registry", func(c *Config) { c.BrokerCfg.Registry = "a.b" }, "broker.registry"},
		{"zero fetch concurrency", func(c *Config) { c.FetchCfg.Concurrency = 0 }, "fetch.concurrency"},
		{"negative crawl wait", func(c *Config) { c.CrawlCfg.AjaxWait = -time.Second }, "crawl.page_load_wait"},
		{"negative max pages", func(c *Config) { c.CrawlCfg.MaxPages = -1 }, "crawl.max_pages"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("disabled tracking skips resource type checks", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.SetTrackingEnabled(false)
		cfg.TrackingCfg.ResourceTypes = nil
		assert.NoError(t, cfg.Validate())
	})

	t.Run("reports several problems at once", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.WaitCfg.Timeout = 0
		cfg.FetchCfg.Timeout = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wait.timeout")
		assert.Contains(t, err.Error(), "fetch.timeout")
	})
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  headless: false
  args: ["--window-size=1280,800"]
wait:
  timeout: 12s
tracking:
  resource_types: [XHR]
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.False(t, cfg.Browser().Headless)
		assert.Equal(t, []string{"--window-size=1280,800"}, cfg.Browser().Args)
		assert.Equal(t, 12*time.Second, cfg.Wait().Timeout)
		assert.Equal(t, []string{"XHR"}, cfg.Tracking().ResourceTypes)
		// Untouched keys keep their defaults.
		assert.Equal(t, 500*time.Millisecond, cfg.Wait().RequestInterval)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("fetch.concurrency", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Nil(t, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "fetch.concurrency must be a positive integer")
	})

	t.Run("Environment Variable Override", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString("wait:\n  timeout: 3s\n")))

		t.Setenv("VANI_WAIT_TIMEOUT", "9s")
		t.Setenv("VANI_BROKER_NAMESPACE", "acme")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 9*time.Second, cfg.Wait().Timeout)
		assert.Equal(t, "acme", cfg.Broker().Namespace)
	})

	t.Run("Log file home expansion", func(t *testing.T) {
		home, err := homedir.Dir()
		if err != nil {
			t.Skip("no home directory available")
		}
		v := viper.New()
		SetDefaults(v)
		v.Set("logger.log_file", "~/logs/vani.log")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "logs", "vani.log"), cfg.Logger().LogFile)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetBrowserHeadless(false)
	iface.SetWaitTimeout(time.Minute)
	iface.SetFetchInsecureSkipVerify(true)

	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, time.Minute, cfg.Wait().Timeout)
	assert.True(t, cfg.Fetch().InsecureSkipVerify)
}

