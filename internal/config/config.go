// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable that overrides a config key,
// e.g. VANI_WAIT_TIMEOUT for wait.timeout.
const EnvPrefix = "VANI"

// Interface defines the contract for accessing application configuration.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Tracking() TrackingConfig
	Wait() WaitConfig
	Broker() BrokerConfig
	Fetch() FetchConfig
	Crawl() CrawlConfig

	SetBrowserHeadless(bool)
	SetTrackingEnabled(bool)
	SetWaitTimeout(time.Duration)
	SetFetchInsecureSkipVerify(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	TrackingCfg TrackingConfig `mapstructure:"tracking" yaml:"tracking"`
	WaitCfg     WaitConfig     `mapstructure:"wait" yaml:"wait"`
	BrokerCfg   BrokerConfig   `mapstructure:"broker" yaml:"broker"`
	FetchCfg    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	CrawlCfg    CrawlConfig    `mapstructure:"crawl" yaml:"crawl"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Tracking() TrackingConfig { return c.TrackingCfg }
func (c *Config) Wait() WaitConfig         { return c.WaitCfg }
func (c *Config) Broker() BrokerConfig     { return c.BrokerCfg }
func (c *Config) Fetch() FetchConfig       { return c.FetchCfg }
func (c *Config) Crawl() CrawlConfig       { return c.CrawlCfg }

func (c *Config) SetBrowserHeadless(b bool)         { c.BrowserCfg.Headless = b }
func (c *Config) SetTrackingEnabled(b bool)         { c.TrackingCfg.Enabled = b }
func (c *Config) SetWaitTimeout(d time.Duration)    { c.WaitCfg.Timeout = d }
func (c *Config) SetFetchInsecureSkipVerify(b bool) { c.FetchCfg.InsecureSkipVerify = b }

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the Chromium process and its tabs.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	StartupTimeout    time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// TrackingConfig controls the request-dispatch hook. With Enabled false the
// hook is never installed and every request query answers false.
type TrackingConfig struct {
	Enabled       bool     `mapstructure:"enabled" yaml:"enabled"`
	ResourceTypes []string `mapstructure:"resource_types" yaml:"resource_types"`
}

type WaitConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestInterval time.Duration `mapstructure:"request_interval" yaml:"request_interval"`
	IdleInterval    time.Duration `mapstructure:"idle_interval" yaml:"idle_interval"`
	Settle          time.Duration `mapstructure:"settle" yaml:"settle"`
}

// BrokerConfig names the page-global namespace and the handle registry.
// Handle keys are "<namespace>.<registry>.<uuid>".
type BrokerConfig struct {
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Registry  string `mapstructure:"registry" yaml:"registry"`
}

// FetchConfig controls static (browserless) page fetches.
type FetchConfig struct {
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRedirects       int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	UserAgent          string        `mapstructure:"user_agent" yaml:"user_agent"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	Concurrency        int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// CrawlConfig paces the crawler. After each load it pauses for PageLoadWait,
// then waits up to AjaxWait for in-flight requests to finish.
type CrawlConfig struct {
	PageLoadWait time.Duration `mapstructure:"page_load_wait" yaml:"page_load_wait"`
	AjaxWait     time.Duration `mapstructure:"ajax_wait" yaml:"ajax_wait"`
	// MaxPages stops the crawl after that many loads. Zero means no limit.
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"`
}

// NewDefaultConfig returns a configuration populated only from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a Config from v. Environment
// variables with the VANI_ prefix override file values.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("could not expand logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

var jsIdentifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.LoggerCfg.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", c.LoggerCfg.Format))
	}
	if c.BrowserCfg.StartupTimeout <= 0 {
		errs = append(errs, errors.New("browser.startup_timeout must be positive"))
	}
	if c.BrowserCfg.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("browser.navigation_timeout must be positive"))
	}
	if err := c.TrackingCfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.WaitCfg.Timeout <= 0 {
		errs = append(errs, errors.New("wait.timeout must be positive"))
	}
	if c.WaitCfg.RequestInterval <= 0 || c.WaitCfg.IdleInterval <= 0 {
		errs = append(errs, errors.New("wait.request_interval and wait.idle_interval must be positive"))
	}
	if c.WaitCfg.Settle < 0 {
		errs = append(errs, errors.New("wait.settle must not be negative"))
	}
	if !jsIdentifier.MatchString(c.BrokerCfg.Namespace) {
		errs = append(errs, fmt.Errorf("broker.namespace %q is not a valid JavaScript identifier", c.BrokerCfg.Namespace))
	}
	if c.BrokerCfg.Registry == "" || strings.Contains(c.BrokerCfg.Registry, ".") {
		errs = append(errs, fmt.Errorf("broker.registry %q must be non-empty and contain no dots", c.BrokerCfg.Registry))
	}
	if c.FetchCfg.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.FetchCfg.Concurrency <= 0 {
		errs = append(errs, errors.New("fetch.concurrency must be a positive integer"))
	}
	if c.CrawlCfg.PageLoadWait < 0 || c.CrawlCfg.AjaxWait < 0 {
		errs = append(errs, errors.New("crawl.page_load_wait and crawl.ajax_wait must not be negative"))
	}
	if c.CrawlCfg.MaxPages < 0 {
		errs = append(errs, errors.New("crawl.max_pages must not be negative"))
	}
	return errors.Join(errs...)
}

var knownResourceTypes = map[string]bool{
	"XHR": true, "Fetch": true, "Document": true, "Script": true,
	"Stylesheet": true, "Image": true, "EventSource": true, "WebSocket": true, "Other": true,
}

// Validate checks the resource type names against the CDP resource types the
// hook can filter on.
func (t TrackingConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if len(t.ResourceTypes) == 0 {
		return errors.New("tracking.resource_types must not be empty when tracking is enabled")
	}
	for _, rt := range t.ResourceTypes {
		if !knownResourceTypes[rt] {
			return fmt.Errorf("tracking.resource_types: unknown resource type %q", rt)
		}
	}
	return nil
}

// SetDefaults registers every default so that env overrides and Unmarshal
// see the full key set.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "vani")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.startup_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "60s")

	// -- Tracking --
	v.SetDefault("tracking.enabled", true)
	v.SetDefault("tracking.resource_types", []string{"XHR", "Fetch"})

	// -- Wait --
	v.SetDefault("wait.timeout", "5s")
	v.SetDefault("wait.request_interval", "500ms")
	v.SetDefault("wait.idle_interval", "100ms")
	v.SetDefault("wait.settle", "0s")

	// -- Broker --
	v.SetDefault("broker.namespace", "vani")
	v.SetDefault("broker.registry", "jqueryCache")

	// -- Fetch --
	v.SetDefault("fetch.timeout", "60s")
	v.SetDefault("fetch.max_redirects", 10)
	v.SetDefault("fetch.max_body_bytes", 16<<20)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("fetch.concurrency", 4)

	// -- Crawl --
	v.SetDefault("crawl.page_load_wait", "1s")
	v.SetDefault("crawl.ajax_wait", "1s")
	v.SetDefault("crawl.max_pages", 0)
}
