// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Browser execution modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Timeouts() TimeoutsConfig
	Artifacts() ArtifactsConfig
	Retry() RetryConfig
	Runner() RunnerConfig
	API() APIConfig
	Preflight() PreflightConfig
	Locators() LocatorsConfig
	Database() DatabaseConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	TimeoutsCfg  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	ArtifactsCfg ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	RetryCfg     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	RunnerCfg    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	APICfg       APIConfig       `mapstructure:"api" yaml:"api"`
	PreflightCfg PreflightConfig `mapstructure:"preflight" yaml:"preflight"`
	LocatorsCfg  LocatorsConfig  `mapstructure:"locators" yaml:"locators"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Timeouts() TimeoutsConfig   { return c.TimeoutsCfg }
func (c *Config) Artifacts() ArtifactsConfig { return c.ArtifactsCfg }
func (c *Config) Retry() RetryConfig         { return c.RetryCfg }
func (c *Config) Runner() RunnerConfig       { return c.RunnerCfg }
func (c *Config) API() APIConfig             { return c.APICfg }
func (c *Config) Preflight() PreflightConfig { return c.PreflightCfg }
func (c *Config) Locators() LocatorsConfig   { return c.LocatorsCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }

// LoggerConfig holds all the configuration for the logger.
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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds the session bootstrap parameters.
type BrowserConfig struct {
	Mode            string   `mapstructure:"mode" yaml:"mode"`
	RemoteURL       string   `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	WindowWidth     int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int      `mapstructure:"window_height" yaml:"window_height"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	SniffNetwork    bool     `mapstructure:"sniff_network" yaml:"sniff_network"`
	Args            []string `mapstructure:"args" yaml:"args"`
	// Persona overrides; empty values keep the browser's own.
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
}

// TimeoutsConfig collects the policy timeouts used by resolution and interaction.
type TimeoutsConfig struct {
	// Probe bounds each per-descriptor visibility attempt.
	Probe time.Duration `mapstructure:"probe" yaml:"probe"`
	// Wait bounds readiness conditions such as "clickable".
	Wait       time.Duration `mapstructure:"wait" yaml:"wait"`
	Alert      time.Duration `mapstructure:"alert" yaml:"alert"`
	PageLoad   time.Duration `mapstructure:"page_load" yaml:"page_load"`
	Navigation time.Duration `mapstructure:"navigation" yaml:"navigation"`
	Launch     time.Duration `mapstructure:"launch" yaml:"launch"`
}

// ArtifactsConfig defines where diagnostics and reports are written.
type ArtifactsConfig struct {
	ScreenshotDir string   `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	ReportDir     string   `mapstructure:"report_dir" yaml:"report_dir"`
	ReportFormats []string `mapstructure:"report_formats" yaml:"report_formats"`
}

// RetryConfig bounds the flaky-test retry policy.
type RetryConfig struct {
	Max   int           `mapstructure:"max" yaml:"max"`
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`
}

// RunnerConfig configures scenario execution.
type RunnerConfig struct {
	Env         string `mapstructure:"env" yaml:"env"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"`
	// Username and Password are the storefront account the suite logs in with.
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	// DataFile optionally names an .xlsx or .json file of catalogue cases.
	DataFile string `mapstructure:"data_file" yaml:"data_file"`
}

// ProjectConfig describes one backend the suite talks to.
type ProjectConfig struct {
	Name        string            `mapstructure:"-" yaml:"-"`
	BaseURI     string            `mapstructure:"base_uri" yaml:"base_uri"`
	HealthCheck string            `mapstructure:"health_check" yaml:"health_check"`
	Endpoints   map[string]string `mapstructure:"endpoints" yaml:"endpoints"`
	// Username and Password authenticate against backends that issue their
	// own tokens.
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
}

// Endpoint returns the path configured under key, or a ConfigError naming
// the missing setting.
func (p ProjectConfig) Endpoint(key string) (string, error) {
	path := strings.TrimSpace(p.Endpoints[strings.ToLower(key)])
	if path == "" {
		return "", &ConfigError{
			Key:    fmt.Sprintf("api.projects.%s.endpoints.%s", p.Name, strings.ToLower(key)),
			Reason: "endpoint not configured",
		}
	}
	return path, nil
}

// HealthURL is the absolute URL the circuit breaker probes: the base URI
// itself unless a health_check path is set.
func (p ProjectConfig) HealthURL() string {
	path := strings.TrimSpace(p.HealthCheck)
	if path == "" {
		return p.BaseURI
	}
	return strings.TrimRight(p.BaseURI, "/") + "/" + strings.TrimLeft(path, "/")
}

// APIConfig holds the backend client baseline.
type APIConfig struct {
	SLA       time.Duration            `mapstructure:"sla" yaml:"sla"`
	Timeout   time.Duration            `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64                  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int                      `mapstructure:"burst" yaml:"burst"`
	Projects  map[string]ProjectConfig `mapstructure:"projects" yaml:"projects"`
}

// Project returns the named project or a ConfigError when its base URI is missing.
func (a APIConfig) Project(name string) (ProjectConfig, error) {
	key := strings.ToLower(name)
	p, ok := a.Projects[key]
	if !ok || strings.TrimSpace(p.BaseURI) == "" {
		return ProjectConfig{}, &ConfigError{
			Key:    fmt.Sprintf("api.projects.%s.base_uri", key),
			Reason: "required setting is missing",
		}
	}
	p.Name = key
	return p, nil
}

// PreflightConfig configures the circuit breaker probe.
type PreflightConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LocatorsConfig points at an optional locator repository overriding the embedded one.
type LocatorsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// DatabaseConfig holds the result-history database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "bulwark")
	v.SetDefault("logger.log_file", "target/logs/bulwark.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.mode", ModeLocal)
	v.SetDefault("browser.remote_url", "ws://localhost:9222")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.sniff_network", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.timezone", "UTC")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.languages", []string{"en-US", "en"})

	// -- Timeouts --
	v.SetDefault("timeouts.probe", 2*time.Second)
	v.SetDefault("timeouts.wait", 10*time.Second)
	v.SetDefault("timeouts.alert", 10*time.Second)
	v.SetDefault("timeouts.page_load", 15*time.Second)
	v.SetDefault("timeouts.navigation", 30*time.Second)
	v.SetDefault("timeouts.launch", 30*time.Second)

	// -- Artifacts --
	v.SetDefault("artifacts.screenshot_dir", "target/screenshots")
	v.SetDefault("artifacts.report_dir", "reports")
	v.SetDefault("artifacts.report_formats", []string{"console", "junit", "html"})

	// -- Retry --
	v.SetDefault("retry.max", 2)
	v.SetDefault("retry.delay", "1s")

	// -- Runner --
	v.SetDefault("runner.env", "qa")
	v.SetDefault("runner.concurrency", 4)
	v.SetDefault("runner.base_url", "https://www.demoblaze.com")
	v.SetDefault("runner.username", "bulwark_qa")
	v.SetDefault("runner.password", "bulwark_qa_pass")
	v.SetDefault("runner.data_file", "")

	// -- API --
	v.SetDefault("api.sla", 5*time.Second)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.burst", 5)
	v.SetDefault("api.projects", map[string]interface{}{
		"demoblaze": map[string]interface{}{
			"base_uri":     "https://api.demoblaze.com",
			"health_check": "",
			"endpoints": map[string]interface{}{
				"login":     "/login",
				"signup":    "/signup",
				"addtocart": "/addtocart",
				"viewcart":  "/viewcart",
				"entries":   "/entries",
			},
		},
		"booker": map[string]interface{}{
			"base_uri":     "https://restful-booker.herokuapp.com",
			"health_check": "",
			"username":     "admin",
			"password":     "password123",
			"endpoints": map[string]interface{}{
				"auth":    "/auth",
				"booking": "/booking",
			},
		},
	})

	// -- Preflight --
	v.SetDefault("preflight.enabled", true)
	v.SetDefault("preflight.timeout", 10*time.Second)

	// -- Locators --
	v.SetDefault("locators.file", "")

	// -- Database --
	v.SetDefault("database.url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Connection strings carry credentials, so they are only read from the environment.
	_ = v.BindEnv("database.url", "BULWARK_DATABASE_URL")
	_ = v.BindEnv("runner.password", "BULWARK_RUNNER_PASSWORD")
	_ = v.BindEnv("api.projects.booker.password", "BULWARK_BOOKER_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading "~" in every filesystem setting.
func (c *Config) ExpandPaths() error {
	paths := []*string{
		&c.LoggerCfg.LogFile,
		&c.ArtifactsCfg.ScreenshotDir,
		&c.ArtifactsCfg.ReportDir,
		&c.LocatorsCfg.File,
		&c.RunnerCfg.DataFile,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
// Every failure is a *ConfigError so callers can abort before any session or client exists.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Mode {
	case ModeLocal:
	case ModeRemote:
		if strings.TrimSpace(c.BrowserCfg.RemoteURL) == "" {
			return &ConfigError{Key: "browser.remote_url", Reason: "required when browser.mode is remote"}
		}
	default:
		return &ConfigError{Key: "browser.mode", Reason: fmt.Sprintf("unknown mode %q (want local or remote)", c.BrowserCfg.Mode)}
	}
	if c.BrowserCfg.WindowWidth <= 0 || c.BrowserCfg.WindowHeight <= 0 {
		return &ConfigError{Key: "browser.window_width", Reason: "window size must be positive"}
	}
	if c.RunnerCfg.Concurrency <= 0 {
		return &ConfigError{Key: "runner.concurrency", Reason: "must be a positive integer"}
	}
	if c.RetryCfg.Max < 0 {
		return &ConfigError{Key: "retry.max", Reason: "must not be negative"}
	}
	if c.RetryCfg.Delay < 0 {
		return &ConfigError{Key: "retry.delay", Reason: "must not be negative"}
	}
	timeouts := []struct {
		key string
		d   time.Duration
	}{
		{"probe", c.TimeoutsCfg.Probe},
		{"wait", c.TimeoutsCfg.Wait},
		{"alert", c.TimeoutsCfg.Alert},
		{"page_load", c.TimeoutsCfg.PageLoad},
		{"navigation", c.TimeoutsCfg.Navigation},
		{"launch", c.TimeoutsCfg.Launch},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return &ConfigError{Key: "timeouts." + t.key, Reason: "must be a positive duration"}
		}
	}
	if c.ArtifactsCfg.ScreenshotDir == "" {
		return &ConfigError{Key: "artifacts.screenshot_dir", Reason: "required setting is missing"}
	}
	for name := range c.APICfg.Projects {
		if _, err := c.APICfg.Project(name); err != nil {
			return err
		}
	}
	return nil
}
