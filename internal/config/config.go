package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/patrickjm/joinflow/internal/artifact"
	"github.com/patrickjm/joinflow/internal/session"
)

const (
	DefaultBrowser       = "chrome"
	DefaultEnvironment   = "UAT"
	DefaultScreenshotDir = "reports/screenshots"
	DefaultMaxAge        = 7 * 24 * time.Hour
)

// ErrUnknownEnvironment means no base URL is configured for the selected
// environment name.
var ErrUnknownEnvironment = errors.New("unknown environment")

var builtinEnvironments = map[string]string{
	"UAT": "https://www.uat.orangetheory.com/en-us",
}

type Config struct {
	Browser          string
	Headless         bool
	Timeout          time.Duration
	PollInterval     time.Duration
	Settle           time.Duration
	Environment      string
	BaseURL          string
	ScreenshotDir    string
	ScreenshotMaxAge time.Duration
	Environments     map[string]string
	EnvFile          string
}

// Overrides come from CLI flags and win over every other source. Zero values
// leave the lower layers alone.
type Overrides struct {
	DotEnv        string
	EnvFile       string
	Browser       string
	Headless      *bool
	Timeout       time.Duration
	Environment   string
	BaseURL       string
	ScreenshotDir string
}

type rawConfig struct {
	Browser          string                    `toml:"browser"`
	Headless         *bool                     `toml:"headless"`
	Timeout          string                    `toml:"timeout"`
	ScreenshotDir    string                    `toml:"screenshot_dir"`
	ScreenshotMaxAge string                    `toml:"screenshot_max_age"`
	Environments     map[string]rawEnvironment `toml:"environments"`
}

type rawEnvironment struct {
	URL string `toml:"url"`
}

func Load(o Overrides) (Config, error) {
	cfg := Config{
		Browser:          DefaultBrowser,
		Headless:         true,
		Timeout:          session.DefaultTimeout,
		PollInterval:     session.DefaultPollInterval,
		Settle:           session.DefaultSettle,
		Environment:      DefaultEnvironment,
		ScreenshotDir:    DefaultScreenshotDir,
		ScreenshotMaxAge: DefaultMaxAge,
		Environments:     map[string]string{},
	}
	for name, url := range builtinEnvironments {
		cfg.Environments[name] = url
	}

	if err := loadDotEnv(o.DotEnv); err != nil {
		return Config{}, err
	}
	if err := loadEnvironmentsFile(&cfg, o.EnvFile); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if v := strings.TrimSpace(o.Browser); v != "" {
		cfg.Browser = v
	}
	if o.Headless != nil {
		cfg.Headless = *o.Headless
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	if v := strings.TrimSpace(o.Environment); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(o.ScreenshotDir); v != "" {
		cfg.ScreenshotDir = v
	}

	cfg.Environment = strings.ToUpper(cfg.Environment)
	if v := strings.TrimSpace(o.BaseURL); v != "" {
		cfg.BaseURL = v
		return cfg, nil
	}
	url, ok := cfg.Environments[cfg.Environment]
	if !ok {
		return Config{}, fmt.Errorf("%w %q (configured: %s)", ErrUnknownEnvironment, cfg.Environment, strings.Join(cfg.EnvironmentNames(), ", "))
	}
	cfg.BaseURL = url
	return cfg, nil
}

// loadDotEnv reads KEY=value pairs into the process environment. Variables that
// are already set keep their value; a missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func environmentsPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	if v := strings.TrimSpace(os.Getenv("JOINFLOW_ENV_FILE")); v != "" {
		return []string{v}
	}
	return []string{
		"config/environments.toml",
		"/usr/local/etc/joinflow/environments.toml",
	}
}

func loadEnvironmentsFile(cfg *Config, explicit string) error {
	paths := environmentsPaths(explicit)
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if explicit != "" || len(paths) == 1 {
				return fmt.Errorf("environments file %s: %w", path, err)
			}
			continue
		}
		var raw rawConfig
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.EnvFile = path
		if raw.Browser != "" {
			cfg.Browser = raw.Browser
		}
		if raw.Headless != nil {
			cfg.Headless = *raw.Headless
		}
		if raw.Timeout != "" {
			d, err := time.ParseDuration(raw.Timeout)
			if err != nil {
				return fmt.Errorf("parse %s: timeout: %w", path, err)
			}
			cfg.Timeout = d
		}
		if raw.ScreenshotDir != "" {
			cfg.ScreenshotDir = raw.ScreenshotDir
		}
		if raw.ScreenshotMaxAge != "" {
			d, err := time.ParseDuration(raw.ScreenshotMaxAge)
			if err != nil {
				return fmt.Errorf("parse %s: screenshot_max_age: %w", path, err)
			}
			cfg.ScreenshotMaxAge = d
		}
		for name, env := range raw.Environments {
			if env.URL == "" {
				return fmt.Errorf("parse %s: environment %s has no url", path, name)
			}
			cfg.Environments[strings.ToUpper(name)] = env.URL
		}
		return nil
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("BROWSER")); v != "" {
		cfg.Browser = v
	}
	if v := strings.TrimSpace(os.Getenv("HEADLESS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HEADLESS: %w", err)
		}
		cfg.Headless = b
	}
	if v := strings.TrimSpace(os.Getenv("TIMEOUT")); v != "" {
		d, err := parseMillis(v)
		if err != nil {
			return fmt.Errorf("TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if v := strings.TrimSpace(os.Getenv("POLL_INTERVAL")); v != "" {
		d, err := parseMillis(v)
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	if v := strings.TrimSpace(os.Getenv("SETTLE")); v != "" {
		d, err := parseMillis(v)
		if err != nil {
			return fmt.Errorf("SETTLE: %w", err)
		}
		cfg.Settle = d
	}
	if v := strings.TrimSpace(os.Getenv("ENVIRONMENT")); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv("SCREENSHOT_DIR")); v != "" {
		cfg.ScreenshotDir = v
	}
	return nil
}

// parseMillis accepts a bare integer in milliseconds or a Go duration string.
func parseMillis(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("must be positive, got %d", ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func (c Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Config) SessionOptions() session.Options {
	return session.Options{
		Browser:      c.Browser,
		Headless:     c.Headless,
		Timeout:      c.Timeout,
		PollInterval: c.PollInterval,
		Settle:       c.Settle,
	}
}

func (c Config) Artifacts() artifact.Store {
	return artifact.Store{Root: c.ScreenshotDir, MaxAge: c.ScreenshotMaxAge}
}
