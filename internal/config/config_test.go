package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{"BROWSER", "HEADLESS", "TIMEOUT", "POLL_INTERVAL", "SETTLE", "ENVIRONMENT", "SCREENSHOT_DIR", "JOINFLOW_ENV_FILE"}

// isolate unsets every variable Load reads; t.Setenv restores them afterwards.
func isolate(t *testing.T) Overrides {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	return Overrides{DotEnv: filepath.Join(t.TempDir(), "missing.env")}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(isolate(t))
	require.NoError(t, err)
	assert.Equal(t, "chrome", cfg.Browser)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.Settle)
	assert.Equal(t, "UAT", cfg.Environment)
	assert.Equal(t, "https://www.uat.orangetheory.com/en-us", cfg.BaseURL)
	assert.Equal(t, DefaultScreenshotDir, cfg.ScreenshotDir)
}

func TestLoadEnvironmentsFile(t *testing.T) {
	o := isolate(t)
	o.EnvFile = writeFile(t, "environments.toml", `
browser = "firefox"
screenshot_max_age = "48h"

[environments.qa]
url = "https://www.qa.example.test/en-us"
`)
	o.Environment = "QA"
	cfg, err := Load(o)
	require.NoError(t, err)
	assert.Equal(t, "firefox", cfg.Browser)
	assert.Equal(t, 48*time.Hour, cfg.ScreenshotMaxAge)
	assert.Equal(t, "https://www.qa.example.test/en-us", cfg.BaseURL)
	assert.Equal(t, []string{"QA", "UAT"}, cfg.EnvironmentNames())
	assert.Equal(t, o.EnvFile, cfg.EnvFile)
}

func TestLoadEnvFileFromVariable(t *testing.T) {
	o := isolate(t)
	t.Setenv("JOINFLOW_ENV_FILE", writeFile(t, "envs.toml", "[environments.STAGE]\nurl = \"https://stage.example.test\"\n"))
	t.Setenv("ENVIRONMENT", "stage")
	cfg, err := Load(o)
	require.NoError(t, err)
	assert.Equal(t, "STAGE", cfg.Environment)
	assert.Equal(t, "https://stage.example.test", cfg.BaseURL)

	t.Setenv("JOINFLOW_ENV_FILE", filepath.Join(t.TempDir(), "nope.toml"))
	_, err = Load(o)
	assert.Error(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	o := isolate(t)
	o.EnvFile = writeFile(t, "environments.toml", "browser = \"firefox\"\ntimeout = \"20s\"\n")
	t.Setenv("BROWSER", "edge")
	t.Setenv("TIMEOUT", "15000")
	t.Setenv("HEADLESS", "false")
	t.Setenv("POLL_INTERVAL", "100")
	t.Setenv("SETTLE", "1s")

	cfg, err := Load(o)
	require.NoError(t, err)
	assert.Equal(t, "edge", cfg.Browser)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.Settle)

	headless := true
	o.Browser = "chrome"
	o.Headless = &headless
	o.Timeout = 5 * time.Second
	o.BaseURL = "http://localhost:8080"
	cfg, err = Load(o)
	require.NoError(t, err)
	assert.Equal(t, "chrome", cfg.Browser)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
}

func TestLoadDotEnv(t *testing.T) {
	o := isolate(t)
	o.DotEnv = writeFile(t, ".env", "BROWSER=firefox\nSCREENSHOT_DIR=out/shots\n")
	t.Setenv("SCREENSHOT_DIR", "explicit")

	cfg, err := Load(o)
	require.NoError(t, err)
	assert.Equal(t, "firefox", cfg.Browser)
	assert.Equal(t, "explicit", cfg.ScreenshotDir)
}

func TestLoadUnknownEnvironment(t *testing.T) {
	o := isolate(t)
	o.Environment = "prod"
	_, err := Load(o)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEnvironment)
	assert.Contains(t, err.Error(), "PROD")
}

func TestLoadInvalidValues(t *testing.T) {
	o := isolate(t)
	t.Setenv("TIMEOUT", "soon")
	_, err := Load(o)
	assert.Error(t, err)

	t.Setenv("TIMEOUT", "")
	t.Setenv("HEADLESS", "maybe")
	_, err = Load(o)
	assert.Error(t, err)

	t.Setenv("HEADLESS", "")
	o.EnvFile = writeFile(t, "bad.toml", "[environments.QA]\n")
	_, err = Load(o)
	assert.Error(t, err)
}

func TestSessionOptionsAndArtifacts(t *testing.T) {
	cfg, err := Load(isolate(t))
	require.NoError(t, err)
	opts := cfg.SessionOptions()
	assert.Equal(t, "chrome", opts.Browser)
	assert.True(t, opts.Headless)
	assert.Equal(t, cfg.Timeout, opts.Timeout)
	assert.Equal(t, cfg.Settle, opts.Settle)

	store := cfg.Artifacts()
	assert.Equal(t, cfg.ScreenshotDir, store.Root)
	assert.Equal(t, DefaultMaxAge, store.MaxAge)
}
