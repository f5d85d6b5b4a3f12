package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patrickjm/joinflow/internal/artifact"
	"github.com/patrickjm/joinflow/internal/browser"
	"github.com/patrickjm/joinflow/internal/config"
	"github.com/patrickjm/joinflow/internal/datablob"
	"github.com/patrickjm/joinflow/internal/page"
	"github.com/patrickjm/joinflow/internal/scenario"
	"github.com/patrickjm/joinflow/internal/session"
)

type GlobalFlags struct {
	EnvFile       string
	DotEnv        string
	Environment   string
	BaseURL       string
	ScreenshotDir string
	JSON          bool
	Quiet         bool
	Verbose       bool
	Browser       string
	Headless      bool
	Headed        bool
	Timeout       string
	Engine        string
}

type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

const (
	exitSuccess  = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
)

const (
	enginePlaywright = "playwright"
	engineFake       = "fake"
)

func (a App) prepare(flags GlobalFlags) (config.Config, error) {
	timeout, err := actionTimeout(flags)
	if err != nil {
		return config.Config{}, err
	}
	headless, err := headlessOverride(flags)
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(config.Overrides{
		DotEnv:        flags.DotEnv,
		EnvFile:       flags.EnvFile,
		Browser:       flags.Browser,
		Headless:      headless,
		Timeout:       timeout,
		Environment:   flags.Environment,
		BaseURL:       flags.BaseURL,
		ScreenshotDir: flags.ScreenshotDir,
	})
}

// newLogger writes JSON logs at warn level, or human-readable debug logs with
// --verbose. --quiet keeps errors only.
func newLogger(w io.Writer, flags GlobalFlags) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)
	level := zapcore.WarnLevel
	if flags.Verbose {
		encCfg = zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(encCfg)
		level = zapcore.DebugLevel
	}
	if flags.Quiet {
		level = zapcore.ErrorLevel
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

func (a App) engine(flags GlobalFlags, cfg config.Config) (browser.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(flags.Engine)) {
	case "", enginePlaywright:
		return browser.PlaywrightEngine{}, nil
	case engineFake:
		return &page.FakeSiteEngine{BaseURL: cfg.BaseURL}, nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want %s or %s)", flags.Engine, enginePlaywright, engineFake)
	}
}

func (a App) runScenarios(cfg config.Config, flags GlobalFlags, names []string, perScenario time.Duration) int {
	scenarios, err := scenario.Lookup(names...)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitNotFound
	}
	engine, err := a.engine(flags, cfg)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	logger := newLogger(a.Err, flags)
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	runner := scenario.Runner{
		Manager: session.Manager{
			Engine:    engine,
			Artifacts: cfg.Artifacts(),
			Logger:    logger,
		},
		Options: cfg.SessionOptions(),
		BaseURL: cfg.BaseURL,
		Timeout: perScenario,
		Logger:  logger,
	}
	rep := runner.RunAll(scenarios)
	rep.Environment = cfg.Environment

	if flags.JSON {
		b, _ := json.MarshalIndent(rep, "", "  ")
		fmt.Fprintln(a.Out, string(b))
	} else if !flags.Quiet {
		for _, res := range rep.Results {
			if res.Passed {
				fmt.Fprintf(a.Out, "PASS %s (%dms)\n", res.Name, res.DurationMs)
				continue
			}
			fmt.Fprintf(a.Out, "FAIL %s (%dms): %s\n", res.Name, res.DurationMs, res.Error)
			if res.Screenshot != "" {
				fmt.Fprintf(a.Out, "  screenshot=%s\n", res.Screenshot)
			}
		}
		fmt.Fprintf(a.Out, "%d passed, %d failed\n", rep.Passed, rep.Failed)
	}
	if !rep.OK() {
		return exitFailure
	}
	return exitSuccess
}

func (a App) runList(flags GlobalFlags) int {
	type entry struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Browser     bool   `json:"browser"`
	}
	entries := []entry{}
	for _, sc := range scenario.Catalog() {
		entries = append(entries, entry{Name: sc.Name, Description: sc.Description, Browser: !sc.NoBrowser})
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	for _, e := range entries {
		fmt.Fprintf(a.Out, "%s\t%s\n", e.Name, e.Description)
	}
	return exitSuccess
}

// runBlobDecode accepts either a full link carrying a data parameter or the
// bare blob.
func (a App) runBlobDecode(input string) int {
	var decoded any
	var err error
	if strings.Contains(input, "://") {
		err = datablob.FromURL(input, &decoded)
	} else {
		err = datablob.Decode(input, &decoded)
	}
	if errors.Is(err, datablob.ErrNoBlob) {
		fmt.Fprintln(a.Err, err)
		return exitNotFound
	}
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	b, _ := json.MarshalIndent(decoded, "", "  ")
	fmt.Fprintln(a.Out, string(b))
	return exitSuccess
}

// runBlobEncode reads a JSON document from path ("-" or empty for stdin), or
// uses a generated membership with sample, and prints the blob or the link.
func (a App) runBlobEncode(path, link string, sample bool) int {
	var payload any
	if sample {
		payload = datablob.SampleMembership()
	} else {
		raw, err := a.readInput(path)
		if err != nil {
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			fmt.Fprintf(a.Err, "invalid JSON: %v\n", err)
			return exitUsage
		}
	}
	if link != "" {
		out, err := datablob.WithBlob(link, payload)
		if err != nil {
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
		fmt.Fprintln(a.Out, out)
		return exitSuccess
	}
	blob, err := datablob.Encode(payload)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	fmt.Fprintln(a.Out, blob)
	return exitSuccess
}

func (a App) readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		if a.In == nil {
			return nil, errors.New("no input")
		}
		return io.ReadAll(a.In)
	}
	return os.ReadFile(path)
}

func (a App) runShotsList(store artifact.Store, flags GlobalFlags) int {
	shots, err := store.List()
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		if shots == nil {
			shots = []artifact.Shot{}
		}
		b, _ := json.MarshalIndent(shots, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	for _, s := range shots {
		fmt.Fprintf(a.Out, "%s created_at=%s size=%d\n", s.Path, s.CreatedAt.Format(time.RFC3339), s.Size)
	}
	return exitSuccess
}

func (a App) runShotsPrune(store artifact.Store, flags GlobalFlags, dryRun bool) int {
	removed, err := store.Prune(dryRun)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(removed, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	verb := "pruned"
	if dryRun {
		verb = "would prune"
	}
	for _, s := range removed {
		fmt.Fprintf(a.Out, "%s %s\n", verb, s.Name)
	}
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "max_age=%s\n", artifact.FormatAge(store.MaxAge))
	}
	return exitSuccess
}

func (a App) runInstall(flags GlobalFlags) int {
	browsers := []string{}
	if flags.Browser != "" {
		kind, ok := browser.ParseKind(flags.Browser)
		if !ok {
			fmt.Fprintln(a.Err, &session.UnsupportedBrowserError{Name: flags.Browser})
			return exitUsage
		}
		browsers = append(browsers, installName(kind))
	}
	opts := &playwright.RunOptions{}
	if len(browsers) > 0 {
		opts.Browsers = browsers
	}
	if err := playwright.Install(opts); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if !flags.Quiet {
		if len(browsers) == 0 {
			fmt.Fprintln(a.Out, "Playwright installed")
		} else {
			fmt.Fprintf(a.Out, "Playwright installed: %s\n", strings.Join(browsers, ", "))
		}
	}
	return exitSuccess
}

// installName maps a browser kind onto its playwright install target.
func installName(kind browser.Kind) string {
	switch kind {
	case browser.Firefox:
		return "firefox"
	case browser.Edge:
		return "msedge"
	default:
		return "chrome"
	}
}

func (a App) runDoctor(cfg config.Config, flags GlobalFlags) int {
	type result struct {
		Environment      string `json:"environment"`
		BaseURL          string `json:"base_url"`
		Browser          string `json:"browser"`
		Headless         bool   `json:"headless"`
		TimeoutMs        int64  `json:"timeout_ms"`
		EnvFile          string `json:"env_file,omitempty"`
		ScreenshotDir    string `json:"screenshot_dir"`
		ScreenshotDirOK  bool   `json:"screenshot_dir_writable"`
		BrowserSupported bool   `json:"browser_supported"`
		PlaywrightOK     bool   `json:"playwright_ok"`
		BrowsersPath     string `json:"browsers_path"`
	}
	res := result{
		Environment:   cfg.Environment,
		BaseURL:       cfg.BaseURL,
		Browser:       cfg.Browser,
		Headless:      cfg.Headless,
		TimeoutMs:     cfg.Timeout.Milliseconds(),
		EnvFile:       cfg.EnvFile,
		ScreenshotDir: cfg.ScreenshotDir,
		BrowsersPath:  os.Getenv("PLAYWRIGHT_BROWSERS_PATH"),
	}
	_, res.BrowserSupported = browser.ParseKind(cfg.Browser)
	if err := cfg.Artifacts().EnsureDir(); err == nil {
		res.ScreenshotDirOK = true
	}
	if pw, err := playwright.Run(); err == nil {
		res.PlaywrightOK = true
		pw.Stop()
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(a.Out, string(b))
	} else {
		fmt.Fprintf(a.Out, "environment=%s\n", res.Environment)
		fmt.Fprintf(a.Out, "base_url=%s\n", res.BaseURL)
		fmt.Fprintf(a.Out, "browser=%s supported=%t headless=%t\n", res.Browser, res.BrowserSupported, res.Headless)
		fmt.Fprintf(a.Out, "timeout_ms=%d\n", res.TimeoutMs)
		if res.EnvFile != "" {
			fmt.Fprintf(a.Out, "env_file=%s\n", res.EnvFile)
		}
		fmt.Fprintf(a.Out, "screenshot_dir=%s writable=%t\n", res.ScreenshotDir, res.ScreenshotDirOK)
		fmt.Fprintf(a.Out, "playwright_ok=%t\n", res.PlaywrightOK)
		if res.BrowsersPath != "" {
			fmt.Fprintf(a.Out, "browsers_path=%s\n", res.BrowsersPath)
		}
	}
	if !res.BrowserSupported || !res.PlaywrightOK {
		return exitFailure
	}
	return exitSuccess
}

func actionTimeout(flags GlobalFlags) (time.Duration, error) {
	if strings.TrimSpace(flags.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(flags.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid timeout: %s must be positive", flags.Timeout)
	}
	return d, nil
}

func headlessOverride(flags GlobalFlags) (*bool, error) {
	if flags.Headless && flags.Headed {
		return nil, errors.New("--headless and --headed are mutually exclusive")
	}
	if flags.Headless {
		v := true
		return &v, nil
	}
	if flags.Headed {
		v := false
		return &v, nil
	}
	return nil, nil
}
