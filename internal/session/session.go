// Package session owns one controlled browser per test: creation, navigation,
// polling waits, frame and tab tracking, page actions and teardown.
//
// Operations are issued one at a time by the test that created it; parallel
// tests each create their own Session. Interrupt, Dispose, CurrentFrame and
// CaptureScreenshot may be called from another goroutine.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/patrickjm/joinflow/internal/artifact"
	"github.com/patrickjm/joinflow/internal/browser"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	DefaultSettle       = 3 * time.Second
	maxPollInterval     = 500 * time.Millisecond
)

type Options struct {
	Browser      string
	Headless     bool
	Timeout      time.Duration
	PollInterval time.Duration
	Settle       time.Duration
}

type Manager struct {
	Engine    browser.Engine
	Artifacts artifact.Store
	Logger    *zap.Logger
}

type Session struct {
	id      string
	caps    browser.Capabilities
	timeout time.Duration
	poll    time.Duration
	settle  time.Duration
	driver  browser.Driver
	shots   artifact.Store
	logger  *zap.Logger

	mu    sync.Mutex
	frame *FrameHandle

	interrupted atomic.Bool
	disposed    atomic.Bool
	disposeOnce sync.Once
}

// Create starts a browser for opts.Browser. The returned Session must be
// disposed by the caller on every exit path.
func (m Manager) Create(opts Options) (*Session, error) {
	kind, ok := browser.ParseKind(opts.Browser)
	if !ok {
		return nil, &UnsupportedBrowserError{Name: opts.Browser}
	}
	caps, err := browser.CapabilitiesFor(kind, opts.Headless)
	if err != nil {
		return nil, &UnsupportedBrowserError{Name: opts.Browser}
	}
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	log := logger.With(zap.String("session_id", id), zap.String("browser", string(kind)))
	if m.Engine == nil {
		return nil, &SessionStartError{Kind: kind, Err: errors.New("no browser engine configured")}
	}

	log.Info("starting browser", zap.Bool("headless", caps.Headless), zap.Strings("args", caps.Args))
	driver, err := m.Engine.Start(caps)
	if err != nil {
		log.Error("browser failed to start", zap.Error(err))
		return nil, &SessionStartError{Kind: kind, Err: err}
	}

	s := &Session{
		id:      id,
		caps:    caps,
		timeout: orDefault(opts.Timeout, DefaultTimeout),
		poll:    clampPoll(opts.PollInterval),
		settle:  orDefault(opts.Settle, DefaultSettle),
		driver:  driver,
		shots:   m.Artifacts,
		logger:  log,
	}
	driver.SetTimeout(int(s.timeout.Milliseconds()))
	log.Info("browser started", zap.Duration("timeout", s.timeout))
	return s, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func clampPoll(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultPollInterval
	}
	if d > maxPollInterval {
		return maxPollInterval
	}
	return d
}

func (s *Session) ID() string                         { return s.id }
func (s *Session) Capabilities() browser.Capabilities { return s.caps }
func (s *Session) Timeout() time.Duration             { return s.timeout }
func (s *Session) PollInterval() time.Duration        { return s.poll }
func (s *Session) Logger() *zap.Logger                { return s.logger }

func (s *Session) ready() error {
	if s == nil || s.driver == nil || s.disposed.Load() || s.interrupted.Load() {
		return ErrSessionNotReady
	}
	return nil
}

// Interrupt makes every later operation fail with ErrSessionNotReady and stops
// running waits at their next poll. The browser stays up, so the page can
// still be captured before Dispose.
func (s *Session) Interrupt() {
	if s == nil {
		return
	}
	if !s.interrupted.Swap(true) {
		s.logger.Debug("session interrupted")
	}
}

func (s *Session) setFrame(h *FrameHandle) {
	s.mu.Lock()
	s.frame = h
	s.mu.Unlock()
}

// Navigate loads url and waits until the document has a title.
func (s *Session) Navigate(url string) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.logger.Info("navigating", zap.String("url", url))
	if err := s.driver.Get(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	s.setFrame(nil)

	res := poll(s.timeout, s.poll, func() (bool, error) {
		if err := s.ready(); err != nil {
			return false, err
		}
		title, err := s.driver.Title()
		return err == nil && title != "", err
	})
	if res.aborted() {
		return res.err
	}
	if !res.ok {
		return &NavigationTimeoutError{URL: url, Timeout: s.timeout, Err: res.err}
	}
	s.logger.Info("navigated", zap.String("url", url))
	return nil
}

// CaptureScreenshot stores the current viewport as <label>_<millis>.png and
// returns its path. Failures are logged and reported as an empty path so they
// never hide the failure that triggered the capture.
func (s *Session) CaptureScreenshot(label string) string {
	if s == nil || s.driver == nil || s.Disposed() {
		zap.L().Warn("screenshot skipped: no live session", zap.String("label", label))
		return ""
	}
	png, err := s.driver.Screenshot()
	if err != nil {
		s.logger.Warn("screenshot failed", zap.String("label", label), zap.Error(err))
		return ""
	}
	path, err := s.shots.Save(label, time.Now(), png)
	if err != nil {
		s.logger.Warn("screenshot not saved", zap.String("label", label), zap.Error(err))
		return ""
	}
	s.logger.Info("screenshot saved", zap.String("path", path))
	return path
}

// NetworkLog returns the requests recorded so far when the browser was
// started with network capture.
func (s *Session) NetworkLog() ([]browser.NetworkEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.driver.NetworkLog(), nil
}

// AwaitRequest polls the network log until a recorded request satisfies match.
func (s *Session) AwaitRequest(match func(browser.NetworkEntry) bool) (browser.NetworkEntry, error) {
	if err := s.ready(); err != nil {
		return browser.NetworkEntry{}, err
	}
	var found browser.NetworkEntry
	seen := 0
	res := poll(s.timeout, s.poll, func() (bool, error) {
		entries, err := s.NetworkLog()
		if err != nil {
			return false, err
		}
		seen = len(entries)
		for _, e := range entries {
			if match(e) {
				found = e
				return true, nil
			}
		}
		return false, nil
	})
	if res.aborted() {
		return browser.NetworkEntry{}, res.err
	}
	if !res.ok {
		return browser.NetworkEntry{}, fmt.Errorf("%w within %s (%d requests recorded)", ErrRequestNotSeen, s.timeout, seen)
	}
	return found, nil
}

// Dispose closes the current window and then quits the browser. Both steps are
// always attempted; their failures are logged, never returned. Calling Dispose
// more than once, or on a nil Session, does nothing.
func (s *Session) Dispose() {
	if s == nil || s.driver == nil {
		return
	}
	s.disposeOnce.Do(func() {
		s.disposed.Store(true)

		closeErr := s.driver.Close()
		if closeErr != nil {
			s.logger.Warn("close window failed", zap.Error(closeErr))
		} else {
			s.logger.Debug("window closed")
		}
		quitErr := s.driver.Quit()
		if quitErr != nil {
			s.logger.Warn("quit browser failed", zap.Error(quitErr))
		} else {
			s.logger.Info("browser disposed")
		}
		if err := multierr.Combine(closeErr, quitErr); err != nil {
			s.logger.Error("teardown incomplete", zap.Errors("errors", multierr.Errors(err)))
		}
	})
}

func (s *Session) Disposed() bool {
	return s == nil || s.disposed.Load()
}
