package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickjm/joinflow/internal/artifact"
	"github.com/patrickjm/joinflow/internal/browser"
)

const (
	testTimeout = 300 * time.Millisecond
	testPoll    = 20 * time.Millisecond
)

func testManager(t *testing.T, engine browser.Engine) Manager {
	t.Helper()
	return Manager{
		Engine:    engine,
		Artifacts: artifact.Store{Root: t.TempDir()},
		Logger:    zaptest.NewLogger(t),
	}
}

func testOptions(kind string) Options {
	return Options{Browser: kind, Headless: true, Timeout: testTimeout, PollInterval: testPoll, Settle: 10 * time.Millisecond}
}

func newTestSession(t *testing.T, doc *browser.FakeDocument) (*Session, *browser.FakeDriver) {
	t.Helper()
	driver := browser.NewFakeDriver(doc)
	s, err := testManager(t, &browser.FakeEngine{Driver: driver}).Create(testOptions("chrome"))
	require.NoError(t, err)
	t.Cleanup(s.Dispose)
	return s, driver
}

func TestCreateEveryKindDisposesOnce(t *testing.T) {
	for _, kind := range []string{"chrome", "firefox", "edge", "Chrome"} {
		t.Run(kind, func(t *testing.T) {
			driver := browser.NewFakeDriver(&browser.FakeDocument{Title: "home"})
			engine := &browser.FakeEngine{Driver: driver}
			s, err := testManager(t, engine).Create(testOptions(kind))
			require.NoError(t, err)
			require.Len(t, engine.Started, 1)
			assert.Equal(t, browser.Kind(strings.ToLower(kind)), s.Capabilities().Kind)
			assert.True(t, engine.Started[0].Headless)
			assert.Equal(t, int(testTimeout.Milliseconds()), driver.TimeoutMs)
			assert.NotEmpty(t, s.ID())

			s.Dispose()
			s.Dispose()
			assert.True(t, s.Disposed())
			assert.Equal(t, 1, driver.CloseCalls)
			assert.Equal(t, 1, driver.QuitCalls)
		})
	}
}

func TestCreateDefaults(t *testing.T) {
	s, err := testManager(t, &browser.FakeEngine{}).Create(Options{Browser: "chrome", PollInterval: time.Second})
	require.NoError(t, err)
	defer s.Dispose()
	assert.Equal(t, DefaultTimeout, s.Timeout())
	assert.Equal(t, maxPollInterval, s.PollInterval())
	assert.Equal(t, DefaultSettle, s.Settle())
}

func TestCreateUnsupportedBrowser(t *testing.T) {
	engine := &browser.FakeEngine{}
	_, err := testManager(t, engine).Create(testOptions("safari"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedBrowser)
	var unsupported *UnsupportedBrowserError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "safari", unsupported.Name)
	assert.Empty(t, engine.Started)
}

func TestCreateStartFailure(t *testing.T) {
	cause := errors.New("executable doesn't exist")
	_, err := testManager(t, &browser.FakeEngine{StartErr: cause}).Create(testOptions("firefox"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionStart)
	assert.ErrorIs(t, err, cause)

	_, err = testManager(t, nil).Create(testOptions("chrome"))
	assert.ErrorIs(t, err, ErrSessionStart)
}

func TestNavigateWaitsForTitle(t *testing.T) {
	s, driver := newTestSession(t, &browser.FakeDocument{Title: "Orangetheory", TitleAfter: 60 * time.Millisecond})
	require.NoError(t, s.Navigate("https://example.test/en-us"))
	assert.Equal(t, "https://example.test/en-us", driver.URL)
}

func TestNavigateTimeout(t *testing.T) {
	s, _ := newTestSession(t, &browser.FakeDocument{})
	start := time.Now()
	err := s.Navigate("https://example.test/blank")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNavigationTimeout)
	assert.GreaterOrEqual(t, time.Since(start), testTimeout)
}

func TestNavigateLoadError(t *testing.T) {
	s, driver := newTestSession(t, &browser.FakeDocument{Title: "x"})
	driver.GetErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	err := s.Navigate("https://nowhere.test")
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.GetErr)
	assert.NotErrorIs(t, err, ErrNavigationTimeout)
}

func TestOperationsAfterDispose(t *testing.T) {
	s, _ := newTestSession(t, &browser.FakeDocument{Title: "x"})
	s.Dispose()

	assert.ErrorIs(t, s.Navigate("https://example.test"), ErrSessionNotReady)
	_, err := s.Wait(browser.ByID("x"), WaitSpec{})
	assert.ErrorIs(t, err, ErrSessionNotReady)
	assert.ErrorIs(t, s.Click(browser.ByID("x")), ErrSessionNotReady)
	assert.ErrorIs(t, s.SwitchToFrame(FrameAt(0)), ErrSessionNotReady)
	_, err = s.TabCount()
	assert.ErrorIs(t, err, ErrSessionNotReady)
	assert.False(t, s.IsDisplayed(browser.ByID("x")))
	assert.Empty(t, s.CaptureScreenshot("after dispose"))
}

func TestNilSession(t *testing.T) {
	var s *Session
	assert.NotPanics(t, func() {
		s.Dispose()
		assert.Empty(t, s.CaptureScreenshot("nil"))
		assert.False(t, s.IsDisplayed(browser.ByID("x")))
	})
	assert.ErrorIs(t, s.Navigate("https://example.test"), ErrSessionNotReady)
	_, inFrame := s.CurrentFrame()
	assert.False(t, inFrame)
}

func TestDisposeAttemptsBothSteps(t *testing.T) {
	s, driver := newTestSession(t, &browser.FakeDocument{Title: "x"})
	driver.CloseErr = errors.New("no such window")
	s.Dispose()
	assert.Equal(t, 1, driver.CloseCalls)
	assert.Equal(t, 1, driver.QuitCalls)

	s2, driver2 := newTestSession(t, &browser.FakeDocument{Title: "x"})
	driver2.QuitErr = errors.New("connection refused")
	assert.NotPanics(t, s2.Dispose)
	assert.Equal(t, 1, driver2.CloseCalls)
	assert.Equal(t, 1, driver2.QuitCalls)
}

func TestCaptureScreenshot(t *testing.T) {
	s, driver := newTestSession(t, &browser.FakeDocument{Title: "x"})
	driver.ShotData = []byte("png-bytes")

	path := s.CaptureScreenshot("Clicking the SMS & MMS Terms link")
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "Clicking_the_SMS___MMS_Terms_link_"))
	assert.Equal(t, ".png", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	driver.ShotErr = errors.New("target closed")
	assert.Empty(t, s.CaptureScreenshot("broken"))
}

func TestNetworkLog(t *testing.T) {
	s, driver := newTestSession(t, &browser.FakeDocument{Title: "x"})
	driver.Network = []browser.NetworkEntry{{Method: "POST", URL: "https://api.test/validate", PostData: `{"data":{}}`}}
	entries, err := s.NetworkLog()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "POST", entries[0].Method)
}

func TestInterruptStopsWaitsButKeepsBrowser(t *testing.T) {
	s, driver := newTestSession(t, &browser.FakeDocument{Title: "x"})
	driver.ShotData = []byte("png-bytes")

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		_, err := s.Wait(browser.ByID("never-there"), WaitSpec{Condition: Located})
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	s.Interrupt()

	err := <-done
	assert.ErrorIs(t, err, ErrSessionNotReady)
	assert.Less(t, time.Since(start), testTimeout)
	assert.ErrorIs(t, s.Click(browser.ByID("x")), ErrSessionNotReady)
	assert.False(t, s.Disposed())

	assert.NotEmpty(t, s.CaptureScreenshot("interrupted"))
	s.Dispose()
	assert.Equal(t, 1, driver.CloseCalls)
	assert.Equal(t, 1, driver.QuitCalls)
}

func TestAwaitRequest(t *testing.T) {
	s, driver := newTestSession(t, &browser.FakeDocument{Title: "x"})
	driver.Network = []browser.NetworkEntry{
		{Method: "GET", URL: "https://site.test/membership-agreement"},
		{Method: "POST", URL: "https://site.test/api/membership/validate", PostData: `{"data":{}}`},
	}

	entry, err := s.AwaitRequest(func(e browser.NetworkEntry) bool { return e.Method == "POST" })
	require.NoError(t, err)
	assert.Equal(t, "https://site.test/api/membership/validate", entry.URL)

	start := time.Now()
	_, err = s.AwaitRequest(func(e browser.NetworkEntry) bool { return e.Method == "PUT" })
	assert.ErrorIs(t, err, ErrRequestNotSeen)
	assert.Contains(t, err.Error(), "2 requests recorded")
	assert.GreaterOrEqual(t, time.Since(start), testTimeout)

	s.Dispose()
	_, err = s.AwaitRequest(func(browser.NetworkEntry) bool { return true })
	assert.ErrorIs(t, err, ErrSessionNotReady)
}
