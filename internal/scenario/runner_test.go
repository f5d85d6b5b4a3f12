package scenario

import (
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickjm/joinflow/internal/artifact"
	"github.com/patrickjm/joinflow/internal/browser"
	"github.com/patrickjm/joinflow/internal/page"
	"github.com/patrickjm/joinflow/internal/session"
)

const baseURL = "https://www.uat.example.test/en-us"

func fakeRunner(t *testing.T, engine browser.Engine) Runner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return Runner{
		Manager: session.Manager{
			Engine:    engine,
			Artifacts: artifact.Store{Root: t.TempDir()},
			Logger:    logger,
		},
		Options: session.Options{
			Browser:      "chrome",
			Headless:     true,
			Timeout:      300 * time.Millisecond,
			PollInterval: 20 * time.Millisecond,
			Settle:       10 * time.Millisecond,
		},
		BaseURL: baseURL,
		Logger:  logger,
	}
}

func TestCatalogPassesAgainstFakeSite(t *testing.T) {
	engine := &page.FakeSiteEngine{BaseURL: baseURL, Options: page.FakeSiteOptions{TermsTabDelay: 50 * time.Millisecond}}
	rep := fakeRunner(t, engine).RunAll(Catalog())

	for _, res := range rep.Results {
		assert.True(t, res.Passed, "%s: %s", res.Name, res.Error)
		assert.Empty(t, res.Screenshot, res.Name)
	}
	assert.True(t, rep.OK())
	assert.Equal(t, len(Catalog()), rep.Passed)

	// blob-decode runs without a browser.
	require.Len(t, engine.Drivers, len(Catalog())-1)
	for _, d := range engine.Drivers {
		assert.Equal(t, 1, d.CloseCalls)
		assert.Equal(t, 1, d.QuitCalls)
	}
}

func TestFailureCapturesScreenshotAndDisposes(t *testing.T) {
	engine := &page.FakeSiteEngine{BaseURL: baseURL, Options: page.FakeSiteOptions{RequiredMessage: "This field is required."}}
	scenarios, err := Lookup("required-fields")
	require.NoError(t, err)

	res := fakeRunner(t, engine).Run(scenarios[0])
	assert.False(t, res.Passed)
	assert.Contains(t, res.Error, ErrAssertion.Error())
	assert.Contains(t, res.Error, "firstName")
	require.NotEmpty(t, res.Screenshot)
	_, err = os.Stat(res.Screenshot)
	assert.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)

	require.Len(t, engine.Drivers, 1)
	assert.Equal(t, 1, engine.Drivers[0].QuitCalls)
}

func TestTabNotOpenedFails(t *testing.T) {
	engine := &page.FakeSiteEngine{BaseURL: baseURL, Options: page.FakeSiteOptions{NoTermsTab: true}}
	scenarios, err := Lookup("sms-terms-tab")
	require.NoError(t, err)

	res := fakeRunner(t, engine).Run(scenarios[0])
	assert.False(t, res.Passed)
	assert.Contains(t, res.Error, "no new tab")
	assert.NotEmpty(t, res.Screenshot)
}

func TestStartFailure(t *testing.T) {
	engine := &browser.FakeEngine{StartErr: errors.New("chrome not installed")}
	res := fakeRunner(t, engine).Run(Scenario{Name: "x", Run: func(*Env) error { return nil }})
	assert.False(t, res.Passed)
	assert.Contains(t, res.Error, "chrome not installed")
	assert.Empty(t, res.Screenshot)
}

func TestPanicIsReportedAndSessionDisposed(t *testing.T) {
	driver := browser.NewFakeDriver(&browser.FakeDocument{Title: "home"})
	r := fakeRunner(t, &browser.FakeEngine{Driver: driver})

	res := r.Run(Scenario{Name: "boom", Run: func(*Env) error { panic("nil studio") }})
	assert.False(t, res.Passed)
	assert.Contains(t, res.Error, "panic: nil studio")
	assert.NotEmpty(t, res.Screenshot)
	assert.Equal(t, 1, driver.CloseCalls)
	assert.Equal(t, 1, driver.QuitCalls)
}

func TestScenarioTimeout(t *testing.T) {
	driver := browser.NewFakeDriver(&browser.FakeDocument{Title: "home"})
	r := fakeRunner(t, &browser.FakeEngine{Driver: driver})
	r.Timeout = 100 * time.Millisecond
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	res := r.Run(Scenario{Name: "stuck", Run: func(*Env) error {
		<-release
		return nil
	}})
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Error, ErrScenarioTimeout.Error())
	assert.NotEmpty(t, res.Screenshot)
	assert.Equal(t, 1, driver.QuitCalls)
}

func TestScenarioTimeoutStopsBodyBeforeTeardown(t *testing.T) {
	engine := &page.FakeSiteEngine{BaseURL: baseURL}
	r := fakeRunner(t, engine)
	r.Timeout = 100 * time.Millisecond

	var exited atomic.Bool
	var bodyErr error
	res := r.Run(Scenario{Name: "busy", Run: func(env *Env) error {
		defer exited.Store(true)
		if err := env.Session.Click(page.LocationsLink); err != nil {
			bodyErr = err
			return err
		}
		for {
			err := env.Studio.WithinIframe("locationsIframe", func() error {
				_, err := env.Session.Wait(page.StudioCard, session.WaitSpec{Condition: session.Visible})
				return err
			})
			env.Session.CurrentFrame()
			if err != nil {
				bodyErr = err
				return err
			}
		}
	}})

	require.True(t, exited.Load(), "body still running at teardown")
	assert.ErrorIs(t, bodyErr, session.ErrSessionNotReady)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Error, ErrScenarioTimeout.Error())
	assert.NotEmpty(t, res.Screenshot)
	require.Len(t, engine.Drivers, 1)
	assert.Equal(t, 1, engine.Drivers[0].CloseCalls)
	assert.Equal(t, 1, engine.Drivers[0].QuitCalls)
}

func TestBlobValidateRequestNotSeen(t *testing.T) {
	driver := browser.NewFakeDriver(&browser.FakeDocument{Title: "agreement"})
	r := fakeRunner(t, &browser.FakeEngine{Driver: driver})
	scenarios, err := Lookup("blob-validate")
	require.NoError(t, err)

	res := r.Run(scenarios[0])
	assert.False(t, res.Passed)
	assert.Contains(t, res.Error, ErrAssertion.Error())
	assert.Contains(t, res.Error, session.ErrRequestNotSeen.Error())
}

func TestBlobValidateNeedsNetworkCapture(t *testing.T) {
	engine := &page.FakeSiteEngine{BaseURL: baseURL}
	r := fakeRunner(t, engine)
	r.Options.Browser = "firefox"
	scenarios, err := Lookup("blob-validate")
	require.NoError(t, err)

	res := r.Run(scenarios[0])
	assert.False(t, res.Passed)
	assert.Contains(t, res.Error, "network capture")
}

func TestLookup(t *testing.T) {
	all, err := Lookup()
	require.NoError(t, err)
	assert.Len(t, all, len(Catalog()))

	some, err := Lookup("blob-decode", "studio-info")
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "studio-info", some[0].Name)
	assert.Equal(t, "blob-decode", some[1].Name)

	_, err = Lookup("studio-info", "checkout")
	assert.ErrorIs(t, err, ErrUnknownScenario)
}
