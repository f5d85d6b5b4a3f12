package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickjm/joinflow/internal/browser"
)

func framedDocument(frameHidden bool) (*browser.FakeDocument, browser.Locator, browser.Locator, browser.Locator) {
	topOnly := browser.ByID("top-only")
	inner := browser.ByXPath("//form[@data-testid='lead-form']")
	frameLoc := browser.ByID("book-class-1-frame")
	doc := &browser.FakeDocument{
		Title: "Book a class",
		Elements: []*browser.FakeElement{
			{Locator: topOnly},
			{
				Locator: frameLoc,
				Tag:     "iframe",
				Hidden:  frameHidden,
				Frame: &browser.FakeDocument{Elements: []*browser.FakeElement{
					{Locator: inner},
				}},
			},
		},
	}
	return doc, topOnly, inner, frameLoc
}

func TestFrameSwitchIsolatesContext(t *testing.T) {
	doc, topOnly, inner, frameLoc := framedDocument(false)
	s, driver := newTestSession(t, doc)

	assert.True(t, s.IsDisplayed(topOnly))
	assert.False(t, s.IsDisplayed(inner))

	require.NoError(t, s.SwitchToFrame(FrameBy(frameLoc)))
	assert.True(t, driver.InFrame())
	current, ok := s.CurrentFrame()
	require.True(t, ok)
	assert.Equal(t, frameLoc, *current.Locator)
	assert.False(t, s.IsDisplayed(topOnly))
	assert.True(t, s.IsDisplayed(inner))

	require.NoError(t, s.SwitchToTop())
	assert.False(t, driver.InFrame())
	_, ok = s.CurrentFrame()
	assert.False(t, ok)
	assert.True(t, s.IsDisplayed(topOnly))
	assert.False(t, s.IsDisplayed(inner))
}

func TestCurrentFrameReadableWhileSwitching(t *testing.T) {
	doc, _, _, frameLoc := framedDocument(false)
	s, _ := newTestSession(t, doc)

	stop := make(chan struct{})
	reads := make(chan int, 1)
	go func() {
		n := 0
		for {
			select {
			case <-stop:
				reads <- n
				return
			default:
				s.CurrentFrame()
				n++
			}
		}
	}()
	for range 10 {
		require.NoError(t, s.SwitchToFrame(FrameBy(frameLoc)))
		require.NoError(t, s.SwitchToTop())
	}
	close(stop)
	assert.Positive(t, <-reads)
}

func TestSwitchToFrameByIndex(t *testing.T) {
	doc, _, inner, _ := framedDocument(false)
	s, _ := newTestSession(t, doc)

	require.NoError(t, s.SwitchToFrame(FrameAt(0)))
	assert.True(t, s.IsDisplayed(inner))
	require.NoError(t, s.SwitchToTop())

	err := s.SwitchToFrame(FrameAt(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameNotReady)
	var notReady *FrameNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, 3, notReady.Frame.Index)
	assert.Contains(t, err.Error(), "out of bounds")
}

func TestSwitchToHiddenFrameTimesOut(t *testing.T) {
	doc, _, _, frameLoc := framedDocument(true)
	s, driver := newTestSession(t, doc)

	start := time.Now()
	err := s.SwitchToFrame(FrameBy(frameLoc))
	assert.ErrorIs(t, err, ErrFrameNotReady)
	assert.GreaterOrEqual(t, time.Since(start), testTimeout)
	assert.False(t, driver.InFrame())
}

func TestInFrameRestoresTop(t *testing.T) {
	doc, topOnly, inner, frameLoc := framedDocument(false)
	s, driver := newTestSession(t, doc)

	sawInner := false
	require.NoError(t, s.InFrame(FrameBy(frameLoc), func() error {
		sawInner = s.IsDisplayed(inner)
		return nil
	}))
	assert.True(t, sawInner)
	assert.False(t, driver.InFrame())

	boom := errors.New("boom")
	assert.ErrorIs(t, s.InFrame(FrameBy(frameLoc), func() error { return boom }), boom)
	assert.False(t, driver.InFrame())

	assert.Panics(t, func() {
		_ = s.InFrame(FrameBy(frameLoc), func() error { panic("mid-frame") })
	})
	assert.False(t, driver.InFrame())
	assert.True(t, s.IsDisplayed(topOnly))
}

func TestNestedFrameReplacesContext(t *testing.T) {
	deep := browser.ByID("deep")
	nested := browser.ByID("nested-frame")
	outer := browser.ByID("locations-iframe")
	doc := &browser.FakeDocument{Title: "x", Elements: []*browser.FakeElement{{
		Locator: outer,
		Tag:     "iframe",
		Frame: &browser.FakeDocument{Elements: []*browser.FakeElement{{
			Locator: nested,
			Tag:     "iframe",
			Frame:   &browser.FakeDocument{Elements: []*browser.FakeElement{{Locator: deep}}},
		}}},
	}}}
	s, driver := newTestSession(t, doc)

	require.NoError(t, s.SwitchToFrame(FrameBy(outer)))
	require.NoError(t, s.SwitchToFrame(FrameBy(nested)))
	assert.True(t, s.IsDisplayed(deep))
	current, _ := s.CurrentFrame()
	assert.Equal(t, nested, *current.Locator)

	require.NoError(t, s.SwitchToTop())
	assert.False(t, driver.InFrame())
	assert.True(t, s.IsDisplayed(outer))
}
