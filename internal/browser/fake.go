package browser

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrFakeStale          = errors.New("stale element reference")
	ErrFakeNotInteractive = errors.New("element not interactable")
	ErrFakeQuit           = errors.New("browser has quit")
)

type FakeEngine struct {
	Driver   *FakeDriver
	StartErr error
	Started  []Capabilities
}

func (f *FakeEngine) Start(caps Capabilities) (Driver, error) {
	f.Started = append(f.Started, caps)
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if f.Driver == nil {
		f.Driver = NewFakeDriver(&FakeDocument{Title: "fake"})
	}
	return f.Driver, nil
}

// FakeDocument is a flat list of elements; time offsets are measured from the
// moment the document was loaded.
type FakeDocument struct {
	Title      string
	TitleAfter time.Duration
	Elements   []*FakeElement

	// Requests returns the requests the page sends when loaded from url.
	Requests func(url string) []NetworkEntry
}

type FakeElement struct {
	Locator  Locator
	Tag      string
	Content  string
	Value    string
	Hidden   bool
	Disabled bool

	AppearAfter  time.Duration
	VisibleAfter time.Duration
	EnabledAfter time.Duration

	// StaleChecks makes the next N state checks report a stale handle.
	StaleChecks int
	ClickErr    error
	OpensTab    bool
	TabDelay    time.Duration
	OnClick     func()

	Frame    *FakeDocument
	Children []*FakeElement

	Clicks       int
	ScriptClicks int
	Scrolled     bool

	driver *FakeDriver
}

type FakeDriver struct {
	mu sync.Mutex

	Sites   map[string]*FakeDocument
	Default *FakeDocument
	URL     string

	GetErr   error
	ShotData []byte
	ShotErr  error
	CloseErr error
	QuitErr  error

	Scripts    []string
	Network    []NetworkEntry
	TimeoutMs  int
	CloseCalls int
	QuitCalls  int

	top      *FakeDocument
	frame    *FakeDocument
	loadedAt time.Time
	tabs     []time.Time
	quit     bool
}

// NewFakeDriver returns a driver already showing doc, as if a blank tab had
// been opened on it.
func NewFakeDriver(doc *FakeDocument) *FakeDriver {
	d := &FakeDriver{Default: doc, Sites: map[string]*FakeDocument{}}
	d.load(doc)
	return d
}

func (d *FakeDriver) load(doc *FakeDocument) {
	d.top = doc
	d.frame = nil
	d.loadedAt = time.Now()
	if doc != nil {
		d.attach(doc.Elements)
	}
}

func (d *FakeDriver) attach(elements []*FakeElement) {
	for _, el := range elements {
		el.driver = d
		d.attach(el.Children)
		if el.Frame != nil {
			d.attach(el.Frame.Elements)
		}
	}
}

func (d *FakeDriver) Get(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return ErrFakeQuit
	}
	if d.GetErr != nil {
		return d.GetErr
	}
	d.URL = url
	doc, ok := d.Sites[url]
	if !ok {
		path, _, _ := strings.Cut(url, "?")
		if doc, ok = d.Sites[path]; !ok {
			doc = d.Default
		}
	}
	d.load(doc)
	if doc != nil && doc.Requests != nil {
		d.Network = append(d.Network, doc.Requests(url)...)
	}
	return nil
}

func (d *FakeDriver) Title() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return "", ErrFakeQuit
	}
	if d.top == nil || time.Since(d.loadedAt) < d.top.TitleAfter {
		return "", nil
	}
	return d.top.Title, nil
}

func (d *FakeDriver) FindElements(loc Locator) ([]Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return nil, ErrFakeQuit
	}
	doc := d.top
	if d.frame != nil {
		doc = d.frame
	}
	if doc == nil {
		return nil, nil
	}
	return d.match(doc.Elements, loc), nil
}

func (d *FakeDriver) match(elements []*FakeElement, loc Locator) []Element {
	elapsed := time.Since(d.loadedAt)
	var out []Element
	for _, el := range elements {
		if elapsed < el.AppearAfter {
			continue
		}
		if el.Locator == loc || (loc.Strategy == StrategyTagName && el.Tag == loc.Selector) {
			el.driver = d
			out = append(out, el)
		}
	}
	return out
}

func (d *FakeDriver) SwitchToFrame(frame Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := frame.(*FakeElement)
	if !ok || el.Frame == nil {
		return errors.New("element is not a frame")
	}
	d.frame = el.Frame
	return nil
}

func (d *FakeDriver) SwitchToDefaultContent() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = nil
	return nil
}

// InFrame reports whether lookups currently resolve inside a frame.
func (d *FakeDriver) InFrame() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame != nil
}

func (d *FakeDriver) WindowHandles() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return nil, ErrFakeQuit
	}
	handles := []string{"window-0"}
	now := time.Now()
	for i, at := range d.tabs {
		if !now.Before(at) {
			handles = append(handles, fmt.Sprintf("window-%d", i+1))
		}
	}
	return handles, nil
}

func (d *FakeDriver) ExecuteScript(script string, el Element) error {
	d.mu.Lock()
	if d.quit {
		d.mu.Unlock()
		return ErrFakeQuit
	}
	d.Scripts = append(d.Scripts, script)
	d.mu.Unlock()
	fe, ok := el.(*FakeElement)
	if !ok {
		return errors.New("element was not produced by this driver")
	}
	switch script {
	case ScrollIntoViewScript:
		fe.Scrolled = true
	case ClickScript:
		fe.ScriptClicks++
		fe.fire()
	}
	return nil
}

func (d *FakeDriver) Screenshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return nil, ErrFakeQuit
	}
	if d.ShotErr != nil {
		return nil, d.ShotErr
	}
	if d.ShotData == nil {
		return []byte("\x89PNG\r\n\x1a\nfake"), nil
	}
	return d.ShotData, nil
}

func (d *FakeDriver) NetworkLog() []NetworkEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]NetworkEntry, len(d.Network))
	copy(out, d.Network)
	return out
}

func (d *FakeDriver) SetTimeout(ms int) {
	d.mu.Lock()
	d.TimeoutMs = ms
	d.mu.Unlock()
}

func (d *FakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCalls++
	return d.CloseErr
}

func (d *FakeDriver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.QuitCalls++
	d.quit = true
	return d.QuitErr
}

func (d *FakeDriver) openTab(delay time.Duration) {
	d.mu.Lock()
	d.tabs = append(d.tabs, time.Now().Add(delay))
	d.mu.Unlock()
}

func (d *FakeDriver) elapsed() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Since(d.loadedAt)
}

func (e *FakeElement) check() error {
	if e.StaleChecks > 0 {
		e.StaleChecks--
		return ErrFakeStale
	}
	return nil
}

func (e *FakeElement) visible() bool {
	return !e.Hidden && e.driver.elapsed() >= e.VisibleAfter
}

func (e *FakeElement) enabled() bool {
	return !e.Disabled && e.driver.elapsed() >= e.EnabledAfter
}

func (e *FakeElement) IsDisplayed() (bool, error) {
	if err := e.check(); err != nil {
		return false, err
	}
	return e.visible(), nil
}

func (e *FakeElement) IsEnabled() (bool, error) {
	if err := e.check(); err != nil {
		return false, err
	}
	return e.enabled(), nil
}

func (e *FakeElement) Click() error {
	if err := e.check(); err != nil {
		return err
	}
	if e.ClickErr != nil {
		return e.ClickErr
	}
	if !e.visible() || !e.enabled() {
		return ErrFakeNotInteractive
	}
	e.Clicks++
	e.fire()
	return nil
}

func (e *FakeElement) fire() {
	if e.OpensTab {
		e.driver.openTab(e.TabDelay)
	}
	if e.OnClick != nil {
		e.OnClick()
	}
}

func (e *FakeElement) Clear() error {
	if err := e.check(); err != nil {
		return err
	}
	e.Value = ""
	return nil
}

func (e *FakeElement) SendKeys(text string) error {
	if err := e.check(); err != nil {
		return err
	}
	e.Value += text
	return nil
}

func (e *FakeElement) Text() (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	if !e.visible() {
		return "", nil
	}
	return e.Content, nil
}

func (e *FakeElement) FindElements(loc Locator) ([]Element, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	e.driver.mu.Lock()
	defer e.driver.mu.Unlock()
	return e.driver.match(e.Children, loc), nil
}
