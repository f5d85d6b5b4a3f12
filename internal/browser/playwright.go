package browser

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
)

type PlaywrightEngine struct{}

func (p PlaywrightEngine) Start(caps Capabilities) (Driver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}
	bt, err := browserType(pw, caps.Kind)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(caps.Headless),
		Args:     caps.Args,
	}
	if caps.Channel != "" {
		launchOpts.Channel = playwright.String(caps.Channel)
	}
	if caps.Kind != Firefox {
		launchOpts.ChromiumSandbox = playwright.Bool(!caps.NoSandbox)
	}
	browser, err := bt.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: caps.Viewport.Width, Height: caps.Viewport.Height},
	}
	ctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, err
	}
	page, err := ctx.NewPage()
	if err != nil {
		ctx.Close()
		browser.Close()
		pw.Stop()
		return nil, err
	}
	d := &playwrightDriver{
		pw:      pw,
		browser: browser,
		ctx:     ctx,
		page:    page,
		frame:   page.MainFrame(),
		capture: caps.CaptureNetwork,
		handles: make(map[playwright.Page]string),
	}
	d.track(page)
	ctx.OnPage(d.track)
	return d, nil
}

type playwrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	ctx     playwright.BrowserContext
	capture bool

	// view guards the page and frame lookups resolve against.
	view  sync.RWMutex
	page  playwright.Page
	frame playwright.Frame

	mu      sync.Mutex
	handles map[playwright.Page]string
	network []NetworkEntry
}

func (d *playwrightDriver) track(page playwright.Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handles[page]; ok {
		return
	}
	d.handles[page] = uuid.NewString()
	if d.capture {
		page.OnRequest(d.record)
	}
}

func (d *playwrightDriver) record(req playwright.Request) {
	entry := NetworkEntry{Method: req.Method(), URL: req.URL()}
	if body, err := req.PostData(); err == nil {
		entry.PostData = body
	}
	d.mu.Lock()
	d.network = append(d.network, entry)
	d.mu.Unlock()
}

func (d *playwrightDriver) current() (playwright.Page, playwright.Frame) {
	d.view.RLock()
	defer d.view.RUnlock()
	return d.page, d.frame
}

func (d *playwrightDriver) Get(url string) error {
	page, _ := d.current()
	_, err := page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateCommit})
	d.view.Lock()
	if d.page == page {
		d.frame = page.MainFrame()
	}
	d.view.Unlock()
	return err
}

func (d *playwrightDriver) Title() (string, error) {
	page, _ := d.current()
	return page.Title()
}

func (d *playwrightDriver) FindElements(loc Locator) ([]Element, error) {
	selector, err := selectorFor(loc)
	if err != nil {
		return nil, err
	}
	_, frame := d.current()
	handles, err := frame.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	return wrapHandles(handles), nil
}

func (d *playwrightDriver) SwitchToFrame(frame Element) error {
	el, ok := frame.(*playwrightElement)
	if !ok {
		return errors.New("frame element was not produced by this driver")
	}
	content, err := el.handle.ContentFrame()
	if err != nil {
		return err
	}
	if content == nil {
		return errors.New("element has no content frame")
	}
	d.view.Lock()
	d.frame = content
	d.view.Unlock()
	return nil
}

func (d *playwrightDriver) SwitchToDefaultContent() error {
	d.view.Lock()
	d.frame = d.page.MainFrame()
	d.view.Unlock()
	return nil
}

func (d *playwrightDriver) WindowHandles() ([]string, error) {
	pages := d.ctx.Pages()
	d.mu.Lock()
	defer d.mu.Unlock()
	handles := make([]string, 0, len(pages))
	for _, page := range pages {
		id, ok := d.handles[page]
		if !ok {
			id = uuid.NewString()
			d.handles[page] = id
		}
		handles = append(handles, id)
	}
	return handles, nil
}

func (d *playwrightDriver) ExecuteScript(script string, el Element) error {
	pe, ok := el.(*playwrightElement)
	if !ok {
		return errors.New("element was not produced by this driver")
	}
	_, err := pe.handle.Evaluate(script)
	return err
}

func (d *playwrightDriver) Screenshot() ([]byte, error) {
	page, _ := d.current()
	return page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(false)})
}

func (d *playwrightDriver) NetworkLog() []NetworkEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]NetworkEntry, len(d.network))
	copy(out, d.network)
	return out
}

func (d *playwrightDriver) SetTimeout(ms int) {
	if ms <= 0 {
		return
	}
	d.ctx.SetDefaultTimeout(float64(ms))
}

func (d *playwrightDriver) Close() error {
	page, _ := d.current()
	if err := page.Close(); err != nil {
		return err
	}
	d.view.Lock()
	defer d.view.Unlock()
	if remaining := d.ctx.Pages(); len(remaining) > 0 {
		d.page = remaining[0]
		d.frame = d.page.MainFrame()
	}
	return nil
}

func (d *playwrightDriver) Quit() error {
	var err error
	if d.ctx != nil {
		err = multierr.Append(err, d.ctx.Close())
	}
	if d.browser != nil {
		err = multierr.Append(err, d.browser.Close())
	}
	if d.pw != nil {
		err = multierr.Append(err, d.pw.Stop())
	}
	return err
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func wrapHandles(handles []playwright.ElementHandle) []Element {
	out := make([]Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, &playwrightElement{handle: h})
	}
	return out
}

func (e *playwrightElement) IsDisplayed() (bool, error) {
	return e.handle.IsVisible()
}

func (e *playwrightElement) IsEnabled() (bool, error) {
	return e.handle.IsEnabled()
}

func (e *playwrightElement) Click() error {
	return e.handle.Click()
}

func (e *playwrightElement) Clear() error {
	return e.handle.Fill("")
}

func (e *playwrightElement) SendKeys(text string) error {
	return e.handle.Type(text)
}

func (e *playwrightElement) Text() (string, error) {
	return e.handle.InnerText()
}

func (e *playwrightElement) FindElements(loc Locator) ([]Element, error) {
	selector, err := selectorFor(loc)
	if err != nil {
		return nil, err
	}
	handles, err := e.handle.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	return wrapHandles(handles), nil
}

func selectorFor(loc Locator) (string, error) {
	switch loc.Strategy {
	case StrategyID:
		return fmt.Sprintf("css=[id=%q]", loc.Selector), nil
	case StrategyName:
		return fmt.Sprintf("css=[name=%q]", loc.Selector), nil
	case StrategyCSS, StrategyTagName:
		return "css=" + loc.Selector, nil
	case StrategyXPath:
		return "xpath=" + loc.Selector, nil
	default:
		return "", fmt.Errorf("unsupported locator strategy %q", loc.Strategy)
	}
}

func browserType(pw *playwright.Playwright, kind Kind) (playwright.BrowserType, error) {
	switch kind {
	case Chrome, Edge:
		return pw.Chromium, nil
	case Firefox:
		return pw.Firefox, nil
	default:
		return nil, errors.New("unknown browser: " + string(kind))
	}
}
