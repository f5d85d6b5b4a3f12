package browser

import (
	"fmt"
	"strings"
)

type Kind string

const (
	Chrome  Kind = "chrome"
	Firefox Kind = "firefox"
	Edge    Kind = "edge"
)

// ParseKind accepts the browser names the harness supports, case-insensitively.
func ParseKind(name string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case Chrome:
		return Chrome, true
	case Firefox:
		return Firefox, true
	case Edge:
		return Edge, true
	default:
		return "", false
	}
}

type Viewport struct {
	Width  int
	Height int
}

// Capabilities is everything an Engine needs to start one browser.
type Capabilities struct {
	Kind           Kind
	Headless       bool
	Channel        string
	Args           []string
	Viewport       Viewport
	NoSandbox      bool
	DisableGPU     bool
	CaptureNetwork bool
}

var defaultViewport = Viewport{Width: 1920, Height: 1080}

func CapabilitiesFor(kind Kind, headless bool) (Capabilities, error) {
	caps := Capabilities{Kind: kind, Headless: headless, Viewport: defaultViewport}
	switch kind {
	case Chrome:
		caps.Channel = "chrome"
		caps.NoSandbox = true
		caps.DisableGPU = true
		caps.CaptureNetwork = true
		caps.Args = []string{"--no-sandbox", "--disable-dev-shm-usage", "--disable-gpu"}
	case Firefox:
	case Edge:
		caps.Channel = "msedge"
		caps.NoSandbox = true
		caps.Args = []string{"--no-sandbox", "--disable-dev-shm-usage"}
	default:
		return Capabilities{}, fmt.Errorf("unknown browser kind %q", kind)
	}
	return caps, nil
}

type Engine interface {
	Start(caps Capabilities) (Driver, error)
}

// Driver is a single controlled browser. Element lookups resolve against the
// current frame; the caller owns the frame state.
type Driver interface {
	Get(url string) error
	Title() (string, error)
	FindElements(loc Locator) ([]Element, error)
	SwitchToFrame(frame Element) error
	SwitchToDefaultContent() error
	WindowHandles() ([]string, error)
	ExecuteScript(script string, el Element) error
	Screenshot() ([]byte, error)
	NetworkLog() []NetworkEntry
	SetTimeout(ms int)
	Close() error
	Quit() error
}

type Element interface {
	IsDisplayed() (bool, error)
	IsEnabled() (bool, error)
	Click() error
	Clear() error
	SendKeys(text string) error
	Text() (string, error)
	FindElements(loc Locator) ([]Element, error)
}

type NetworkEntry struct {
	Method   string `json:"method"`
	URL      string `json:"url"`
	PostData string `json:"post_data,omitempty"`
}

// Scripts understood by every Driver. They receive the element as their only argument.
const (
	ScrollIntoViewScript = `el => el.scrollIntoView({behavior: 'smooth', block: 'center'})`
	ClickScript          = `el => el.click()`
)
