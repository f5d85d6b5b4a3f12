package page

import (
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/patrickjm/joinflow/internal/browser"
	"github.com/patrickjm/joinflow/internal/datablob"
)

// AgreementPath is where the membership agreement page lives under the base URL.
const AgreementPath = "/membership-agreement"

// FakeSiteOptions shape the in-memory studio site.
type FakeSiteOptions struct {
	StudioName    string
	StudioAddress string
	// InterceptNext makes native clicks on Next fail as if an overlay covered it.
	InterceptNext bool
	TermsTabDelay time.Duration
	// RequiredMessage replaces the validation text shown for empty fields.
	RequiredMessage string
	// NoTermsTab makes the terms link open nothing.
	NoTermsTab bool
}

// FakeSite is the studio site rendered for browser.FakeEngine: home page with
// the locations iframe, the booking iframe with the intro form, and the
// membership agreement page that posts its data blob to /validate.
type FakeSite struct {
	Home      *browser.FakeDocument
	Agreement *browser.FakeDocument

	Next   *browser.FakeElement
	Terms  *browser.FakeElement
	Errors map[string]*browser.FakeElement
	Inputs map[string]*browser.FakeElement
}

func NewFakeSite(o FakeSiteOptions) *FakeSite {
	if o.StudioName == "" {
		o.StudioName = "Boston - Back Bay"
	}
	if o.StudioAddress == "" {
		o.StudioAddress = "123 Main Street, Boston, MA 02108"
	}
	if o.RequiredMessage == "" {
		o.RequiredMessage = FieldRequired
	}
	site := &FakeSite{
		Errors: map[string]*browser.FakeElement{},
		Inputs: map[string]*browser.FakeElement{
			"firstName": {Locator: FirstNameInput},
			"lastName":  {Locator: LastNameInput},
			"email":     {Locator: EmailInput},
		},
	}

	var errorSpans []*browser.FakeElement
	for _, field := range RequiredFields {
		span := &browser.FakeElement{Locator: ErrorMessage.With(field), Tag: "span", Content: o.RequiredMessage, Hidden: true}
		site.Errors[field] = span
		errorSpans = append(errorSpans, span)
	}
	site.Next = &browser.FakeElement{Locator: NextButton, Tag: "button"}
	if o.InterceptNext {
		site.Next.ClickErr = errors.New("element click intercepted: other element would receive the click")
	}
	site.Next.OnClick = func() {
		for field, span := range site.Errors {
			if site.Inputs[field].Value == "" {
				span.Hidden = false
			}
		}
	}
	site.Terms = &browser.FakeElement{Locator: SMSTermsLink, Tag: "a", OpensTab: !o.NoTermsTab, TabDelay: o.TermsTabDelay}

	bookingElements := []*browser.FakeElement{
		{Locator: IntroForm, Tag: "form"},
		site.Inputs["firstName"], site.Inputs["lastName"], site.Inputs["email"],
		site.Next,
		site.Terms,
	}
	bookingElements = append(bookingElements, errorSpans...)
	bookFrame := &browser.FakeElement{
		Locator: Frames["bookClassIframe"],
		Tag:     "iframe",
		Hidden:  true,
		Frame:   &browser.FakeDocument{Elements: bookingElements},
	}

	card := func(name, addr string, hidden bool) *browser.FakeElement {
		return &browser.FakeElement{
			Locator: StudioCard,
			Hidden:  hidden,
			Children: []*browser.FakeElement{
				{Locator: StudioCardName, Tag: "h2", Content: " " + name + " "},
				{Locator: StudioCardAddr, Tag: "p", Content: addr},
			},
		}
	}
	locationsFrame := &browser.FakeElement{
		Locator: Frames["locationsIframe"],
		Tag:     "iframe",
		Hidden:  true,
		Frame: &browser.FakeDocument{Elements: []*browser.FakeElement{
			card("Closed Studio", "1 Nowhere Road", true),
			card(o.StudioName, o.StudioAddress, false),
			{Locator: JoinNowButton, Tag: "button", Hidden: true},
			{Locator: JoinNowButton, Tag: "button"},
		}},
	}
	selected := &browser.FakeElement{Locator: StudioNameAfter, Tag: "div", Content: o.StudioName, Hidden: true}

	site.Home = &browser.FakeDocument{
		Title: "Orangetheory Fitness",
		Elements: []*browser.FakeElement{
			{Locator: LocationsLink, Tag: "a", OnClick: func() { locationsFrame.Hidden = false }},
			locationsFrame,
			{Locator: BookNowButton, Tag: "a", OnClick: func() {
				selected.Hidden = false
				bookFrame.Hidden = false
			}},
			selected,
			bookFrame,
		},
	}
	site.Agreement = &browser.FakeDocument{
		Title:    "Membership Agreement",
		Requests: validateRequests,
	}
	return site
}

// Driver returns a fake driver serving the site under baseURL.
func (s *FakeSite) Driver(baseURL string) *browser.FakeDriver {
	d := browser.NewFakeDriver(s.Home)
	d.Sites[baseURL] = s.Home
	d.Sites[baseURL+AgreementPath] = s.Agreement
	return d
}

// validateRequests mimics the agreement page posting its decoded blob back to
// the API on load.
func validateRequests(rawURL string) []browser.NetworkEntry {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var data map[string]any
	if err := datablob.FromURL(rawURL, &data); err != nil {
		return nil
	}
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return nil
	}
	api := u.Scheme + "://" + u.Host + "/api/membership/validate"
	return []browser.NetworkEntry{
		{Method: "GET", URL: rawURL},
		{Method: "POST", URL: api, PostData: string(body)},
	}
}

// FakeSiteEngine serves a fresh FakeSite under BaseURL to every session it
// starts.
type FakeSiteEngine struct {
	BaseURL string
	Options FakeSiteOptions

	Sites   []*FakeSite
	Drivers []*browser.FakeDriver
}

func (e *FakeSiteEngine) Start(browser.Capabilities) (browser.Driver, error) {
	site := NewFakeSite(e.Options)
	d := site.Driver(e.BaseURL)
	e.Sites = append(e.Sites, site)
	e.Drivers = append(e.Drivers, d)
	return d, nil
}
