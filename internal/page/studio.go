package page

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickjm/joinflow/internal/browser"
	"github.com/patrickjm/joinflow/internal/session"
)

const FieldRequired = "Field is required"

// RequiredFields are the intro form inputs validated on Next.
var RequiredFields = []string{"firstName", "lastName", "email"}

var (
	LocationsLink   = browser.ByXPath("//a[text()='Locations' and contains(@class, 'w-nav')]")
	StudioCard      = browser.ByXPath("//div[contains(@id, 'location-card')]")
	StudioCardName  = browser.ByCSS(`h2[id^="location-name"]`)
	StudioCardAddr  = browser.ByCSS("p.text-16")
	JoinNowButton   = browser.ByXPath("//button[text()='Join Now']")
	BookNowButton   = browser.ByXPath("//div[@class='navbar-button-wrap']//a[@id='try-class-navbar' and normalize-space(text())='Book Now']")
	StudioNameAfter = browser.ByXPath("//div[@id = 'studio-info-name-title']")
	NextButton      = browser.ByXPath("//button[text()='Next']")
	ErrorMessage    = browser.Template{Strategy: browser.StrategyXPath, Pattern: "//span[@id='{0}-error']"}
	IntroForm       = browser.ByXPath("//form[@data-testid='lead-form']")
	SMSTermsLink    = browser.ByXPath("//a[text()='SMS & MMS Terms of Service']")
	FirstNameInput  = browser.ByXPath("//input[@name='firstName']")
	LastNameInput   = browser.ByXPath("//input[@name='lastName']")
	EmailInput      = browser.ByXPath("//input[@name='email']")
)

// Frames maps the iframe names page steps refer to onto their locators.
var Frames = map[string]browser.Locator{
	"locationsIframe": browser.ByID("locations-iframe"),
	"bookClassIframe": browser.ByID("book-class-1-frame"),
}

type StudioDetail struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type Studio struct {
	Base
}

func NewStudio(s *session.Session) *Studio {
	return &Studio{Base: Base{Session: s}}
}

func (p *Studio) GoToLocations() error {
	return p.Click(LocationsLink)
}

func frameFor(name string) (session.FrameHandle, error) {
	loc, ok := Frames[name]
	if !ok {
		return session.FrameHandle{}, fmt.Errorf("unknown iframe %q", name)
	}
	return session.FrameBy(loc), nil
}

// SwitchIframe enters the named iframe. The caller must call SwitchOut; use
// WithinIframe when the steps fit in one function.
func (p *Studio) SwitchIframe(name string) error {
	h, err := frameFor(name)
	if err != nil {
		return err
	}
	return p.SwitchToFrame(h)
}

func (p *Studio) SwitchOut() error {
	return p.SwitchToTop()
}

func (p *Studio) WithinIframe(name string, fn func() error) error {
	h, err := frameFor(name)
	if err != nil {
		return err
	}
	return p.InFrame(h, fn)
}

// StudioInfo returns the name and address of every visible studio card.
// Cards that disappear or lack either field while being read are skipped.
func (p *Studio) StudioInfo() ([]StudioDetail, error) {
	if err := p.WaitVisible(StudioCard); err != nil {
		return nil, err
	}
	cards, err := p.Find(StudioCard)
	if err != nil {
		return nil, err
	}
	details := make([]StudioDetail, 0, len(cards))
	for _, card := range cards {
		shown, err := card.IsDisplayed()
		if err != nil || !shown {
			continue
		}
		name, err := childText(card, StudioCardName)
		if err != nil {
			continue
		}
		addr, err := childText(card, StudioCardAddr)
		if err != nil {
			continue
		}
		if name != "" && addr != "" {
			details = append(details, StudioDetail{Name: name, Address: addr})
		}
	}
	p.Logger().Debug("studio cards read", zap.Int("cards", len(cards)), zap.Int("visible", len(details)))
	return details, nil
}

func childText(parent browser.Element, loc browser.Locator) (string, error) {
	els, err := parent.FindElements(loc)
	if err != nil {
		return "", err
	}
	if len(els) == 0 {
		return "", fmt.Errorf("no %s in card", loc)
	}
	text, err := els[0].Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (p *Studio) ClickJoinNow() error {
	return p.ClickFirstDisplayed(JoinNowButton)
}

func (p *Studio) ClickBookNow() error {
	return p.Click(BookNowButton)
}

// SelectedStudio waits for the booking header and returns the studio name in it.
func (p *Studio) SelectedStudio() (string, error) {
	if err := p.WaitVisible(StudioNameAfter); err != nil {
		return "", err
	}
	return p.TextOf(StudioNameAfter)
}

// ClickNext submits the intro form. The button slides in with the form, so
// it goes through ScrollAndClick.
func (p *Studio) ClickNext() error {
	return p.ScrollAndClick(NextButton)
}

func (p *Studio) ErrorMessageText(field string) (string, error) {
	return p.TextOf(ErrorMessage.With(field))
}

// FieldErrors reads the validation message of each field.
func (p *Studio) FieldErrors(fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		text, err := p.ErrorMessageText(field)
		if err != nil {
			return out, err
		}
		out[field] = text
	}
	return out, nil
}

// FillIntroForm types into the intro form inputs, replacing what is there.
func (p *Studio) FillIntroForm(first, last, email string) error {
	for _, f := range []struct {
		loc  browser.Locator
		text string
	}{{FirstNameInput, first}, {LastNameInput, last}, {EmailInput, email}} {
		if err := p.ReplaceText(f.loc, f.text); err != nil {
			return err
		}
	}
	return nil
}

// OpenSMSTerms clicks the terms link and waits for the tab it opens. It
// returns the tab count afterwards.
func (p *Studio) OpenSMSTerms() (int, error) {
	if err := p.WaitVisible(IntroForm); err != nil {
		return 0, err
	}
	if err := p.ExpectNewTab(func() error { return p.Click(SMSTermsLink) }); err != nil {
		return 0, err
	}
	return p.TabCount()
}

// OpenBookingForm walks from the home page to the class booking page of the
// first visible studio and returns the studios that were listed.
func (p *Studio) OpenBookingForm() ([]StudioDetail, error) {
	if err := p.GoToLocations(); err != nil {
		return nil, err
	}
	var studios []StudioDetail
	err := p.WithinIframe("locationsIframe", func() error {
		var err error
		studios, err = p.StudioInfo()
		if err != nil {
			return err
		}
		if len(studios) == 0 {
			return fmt.Errorf("no visible studios listed")
		}
		return p.ClickJoinNow()
	})
	if err != nil {
		return nil, err
	}
	if err := p.ClickBookNow(); err != nil {
		return nil, err
	}
	if err := p.WaitVisible(StudioNameAfter); err != nil {
		return nil, err
	}
	return studios, nil
}
