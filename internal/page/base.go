// Package page holds page objects built on a session. A page object owns its
// locators and turns user-level steps into session actions.
package page

import (
	"fmt"
	"strings"

	"github.com/patrickjm/joinflow/internal/browser"
	"github.com/patrickjm/joinflow/internal/session"
)

// Base gives page objects the session actions plus the few compound steps
// several pages share.
type Base struct {
	*session.Session
}

func (b Base) WaitVisible(loc browser.Locator) error {
	_, err := b.Wait(loc, session.WaitSpec{Condition: session.Visible})
	return err
}

// TextOf reads the text of loc with surrounding whitespace removed.
func (b Base) TextOf(loc browser.Locator) (string, error) {
	text, err := b.ReadText(loc)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ClickFirstDisplayed clicks the first element matching loc that is displayed
// right now. Responsive layouts render the same button several times and hide
// all but one.
func (b Base) ClickFirstDisplayed(loc browser.Locator) error {
	el, err := b.Wait(loc, session.WaitSpec{Condition: session.Clickable})
	if err != nil {
		return err
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}
