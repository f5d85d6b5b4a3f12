package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrickjm/joinflow/internal/browser"
)

// Type waits for loc to be located and sends text without clearing it first.
func (s *Session) Type(loc browser.Locator, text string) error {
	el, err := s.Wait(loc, WaitSpec{Condition: Located})
	if err != nil {
		return err
	}
	if err := el.SendKeys(text); err != nil {
		return fmt.Errorf("type into %s: %w", loc, err)
	}
	return nil
}

func (s *Session) ReplaceText(loc browser.Locator, text string) error {
	el, err := s.Wait(loc, WaitSpec{Condition: Located})
	if err != nil {
		return err
	}
	if err := el.Clear(); err != nil {
		return fmt.Errorf("clear %s: %w", loc, err)
	}
	if err := el.SendKeys(text); err != nil {
		return fmt.Errorf("type into %s: %w", loc, err)
	}
	return nil
}

func (s *Session) Click(loc browser.Locator) error {
	el, err := s.Wait(loc, WaitSpec{Condition: Clickable})
	if err != nil {
		return err
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

func (s *Session) ReadText(loc browser.Locator) (string, error) {
	el, err := s.Wait(loc, WaitSpec{Condition: Located})
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", loc, err)
	}
	return text, nil
}

// ScrollIntoView smoothly centers loc in the viewport. It does not wait for
// the element to become visible.
func (s *Session) ScrollIntoView(loc browser.Locator) error {
	el, err := s.Wait(loc, WaitSpec{Condition: Located})
	if err != nil {
		return err
	}
	if err := s.driver.ExecuteScript(browser.ScrollIntoViewScript, el); err != nil {
		return fmt.Errorf("scroll %s into view: %w", loc, err)
	}
	return nil
}

// ScrollAndClick is for targets that move while the page animates. It scrolls
// loc into view, lets the layout settle, confirms the element is clickable and
// clicks it. If the native click is rejected the click is dispatched once more
// from script, which skips hit-testing.
func (s *Session) ScrollAndClick(loc browser.Locator) error {
	if err := s.ScrollIntoView(loc); err != nil {
		return err
	}
	time.Sleep(s.settle)
	el, err := s.Wait(loc, WaitSpec{Condition: Clickable})
	if err != nil {
		return err
	}
	nativeErr := el.Click()
	if nativeErr == nil {
		return nil
	}
	s.logger.Warn("native click rejected, dispatching scripted click", zap.Stringer("locator", loc), zap.Error(nativeErr))
	if err := s.driver.ExecuteScript(browser.ClickScript, el); err != nil {
		return fmt.Errorf("click %s: native click: %v; scripted click: %w", loc, nativeErr, err)
	}
	return nil
}

// Settle is the pause ScrollAndClick leaves for layout animations.
func (s *Session) Settle() time.Duration { return s.settle }
