package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickjm/joinflow/internal/browser"
)

// FrameHandle names an embedded frame either by its position among the
// iframes currently in the document or by a locator resolved at switch time.
type FrameHandle struct {
	Index   int
	Locator *browser.Locator
}

func FrameAt(index int) FrameHandle {
	return FrameHandle{Index: index}
}

func FrameBy(loc browser.Locator) FrameHandle {
	return FrameHandle{Locator: &loc}
}

func (h FrameHandle) String() string {
	if h.Locator != nil {
		return h.Locator.String()
	}
	return fmt.Sprintf("iframe[%d]", h.Index)
}

var iframeTag = browser.ByTagName("iframe")

// SwitchToFrame waits for the frame element to be located and visible in the
// current context and then makes it the context for every later lookup. There
// is no stack: the previous frame, if any, is forgotten and SwitchToTop goes
// straight back to the top document.
func (s *Session) SwitchToFrame(h FrameHandle) error {
	if err := s.ready(); err != nil {
		return err
	}
	var target browser.Element
	res := poll(s.timeout, s.poll, func() (bool, error) {
		if err := s.ready(); err != nil {
			return false, err
		}
		el, err := s.resolveFrame(h)
		if el == nil {
			return false, err
		}
		shown, err := el.IsDisplayed()
		if err != nil || !shown {
			return false, err
		}
		target = el
		return true, nil
	})
	if res.aborted() {
		return res.err
	}
	if !res.ok {
		return &FrameNotReadyError{Frame: h, Timeout: s.timeout, Err: res.err}
	}
	if err := s.driver.SwitchToFrame(target); err != nil {
		return &FrameNotReadyError{Frame: h, Timeout: s.timeout, Err: err}
	}
	s.setFrame(&h)
	s.logger.Debug("switched to frame", zap.Stringer("frame", h))
	return nil
}

func (s *Session) resolveFrame(h FrameHandle) (browser.Element, error) {
	if h.Locator != nil {
		els, err := s.driver.FindElements(*h.Locator)
		if err != nil || len(els) == 0 {
			return nil, err
		}
		return els[0], nil
	}
	els, err := s.driver.FindElements(iframeTag)
	if err != nil {
		return nil, err
	}
	if h.Index < 0 || h.Index >= len(els) {
		return nil, fmt.Errorf("iframe index %d out of bounds, %d iframes found", h.Index, len(els))
	}
	return els[h.Index], nil
}

// SwitchToTop returns lookups to the top-level document.
func (s *Session) SwitchToTop() error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.driver.SwitchToDefaultContent(); err != nil {
		return fmt.Errorf("switch to top document: %w", err)
	}
	s.setFrame(nil)
	return nil
}

// CurrentFrame reports the frame lookups resolve against; false means the top
// document. A disposed session has no frame.
func (s *Session) CurrentFrame() (FrameHandle, bool) {
	if s.Disposed() {
		return FrameHandle{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return FrameHandle{}, false
	}
	return *s.frame, true
}

// InFrame runs fn inside frame h and always returns to the top document
// afterwards, including when fn fails or panics.
func (s *Session) InFrame(h FrameHandle, fn func() error) (err error) {
	if err := s.SwitchToFrame(h); err != nil {
		return err
	}
	defer func() {
		if topErr := s.SwitchToTop(); topErr != nil && err == nil {
			err = topErr
		}
	}()
	return fn()
}
