package session

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrickjm/joinflow/internal/browser"
)

type Condition int

const (
	Located Condition = iota
	Visible
	Enabled
	Clickable
)

func (c Condition) String() string {
	switch c {
	case Located:
		return "located"
	case Visible:
		return "visible"
	case Enabled:
		return "enabled"
	case Clickable:
		return "clickable"
	default:
		return "unknown"
	}
}

// WaitSpec configures a single wait. Zero durations take the session defaults.
type WaitSpec struct {
	Condition Condition
	Timeout   time.Duration
	Interval  time.Duration
}

type pollResult struct {
	ok  bool
	err error
}

// aborted reports a terminal failure that ended polling before the deadline.
func (r pollResult) aborted() bool {
	return errors.Is(r.err, ErrSessionNotReady)
}

// poll runs check until it reports true or timeout elapses. check always runs
// at least once, and a final check happens at the deadline so a timed-out wait
// never ends early. ErrSessionNotReady stops polling immediately.
func poll(timeout, interval time.Duration, check func() (bool, error)) pollResult {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		ok, err := check()
		if ok {
			return pollResult{ok: true}
		}
		if err != nil {
			if errors.Is(err, ErrSessionNotReady) {
				return pollResult{err: err}
			}
			lastErr = err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return pollResult{err: lastErr}
		}
		time.Sleep(min(interval, remaining))
	}
}

// Wait polls for the first element matching loc that satisfies spec.Condition.
// Clickable composes the other conditions: the element must be located, then
// visible and enabled. A handle that goes stale between checks is dropped and
// looked up again on the next round.
func (s *Session) Wait(loc browser.Locator, spec WaitSpec) (browser.Element, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if spec.Condition < Located || spec.Condition > Clickable {
		return nil, fmt.Errorf("wait for %s: %w %d", loc, ErrUnknownCondition, int(spec.Condition))
	}
	timeout := orDefault(spec.Timeout, s.timeout)
	interval := s.poll
	if spec.Interval > 0 {
		interval = clampPoll(spec.Interval)
	}
	log := s.logger.With(zap.Stringer("locator", loc), zap.Stringer("condition", spec.Condition))
	log.Debug("waiting for element", zap.Duration("timeout", timeout))

	var found browser.Element
	res := poll(timeout, interval, func() (bool, error) {
		if err := s.ready(); err != nil {
			return false, err
		}
		els, err := s.driver.FindElements(loc)
		if err != nil {
			return false, err
		}
		var lastErr error
		for _, el := range els {
			ok, err := satisfies(el, spec.Condition)
			if err != nil {
				lastErr = err
				continue
			}
			if ok {
				found = el
				return true, nil
			}
		}
		return false, lastErr
	})
	if res.aborted() {
		return nil, res.err
	}
	if !res.ok {
		log.Warn("element wait timed out", zap.Duration("timeout", timeout), zap.Error(res.err))
		return nil, &ElementNotFoundError{Locator: loc, Spec: spec, Timeout: timeout, Err: res.err}
	}
	return found, nil
}

func satisfies(el browser.Element, cond Condition) (bool, error) {
	switch cond {
	case Located:
		return true, nil
	case Visible:
		return el.IsDisplayed()
	case Enabled:
		return el.IsEnabled()
	case Clickable:
		visible, err := satisfies(el, Visible)
		if err != nil || !visible {
			return false, err
		}
		return satisfies(el, Enabled)
	default:
		return false, ErrUnknownCondition
	}
}

// IsDisplayed reports whether the first element matching loc is visible right
// now. It never fails: a missing, stale or unreadable element is simply false.
func (s *Session) IsDisplayed(loc browser.Locator) bool {
	if s.ready() != nil {
		return false
	}
	els, err := s.driver.FindElements(loc)
	if err != nil || len(els) == 0 {
		return false
	}
	shown, err := els[0].IsDisplayed()
	return err == nil && shown
}

// Find returns every element currently matching loc without waiting.
func (s *Session) Find(loc browser.Locator) ([]browser.Element, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.driver.FindElements(loc)
}
