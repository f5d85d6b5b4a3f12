package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrickjm/joinflow/internal/browser"
)

var (
	ErrSessionNotReady    = errors.New("session not ready")
	ErrUnsupportedBrowser = errors.New("unsupported browser")
	ErrSessionStart       = errors.New("browser session could not be started")
	ErrNavigationTimeout  = errors.New("navigation timed out")
	ErrElementNotFound    = errors.New("element not found")
	ErrFrameNotReady      = errors.New("frame not ready")
	ErrTabNotOpened       = errors.New("new tab not opened")
	ErrRequestNotSeen     = errors.New("request not seen")
	ErrUnknownCondition   = errors.New("unknown wait condition")
)

type UnsupportedBrowserError struct {
	Name string
}

func (e *UnsupportedBrowserError) Error() string {
	return fmt.Sprintf("unsupported browser: %q (want chrome, firefox or edge)", e.Name)
}

func (e *UnsupportedBrowserError) Is(target error) bool { return target == ErrUnsupportedBrowser }

type SessionStartError struct {
	Kind browser.Kind
	Err  error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Kind, e.Err)
}

func (e *SessionStartError) Unwrap() error        { return e.Err }
func (e *SessionStartError) Is(target error) bool { return target == ErrSessionStart }

type NavigationTimeoutError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *NavigationTimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("navigate to %s: no title within %s: %v", e.URL, e.Timeout, e.Err)
	}
	return fmt.Sprintf("navigate to %s: no title within %s", e.URL, e.Timeout)
}

func (e *NavigationTimeoutError) Unwrap() error        { return e.Err }
func (e *NavigationTimeoutError) Is(target error) bool { return target == ErrNavigationTimeout }

// ElementNotFoundError carries the last lookup error seen while polling, if any.
type ElementNotFoundError struct {
	Locator browser.Locator
	Spec    WaitSpec
	Timeout time.Duration
	Err     error
}

func (e *ElementNotFoundError) Error() string {
	msg := fmt.Sprintf("element %s not %s within %s", e.Locator, e.Spec.Condition, e.Timeout)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ElementNotFoundError) Unwrap() error        { return e.Err }
func (e *ElementNotFoundError) Is(target error) bool { return target == ErrElementNotFound }

type FrameNotReadyError struct {
	Frame   FrameHandle
	Timeout time.Duration
	Err     error
}

func (e *FrameNotReadyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame %s not ready within %s: %v", e.Frame, e.Timeout, e.Err)
	}
	return fmt.Sprintf("frame %s not ready within %s", e.Frame, e.Timeout)
}

func (e *FrameNotReadyError) Unwrap() error        { return e.Err }
func (e *FrameNotReadyError) Is(target error) bool { return target == ErrFrameNotReady }

type TabNotOpenedError struct {
	Baseline int
	Observed int
	Timeout  time.Duration
}

func (e *TabNotOpenedError) Error() string {
	return fmt.Sprintf("no new tab within %s (baseline %d, observed %d)", e.Timeout, e.Baseline, e.Observed)
}

func (e *TabNotOpenedError) Is(target error) bool { return target == ErrTabNotOpened }
