// Package scenario runs end-to-end checks against the studio site. Every
// scenario gets a fresh session that is screenshotted on failure and always
// disposed.
package scenario

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrickjm/joinflow/internal/page"
	"github.com/patrickjm/joinflow/internal/session"
)

var (
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrAssertion       = errors.New("assertion failed")
	ErrScenarioTimeout = errors.New("scenario timed out")
)

// Env is what a scenario body works with.
type Env struct {
	Session *session.Session
	Studio  *page.Studio
	BaseURL string
	Logger  *zap.Logger
}

type Scenario struct {
	Name        string
	Description string
	// NoBrowser scenarios run without a session; Env.Session is nil.
	NoBrowser bool
	Run       func(env *Env) error
}

type Result struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	Error      string `json:"error,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type Report struct {
	Environment string   `json:"environment,omitempty"`
	BaseURL     string   `json:"base_url"`
	Browser     string   `json:"browser"`
	Passed      int      `json:"passed"`
	Failed      int      `json:"failed"`
	Results     []Result `json:"results"`
}

func (r Report) OK() bool { return r.Failed == 0 }

type Runner struct {
	Manager session.Manager
	Options session.Options
	BaseURL string
	// Timeout bounds one scenario, navigation included. Zero means no limit
	// beyond the waits' own timeouts.
	Timeout time.Duration
	Logger  *zap.Logger
}

func (r Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r Runner) RunAll(scenarios []Scenario) Report {
	rep := Report{BaseURL: r.BaseURL, Browser: r.Options.Browser, Results: make([]Result, 0, len(scenarios))}
	for _, sc := range scenarios {
		res := r.Run(sc)
		if res.Passed {
			rep.Passed++
		} else {
			rep.Failed++
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}

// Run executes one scenario. On failure the current page is captured before
// the session is disposed; disposal happens on every path.
func (r Runner) Run(sc Scenario) Result {
	log := r.logger().With(zap.String("scenario", sc.Name))
	start := time.Now()
	res := Result{Name: sc.Name}
	finish := func(err error) Result {
		res.DurationMs = time.Since(start).Milliseconds()
		if err != nil {
			res.Error = err.Error()
			log.Error("scenario failed", zap.Error(err), zap.String("screenshot", res.Screenshot))
			return res
		}
		res.Passed = true
		log.Info("scenario passed", zap.Int64("duration_ms", res.DurationMs))
		return res
	}

	if sc.NoBrowser {
		return finish(r.execute(sc, &Env{BaseURL: r.BaseURL, Logger: log}, nil))
	}

	s, err := r.Manager.Create(r.Options)
	if err != nil {
		return finish(err)
	}
	res.SessionID = s.ID()
	env := &Env{Session: s, Studio: page.NewStudio(s), BaseURL: r.BaseURL, Logger: log}
	err = r.execute(sc, env, func() error { return s.Navigate(r.BaseURL) })
	if err != nil {
		res.Screenshot = s.CaptureScreenshot(sc.Name)
	}
	s.Dispose()
	return finish(err)
}

// execute runs the scenario body, converting panics into errors. When the
// runner timeout expires first the session is interrupted and the body gets
// one session timeout to return, so teardown does not overlap a running
// browser call.
func (r Runner) execute(sc Scenario, env *Env, setup func() error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		if setup != nil {
			if err := setup(); err != nil {
				done <- err
				return
			}
		}
		if sc.Run == nil {
			done <- errors.New("scenario has no body")
			return
		}
		done <- sc.Run(env)
	}()
	if r.Timeout <= 0 {
		return <-done
	}
	timer := time.NewTimer(r.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
	}
	timeoutErr := fmt.Errorf("%w after %s", ErrScenarioTimeout, r.Timeout)
	if env.Session == nil {
		return timeoutErr
	}
	env.Session.Interrupt()
	grace := env.Session.Timeout() + env.Session.PollInterval()
	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()
	select {
	case <-done:
	case <-graceTimer.C:
		env.Logger.Warn("scenario body still running after interrupt", zap.Duration("grace", grace))
	}
	return timeoutErr
}
