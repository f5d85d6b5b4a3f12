package session

import "go.uber.org/zap"

// TabCount is the number of open tabs and windows right now.
func (s *Session) TabCount() (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	handles, err := s.driver.WindowHandles()
	if err != nil {
		return 0, err
	}
	return len(handles), nil
}

// TabTracker remembers the tab count observed before an action that may open a
// new tab.
type TabTracker struct {
	s        *Session
	baseline int
}

func (s *Session) TrackTabs() (*TabTracker, error) {
	n, err := s.TabCount()
	if err != nil {
		return nil, err
	}
	return &TabTracker{s: s, baseline: n}, nil
}

func (t *TabTracker) Baseline() int { return t.baseline }

// Await polls until more tabs are open than at the baseline.
func (t *TabTracker) Await() error {
	s := t.s
	if err := s.ready(); err != nil {
		return err
	}
	observed := t.baseline
	res := poll(s.timeout, s.poll, func() (bool, error) {
		n, err := s.TabCount()
		if err != nil {
			return false, err
		}
		observed = n
		return n > t.baseline, nil
	})
	if res.aborted() {
		return res.err
	}
	if !res.ok {
		return &TabNotOpenedError{Baseline: t.baseline, Observed: observed, Timeout: s.timeout}
	}
	s.logger.Debug("new tab opened", zap.Int("baseline", t.baseline), zap.Int("count", observed))
	return nil
}

// ExpectNewTab runs action and waits for it to open at least one tab.
func (s *Session) ExpectNewTab(action func() error) error {
	tracker, err := s.TrackTabs()
	if err != nil {
		return err
	}
	if err := action(); err != nil {
		return err
	}
	return tracker.Await()
}
