package realtime

import (
	"sync"
	"time"
)

// Named timers owned by the connection manager. Every scheduled effect in the
// manager (connect timeout, reconnect delay, heartbeat interval, heartbeat
// timeout, settle delay) goes through this set so one teardown call is
// guaranteed to leave no timer running across reconnect cycles.
const (
	timerConnect          = "connect_timeout"
	timerReconnect        = "reconnect_delay"
	timerHeartbeat        = "heartbeat_interval"
	timerHeartbeatTimeout = "heartbeat_timeout"
	timerSettle           = "reconnect_settle"
)

type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer)}
}

// Arm schedules fn to run after d, replacing any timer already armed under
// the same name. fn runs on its own goroutine and must do its own staleness
// checks; a fire that loses the race with Cancel is possible.
func (s *timerSet) Arm(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[name]; ok {
		t.Stop()
	}
	s.timers[name] = time.AfterFunc(d, func() {
		s.forget(name)
		fn()
	})
}

// Cancel stops the named timer if armed. Cancelling an unarmed timer is a
// no-op.
func (s *timerSet) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// CancelAll stops every armed timer. Called on explicit disconnect and on
// manager teardown.
func (s *timerSet) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
}

func (s *timerSet) forget(name string) {
	s.mu.Lock()
	delete(s.timers, name)
	s.mu.Unlock()
}
