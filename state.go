package inversion

import (
	"sync"
	"sync/atomic"
	"time"
)

// ScenarioState is the process-wide state shared by the Orchestrator and the
// actors of one run. stop only ever goes from false to true.
type ScenarioState struct {
	Start    time.Time
	Deadline time.Time

	stop     atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}
}

func newScenarioState(start time.Time, window time.Duration) *ScenarioState {
	return &ScenarioState{
		Start:    start,
		Deadline: start.Add(window),
		stopped:  make(chan struct{}),
	}
}

// Stop sets the stop flag. Calling it more than once is a no-op.
func (s *ScenarioState) Stop() {
	s.stopOnce.Do(func() {
		s.stop.Store(true)
		close(s.stopped)
	})
}

func (s *ScenarioState) Stopped() bool {
	return s.stop.Load()
}

// Done is closed when the stop flag is set.
func (s *ScenarioState) Done() <-chan struct{} {
	return s.stopped
}

// urgentSignal is the observable "urgent waiter present" flag. Every flip
// closes the current notification channel and installs a fresh one, so
// observers can block on a change instead of spinning. set and changed are
// called with the owning resource's lock held; load is safe anywhere.
type urgentSignal struct {
	v      atomic.Bool
	notify chan struct{}
}

func newUrgentSignal() *urgentSignal {
	return &urgentSignal{notify: make(chan struct{})}
}

func (u *urgentSignal) load() bool {
	return u.v.Load()
}

func (u *urgentSignal) set(v bool) bool {
	if u.v.Load() == v {
		return false
	}
	u.v.Store(v)
	close(u.notify)
	u.notify = make(chan struct{})
	return true
}

func (u *urgentSignal) changed() <-chan struct{} {
	return u.notify
}
