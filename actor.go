package inversion

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ActorState is a node of the Low, High and Medium state machines.
type ActorState int32

const (
	StateIdle ActorState = iota
	StateDelayedStart
	StateAcquiring
	StateBlocked
	StateHolding
	StateWorking
	StateReleasing
	StateLooping
	StateYielding
	// StateStalled is an infinite-work Low holder that observed the stop flag:
	// it no longer consumes the processor but still owns the resource.
	StateStalled
	// StateTerminated is reached only through the escape hatch.
	StateTerminated
	// StateAborted is reached when setup fails before the scenario starts.
	StateAborted
	StateDone
)

var strStateMap = map[ActorState]string{
	StateIdle:         "Idle",
	StateDelayedStart: "DelayedStart",
	StateAcquiring:    "Acquiring",
	StateBlocked:      "Blocked",
	StateHolding:      "Holding",
	StateWorking:      "Working",
	StateReleasing:    "Releasing",
	StateLooping:      "Looping",
	StateYielding:     "Yielding",
	StateStalled:      "Stalled",
	StateTerminated:   "Terminated",
	StateAborted:      "Aborted",
	StateDone:         "Done",
}

func (s ActorState) String() string {
	if v, ok := strStateMap[s]; ok {
		return v
	}
	return "Unknown"
}

func (s ActorState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition can follow s.
func (s ActorState) Terminal() bool {
	return s == StateDone || s == StateTerminated || s == StateAborted
}

// actor is the state shared by all three roles. Only the owning goroutine
// calls transition; everything else reads through atomics or the mutex.
type actor struct {
	h     *Handle
	ex    Executor
	res   *SignalingResource
	state *ScenarioState
	cfg   *ScenarioConfig
	runID string
	sink  EventSink
	log   *logrus.Entry

	cur atomic.Int32

	mu      sync.Mutex
	path    []ActorState
	entered map[ActorState]time.Time
}

func newActor(h *Handle, res *SignalingResource, st *ScenarioState, cfg *ScenarioConfig, runID string, sink EventSink) *actor {
	return &actor{
		h:       h,
		res:     res,
		state:   st,
		cfg:     cfg,
		runID:   runID,
		sink:    sink,
		path:    []ActorState{StateIdle},
		entered: map[ActorState]time.Time{StateIdle: time.Now()},
		log: Log.WithFields(logrus.Fields{
			"run":   runID,
			"actor": h.ID,
			"role":  h.Role.String(),
		}),
	}
}

func (a *actor) current() ActorState {
	return ActorState(a.cur.Load())
}

func (a *actor) transition(to ActorState) {
	now := time.Now()
	from := ActorState(a.cur.Swap(int32(to)))
	a.mu.Lock()
	a.path = append(a.path, to)
	if _, ok := a.entered[to]; !ok {
		a.entered[to] = now
	}
	a.mu.Unlock()
	if a.sink != nil {
		a.sink.Emit(Event{
			At:      now,
			RunID:   a.runID,
			ActorID: a.h.ID,
			Role:    a.h.Role,
			From:    from,
			To:      to,
		})
	}
}

// enteredAt returns when the actor first reached s.
func (a *actor) enteredAt(s ActorState) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.entered[s]
	return t, ok
}

func (a *actor) report() ActorReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	path := make([]ActorState, len(a.path))
	copy(path, a.path)
	return ActorReport{
		ID:       a.h.ID,
		Role:     a.h.Role,
		Priority: a.h.Priority,
		Final:    a.current(),
		Path:     path,
	}
}

// terminated ends the actor through the escape hatch. Nothing is cleaned up:
// a held resource stays held.
func (a *actor) terminated(err error) error {
	a.log.Debugf("terminated: %v", err)
	a.transition(StateTerminated)
	return nil
}

// run dispatches to the role's state machine.
func (a *actor) run(ctx context.Context) error {
	switch a.h.Role {
	case RoleLow:
		return a.runLow(ctx)
	case RoleHigh:
		return a.runHigh(ctx)
	default:
		return a.runMedium(ctx)
	}
}

// ActorReport is the outcome of one actor.
type ActorReport struct {
	ID       string       `json:"id"`
	Role     Role         `json:"role"`
	Priority Priority     `json:"priority"`
	Final    ActorState   `json:"final"`
	Path     []ActorState `json:"path"`
}

// Visited reports whether the actor passed through s.
func (r ActorReport) Visited(s ActorState) bool {
	for _, p := range r.Path {
		if p == s {
			return true
		}
	}
	return false
}
