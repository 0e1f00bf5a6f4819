package inversion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dlsniper/debugger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ExitMode tells a normal shutdown apart from the escape hatch.
type ExitMode string

const (
	ExitNormal ExitMode = "normal"
	ExitForced ExitMode = "forced"
)

// Result is the outcome of one scenario run.
type Result struct {
	RunID    string        `json:"run_id"`
	Scenario string        `json:"scenario"`
	Policy   Policy        `json:"policy"`
	Started  time.Time     `json:"started"`
	Window   time.Duration `json:"window"`

	// Acquired is true if High reached Holding within the window.
	Acquired bool `json:"acquired"`
	// Elapsed runs from the start gate to High reaching Holding, or is the
	// whole window when it did not.
	Elapsed time.Duration `json:"elapsed"`
	// HighWait is how long High spent Blocked before Holding.
	HighWait    time.Duration `json:"high_wait"`
	LowReleased bool          `json:"low_released"`

	// Terminated is set when the escape hatch abandoned actor state.
	Terminated bool          `json:"terminated"`
	ExitMode   ExitMode      `json:"exit_mode"`
	Actors     []ActorReport `json:"actors"`
}

// Actor returns the report of actor id.
func (r *Result) Actor(id string) (ActorReport, bool) {
	for _, a := range r.Actors {
		if a.ID == id {
			return a, true
		}
	}
	return ActorReport{}, false
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSinks adds event consumers.
func WithSinks(sinks ...EventSink) Option {
	return func(o *Orchestrator) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// Orchestrator runs one scenario: it spawns the actors, lets the Medium
// actors flood the processor, stops them, waits for the settle interval and
// reports whether High acquired the resource.
type Orchestrator struct {
	cfg   ScenarioConfig
	sched Scheduler
	sinks []EventSink
	runID string
	log   *logrus.Entry

	mu     sync.Mutex
	kill   context.CancelFunc
	forced atomic.Bool
}

// NewOrchestrator validates cfg and prepares a run on sched.
func NewOrchestrator(cfg ScenarioConfig, sched Scheduler, opts ...Option) (*Orchestrator, error) {
	if sched == nil {
		return nil, fmt.Errorf("%w: nil scheduler", ErrInvalidConfig)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:   cfg,
		sched: sched,
		runID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = Log.WithFields(logrus.Fields{
		"run":      o.runID,
		"scenario": cfg.Name,
	})
	return o, nil
}

func (o *Orchestrator) RunID() string {
	return o.runID
}

func (o *Orchestrator) Config() ScenarioConfig {
	return o.cfg
}

// ForceTerminate is the escape hatch. Every actor abandons what it is doing
// without cleanup: computations stop, waits are cut short, and a held
// resource is never released. The run reports ExitForced.
func (o *Orchestrator) ForceTerminate() {
	if o.forced.Swap(true) {
		return
	}
	o.log.Warn("force terminate: abandoning actor state")
	o.mu.Lock()
	kill := o.kill
	o.mu.Unlock()
	if kill != nil {
		kill()
	}
}

// setup binds h and applies its priority and affinity. Nothing runs at a
// default priority: any refusal is returned.
func (o *Orchestrator) setup(h *Handle) (Executor, error) {
	ex, err := o.sched.Bind(h)
	if err != nil {
		return nil, &ActorError{ActorID: h.ID, Phase: PhaseBind, Err: err}
	}
	if err := o.sched.SetPriority(h, h.Priority); err != nil {
		ex.Exit()
		return nil, &ActorError{ActorID: h.ID, Phase: PhasePriority, Err: err}
	}
	if h.Affinity != Unpinned {
		if err := o.sched.PinAffinity(h, h.Affinity); err != nil {
			ex.Exit()
			return nil, &ActorError{ActorID: h.ID, Phase: PhaseAffinity, Err: err}
		}
	}
	return ex, nil
}

func (o *Orchestrator) handles() []*Handle {
	cfg := o.cfg
	unit := cfg.CPU
	if cfg.Unpinned {
		unit = Unpinned
	}
	hs := []*Handle{
		newHandle(RoleLow, 0, cfg.Priorities.Low, unit),
		newHandle(RoleHigh, 0, cfg.Priorities.High, unit),
	}
	for i := 0; i < cfg.MediumCount; i++ {
		hs = append(hs, newHandle(RoleMedium, i, cfg.Priorities.Medium, unit))
	}
	return hs
}

// Run executes the scenario. Starvation is reported through the Result; an
// error means the scenario could not start (ErrSchedulingDenied, ErrAffinity)
// or an actor broke the locking protocol (ErrNotOwner).
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	cfg := o.cfg

	killCtx, kill := context.WithCancel(ctx)
	defer kill()
	o.mu.Lock()
	o.kill = kill
	o.mu.Unlock()
	if o.forced.Load() {
		kill()
	}

	res := NewSignalingResource(cfg.Policy,
		WithUrgentThreshold(cfg.UrgentThreshold),
		WithResourceName(cfg.Name))
	st := newScenarioState(time.Now(), cfg.Window())
	sink := multiSink(o.sinks)

	hs := o.handles()
	actors := make([]*actor, len(hs))
	ready := make(chan error, len(hs))
	gate := make(chan struct{})
	abort := make(chan struct{})

	eg, egCtx := errgroup.WithContext(killCtx)
	for i, h := range hs {
		a := newActor(h, res, st, &cfg, o.runID, sink)
		actors[i] = a
		eg.Go(func() error {
			debugger.SetLabels(func() []string {
				return []string{
					"run", o.runID,
					"actor", h.ID,
					"role", h.Role.String(),
				}
			})
			ex, err := o.setup(h)
			ready <- err
			if err != nil {
				a.transition(StateAborted)
				return err
			}
			a.ex = ex
			defer ex.Exit()

			select {
			case <-gate:
			case <-abort:
				a.transition(StateAborted)
				return nil
			}
			return a.run(egCtx)
		})
	}

	var setupErr error
	for range hs {
		if err := <-ready; err != nil && setupErr == nil {
			setupErr = err
		}
	}
	if setupErr != nil {
		close(abort)
		_ = eg.Wait()
		o.log.Errorf("scenario aborted before start: %v", setupErr)
		return nil, setupErr
	}

	st.Start = time.Now()
	st.Deadline = st.Start.Add(cfg.Window())
	close(gate)
	o.log.Infof("started %s: policy=%s mediums=%d low_work=%s window=%s",
		cfg.Name, cfg.Policy, cfg.MediumCount, cfg.LowWork, cfg.Window())

	if sleepCtx(killCtx, cfg.FloodInterval) == nil {
		o.log.Debug("flood interval over, stopping mediums")
	}
	st.Stop()
	_ = sleepCtx(killCtx, cfg.SettleInterval)

	if cfg.LowWork.IsInfinite() {
		o.ForceTerminate()
	}
	joined := make(chan error, 1)
	go func() { joined <- eg.Wait() }()

	var err error
	timer := time.NewTimer(cfg.JoinTimeout)
	defer timer.Stop()
	select {
	case err = <-joined:
	case <-timer.C:
		o.log.Warnf("actors still running %s after the window, forcing termination", cfg.JoinTimeout)
		o.ForceTerminate()
		err = <-joined
	}

	result := o.outcome(st, actors)
	if ctx.Err() != nil {
		result.ExitMode = ExitForced
	}
	for _, s := range o.sinks {
		if ro, ok := s.(RunObserver); ok {
			ro.RunFinished(result)
		}
	}
	o.log.Infof("finished %s: acquired=%t elapsed=%s exit=%s",
		cfg.Name, result.Acquired, result.Elapsed, result.ExitMode)
	return result, err
}

func (o *Orchestrator) outcome(st *ScenarioState, actors []*actor) *Result {
	r := &Result{
		RunID:    o.runID,
		Scenario: o.cfg.Name,
		Policy:   o.cfg.Policy,
		Started:  st.Start,
		Window:   o.cfg.Window(),
		Elapsed:  o.cfg.Window(),
		ExitMode: ExitNormal,
	}
	if o.forced.Load() {
		r.ExitMode = ExitForced
	}
	for _, a := range actors {
		rep := a.report()
		r.Actors = append(r.Actors, rep)
		if rep.Final == StateTerminated {
			r.Terminated = true
		}
		switch a.h.Role {
		case RoleLow:
			r.LowReleased = rep.Visited(StateReleasing)
		case RoleHigh:
			held, ok := a.enteredAt(StateHolding)
			if !ok || held.After(st.Deadline) {
				continue
			}
			r.Acquired = true
			r.Elapsed = held.Sub(st.Start)
			if blocked, ok := a.enteredAt(StateBlocked); ok {
				r.HighWait = held.Sub(blocked)
			}
		}
	}
	return r
}
