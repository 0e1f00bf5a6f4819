package inversion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultSlice = 10 * time.Millisecond

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithUnits sets the number of execution units. The default is one.
func WithUnits(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.nunits = n
		}
	}
}

// WithSlice sets the dispatch granularity of Compute.
func WithSlice(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.slice = d
		}
	}
}

// WithPriorityCeiling refuses any priority above p, the way RLIMIT_RTPRIO
// does for an unprivileged process.
func WithPriorityCeiling(p Priority) ProcessorOption {
	return func(pr *Processor) {
		pr.ceiling = p
	}
}

// Processor is a simulated fixed-priority preemptive machine. Each execution
// unit runs one thread at a time; the rest wait in a ready queue ordered by
// priority, then arrival. Compute proceeds in slices and at every slice
// boundary the running thread gives the unit to a ready thread of strictly
// higher priority (preemption) or of equal priority (round-robin). A thread
// keeps its unit after Compute returns until it suspends, sleeps, exits or is
// preempted, so an actor that never blocks starves everything below it.
//
// Unpinned threads are not tied to a unit: they start on an idle unit when
// there is one, and a unit that runs out of work takes over an unpinned
// thread queued elsewhere. With enough units they all progress in parallel.
type Processor struct {
	mu      sync.Mutex
	nunits  int
	units   []*unit
	slice   time.Duration
	ceiling Priority
	threads map[string]*thread
	seq     uint64
	log     *logrus.Entry
}

type unit struct {
	id       int
	running  *thread
	ready    []*thread
	switches int
}

type thread struct {
	p      *Processor
	h      *Handle
	prio   Priority
	unit   *unit
	pinned bool
	wake   chan struct{}
	seq    uint64
	cpu    time.Duration
}

// NewProcessor returns an idle Processor.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		nunits:  1,
		slice:   DefaultSlice,
		threads: make(map[string]*thread),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.units = make([]*unit, p.nunits)
	for i := range p.units {
		p.units[i] = &unit{id: i}
	}
	p.log = Log.WithField("scheduler", "sim")
	return p
}

// Bind creates the simulated thread of h. It is not runnable until its first
// Compute. A handle with Affinity Unpinned may run on any unit; any other
// handle stays on unit 0 until PinAffinity moves it.
func (p *Processor) Bind(h *Handle) (Executor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.threads[h.ID]; ok {
		return nil, fmt.Errorf("actor %s already bound", h.ID)
	}
	t := &thread{
		p:      p,
		h:      h,
		prio:   h.Priority,
		unit:   p.units[0],
		pinned: h.Affinity != Unpinned,
		wake:   make(chan struct{}, 1),
	}
	p.threads[h.ID] = t
	return t, nil
}

func (p *Processor) SetPriority(h *Handle, level Priority) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.threads[h.ID]
	if !ok {
		return ErrNotBound
	}
	if !level.Valid() {
		return fmt.Errorf("%w: priority %d outside [%d, %d]", ErrSchedulingDenied, level, PriorityMin, PriorityMax)
	}
	if p.ceiling > 0 && level > p.ceiling {
		return fmt.Errorf("%w: priority %d above ceiling %d", ErrSchedulingDenied, level, p.ceiling)
	}
	t.prio = level
	return nil
}

func (p *Processor) PinAffinity(h *Handle, u int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.threads[h.ID]
	if !ok {
		return ErrNotBound
	}
	if u < 0 || u >= len(p.units) {
		return fmt.Errorf("%w: unit %d does not exist (%d units)", ErrAffinity, u, len(p.units))
	}
	t.unit = p.units[u]
	t.pinned = true
	return nil
}

// CPUTime returns the processor time consumed so far by actor id.
func (p *Processor) CPUTime(id string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.threads[id]; ok {
		return t.cpu
	}
	return 0
}

// UnitStats is a snapshot of one execution unit.
type UnitStats struct {
	Unit     int
	Running  string
	Ready    []string
	Switches int
}

func (p *Processor) Stats() []UnitStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]UnitStats, 0, len(p.units))
	for _, u := range p.units {
		s := UnitStats{Unit: u.id, Switches: u.switches}
		if u.running != nil {
			s.Running = u.running.h.ID
		}
		for _, t := range u.ready {
			s.Ready = append(s.Ready, t.h.ID)
		}
		out = append(out, s)
	}
	return out
}

// enqueue keeps u.ready sorted by priority, FIFO among equals.
func (p *Processor) enqueue(u *unit, t *thread) {
	p.seq++
	t.seq = p.seq
	i := 0
	for i < len(u.ready) && u.ready[i].prio >= t.prio {
		i++
	}
	u.ready = append(u.ready, nil)
	copy(u.ready[i+1:], u.ready[i:])
	u.ready[i] = t
}

func (p *Processor) dequeue(u *unit, t *thread) {
	for i, r := range u.ready {
		if r == t {
			u.ready = append(u.ready[:i], u.ready[i+1:]...)
			return
		}
	}
}

// dispatchNext hands u to the head of its ready queue. With nothing queued
// it takes the best unpinned thread waiting on another unit, or idles.
func (p *Processor) dispatchNext(u *unit) {
	if len(u.ready) == 0 {
		next := p.steal(u)
		if next == nil {
			u.running = nil
			return
		}
		next.unit = u
		u.running = next
		u.switches++
		next.wake <- struct{}{}
		return
	}
	next := u.ready[0]
	u.ready = u.ready[1:]
	u.running = next
	u.switches++
	next.wake <- struct{}{}
}

// steal removes and returns the highest priority unpinned thread queued on
// a unit other than u, oldest first among equals.
func (p *Processor) steal(u *unit) *thread {
	var best *thread
	var from *unit
	for _, o := range p.units {
		if o == u {
			continue
		}
		for _, t := range o.ready {
			if t.pinned {
				continue
			}
			if best == nil || t.prio > best.prio || (t.prio == best.prio && t.seq < best.seq) {
				best, from = t, o
			}
			break
		}
	}
	if best != nil {
		p.dequeue(from, best)
	}
	return best
}

// place picks the unit an unpinned thread t queues on: its current unit if t
// already runs there, else an idle unit, else the unit running the lowest
// priority thread.
func (p *Processor) place(t *thread) *unit {
	if t.unit.running == t {
		return t.unit
	}
	var best *unit
	for _, u := range p.units {
		if u.running == nil {
			return u
		}
		if best == nil || u.running.prio < best.running.prio ||
			(u.running.prio == best.running.prio && len(u.ready) < len(best.ready)) {
			best = u
		}
	}
	return best
}

func (t *thread) acquire(ctx context.Context) error {
	p := t.p
	p.mu.Lock()
	if !t.pinned {
		t.unit = p.place(t)
	}
	u := t.unit
	switch u.running {
	case t:
		p.mu.Unlock()
		return nil
	case nil:
		u.running = t
		u.switches++
		p.mu.Unlock()
		return nil
	}
	p.enqueue(u, t)
	p.mu.Unlock()
	return t.waitDispatch(ctx)
}

func (t *thread) waitDispatch(ctx context.Context) error {
	select {
	case <-t.wake:
		return nil
	case <-ctx.Done():
	}
	p := t.p
	p.mu.Lock()
	defer p.mu.Unlock()
	u := t.unit
	if u.running == t {
		select {
		case <-t.wake:
		default:
		}
		p.dispatchNext(u)
	} else {
		p.dequeue(u, t)
	}
	return ctx.Err()
}

// checkpoint runs at a slice boundary and gives the unit away when a ready
// thread has at least our priority.
func (t *thread) checkpoint(ctx context.Context) error {
	p := t.p
	p.mu.Lock()
	u := t.unit
	if len(u.ready) == 0 || u.ready[0].prio < t.prio {
		p.mu.Unlock()
		return nil
	}
	if u.ready[0].prio > t.prio {
		p.log.Debugf("%s preempted by %s", t.h.ID, u.ready[0].h.ID)
	}
	p.dispatchNext(u)
	p.enqueue(u, t)
	p.mu.Unlock()
	return t.waitDispatch(ctx)
}

func (t *thread) release() {
	p := t.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.unit.running == t {
		p.dispatchNext(t.unit)
	}
}

func (t *thread) Compute(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if err := t.acquire(ctx); err != nil {
		return err
	}
	for remaining := d; remaining > 0; {
		step := min(t.p.slice, remaining)
		if err := sleepCtx(ctx, step); err != nil {
			t.release()
			return err
		}
		remaining -= step
		t.p.mu.Lock()
		t.cpu += step
		t.p.mu.Unlock()
		if err := t.checkpoint(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t *thread) Sleep(ctx context.Context, d time.Duration) error {
	t.Suspend()
	return sleepCtx(ctx, d)
}

func (t *thread) Suspend() {
	t.release()
}

func (t *thread) Exit() {
	p := t.p
	p.mu.Lock()
	defer p.mu.Unlock()
	u := t.unit
	if u.running == t {
		p.dispatchNext(u)
		return
	}
	p.dequeue(u, t)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
