package inversion

import (
	"context"
	"errors"
	"time"
)

// acquire takes the resource, moving to waitState and giving up the
// processor if the resource is held. Cancellation comes back as ctx.Err().
func (a *actor) acquire(ctx context.Context, waitState ActorState) error {
	if a.res.TryAcquire(a.h) {
		return nil
	}
	if a.current() != waitState {
		a.transition(waitState)
	}
	a.ex.Suspend()
	return a.res.Acquire(ctx, a.h)
}

func (a *actor) release() error {
	a.transition(StateReleasing)
	if err := a.res.Release(a.h); err != nil {
		return &ActorError{ActorID: a.h.ID, Phase: PhaseRelease, Err: err}
	}
	a.transition(StateDone)
	return nil
}

func (a *actor) acquireFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return a.terminated(err)
	}
	return &ActorError{ActorID: a.h.ID, Phase: PhaseAcquire, Err: err}
}

// runLow: Idle -> Acquiring -> Holding -> Working -> Releasing -> Done.
// With infinite work it never releases; after the stop flag it parks in
// Stalled, still holding, until the escape hatch fires.
func (a *actor) runLow(ctx context.Context) error {
	a.transition(StateAcquiring)
	if err := a.acquire(ctx, StateAcquiring); err != nil {
		return a.acquireFailed(ctx, err)
	}
	a.transition(StateHolding)
	a.transition(StateWorking)

	work := a.cfg.LowWork
	for i := 0; work.IsInfinite() || i < int(work); i++ {
		if work.IsInfinite() && a.state.Stopped() {
			a.transition(StateStalled)
			a.ex.Suspend()
			<-ctx.Done()
			return a.terminated(ctx.Err())
		}
		if err := a.ex.Compute(ctx, a.cfg.LowQuantum); err != nil {
			return a.terminated(err)
		}
		a.log.Debugf("working %d/%s", i+1, work)
	}
	return a.release()
}

// runHigh: Idle -> DelayedStart -> Acquiring -> [Blocked] -> Holding ->
// Releasing -> Done. The delay lets Low take the resource first.
func (a *actor) runHigh(ctx context.Context) error {
	a.transition(StateDelayedStart)
	if err := a.ex.Sleep(ctx, a.cfg.HighStartDelay); err != nil {
		return a.terminated(err)
	}
	a.transition(StateAcquiring)
	if err := a.acquire(ctx, StateBlocked); err != nil {
		return a.acquireFailed(ctx, err)
	}
	a.transition(StateHolding)
	if err := a.ex.Compute(ctx, a.cfg.HighCriticalSection); err != nil {
		return a.terminated(err)
	}
	return a.release()
}

// runMedium: Idle -> Looping <-> Yielding -> Done. A Medium actor never blocks
// on the resource; it either computes or, when cooperating and an urgent
// waiter is signalled, suspends so the holder can run.
func (a *actor) runMedium(ctx context.Context) error {
	a.transition(StateLooping)
	for !a.state.Stopped() {
		if !a.cfg.NonCooperative && a.res.IsUrgentWaiting() {
			if err := a.yield(ctx); err != nil {
				return a.terminated(err)
			}
			continue
		}
		if err := a.ex.Compute(ctx, a.cfg.MediumWork); err != nil {
			return a.terminated(err)
		}
	}
	a.ex.Suspend()
	a.transition(StateDone)
	return nil
}

// yield suspends until the urgent signal clears or the stop flag is set,
// re-checking at least every YieldQuantum.
func (a *actor) yield(ctx context.Context) error {
	a.transition(StateYielding)
	a.ex.Suspend()
	timer := time.NewTimer(a.cfg.YieldQuantum)
	defer timer.Stop()
	for !a.state.Stopped() {
		changed := a.res.UrgentChanged()
		if !a.res.IsUrgentWaiting() {
			break
		}
		select {
		case <-changed:
		case <-timer.C:
			timer.Reset(a.cfg.YieldQuantum)
		case <-a.state.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a.transition(StateLooping)
	return nil
}
