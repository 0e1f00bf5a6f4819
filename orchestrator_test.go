package inversion

import (
	"context"
	"errors"
	"testing"
	"time"
)

// quick scales the preset timings down so a run takes well under a second.
func quick(name string, p Policy, mediums int) ScenarioConfig {
	return ScenarioConfig{
		Name:           name,
		Policy:         p,
		MediumCount:    mediums,
		FloodInterval:  600 * time.Millisecond,
		SettleInterval: 0,
		LowWork:        5,
		LowQuantum:     20 * time.Millisecond,
		HighStartDelay: 30 * time.Millisecond,
		MediumWork:     5 * time.Millisecond,
		YieldQuantum:   20 * time.Millisecond,
		JoinTimeout:    3 * time.Second,
	}
}

func runScenario(t *testing.T, cfg ScenarioConfig, opts ...Option) (*Result, *Recorder) {
	t.Helper()
	rec := NewRecorder()
	o, err := NewOrchestrator(cfg, NewProcessor(WithUnits(cfg.CPU+1)), append(opts, WithSinks(rec))...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run %s: %v", cfg.Name, err)
	}
	return res, rec
}

func assertPath(t *testing.T, got []ActorState, want ...ActorState) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("path %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("path %v, want %v", got, want)
		}
	}
}

func TestBaselineInfiniteHolderStarvesHigh(t *testing.T) {
	cfg := quick("fault", PolicyBaseline, 3)
	cfg.LowWork = Infinite
	cfg.FloodInterval = 300 * time.Millisecond
	cfg.SettleInterval = 200 * time.Millisecond

	res, rec := runScenario(t, cfg)
	if res.Acquired {
		t.Fatalf("high acquired after %s under baseline with a holder that never releases", res.Elapsed)
	}
	if res.ExitMode != ExitForced || !res.Terminated {
		t.Fatalf("exit %s terminated=%t, want forced termination", res.ExitMode, res.Terminated)
	}
	if res.Elapsed != cfg.Window() {
		t.Errorf("elapsed %s, want the full window %s", res.Elapsed, cfg.Window())
	}
	if res.LowReleased {
		t.Error("low released a resource it never stops working under")
	}

	low, _ := res.Actor("low")
	if low.Final != StateTerminated || !low.Visited(StateStalled) || low.Visited(StateReleasing) {
		t.Errorf("low path %v", low.Path)
	}
	high, _ := res.Actor("high")
	if high.Final != StateTerminated || !high.Visited(StateBlocked) || high.Visited(StateHolding) {
		t.Errorf("high path %v", high.Path)
	}
	if _, ok := rec.First("medium-0", StateYielding); ok {
		t.Error("a medium yielded under the baseline policy")
	}
}

func TestBaselineFiniteHolderWaitsOutTheFlood(t *testing.T) {
	cfg := quick("baseline-finite", PolicyBaseline, 3)
	cfg.FloodInterval = 300 * time.Millisecond
	cfg.SettleInterval = 400 * time.Millisecond

	res, _ := runScenario(t, cfg)
	if !res.Acquired {
		t.Fatal("high never acquired after the flood ended")
	}
	if res.Elapsed < cfg.FloodInterval {
		t.Fatalf("high acquired after %s, before the %s flood ended", res.Elapsed, cfg.FloodInterval)
	}
	if res.ExitMode != ExitNormal || res.Terminated {
		t.Fatalf("exit %s terminated=%t", res.ExitMode, res.Terminated)
	}
}

func TestMitigatedWaitIsBoundedByHolderWork(t *testing.T) {
	for _, n := range []int{1, 3, 8} {
		cfg := quick("mitigated", PolicyMitigated, n)
		res, rec := runScenario(t, cfg)
		if !res.Acquired {
			t.Fatalf("%d mediums: high did not acquire within %s", n, cfg.Window())
		}
		// Low needs 100ms of processor time; the bound must not grow with n.
		if res.HighWait > 400*time.Millisecond {
			t.Errorf("%d mediums: high blocked for %s", n, res.HighWait)
		}
		if res.Elapsed >= cfg.FloodInterval {
			t.Errorf("%d mediums: acquired only after the flood (%s)", n, res.Elapsed)
		}
		if _, ok := rec.First("medium-0", StateYielding); !ok {
			t.Errorf("%d mediums: medium-0 never yielded", n)
		}
		low, _ := res.Actor("low")
		assertPath(t, low.Path, StateIdle, StateAcquiring, StateHolding, StateWorking, StateReleasing, StateDone)
		high, _ := res.Actor("high")
		assertPath(t, high.Path, StateIdle, StateDelayedStart, StateAcquiring, StateBlocked, StateHolding, StateReleasing, StateDone)
	}
}

func TestMediumsResumeAfterSignalClears(t *testing.T) {
	cfg := quick("resume", PolicyMitigated, 2)
	res, rec := runScenario(t, cfg)
	if !res.Acquired {
		t.Fatal("high did not acquire")
	}
	released, ok := rec.First("low", StateReleasing)
	if !ok {
		t.Fatal("low never released")
	}
	resumed := false
	for _, ev := range rec.Events() {
		if ev.Role == RoleMedium && ev.From == StateYielding && ev.To == StateLooping && !ev.At.Before(released.At) {
			resumed = true
		}
	}
	if !resumed {
		t.Error("no medium returned to Looping once low released")
	}
	for _, a := range res.Actors {
		if a.Role == RoleMedium && a.Final != StateDone {
			t.Errorf("%s ended in %s", a.ID, a.Final)
		}
	}
}

func TestEveryMediumYieldsWithinOneQuantum(t *testing.T) {
	cfg := quick("responsive", PolicyMitigated, 3)
	cfg.YieldQuantum = 50 * time.Millisecond
	res, rec := runScenario(t, cfg)
	if !res.Acquired {
		t.Fatal("high did not acquire")
	}
	blocked, ok := rec.First("high", StateBlocked)
	if !ok {
		t.Fatal("high never blocked")
	}
	released, ok := rec.First("low", StateReleasing)
	if !ok {
		t.Fatal("low never released")
	}

	for i := 0; i < cfg.MediumCount; i++ {
		id := newHandle(RoleMedium, i, cfg.Priorities.Medium, 0).ID
		var yielded, resumed *Event
		for _, ev := range rec.Events() {
			if ev.ActorID != id {
				continue
			}
			ev := ev
			if yielded == nil && ev.To == StateYielding {
				yielded = &ev
			}
			if resumed == nil && ev.From == StateYielding && ev.To == StateLooping && !ev.At.Before(released.At) {
				resumed = &ev
			}
		}
		if yielded == nil {
			t.Errorf("%s never yielded", id)
			continue
		}
		if d := yielded.At.Sub(blocked.At); d < 0 || d > cfg.YieldQuantum {
			t.Errorf("%s yielded %s after high blocked, want within %s", id, d, cfg.YieldQuantum)
		}
		if resumed == nil {
			t.Errorf("%s never resumed after low released", id)
			continue
		}
		if d := resumed.At.Sub(released.At); d > cfg.YieldQuantum {
			t.Errorf("%s resumed %s after low released, want within %s", id, d, cfg.YieldQuantum)
		}
	}
}

func TestNonCooperativeMediumsDefeatMitigation(t *testing.T) {
	cfg := quick("selfish", PolicyMitigated, 3)
	cfg.NonCooperative = true
	cfg.FloodInterval = 300 * time.Millisecond

	res, rec := runScenario(t, cfg)
	if res.Acquired {
		t.Fatalf("high acquired after %s although no medium yields", res.Elapsed)
	}
	if _, ok := rec.First("medium-0", StateYielding); ok {
		t.Error("a non-cooperative medium yielded")
	}
	// The run still ends normally once the flood stops.
	if high, _ := res.Actor("high"); high.Final != StateDone {
		t.Errorf("high ended in %s", high.Final)
	}
}

func TestUnpinnedActorsMaskInversion(t *testing.T) {
	cfg := quick("unpinned", PolicyBaseline, 1)
	cfg.CPU = 1
	cfg.FloodInterval = 500 * time.Millisecond

	pinned, _ := runScenario(t, cfg)
	if pinned.Acquired {
		t.Fatalf("pinned baseline: high acquired after %s during the flood", pinned.Elapsed)
	}

	cfg.Unpinned = true
	res, _ := runScenario(t, cfg)
	if !res.Acquired || res.Elapsed >= cfg.FloodInterval {
		t.Fatalf("unpinned baseline: acquired=%t after %s, want during the %s flood",
			res.Acquired, res.Elapsed, cfg.FloodInterval)
	}
}

func TestNoMediumsAcquiresPromptly(t *testing.T) {
	cfg := quick("degenerate", PolicyMitigated, 0)
	res, _ := runScenario(t, cfg)
	if !res.Acquired {
		t.Fatal("high did not acquire without competition")
	}
	if res.Elapsed > 300*time.Millisecond {
		t.Errorf("elapsed %s", res.Elapsed)
	}
	if len(res.Actors) != 2 {
		t.Errorf("%d actors, want low and high only", len(res.Actors))
	}
}

func TestSchedulingDeniedAbortsBeforeStart(t *testing.T) {
	cfg := quick("denied", PolicyMitigated, 2)
	rec := NewRecorder()
	o, err := NewOrchestrator(cfg, NewProcessor(WithPriorityCeiling(PriorityMedium)), WithSinks(rec))
	if err != nil {
		t.Fatal(err)
	}
	res, err := o.Run(context.Background())
	if !errors.Is(err, ErrSchedulingDenied) {
		t.Fatalf("got %v, want ErrSchedulingDenied", err)
	}
	var ae *ActorError
	if !errors.As(err, &ae) || ae.ActorID != "high" || ae.Phase != PhasePriority {
		t.Fatalf("error %v does not name high's priority phase", err)
	}
	if res != nil {
		t.Fatal("a refused scenario produced a result")
	}
	for _, ev := range rec.Events() {
		if ev.To != StateAborted {
			t.Fatalf("%s moved to %s before the scenario started", ev.ActorID, ev.To)
		}
	}
}

func TestAffinityErrorAbortsBeforeStart(t *testing.T) {
	cfg := quick("pinned", PolicyBaseline, 1)
	cfg.CPU = 3
	o, err := NewOrchestrator(cfg, NewProcessor(WithUnits(2)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Run(context.Background()); !errors.Is(err, ErrAffinity) {
		t.Fatalf("got %v, want ErrAffinity", err)
	}
}

func TestForceTerminateEndsRunEarly(t *testing.T) {
	cfg := quick("hatch", PolicyBaseline, 2)
	cfg.LowWork = Infinite
	cfg.FloodInterval = 10 * time.Second

	o, err := NewOrchestrator(cfg, NewProcessor())
	if err != nil {
		t.Fatal(err)
	}
	time.AfterFunc(200*time.Millisecond, o.ForceTerminate)

	start := time.Now()
	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("run took %s after the escape hatch fired", took)
	}
	if res.ExitMode != ExitForced || !res.Terminated {
		t.Fatalf("exit %s terminated=%t", res.ExitMode, res.Terminated)
	}
	if owner, held := abandonedOwner(res); !held || owner != "low" {
		t.Fatalf("low should still hold the abandoned resource, got %q", owner)
	}
}

// abandonedOwner reports the holder implied by the actor reports: the escape hatch
// never releases, so a Low that reached Holding without Releasing still owns.
func abandonedOwner(res *Result) (string, bool) {
	low, ok := res.Actor("low")
	if !ok {
		return "", false
	}
	if low.Visited(StateHolding) && !low.Visited(StateReleasing) {
		return low.ID, true
	}
	return "", false
}

func TestRunObserverSeesResult(t *testing.T) {
	cfg := quick("observed", PolicyMitigated, 1)
	var got *Result
	obs := &observer{fn: func(r *Result) { got = r }}
	res, _ := runScenario(t, cfg, WithSinks(obs), WithRunID("fixed"))
	if got != res {
		t.Fatal("observer did not receive the run result")
	}
	if res.RunID != "fixed" {
		t.Fatalf("run id %q", res.RunID)
	}
}

type observer struct {
	fn func(*Result)
}

func (o *observer) Emit(Event)               {}
func (o *observer) RunFinished(res *Result) { o.fn(res) }

func TestNewOrchestratorRejectsBadInput(t *testing.T) {
	if _, err := NewOrchestrator(quick("x", PolicyBaseline, 1), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil scheduler: got %v", err)
	}
	cfg := quick("x", PolicyBaseline, -1)
	if _, err := NewOrchestrator(cfg, NewProcessor()); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("negative medium count: got %v", err)
	}
}

func TestPresetScenarios(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the presets at full length")
	}
	a, _ := runScenario(t, ScenarioA())
	if a.Acquired || a.ExitMode != ExitForced {
		t.Errorf("scenario A: acquired=%t exit=%s", a.Acquired, a.ExitMode)
	}
	b, _ := runScenario(t, ScenarioB())
	if !b.Acquired || b.Elapsed >= ScenarioB().FloodInterval {
		t.Errorf("scenario B: acquired=%t elapsed=%s", b.Acquired, b.Elapsed)
	}
	c, _ := runScenario(t, ScenarioC())
	if !c.Acquired {
		t.Errorf("scenario C: not acquired")
	}
}
