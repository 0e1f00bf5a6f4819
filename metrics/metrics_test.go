package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	inversion "github.com/seoyhaein/inversion-go"
)

func TestCollectorCountsTransitions(t *testing.T) {
	c := New(nil)
	now := time.Now()
	c.Emit(inversion.Event{At: now, RunID: "r", ActorID: "high", Role: inversion.RoleHigh, From: inversion.StateAcquiring, To: inversion.StateBlocked})
	c.Emit(inversion.Event{At: now.Add(200 * time.Millisecond), RunID: "r", ActorID: "high", Role: inversion.RoleHigh, From: inversion.StateBlocked, To: inversion.StateHolding})
	c.Emit(inversion.Event{At: now, RunID: "r", ActorID: "medium-0", Role: inversion.RoleMedium, From: inversion.StateLooping, To: inversion.StateYielding})

	if got := testutil.ToFloat64(c.transitions.WithLabelValues("high", "Holding")); got != 1 {
		t.Errorf("high Holding transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.transitions.WithLabelValues("medium", "Yielding")); got != 1 {
		t.Errorf("medium Yielding transitions = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.highWait); n != 1 {
		t.Errorf("high wait histogram series = %d, want 1", n)
	}
	if len(c.blocked) != 0 {
		t.Errorf("blocked bookkeeping not cleared: %v", c.blocked)
	}
}

func TestCollectorRunOutcome(t *testing.T) {
	c := New(nil)
	c.RunFinished(&inversion.Result{Policy: inversion.PolicyBaseline, Acquired: false, ExitMode: inversion.ExitForced})
	c.RunFinished(&inversion.Result{Policy: inversion.PolicyMitigated, Acquired: true, Elapsed: 2 * time.Second, ExitMode: inversion.ExitNormal})

	if got := testutil.ToFloat64(c.runs.WithLabelValues("baseline", "starved", "forced")); got != 1 {
		t.Errorf("baseline starved runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.runs.WithLabelValues("mitigated", "acquired", "normal")); got != 1 {
		t.Errorf("mitigated acquired runs = %v, want 1", got)
	}

	var buf bytes.Buffer
	if err := c.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if !strings.Contains(buf.String(), "inversion_runs_total") {
		t.Errorf("text output misses runs counter:\n%s", buf.String())
	}
}
