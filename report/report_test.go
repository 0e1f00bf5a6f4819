package report

import (
	"strings"
	"testing"
	"time"

	inversion "github.com/seoyhaein/inversion-go"
)

func TestResultRendersOutcome(t *testing.T) {
	r := &inversion.Result{
		RunID:    "run-1",
		Scenario: "fault",
		Policy:   inversion.PolicyBaseline,
		Window:   6 * time.Second,
		Elapsed:  6 * time.Second,
		ExitMode: inversion.ExitForced,
		Actors: []inversion.ActorReport{
			{ID: "low", Role: inversion.RoleLow, Priority: 10, Final: inversion.StateTerminated,
				Path: []inversion.ActorState{inversion.StateIdle, inversion.StateAcquiring, inversion.StateHolding, inversion.StateWorking, inversion.StateStalled, inversion.StateTerminated}},
		},
	}
	out := Result(r)
	for _, want := range []string{"fault", "baseline", "run-1", "forced", "low", "Stalled>Terminated"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered result missing %q:\n%s", want, out)
		}
	}
}

func TestSuiteRendersSummaries(t *testing.T) {
	sr := &inversion.SuiteResult{
		ID: "suite-1",
		Summaries: []inversion.Summary{
			{Scenario: "mitigated", Policy: inversion.PolicyMitigated, Trials: 3, Acquired: 3,
				MinElapsed: 2 * time.Second, MeanElapsed: 2 * time.Second, MaxElapsed: 2 * time.Second},
		},
	}
	out := Suite(sr)
	if !strings.Contains(out, "3/3") || !strings.Contains(out, "mitigated") {
		t.Errorf("unexpected suite rendering:\n%s", out)
	}
}

func TestCompressFoldsAlternation(t *testing.T) {
	got := compress([]string{"Idle", "Looping", "Yielding", "Looping", "Yielding", "Looping", "Yielding", "Done"})
	want := "Idle>(Looping>Yielding)x3>Done"
	if got != want {
		t.Errorf("compress = %q, want %q", got, want)
	}
}
