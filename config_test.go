package inversion

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseSingleScenario(t *testing.T) {
	doc := `
name: fault
policy: baseline
low_work_iterations: infinite
flood_interval: 2s
medium_count: 0
priorities:
  low: 5
  medium: 40
  high: 80
`
	scenarios, trials, err := ParseScenarios(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if trials != 1 || len(scenarios) != 1 {
		t.Fatalf("got %d scenarios, %d trials", len(scenarios), trials)
	}
	c := scenarios[0]
	if c.Policy != PolicyBaseline || !c.LowWork.IsInfinite() {
		t.Errorf("policy %s work %s", c.Policy, c.LowWork)
	}
	if c.MediumCount != 0 {
		t.Errorf("explicit zero medium_count became %d", c.MediumCount)
	}
	if c.SettleInterval != DefaultSettleInterval || c.FloodInterval != 2*time.Second {
		t.Errorf("flood %s settle %s", c.FloodInterval, c.SettleInterval)
	}
	if c.UrgentThreshold != 80 {
		t.Errorf("urgent threshold %d, want high priority 80", c.UrgentThreshold)
	}
}

func TestParseSuite(t *testing.T) {
	doc := `
trials: 3
scenarios:
  - name: one
    policy: mitigated
  - name: two
    policy: baseline
    low_work_iterations: 4
`
	scenarios, trials, err := ParseScenarios(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if trials != 3 || len(scenarios) != 2 {
		t.Fatalf("got %d scenarios, %d trials", len(scenarios), trials)
	}
	if scenarios[0].MediumCount != DefaultMediumCount || scenarios[0].LowWork != DefaultLowIterations {
		t.Errorf("defaults not applied: %+v", scenarios[0])
	}
	if scenarios[1].LowWork != 4 {
		t.Errorf("low work %s", scenarios[1].LowWork)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":          "   \n",
		"list":           "- a\n- b\n",
		"policy":         "policy: inheritance\n",
		"work":           "low_work_iterations: lots\n",
		"zero work":      "low_work_iterations: 0\n",
		"negative work":  "low_work_iterations: -1\n",
		"negative":       "medium_count: -2\n",
		"trials":         "trials: 0\nscenarios:\n  - policy: baseline\n",
		"no scenarios":   "scenarios: []\n",
		"threshold":      "urgent_threshold: 20\n",
		"priority order": "priorities: {low: 60, medium: 50, high: 90}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := ParseScenarios(strings.NewReader(doc)); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("got %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadSuiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	if err := os.WriteFile(path, []byte("trials: 2\nscenarios:\n  - name: c\n    policy: mitigated\n    medium_count: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSuiteFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Trials != 2 || len(s.Scenarios) != 1 || s.ID == "" {
		t.Fatalf("suite %+v", s)
	}
	if _, err := LoadSuiteFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file loaded")
	}
}

func TestPresetTimings(t *testing.T) {
	a := ScenarioA()
	if a.Policy != PolicyBaseline || !a.LowWork.IsInfinite() || a.Window() != 6*time.Second || a.MediumCount != 3 {
		t.Errorf("scenario A: %+v", a)
	}
	b := ScenarioB()
	if b.Policy != PolicyMitigated || b.LowWork != 20 || b.LowQuantum != 100*time.Millisecond || b.Window() != 8*time.Second {
		t.Errorf("scenario B: %+v", b)
	}
	c := ScenarioC()
	if c.MediumCount != 0 || c.Policy != PolicyMitigated {
		t.Errorf("scenario C: %+v", c)
	}
	for name, preset := range Presets() {
		if err := preset().Validate(); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
	}
}

func TestWorkIterationsRejectsNonPositive(t *testing.T) {
	for _, in := range []string{"0", "-1", "-20"} {
		var v struct {
			Work WorkIterations `yaml:"work"`
		}
		err := yaml.Unmarshal([]byte("work: "+in), &v)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("work %s: got %v (%s), want ErrInvalidConfig", in, err, v.Work)
		}
	}

	scenarios, _, err := ParseScenarios(strings.NewReader("low_work_iterations: 3\n"))
	if err != nil || scenarios[0].LowWork != 3 {
		t.Fatalf("explicit 3: %v %v", scenarios, err)
	}
	scenarios, _, err = ParseScenarios(strings.NewReader("policy: mitigated\n"))
	if err != nil || scenarios[0].LowWork != DefaultLowIterations {
		t.Fatalf("absent key: %v %v", scenarios, err)
	}
}

func TestWorkIterationsYAML(t *testing.T) {
	v, err := Infinite.MarshalYAML()
	if err != nil || v != "infinite" {
		t.Fatalf("infinite marshals to %v, %v", v, err)
	}
	v, _ = WorkIterations(7).MarshalYAML()
	if v != 7 {
		t.Fatalf("7 marshals to %v", v)
	}
}

func TestPrioritiesAndRoles(t *testing.T) {
	ps := DefaultPriorities()
	if ps.Of(RoleLow) >= ps.Of(RoleMedium) || ps.Of(RoleMedium) >= ps.Of(RoleHigh) {
		t.Fatalf("default priorities out of order: %+v", ps)
	}
	for _, r := range Roles() {
		b, _ := r.MarshalText()
		var back Role
		if err := back.UnmarshalText(b); err != nil || back != r {
			t.Fatalf("role %s: %v %v", r, back, err)
		}
	}
	if newHandle(RoleMedium, 2, PriorityMedium, 0).ID != "medium-2" {
		t.Fatal("medium handle id")
	}
}
