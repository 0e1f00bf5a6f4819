package inversion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/seoyhaein/utils"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var Log = logrus.New()

// channel buffer size
const (
	Max int = 100
	Min int = 1
)

// Defaults shared by the preset scenarios.
const (
	DefaultFloodInterval  = 3 * time.Second
	DefaultSettleInterval = 3 * time.Second
	DefaultMediumCount    = 3
	DefaultLowIterations  = 20
	DefaultLowQuantum     = 100 * time.Millisecond
	DefaultHighStartDelay = 50 * time.Millisecond
	DefaultMediumWork     = 10 * time.Millisecond
	DefaultYieldQuantum   = 100 * time.Millisecond
	DefaultJoinTimeout    = 10 * time.Second
)

// Infinite is the WorkIterations value of a Low actor that never releases.
const Infinite WorkIterations = -1

// WorkIterations is how many quanta the Low actor works while holding the
// resource, or Infinite. In YAML it is a positive integer or "infinite".
type WorkIterations int

func (w WorkIterations) IsInfinite() bool {
	return w == Infinite
}

func (w WorkIterations) String() string {
	if w.IsInfinite() {
		return "infinite"
	}
	return strconv.Itoa(int(w))
}

func (w WorkIterations) MarshalYAML() (interface{}, error) {
	if w.IsInfinite() {
		return "infinite", nil
	}
	return int(w), nil
}

func (w *WorkIterations) UnmarshalYAML(value *yaml.Node) error {
	s := strings.ToLower(strings.TrimSpace(value.Value))
	if s == "infinite" || s == "forever" || s == "inf" {
		*w = Infinite
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: low_work_iterations %q is neither an integer nor \"infinite\"", ErrInvalidConfig, value.Value)
	}
	if n < 1 {
		return fmt.Errorf("%w: low_work_iterations must be >= 1 or \"infinite\", got %d", ErrInvalidConfig, n)
	}
	*w = WorkIterations(n)
	return nil
}

// ScenarioConfig describes one run. Zero durations and counts are replaced by
// the defaults above in WithDefaults, except MediumCount which is only
// defaulted by the presets since zero Medium actors is a valid scenario.
type ScenarioConfig struct {
	Name   string `yaml:"name"`
	Policy Policy `yaml:"policy"`

	MediumCount    int           `yaml:"medium_count"`
	FloodInterval  time.Duration `yaml:"flood_interval"`
	SettleInterval time.Duration `yaml:"settle_interval"`

	LowWork             WorkIterations `yaml:"low_work_iterations"`
	LowQuantum          time.Duration  `yaml:"low_quantum"`
	HighStartDelay      time.Duration  `yaml:"high_start_delay"`
	HighCriticalSection time.Duration  `yaml:"high_critical_section"`
	MediumWork          time.Duration  `yaml:"medium_work"`
	YieldQuantum        time.Duration  `yaml:"yield_quantum"`

	// NonCooperative makes Medium actors ignore the urgent signal. It exists to
	// show that the mitigated policy's bound depends on their cooperation.
	NonCooperative bool `yaml:"non_cooperative_mediums"`

	Priorities      Priorities `yaml:"priorities"`
	UrgentThreshold Priority   `yaml:"urgent_threshold"`

	CPU      int  `yaml:"cpu"`
	Unpinned bool `yaml:"unpinned"`

	JoinTimeout time.Duration `yaml:"join_timeout"`
}

// WithDefaults returns a copy of c with unset fields filled in.
func (c ScenarioConfig) WithDefaults() ScenarioConfig {
	if utils.IsEmptyString(c.Name) {
		c.Name = c.Policy.String()
	}
	if c.FloodInterval == 0 {
		c.FloodInterval = DefaultFloodInterval
	}
	// A zero LowWork is only possible from Go code; YAML rejects it.
	if c.LowWork == 0 {
		c.LowWork = DefaultLowIterations
	}
	if c.LowQuantum == 0 {
		c.LowQuantum = DefaultLowQuantum
	}
	if c.HighStartDelay == 0 {
		c.HighStartDelay = DefaultHighStartDelay
	}
	if c.MediumWork == 0 {
		c.MediumWork = DefaultMediumWork
	}
	if c.YieldQuantum == 0 {
		c.YieldQuantum = DefaultYieldQuantum
	}
	if c.Priorities == (Priorities{}) {
		c.Priorities = DefaultPriorities()
	}
	if c.UrgentThreshold == 0 {
		c.UrgentThreshold = c.Priorities.High
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	return c
}

// Validate reports the first problem with c. Call it on a defaulted config.
func (c ScenarioConfig) Validate() error {
	if _, ok := strPolicyMap[c.Policy]; !ok {
		return fmt.Errorf("%w: unknown policy %d", ErrInvalidConfig, int(c.Policy))
	}
	if c.MediumCount < 0 {
		return fmt.Errorf("%w: medium_count must be >= 0, got %d", ErrInvalidConfig, c.MediumCount)
	}
	if !c.LowWork.IsInfinite() && c.LowWork < 1 {
		return fmt.Errorf("%w: low_work_iterations must be >= 1 or infinite, got %d", ErrInvalidConfig, c.LowWork)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"flood_interval", c.FloodInterval},
		{"settle_interval", c.SettleInterval},
		{"low_quantum", c.LowQuantum},
		{"high_start_delay", c.HighStartDelay},
		{"high_critical_section", c.HighCriticalSection},
		{"medium_work", c.MediumWork},
		{"yield_quantum", c.YieldQuantum},
		{"join_timeout", c.JoinTimeout},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidConfig, d.name, d.d)
		}
	}
	if c.MediumCount > 0 && c.MediumWork <= 0 {
		return fmt.Errorf("%w: medium_work must be positive", ErrInvalidConfig)
	}
	if c.YieldQuantum <= 0 {
		return fmt.Errorf("%w: yield_quantum must be positive", ErrInvalidConfig)
	}
	if err := c.Priorities.Validate(); err != nil {
		return err
	}
	if c.UrgentThreshold <= c.Priorities.Medium || c.UrgentThreshold > c.Priorities.High {
		return fmt.Errorf("%w: urgent_threshold %d must be above medium (%d) and at most high (%d)",
			ErrInvalidConfig, c.UrgentThreshold, c.Priorities.Medium, c.Priorities.High)
	}
	if c.CPU < 0 {
		return fmt.Errorf("%w: cpu must be >= 0, got %d", ErrInvalidConfig, c.CPU)
	}
	return nil
}

// Window is the full observation window.
func (c ScenarioConfig) Window() time.Duration {
	return c.FloodInterval + c.SettleInterval
}

// ScenarioA is the fault demonstration: baseline policy and a Low holder that
// never releases. High is not expected to acquire.
func ScenarioA() ScenarioConfig {
	return ScenarioConfig{
		Name:           "A",
		Policy:         PolicyBaseline,
		MediumCount:    DefaultMediumCount,
		FloodInterval:  3 * time.Second,
		SettleInterval: 3 * time.Second,
		LowWork:        Infinite,
	}.WithDefaults()
}

// ScenarioB is the mitigation demonstration: 20 bounded work quanta of 100ms
// and an eight second window. High is expected to acquire.
func ScenarioB() ScenarioConfig {
	return ScenarioConfig{
		Name:           "B",
		Policy:         PolicyMitigated,
		MediumCount:    DefaultMediumCount,
		FloodInterval:  8 * time.Second,
		SettleInterval: 0,
		LowWork:        DefaultLowIterations,
	}.WithDefaults()
}

// ScenarioC is the degenerate check: mitigated policy with no Medium actors.
func ScenarioC() ScenarioConfig {
	return ScenarioConfig{
		Name:           "C",
		Policy:         PolicyMitigated,
		MediumCount:    0,
		FloodInterval:  3 * time.Second,
		SettleInterval: 0,
		LowWork:        DefaultLowIterations,
	}.WithDefaults()
}

// Presets indexes the named scenarios.
func Presets() map[string]func() ScenarioConfig {
	return map[string]func() ScenarioConfig{
		"a": ScenarioA,
		"b": ScenarioB,
		"c": ScenarioC,
	}
}
