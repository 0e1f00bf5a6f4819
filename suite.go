package inversion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchedulerFactory builds a fresh Scheduler for each run of a Suite.
type SchedulerFactory func(cfg ScenarioConfig) (Scheduler, error)

// SimulatedScheduler is the default SchedulerFactory: a Processor with enough
// units for the configured affinity.
func SimulatedScheduler(cfg ScenarioConfig) (Scheduler, error) {
	return NewProcessor(WithUnits(cfg.CPU + 1)), nil
}

// Suite runs a list of scenarios, each for a number of trials, one run at a
// time so that runs never share a processor.
type Suite struct {
	ID        string
	Trials    int
	Scenarios []ScenarioConfig

	NewScheduler SchedulerFactory
	Sinks        []EventSink
}

func NewSuite(trials int, scenarios ...ScenarioConfig) *Suite {
	if trials < 1 {
		trials = 1
	}
	return &Suite{
		ID:           uuid.NewString(),
		Trials:       trials,
		Scenarios:    scenarios,
		NewScheduler: SimulatedScheduler,
	}
}

// Summary aggregates the trials of one scenario.
type Summary struct {
	Scenario    string
	Policy      Policy
	Trials      int
	Acquired    int
	Forced      int
	MinElapsed  time.Duration
	MaxElapsed  time.Duration
	MeanElapsed time.Duration
}

// SuiteResult holds every run in execution order plus one Summary per
// scenario.
type SuiteResult struct {
	ID        string
	Results   []*Result
	Summaries []Summary
}

// Run executes every trial. It stops at the first error; results gathered
// until then are returned with it.
func (s *Suite) Run(ctx context.Context) (*SuiteResult, error) {
	if len(s.Scenarios) == 0 {
		return nil, fmt.Errorf("%w: suite has no scenarios", ErrInvalidConfig)
	}
	factory := s.NewScheduler
	if factory == nil {
		factory = SimulatedScheduler
	}

	out := &SuiteResult{ID: s.ID}
	for i, cfg := range s.Scenarios {
		cfg = cfg.WithDefaults()
		sum := Summary{Scenario: cfg.Name, Policy: cfg.Policy}
		var total time.Duration
		for trial := 1; trial <= s.Trials; trial++ {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			sched, err := factory(cfg)
			if err != nil {
				return out, fmt.Errorf("scenario %s: scheduler: %w", cfg.Name, err)
			}
			runID := fmt.Sprintf("%s-%d-%d", s.ID, i+1, trial)
			o, err := NewOrchestrator(cfg, sched, WithRunID(runID), WithSinks(s.Sinks...))
			if err != nil {
				return out, fmt.Errorf("scenario %s: %w", cfg.Name, err)
			}
			res, err := o.Run(ctx)
			if res != nil {
				out.Results = append(out.Results, res)
				sum.add(res)
				total += res.Elapsed
			}
			if err != nil {
				return out, fmt.Errorf("scenario %s trial %d: %w", cfg.Name, trial, err)
			}
		}
		if sum.Trials > 0 {
			sum.MeanElapsed = total / time.Duration(sum.Trials)
		}
		out.Summaries = append(out.Summaries, sum)
	}
	return out, nil
}

func (s *Summary) add(r *Result) {
	s.Trials++
	if r.Acquired {
		s.Acquired++
	}
	if r.ExitMode == ExitForced {
		s.Forced++
	}
	if s.Trials == 1 || r.Elapsed < s.MinElapsed {
		s.MinElapsed = r.Elapsed
	}
	if r.Elapsed > s.MaxElapsed {
		s.MaxElapsed = r.Elapsed
	}
}
