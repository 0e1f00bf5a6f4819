package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	inversion "github.com/seoyhaein/inversion-go"
	"github.com/seoyhaein/inversion-go/metrics"
	"github.com/seoyhaein/inversion-go/ossched"
	"github.com/seoyhaein/inversion-go/report"
	"github.com/seoyhaein/inversion-go/tui"
)

type runOptions struct {
	preset    string
	file      string
	scheduler string
	watch     bool
	metrics   bool
	events    bool

	mediums int
	flood   time.Duration
	settle  time.Duration
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{mediums: -1}
	c := &cobra.Command{
		Use:   "run",
		Short: "Run one scenario",
		Example: `  inversion run --preset a
  inversion run --preset b --mediums 8
  inversion run -f scenario.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.scenario()
			if err != nil {
				return err
			}
			factory, err := schedulerFactory(opts.scheduler)
			if err != nil {
				return err
			}
			return runScenario(cmd.Context(), cmd.OutOrStdout(), cfg, factory, opts)
		},
	}
	f := c.Flags()
	f.StringVar(&opts.preset, "preset", "a", "built-in scenario (a, b, c)")
	f.StringVarP(&opts.file, "file", "f", "", "scenario YAML file, overrides --preset")
	f.StringVar(&opts.scheduler, "scheduler", "sim", "scheduler backend (sim, os)")
	f.BoolVar(&opts.watch, "watch", false, "show a live view of the actors")
	f.BoolVar(&opts.metrics, "metrics", false, "print Prometheus metrics after the run")
	f.BoolVar(&opts.events, "events", false, "log every state transition")
	f.IntVar(&opts.mediums, "mediums", -1, "override the number of Medium actors")
	f.DurationVar(&opts.flood, "flood", 0, "override the flood interval")
	f.DurationVar(&opts.settle, "settle", -1, "override the settle interval")
	return c
}

func (o *runOptions) scenario() (inversion.ScenarioConfig, error) {
	var cfg inversion.ScenarioConfig
	if o.file != "" {
		s, err := inversion.LoadSuiteFile(o.file)
		if err != nil {
			return cfg, err
		}
		if len(s.Scenarios) != 1 {
			return cfg, fmt.Errorf("%s holds %d scenarios, use the suite command", o.file, len(s.Scenarios))
		}
		cfg = s.Scenarios[0]
	} else {
		preset, ok := inversion.Presets()[strings.ToLower(o.preset)]
		if !ok {
			return cfg, fmt.Errorf("%w: unknown preset %q", inversion.ErrInvalidConfig, o.preset)
		}
		cfg = preset()
	}
	if o.mediums >= 0 {
		cfg.MediumCount = o.mediums
	}
	if o.flood > 0 {
		cfg.FloodInterval = o.flood
	}
	if o.settle >= 0 {
		cfg.SettleInterval = o.settle
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

func schedulerFactory(name string) (inversion.SchedulerFactory, error) {
	switch name {
	case "sim", "":
		return inversion.SimulatedScheduler, nil
	case "os":
		return func(inversion.ScenarioConfig) (inversion.Scheduler, error) {
			return ossched.New(), nil
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown scheduler %q", inversion.ErrInvalidConfig, name)
}

func runScenario(ctx context.Context, out io.Writer, cfg inversion.ScenarioConfig, factory inversion.SchedulerFactory, opts *runOptions) error {
	sched, err := factory(cfg)
	if err != nil {
		return err
	}

	var sinks []inversion.EventSink
	var col *metrics.Collector
	if opts.metrics {
		col = metrics.New(nil)
		sinks = append(sinks, col)
	}
	if opts.events {
		sinks = append(sinks, inversion.NewLogSink(inversion.Log))
	}
	var stream *inversion.Stream
	if opts.watch {
		stream = inversion.NewStream(inversion.Max)
		sinks = append(sinks, stream)
	}

	o, err := inversion.NewOrchestrator(cfg, sched, inversion.WithSinks(sinks...))
	if err != nil {
		return err
	}

	var res *inversion.Result
	if opts.watch {
		// the live view owns the terminal, keep log lines out of it
		inversion.Log.SetOutput(io.Discard)
		defer inversion.Log.SetOutput(os.Stderr)
		res, err = tui.Run(cfg.Name, stream, o.ForceTerminate, func() (*inversion.Result, error) {
			return o.Run(ctx)
		})
	} else {
		res, err = o.Run(ctx)
		if res != nil {
			fmt.Fprintln(out, report.Result(res))
		}
	}
	if err != nil {
		return err
	}
	if col != nil {
		if err := col.WriteText(out); err != nil {
			return err
		}
	}
	return nil
}
