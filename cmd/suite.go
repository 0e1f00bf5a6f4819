package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	inversion "github.com/seoyhaein/inversion-go"
	"github.com/seoyhaein/inversion-go/metrics"
	"github.com/seoyhaein/inversion-go/report"
)

type suiteOptions struct {
	file      string
	scheduler string
	trials    int
	metrics   bool
	verbose   bool
}

func newSuiteCommand() *cobra.Command {
	opts := &suiteOptions{}
	c := &cobra.Command{
		Use:   "suite",
		Short: "Run every scenario of a file, several trials each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := inversion.LoadSuiteFile(opts.file)
			if err != nil {
				return err
			}
			if opts.trials > 0 {
				s.Trials = opts.trials
			}
			if s.NewScheduler, err = schedulerFactory(opts.scheduler); err != nil {
				return err
			}
			var col *metrics.Collector
			if opts.metrics {
				col = metrics.New(nil)
				s.Sinks = append(s.Sinks, col)
			}

			sr, err := s.Run(cmd.Context())
			out := cmd.OutOrStdout()
			if sr != nil {
				if opts.verbose {
					for _, r := range sr.Results {
						fmt.Fprintln(out, report.Result(r))
					}
				}
				fmt.Fprintln(out, report.Suite(sr))
			}
			if err != nil {
				return err
			}
			if col != nil {
				return col.WriteText(out)
			}
			return nil
		},
	}
	f := c.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "suite YAML file")
	f.StringVar(&opts.scheduler, "scheduler", "sim", "scheduler backend (sim, os)")
	f.IntVar(&opts.trials, "trials", 0, "override the number of trials")
	f.BoolVar(&opts.metrics, "metrics", false, "print Prometheus metrics after the suite")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print every run, not only the summary")
	_ = c.MarkFlagRequired("file")
	return c
}
