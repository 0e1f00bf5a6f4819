// Package cmd holds the inversion command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	inversion "github.com/seoyhaein/inversion-go"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "inversion",
		Short:         "Demonstrate priority inversion and its cooperative mitigation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return configureLog(opts, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")

	root.AddCommand(newRunCommand(), newSuiteCommand(), newPresetsCommand())
	return root
}

func configureLog(opts *rootOptions, w io.Writer) error {
	lvl, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	inversion.Log.SetLevel(lvl)
	inversion.Log.SetOutput(w)
	switch opts.logFormat {
	case "text":
		inversion.Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		inversion.Log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", opts.logFormat)
	}
	return nil
}

// Execute runs the command line and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		inversion.Log.Error(err)
		stop()
		os.Exit(1)
	}
}
