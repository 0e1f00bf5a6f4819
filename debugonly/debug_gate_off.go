//go:build !debugger

// Package debugonly traps locking protocol violations under a debugger.
// Build with -tags debugger to enable it; otherwise every call is a no-op.
package debugonly

import "github.com/sirupsen/logrus"

func Trap(logrus.FieldLogger) {}

func Enabled() bool {
	return false
}
