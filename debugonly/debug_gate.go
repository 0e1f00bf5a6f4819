//go:build debugger

package debugonly

import (
	"runtime"

	"github.com/sirupsen/logrus"
)

// Trap stops an attached debugger at a locking protocol violation that the
// caller has already logged. Never call runtime.Breakpoint outside this
// package: without a debugger it kills the process.
func Trap(log logrus.FieldLogger) {
	log.Warn("stopping at debugger breakpoint")
	runtime.Breakpoint()
}

func Enabled() bool {
	return true
}
