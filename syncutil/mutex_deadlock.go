//go:build deadlock

// Package syncutil provides the mutex used by the signaling resource, with
// optional deadlock detection. Build with -tags deadlock to enable it.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = true

func init() {
	// Held-forever resources are an expected outcome; only the internal
	// bookkeeping mutex is watched, and it is never held across a wait.
	deadlock.Opts.DeadlockTimeout = 5 * time.Second
}

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	deadlock.Mutex
}
