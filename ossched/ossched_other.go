//go:build !linux

package ossched

import (
	"fmt"
	"runtime"

	inversion "github.com/seoyhaein/inversion-go"
)

// Scheduler refuses every request on platforms without SCHED_FIFO support
// wired in, so a scenario aborts instead of running at default priority.
type Scheduler struct{}

func New() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Bind(h *inversion.Handle) (inversion.Executor, error) {
	return nil, fmt.Errorf("%w: native real-time scheduling not supported on %s", inversion.ErrSchedulingDenied, runtime.GOOS)
}

func (s *Scheduler) SetPriority(h *inversion.Handle, level inversion.Priority) error {
	return inversion.ErrNotBound
}

func (s *Scheduler) PinAffinity(h *inversion.Handle, cpu int) error {
	return inversion.ErrNotBound
}
