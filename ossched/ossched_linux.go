//go:build linux

package ossched

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	inversion "github.com/seoyhaein/inversion-go"
)

// spinCheck is how often a busy Compute looks at its context.
const spinCheck = time.Millisecond

// Scheduler applies SCHED_FIFO priorities and CPU affinity to the calling
// threads.
type Scheduler struct {
	mu      sync.Mutex
	threads map[string]int
	log     *logrus.Entry
}

func New() *Scheduler {
	return &Scheduler{
		threads: make(map[string]int),
		log:     inversion.Log.WithField("scheduler", "os"),
	}
}

// Bind locks the calling goroutine to its OS thread and records the thread
// id for h. The goroutine must not unlock: when it returns while still
// locked, the runtime discards the real-time thread instead of reusing it.
func (s *Scheduler) Bind(h *inversion.Handle) (inversion.Executor, error) {
	runtime.LockOSThread()
	tid := unix.Gettid()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[h.ID]; ok {
		return nil, fmt.Errorf("actor %s already bound", h.ID)
	}
	s.threads[h.ID] = tid
	s.log.Debugf("%s bound to tid %d", h.ID, tid)
	return &thread{tid: tid}, nil
}

func (s *Scheduler) tid(h *inversion.Handle) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid, ok := s.threads[h.ID]
	if !ok {
		return 0, inversion.ErrNotBound
	}
	return tid, nil
}

func (s *Scheduler) SetPriority(h *inversion.Handle, level inversion.Priority) error {
	tid, err := s.tid(h)
	if err != nil {
		return err
	}
	if !level.Valid() {
		return fmt.Errorf("%w: priority %d outside SCHED_FIFO range", inversion.ErrSchedulingDenied, level)
	}
	attr := &unix.SchedAttr{
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(level),
	}
	if err := unix.SchedSetAttr(tid, attr, 0); err != nil {
		if errors.Is(err, unix.EPERM) {
			return fmt.Errorf("%w: SCHED_FIFO %d for tid %d: %v", inversion.ErrSchedulingDenied, level, tid, err)
		}
		return fmt.Errorf("%w: sched_setattr tid %d: %v", inversion.ErrSchedulingDenied, tid, err)
	}
	s.log.Debugf("%s (tid %d) set to SCHED_FIFO %d", h.ID, tid, level)
	return nil
}

func (s *Scheduler) PinAffinity(h *inversion.Handle, cpu int) error {
	tid, err := s.tid(h)
	if err != nil {
		return err
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(tid, &set); err != nil {
		return fmt.Errorf("%w: pin tid %d to cpu %d: %v", inversion.ErrAffinity, tid, cpu, err)
	}
	s.log.Debugf("%s (tid %d) pinned to cpu %d", h.ID, tid, cpu)
	return nil
}

// thread is an Executor on a locked OS thread. The kernel does the
// scheduling, so Suspend and Exit have nothing to hand back.
type thread struct {
	tid int
}

// Compute spins on the CPU for d.
func (t *thread) Compute(ctx context.Context, d time.Duration) error {
	end := time.Now().Add(d)
	next := time.Now().Add(spinCheck)
	for {
		now := time.Now()
		if !now.Before(end) {
			return nil
		}
		if !now.Before(next) {
			if err := ctx.Err(); err != nil {
				return err
			}
			next = now.Add(spinCheck)
		}
	}
}

func (t *thread) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *thread) Suspend() {}

func (t *thread) Exit() {}
