// Package ossched binds actors to native threads scheduled by the kernel.
//
// On Linux every actor goroutine is locked to its OS thread, the thread is
// moved to SCHED_FIFO at the actor's priority and pinned to one CPU. This is
// the real-world counterpart of the simulated Processor and needs
// CAP_SYS_NICE (or a sufficient RLIMIT_RTPRIO); without it SetPriority
// returns inversion.ErrSchedulingDenied and the scenario does not start.
//
// The Go runtime's own threads are not pinned, but busy SCHED_FIFO threads on
// a shared CPU can still delay garbage collection and timers. Keep windows
// short and prefer the simulated Processor for tests.
package ossched
