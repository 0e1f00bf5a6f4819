package inversion

import (
	"context"
	"fmt"
	"time"
)

// Unpinned is the Handle.Affinity value of an actor with no affinity.
const Unpinned = -1

// Handle identifies one actor. It is owned by the Orchestrator; the execution
// context behind it belongs to the Scheduler between Bind and Exit.
type Handle struct {
	ID       string
	Role     Role
	Ordinal  int
	Priority Priority
	Affinity int
}

func newHandle(role Role, ordinal int, level Priority, unit int) *Handle {
	id := role.String()
	if role == RoleMedium {
		id = fmt.Sprintf("%s-%d", role, ordinal)
	}
	return &Handle{
		ID:       id,
		Role:     role,
		Ordinal:  ordinal,
		Priority: level,
		Affinity: unit,
	}
}

func (h *Handle) String() string {
	return fmt.Sprintf("%s(prio=%d)", h.ID, h.Priority)
}

// Scheduler is a fixed-priority preemptive scheduling capability. Among all
// runnable actors on an execution unit the highest priority runs; a higher
// priority actor becoming runnable preempts a lower one. Equal priorities
// share the unit round-robin.
//
// Bind must be called from the goroutine that will run the actor, before
// SetPriority and PinAffinity.
type Scheduler interface {
	Bind(h *Handle) (Executor, error)
	SetPriority(h *Handle, level Priority) error
	PinAffinity(h *Handle, unit int) error
}

// Executor is the bound execution context of one actor.
type Executor interface {
	// Compute consumes d of processor time. The actor is runnable throughout
	// and may be preempted any number of times.
	Compute(ctx context.Context, d time.Duration) error
	// Sleep suspends the actor for d. It is not runnable while asleep.
	Sleep(ctx context.Context, d time.Duration) error
	// Suspend marks the actor not runnable ahead of a blocking wait. The next
	// Compute makes it runnable again.
	Suspend()
	// Exit gives the execution context back.
	Exit()
}
