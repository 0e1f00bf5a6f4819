package inversion

import (
	"errors"
	"fmt"
)

var (
	// ErrSchedulingDenied is returned when the environment refuses a real-time
	// priority. A scenario never continues at a default priority after it.
	ErrSchedulingDenied = errors.New("scheduling denied")

	// ErrAffinity is returned when an actor cannot be pinned to its execution unit.
	ErrAffinity = errors.New("affinity error")

	// ErrNotOwner is a protocol defect: release by an actor that does not hold
	// the resource. Correct actors never produce it.
	ErrNotOwner = errors.New("release by non-owner")

	// ErrAlreadyOwner is returned when the owner tries to acquire again.
	ErrAlreadyOwner = errors.New("resource already held by caller")

	ErrInvalidConfig = errors.New("invalid scenario config")

	// ErrNotBound is returned by a Scheduler asked to configure a handle that
	// was never bound to an execution context.
	ErrNotBound = errors.New("actor not bound to scheduler")
)

// Actor phases used in ActorError.
const (
	PhaseBind     = "bind"
	PhasePriority = "priority"
	PhaseAffinity = "affinity"
	PhaseAcquire  = "acquire"
	PhaseRelease  = "release"
)

// ActorError records which actor failed and in which phase.
type ActorError struct {
	ActorID string
	Phase   string
	Err     error
}

func (e *ActorError) Error() string {
	return fmt.Sprintf("actor %s failed in %s phase: %v", e.ActorID, e.Phase, e.Err)
}

func (e *ActorError) Unwrap() error {
	return e.Err
}
