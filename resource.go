package inversion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seoyhaein/inversion-go/debugonly"
	"github.com/seoyhaein/inversion-go/syncutil"
)

// Policy selects how a SignalingResource treats its waiters.
type Policy int

const (
	// PolicyBaseline is plain mutual exclusion with no priority awareness.
	PolicyBaseline Policy = iota
	// PolicyMitigated publishes an urgent-waiter signal that cooperating
	// actors use to yield the processor to the holder.
	PolicyMitigated
)

var (
	strPolicyMap = map[Policy]string{
		PolicyBaseline:  "baseline",
		PolicyMitigated: "mitigated",
	}

	typePolicyMap = map[string]Policy{
		"baseline":  PolicyBaseline,
		"mitigated": PolicyMitigated,
	}
)

func (p Policy) String() string {
	if s, ok := strPolicyMap[p]; ok {
		return s
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy converts "baseline" or "mitigated" into a Policy.
func ParsePolicy(s string) (Policy, error) {
	p, ok := typePolicyMap[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return PolicyBaseline, fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, s)
	}
	return p, nil
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Waiter is one blocked acquirer.
type Waiter struct {
	ID       string
	Priority Priority
	Since    time.Time
}

type waiter struct {
	Waiter
	granted chan struct{}
}

// ResourceOption configures a SignalingResource.
type ResourceOption func(*SignalingResource)

// WithUrgentThreshold sets the lowest waiter priority that counts as urgent.
func WithUrgentThreshold(p Priority) ResourceOption {
	return func(r *SignalingResource) {
		r.threshold = p
	}
}

// WithResourceName names the resource in log output.
func WithResourceName(name string) ResourceOption {
	return func(r *SignalingResource) {
		r.name = name
	}
}

// SignalingResource is an exclusive lock whose waiters are served in FIFO
// order regardless of priority.
//
// Under PolicyMitigated it also maintains an urgent-waiter signal: true iff a
// waiter at or above the urgent threshold is blocked. The signal is advisory.
// It does not raise the holder's scheduling priority the way kernel priority
// inheritance would, and nothing forces other actors to honour it. The wait
// of an urgent actor is therefore bounded only while every actor that could
// starve the holder observes the signal and yields.
type SignalingResource struct {
	mu syncutil.Mutex

	name      string
	policy    Policy
	threshold Priority

	owner   string
	waiters []*waiter
	urgent  *urgentSignal

	// never is returned by UrgentChanged under the baseline policy.
	never chan struct{}

	log *logrus.Entry
}

// NewSignalingResource returns a free resource using policy p.
func NewSignalingResource(p Policy, opts ...ResourceOption) *SignalingResource {
	r := &SignalingResource{
		name:      "shared",
		policy:    p,
		threshold: PriorityHigh,
		urgent:    newUrgentSignal(),
		never:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = Log.WithFields(logrus.Fields{
		"resource": r.name,
		"policy":   r.policy.String(),
	})
	return r
}

func (r *SignalingResource) Policy() Policy {
	return r.policy
}

// TryAcquire takes the resource if it is free and reports whether it did.
func (r *SignalingResource) TryAcquire(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != "" {
		return false
	}
	r.owner = h.ID
	r.log.Debugf("acquired by %s", h)
	return true
}

// Acquire takes the resource, waiting in FIFO order while another actor
// holds it. Only ctx cancellation ends the wait early; if ownership was
// handed over concurrently with the cancellation the handover wins and
// Acquire returns nil.
func (r *SignalingResource) Acquire(ctx context.Context, h *Handle) error {
	r.mu.Lock()
	switch r.owner {
	case "":
		r.owner = h.ID
		r.mu.Unlock()
		r.log.Debugf("acquired by %s", h)
		return nil
	case h.ID:
		r.mu.Unlock()
		return ErrAlreadyOwner
	}

	w := &waiter{
		Waiter:  Waiter{ID: h.ID, Priority: h.Priority, Since: time.Now()},
		granted: make(chan struct{}),
	}
	r.waiters = append(r.waiters, w)
	if r.policy == PolicyMitigated && h.Priority >= r.threshold {
		if r.urgent.set(true) {
			r.log.Debugf("urgent waiter %s, signal raised", h)
		}
	}
	r.log.Debugf("%s queued behind %s (%d waiting)", h, r.owner, len(r.waiters))
	r.mu.Unlock()

	select {
	case <-w.granted:
		return nil
	case <-ctx.Done():
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner == h.ID {
		return nil
	}
	r.removeWaiter(w)
	r.recomputeUrgent()
	r.log.Debugf("%s abandoned its wait", h)
	return ctx.Err()
}

// Release hands the resource to the oldest waiter, or frees it.
func (r *SignalingResource) Release(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.owner != h.ID {
		r.log.Errorf("release by %s while owner is %q", h, r.owner)
		if debugonly.Enabled() {
			debugonly.Trap(r.log)
		}
		return fmt.Errorf("%w: %s (owner %q)", ErrNotOwner, h.ID, r.owner)
	}

	if len(r.waiters) == 0 {
		r.owner = ""
		r.log.Debugf("released by %s, now free", h)
		return nil
	}

	next := r.waiters[0]
	r.waiters[0] = nil
	r.waiters = r.waiters[1:]
	r.owner = next.ID
	r.recomputeUrgent()
	close(next.granted)
	r.log.Debugf("released by %s, handed to %s after %s", h, next.ID, time.Since(next.Since))
	return nil
}

// IsUrgentWaiting reports whether an urgent actor is blocked on the resource.
// It never blocks and is always false under PolicyBaseline.
func (r *SignalingResource) IsUrgentWaiting() bool {
	return r.urgent.load()
}

// UrgentChanged returns a channel that is closed the next time the urgent
// signal flips. Read the channel before checking IsUrgentWaiting to avoid
// missing a flip.
func (r *SignalingResource) UrgentChanged() <-chan struct{} {
	if r.policy != PolicyMitigated {
		return r.never
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.urgent.changed()
}

// Owner returns the current holder, if any.
func (r *SignalingResource) Owner() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner, r.owner != ""
}

// Waiters returns the blocked acquirers in wake order.
func (r *SignalingResource) Waiters() []Waiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Waiter, 0, len(r.waiters))
	for _, w := range r.waiters {
		out = append(out, w.Waiter)
	}
	return out
}

func (r *SignalingResource) removeWaiter(target *waiter) {
	for i, w := range r.waiters {
		if w == target {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}

// recomputeUrgent must be called with mu held.
func (r *SignalingResource) recomputeUrgent() {
	if r.policy != PolicyMitigated {
		return
	}
	urgent := false
	for _, w := range r.waiters {
		if w.Priority >= r.threshold {
			urgent = true
			break
		}
	}
	if r.urgent.set(urgent) {
		r.log.Debugf("urgent signal now %t", urgent)
	}
}
