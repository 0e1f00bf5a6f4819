package inversion

import (
	"fmt"
	"strings"
)

// Priority is a fixed scheduling level. Higher values are more urgent.
// The range mirrors SCHED_FIFO so the same value can be handed to the kernel.
type Priority int

const (
	PriorityMin Priority = 1
	PriorityMax Priority = 99

	PriorityLow    Priority = 10
	PriorityMedium Priority = 50
	PriorityHigh   Priority = 90
)

func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Priorities assigns one level per role for the lifetime of a scenario.
type Priorities struct {
	Low    Priority `yaml:"low"`
	Medium Priority `yaml:"medium"`
	High   Priority `yaml:"high"`
}

// DefaultPriorities returns the levels used by the preset scenarios.
func DefaultPriorities() Priorities {
	return Priorities{Low: PriorityLow, Medium: PriorityMedium, High: PriorityHigh}
}

// Of returns the level assigned to role r.
func (ps Priorities) Of(r Role) Priority {
	switch r {
	case RoleLow:
		return ps.Low
	case RoleMedium:
		return ps.Medium
	case RoleHigh:
		return ps.High
	}
	return 0
}

// Validate checks Low < Medium < High and that every level is schedulable.
func (ps Priorities) Validate() error {
	for _, r := range Roles() {
		if p := ps.Of(r); !p.Valid() {
			return fmt.Errorf("%w: %s priority %d outside [%d, %d]", ErrInvalidConfig, r, p, PriorityMin, PriorityMax)
		}
	}
	if !(ps.Low < ps.Medium && ps.Medium < ps.High) {
		return fmt.Errorf("%w: priorities must satisfy low < medium < high, got %d/%d/%d",
			ErrInvalidConfig, ps.Low, ps.Medium, ps.High)
	}
	return nil
}

// Role identifies which state machine an actor runs.
type Role int

const (
	RoleLow Role = iota
	RoleMedium
	RoleHigh
)

var (
	strRoleMap = map[Role]string{
		RoleLow:    "low",
		RoleMedium: "medium",
		RoleHigh:   "high",
	}

	typeRoleMap = map[string]Role{
		"low":    RoleLow,
		"medium": RoleMedium,
		"high":   RoleHigh,
	}
)

// Roles returns every role in ascending priority order.
func Roles() []Role {
	return []Role{RoleLow, RoleMedium, RoleHigh}
}

func (r Role) String() string {
	if s, ok := strRoleMap[r]; ok {
		return s
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, ok := typeRoleMap[strings.ToLower(strings.TrimSpace(string(b)))]
	if !ok {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidConfig, string(b))
	}
	*r = v
	return nil
}
