package model

// State represents the lifecycle state of a review job. These values
// are persisted as-is by every store backend.
//
// Centralizing these here avoids scattering string
// literals like "pending" or "completed" across
// packages.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateCompleted, StateFailed:
		return true
	}
	return false
}

// Status is a job's state plus the failure reason when State is failed.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func Pending() Status    { return Status{State: StatePending} }
func Processing() Status { return Status{State: StateProcessing} }
func Completed() Status  { return Status{State: StateCompleted} }

func Failed(reason string) Status {
	return Status{State: StateFailed, Reason: reason}
}

func (s Status) String() string {
	if s.State == StateFailed && s.Reason != "" {
		return string(s.State) + ": " + s.Reason
	}
	return string(s.State)
}
