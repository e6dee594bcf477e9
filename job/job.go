// Package job sequences pick and place operations for a set of boards on a
// machine.
package job

import (
	"fmt"

	"github.com/mastercactapus/gpnp/pcb"
)

// Job is an ordered list of boards to populate.
type Job struct {
	Name   string
	Boards []*pcb.BoardLocation
}

// State is the run state of an Engine.
type State int32

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// FailurePolicy decides what happens to a placement after one of its
// steps fails.
type FailurePolicy int

const (
	// ContinueStep reports the failure and carries on with the next step.
	ContinueStep FailurePolicy = iota

	// SkipPlacement reports the failure, raises the head to safe Z and
	// moves on to the next placement.
	SkipPlacement
)

func (p FailurePolicy) String() string {
	switch p {
	case ContinueStep:
		return "continue"
	case SkipPlacement:
		return "skip"
	}
	return fmt.Sprintf("FailurePolicy(%d)", int(p))
}

// ParseFailurePolicy accepts the names returned by FailurePolicy.String.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "continue":
		return ContinueStep, nil
	case "skip":
		return SkipPlacement, nil
	}
	return 0, fmt.Errorf("unknown failure policy %q", s)
}
