package job

import (
	"errors"
	"fmt"
)

var (
	ErrNoJob         = errors.New("no job loaded")
	ErrNotStopped    = errors.New("job is not stopped")
	ErrNotRunning    = errors.New("job is not running")
	ErrNotPaused     = errors.New("job is not paused")
	ErrRunInProgress = errors.New("previous job run has not exited")
)

// ErrorKind classifies an error reported while running a job.
type ErrorKind int

const (
	MachineHoming ErrorKind = iota
	MachineMovement
	MachineRejectedJob
	FeederError
	HeadError
	PickError
	PlaceError
)

func (k ErrorKind) String() string {
	switch k {
	case MachineHoming:
		return "MachineHomingError"
	case MachineMovement:
		return "MachineMovementError"
	case MachineRejectedJob:
		return "MachineRejectedJobError"
	case FeederError:
		return "FeederError"
	case HeadError:
		return "HeadError"
	case PickError:
		return "PickError"
	case PlaceError:
		return "PlaceError"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a failure reported by the engine. Board and Placement are empty
// when the error is not tied to one.
type Error struct {
	Kind        ErrorKind
	Description string
	Board       string
	Placement   string
	Err         error
}

func (e *Error) Error() string {
	s := e.Kind.String() + ": " + e.Description
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }
