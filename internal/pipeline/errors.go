package pipeline

import (
	"errors"
	"fmt"

	"github.com/sorcerai/storm-mcp/internal/swarm"
)

var (
	ErrUnknownSwarm = errors.New("unknown swarm")
	ErrSwarmStarted = errors.New("swarm already started")
)

// PhaseError reports the phase that aborted a run and the task that failed it.
type PhaseError struct {
	Phase  swarm.Phase
	TaskID string
	Err    error
}

func (e *PhaseError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("phase %s: task %s: %v", e.Phase, e.TaskID, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

type taskError struct {
	taskID string
	err    error
}

func (e *taskError) Error() string { return e.err.Error() }
func (e *taskError) Unwrap() error { return e.err }

func phaseError(phase swarm.Phase, err error) error {
	pe := &PhaseError{Phase: phase, Err: err}
	var te *taskError
	if errors.As(err, &te) {
		pe.TaskID = te.taskID
		pe.Err = te.err
	}
	return pe
}
