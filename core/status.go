package core

// RunStatus is the terminal state of a conductor run.
type RunStatus string

const (
	// StatusCompleted means the run took every allowed turn.
	StatusCompleted RunStatus = "completed"
	// StatusStoppedMissingAgent means an agent id in the rotation was unknown.
	StatusStoppedMissingAgent RunStatus = "stoppedMissingAgent"
	// StatusStoppedNoFurtherAction means an agent answered without requesting
	// a tool call while the stop-when-idle policy was active.
	StatusStoppedNoFurtherAction RunStatus = "stoppedNoFurtherAction"
	// StatusCancelled means the caller's context ended before the run finished.
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether s is a known terminal status.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStoppedMissingAgent, StatusStoppedNoFurtherAction, StatusCancelled:
		return true
	default:
		return false
	}
}
