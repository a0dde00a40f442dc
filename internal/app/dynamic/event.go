package dynamic

// TotalSteps is the number of progress units a solve reports.
const TotalSteps = 100

// EventType represents a solver event type.
type EventType int

const (
	EventTotalSteps           EventType = iota // Progress range announced (Value = TotalSteps)
	EventIncrementProgress                     // One progress unit reached (Value = units so far)
	EventEndProgressOperation                  // Progress finished, emitted once per run
	EventCompleted                             // Run finished without abort
	EventFailed                                // Run was aborted
	EventDone                                  // Solver may be discarded
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTotalSteps:
		return "total_steps"
	case EventIncrementProgress:
		return "increment_progress"
	case EventEndProgressOperation:
		return "end_progress_operation"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the event is emitted after the search ended.
func (e EventType) IsTerminal() bool {
	return e >= EventEndProgressOperation
}

// Event represents a solver event.
type Event struct {
	SolverID string
	Type     EventType
	Value    int
}
