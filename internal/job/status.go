package job

// Status is where a Job sits in its lifecycle. Queued is the only entry
// point; Completed, Failed, and Deleted are terminal and never reverse.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusAssembling  Status = "assembling"
	StatusChecking    Status = "checking"
	StatusRepairing   Status = "repairing"
	StatusExtracting  Status = "extracting"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusDeleted     Status = "deleted"
)

// terminal reports whether a status is absorbing: once reached a Job never
// leaves it.
func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusDeleted:
		return true
	default:
		return false
	}
}

// validTransitions enumerates every legal Status -> Status edge. A Job can
// always be forced to Deleted or Failed from any non-terminal state
// (handled separately in CanTransition), so those aren't listed per-state.
var validTransitions = map[Status][]Status{
	StatusQueued:      {StatusDownloading},
	StatusDownloading: {StatusPaused, StatusAssembling},
	StatusPaused:      {StatusDownloading},
	StatusAssembling:  {StatusChecking, StatusCompleted},
	StatusChecking:    {StatusRepairing, StatusExtracting, StatusCompleted},
	StatusRepairing:   {StatusChecking, StatusExtracting, StatusCompleted},
	StatusExtracting:  {StatusCompleted},
}

// CanTransition reports whether moving from `from` to `to` is a legal
// state-machine edge. Failed and Deleted are reachable from any
// non-terminal state (an abort or a user delete can happen at any point);
// every other edge must appear in validTransitions.
func CanTransition(from, to Status) bool {
	if from.terminal() {
		return false
	}
	if to == StatusFailed || to == StatusDeleted {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
