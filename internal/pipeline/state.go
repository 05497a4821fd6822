package pipeline

// State is the lifecycle position of a run.
type State int32

const (
	StateInitialized State = iota
	StateGridding
	StateFetchingMisses
	StateExpanding
	StateAggregating
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateGridding:
		return "gridding"
	case StateFetchingMisses:
		return "fetching_misses"
	case StateExpanding:
		return "expanding"
	case StateAggregating:
		return "aggregating"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
