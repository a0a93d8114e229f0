package session

// State is the lifecycle state of a [Session].
type State int32

const (
	// Idle is the state of a new session.
	Idle State = iota

	// Opening means the microphone is being acquired, the URL signed and the
	// socket dialled.
	Opening

	// Streaming means audio frames are being forwarded.
	Streaming

	// Draining means stop was requested: the end-of-stream sentinel is sent
	// and remaining results are still received.
	Draining

	// Closed is the terminal state after a normal end of stream.
	Closed

	// Failed is the terminal state after an error.
	Failed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opening:
		return "opening"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Closed or Failed.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}
