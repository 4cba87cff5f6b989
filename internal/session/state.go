// Package session implements the voice session lifecycle: the state
// machine, silence detection, capture buffering, and playback sequencing.
package session

// State is the session lifecycle state. Exactly one value is active at any
// time and the Machine is its only writer.
type State uint32

const (
	Idle       State = iota // waiting for a start intent
	Listening               // capturing the user's utterance
	Processing              // analyze/synthesize round trip in flight
	Speaking                // playing the synthesized response
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}
