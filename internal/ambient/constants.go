// Package ambient plays background mood and breathing-guide tones.
package ambient

import "time"

// Tone generation constants
const (
	// Samples per write to the output sink
	FrameSize = 512

	// Carrier frequencies for the breathing guide, in Hz
	InhaleFreq = 196.0
	ExhaleFreq = 146.83

	// Seconds allowed per breathing phase
	MinPhaseSeconds = 1
	MaxPhaseSeconds = 60
)

// DefaultBeat paces an unrecognized emotion's mood loop.
const DefaultBeat = 3 * time.Second
