package session

import "time"

// Session processing constants
const (
	// Silence detection defaults: a listening phase ends after sustained
	// quiet below the threshold for the full window.
	DefaultSilenceThreshold = 15.0
	DefaultSilenceWindow    = 2000 * time.Millisecond

	// Sampling cadence of the silence detector (frame-rate equivalent)
	DefaultTickInterval = 16 * time.Millisecond

	// Float32 byte size for PCM encoding
	Float32ByteSize = 4

	// Samples handed to the output stream per playback write
	DefaultPlaybackFrames = 512
)
