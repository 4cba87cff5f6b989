// Package audio owns the shared audio device handle and spectrum analyser
package audio

// Device and analyser constants
const (
	// Frames per portaudio buffer (~32ms at 16kHz)
	FramesPerBuffer = 512

	// Real FFT window length
	FFTSize = 128

	// Frequency bins exposed by Spectrum (half the FFT window)
	SpectrumBins = 64

	// Full-scale spectrum magnitude (byte scale)
	SpectrumMax = 255
)
