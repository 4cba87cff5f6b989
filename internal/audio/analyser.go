package audio

import (
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

// Analyser keeps a rolling window of the most recent samples and exposes a
// byte-scaled frequency-domain snapshot of it. It is fed by the microphone
// during the listening phase and by the playback writer during the speaking
// phase; which source feeds it is mediated by the session's phase
// transitions, never by the analyser itself.
type Analyser struct {
	mu     sync.Mutex
	window [FFTSize]float64
	pos    int
	fed    bool
}

// NewAnalyser creates an empty analyser.
func NewAnalyser() *Analyser {
	return &Analyser{}
}

// Feed appends samples to the rolling window.
func (a *Analyser) Feed(samples []float32) {
	if len(samples) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range samples {
		a.window[a.pos] = float64(s)
		a.pos = (a.pos + 1) % FFTSize
	}
	a.fed = true
}

// Reset clears the window. Called at the start of a listening phase so a
// new cycle never sees the previous cycle's audio.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = [FFTSize]float64{}
	a.pos = 0
	a.fed = false
}

// Spectrum returns SpectrumBins magnitude values scaled to 0-255, and false
// when no audio has been fed since the last reset. An unavailable spectrum
// is not an error; silence ticks simply skip it.
func (a *Analyser) Spectrum() ([]byte, bool) {
	a.mu.Lock()
	if !a.fed {
		a.mu.Unlock()
		return nil, false
	}

	// Unroll the ring so samples are in arrival order.
	samples := make([]float64, FFTSize)
	for i := 0; i < FFTSize; i++ {
		samples[i] = a.window[(a.pos+i)%FFTSize]
	}
	a.mu.Unlock()

	coeffs := fft.FFTReal(samples)
	bins := make([]byte, SpectrumBins)
	for i := 0; i < SpectrumBins; i++ {
		// Normalize so a full-scale sine lands near SpectrumMax.
		mag := cmplx.Abs(coeffs[i]) * 2 / FFTSize
		v := mag * SpectrumMax
		if v > SpectrumMax {
			v = SpectrumMax
		}
		bins[i] = byte(v)
	}
	return bins, true
}

// MeanMagnitude averages a spectrum snapshot. Helper for amplitude-level
// decisions like silence detection.
func MeanMagnitude(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bins {
		sum += float64(b)
	}
	return sum / float64(len(bins))
}
