package audio

import (
	"math"
	"testing"
)

func TestSpectrumUnavailableBeforeFeed(t *testing.T) {
	a := NewAnalyser()

	if _, ok := a.Spectrum(); ok {
		t.Error("spectrum should be unavailable before any audio is fed")
	}
}

func TestSpectrumBinCount(t *testing.T) {
	a := NewAnalyser()
	a.Feed(make([]float32, FFTSize))

	bins, ok := a.Spectrum()
	if !ok {
		t.Fatal("spectrum should be available after feed")
	}
	if len(bins) != SpectrumBins {
		t.Errorf("len(bins) = %d, want %d", len(bins), SpectrumBins)
	}
}

func TestSpectrumSilenceIsQuiet(t *testing.T) {
	a := NewAnalyser()
	a.Feed(make([]float32, FFTSize)) // all zeros

	bins, _ := a.Spectrum()
	if mean := MeanMagnitude(bins); mean != 0 {
		t.Errorf("mean magnitude of silence = %f, want 0", mean)
	}
}

func TestSpectrumToneIsLoud(t *testing.T) {
	a := NewAnalyser()

	// Full-scale sine at bin 8 (8 cycles over the FFT window).
	samples := make([]float32, FFTSize)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 8 * float64(i) / FFTSize))
	}
	a.Feed(samples)

	bins, ok := a.Spectrum()
	if !ok {
		t.Fatal("spectrum should be available")
	}
	if bins[8] < 200 {
		t.Errorf("bins[8] = %d, want near full scale for a full-scale sine", bins[8])
	}
	if mean := MeanMagnitude(bins); mean < 1 {
		t.Errorf("mean magnitude = %f, want > 1 for an audible tone", mean)
	}
}

func TestResetClearsWindow(t *testing.T) {
	a := NewAnalyser()
	samples := make([]float32, FFTSize)
	for i := range samples {
		samples[i] = 0.5
	}
	a.Feed(samples)
	a.Reset()

	if _, ok := a.Spectrum(); ok {
		t.Error("spectrum should be unavailable after reset")
	}
}

func TestFeedRollsWindow(t *testing.T) {
	a := NewAnalyser()

	// Feed loud audio, then a full window of silence: the loud samples must
	// have rolled out entirely.
	loud := make([]float32, FFTSize)
	for i := range loud {
		loud[i] = 1.0
	}
	a.Feed(loud)
	a.Feed(make([]float32, FFTSize))

	bins, _ := a.Spectrum()
	if mean := MeanMagnitude(bins); mean != 0 {
		t.Errorf("mean magnitude = %f, want 0 after window rolled over", mean)
	}
}

func TestMeanMagnitudeEmpty(t *testing.T) {
	if got := MeanMagnitude(nil); got != 0 {
		t.Errorf("MeanMagnitude(nil) = %f, want 0", got)
	}
}

func TestFeedEmptyIsNoop(t *testing.T) {
	a := NewAnalyser()
	a.Feed(nil)

	if _, ok := a.Spectrum(); ok {
		t.Error("empty feed should not mark the analyser as fed")
	}
}
