package session

import (
	"context"
	"sync"
	"time"

	"github.com/sageorb/platform/internal/audio"
)

// Sampler provides the frequency-domain amplitude snapshot the detector
// polls. The shared device analyser implements it.
type Sampler interface {
	Spectrum() ([]byte, bool)
}

// SilenceDetector decides when a listening phase should end due to
// sustained quiet. It samples the spectrum at frame cadence; any tick whose
// mean magnitude exceeds the threshold pushes the quiet window forward, and
// once the window elapses uninterrupted the detector signals exactly once
// and stops ticking.
//
// The detector is fully cancelable. A signal that races with cancellation
// can still be delivered to the callback, so the receiver guards with the
// cycle ID: once a phase has moved on, a late signal is a no-op. The
// explicit stop intent therefore always pre-empts a pending silence signal.
type SilenceDetector struct {
	sampler   Sampler
	threshold float64
	window    time.Duration
	interval  time.Duration
	onSilence func()
	now       func() time.Time

	mu        sync.Mutex
	lastSound time.Time // last moment the mean magnitude exceeded the threshold
	fired     bool
	cancelled bool
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewSilenceDetector creates a detector for one listening phase. The quiet
// window starts at construction time.
func NewSilenceDetector(sampler Sampler, threshold float64, window, interval time.Duration, onSilence func()) *SilenceDetector {
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	if window <= 0 {
		window = DefaultSilenceWindow
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	d := &SilenceDetector{
		sampler:   sampler,
		threshold: threshold,
		window:    window,
		interval:  interval,
		onSilence: onSilence,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	d.lastSound = d.now()
	return d
}

// Run polls until silence fires, the detector is cancelled, or ctx ends.
// Meant to run on its own goroutine, one per listening phase.
func (d *SilenceDetector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case now := <-ticker.C:
			if d.tick(now) {
				d.onSilence()
				return
			}
		}
	}
}

// tick evaluates one sampling step and reports whether the silence signal
// should fire. Unavailable spectrum snapshots are skipped entirely; they
// neither reset nor advance the quiet window.
func (d *SilenceDetector) tick(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fired || d.cancelled {
		return false
	}

	bins, ok := d.sampler.Spectrum()
	if !ok {
		return false
	}

	if audio.MeanMagnitude(bins) > d.threshold {
		// Keep the window start monotonically non-decreasing.
		if now.After(d.lastSound) {
			d.lastSound = now
		}
		return false
	}

	if now.Sub(d.lastSound) >= d.window {
		d.fired = true
		return true
	}
	return false
}

// Cancel deschedules the polling loop and discards the pending window.
// Idempotent; safe to call from any goroutine.
func (d *SilenceDetector) Cancel() {
	d.mu.Lock()
	d.cancelled = true
	d.mu.Unlock()
	d.stopOnce.Do(func() { close(d.stopCh) })
}
