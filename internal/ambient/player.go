package ambient

import (
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sageorb/platform/internal/audio"
	apperrors "github.com/sageorb/platform/internal/errors"
)

// Sink consumes generated PCM frames. The device's output stream
// implements it.
type Sink interface {
	Write(frames []float32) error
	Close()
}

// Opener opens a fresh sink per loop so an idle player holds no stream.
type Opener func() (Sink, error)

// DeviceOpener adapts the shared audio device. Ambient tones bypass the
// spectrum analyser so they never count as sound during listening.
func DeviceOpener(dev *audio.Device) Opener {
	return func() (Sink, error) {
		return dev.OpenOutput(false)
	}
}

// voicing shapes a mood loop: a carrier tone pulsed once per beat.
type voicing struct {
	freq float64
	beat time.Duration
	gain float64
}

var moodVoicings = map[string]voicing{
	"calm":     {196.00, 4 * time.Second, 0.12},
	"joy":      {329.63, 2 * time.Second, 0.15},
	"sadness":  {146.83, 5 * time.Second, 0.10},
	"anger":    {110.00, 3 * time.Second, 0.08},
	"fear":     {174.61, 4 * time.Second, 0.08},
	"surprise": {261.63, 2 * time.Second, 0.12},
}

var defaultVoicing = voicing{220.0, DefaultBeat, 0.10}

var errStopped = errors.New("ambient loop stopped")

// Player runs at most one mood loop and one breathing loop at a time, each
// on its own goroutine with its own cancel. Calls never block on audio;
// they only swap loops.
type Player struct {
	open       Opener
	sampleRate int
	log        *slog.Logger

	mu           sync.Mutex
	moodCancel   chan struct{}
	breathCancel chan struct{}
}

func NewPlayer(open Opener, sampleRate int, log *slog.Logger) *Player {
	return &Player{open: open, sampleRate: sampleRate, log: log}
}

// PlayMood starts the mood loop for an emotion, replacing any loop already
// playing. Unknown emotions fall back to a neutral voicing.
func (p *Player) PlayMood(emotion string) {
	v, ok := moodVoicings[strings.ToLower(strings.TrimSpace(emotion))]
	if !ok {
		v = defaultVoicing
	}

	cancel := p.swapMood()
	go p.moodLoop(v, cancel)
}

// StartBreathing starts a breathing-guide loop for a pattern such as
// "4-7-8" (inhale, hold, exhale seconds). Malformed patterns are logged
// and ignored; breathing guidance is never worth failing a session over.
func (p *Player) StartBreathing(pattern string) {
	phases, err := ParsePattern(pattern)
	if err != nil {
		p.log.Debug("ignoring breathing pattern", "pattern", pattern, "error", err)
		return
	}

	cancel := p.swapBreathing()
	go p.breathLoop(phases, cancel)
}

// Stop ends both loops. Idempotent.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.moodCancel != nil {
		close(p.moodCancel)
		p.moodCancel = nil
	}
	if p.breathCancel != nil {
		close(p.breathCancel)
		p.breathCancel = nil
	}
}

func (p *Player) swapMood() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.moodCancel != nil {
		close(p.moodCancel)
	}
	p.moodCancel = make(chan struct{})
	return p.moodCancel
}

func (p *Player) swapBreathing() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.breathCancel != nil {
		close(p.breathCancel)
	}
	p.breathCancel = make(chan struct{})
	return p.breathCancel
}

func (p *Player) moodLoop(v voicing, cancel chan struct{}) {
	sink, err := p.open()
	if err != nil {
		p.log.Debug("ambient output unavailable", "error", err)
		return
	}
	defer sink.Close()

	swell := v.beat / 2
	for {
		if err := p.playSwell(sink, v.freq, swell, v.gain, cancel); err != nil {
			return
		}
		if err := p.playSilence(sink, v.beat-swell, cancel); err != nil {
			return
		}
	}
}

func (p *Player) breathLoop(phases []Phase, cancel chan struct{}) {
	sink, err := p.open()
	if err != nil {
		p.log.Debug("ambient output unavailable", "error", err)
		return
	}
	defer sink.Close()

	for {
		for _, phase := range phases {
			var err error
			switch phase.Name {
			case "inhale":
				err = p.playSwell(sink, InhaleFreq, phase.Duration, 0.14, cancel)
			case "exhale":
				err = p.playSwell(sink, ExhaleFreq, phase.Duration, 0.14, cancel)
			default: // hold
				err = p.playSilence(sink, phase.Duration, cancel)
			}
			if err != nil {
				return
			}
		}
	}
}

// playSwell writes a sine pulse shaped by a raised-cosine envelope, so
// loops start and end without clicks.
func (p *Player) playSwell(sink Sink, freq float64, dur time.Duration, gain float64, cancel chan struct{}) error {
	total := int(dur.Seconds() * float64(p.sampleRate))
	frame := make([]float32, FrameSize)
	step := 2 * math.Pi * freq / float64(p.sampleRate)

	for off := 0; off < total; off += FrameSize {
		select {
		case <-cancel:
			return errStopped
		default:
		}

		n := min(FrameSize, total-off)
		for i := 0; i < n; i++ {
			pos := float64(off+i) / float64(total)
			env := 0.5 * (1 - math.Cos(2*math.Pi*pos))
			frame[i] = float32(gain * env * math.Sin(step*float64(off+i)))
		}
		if err := sink.Write(frame[:n]); err != nil {
			return err
		}
	}
	return nil
}

// playSilence keeps the stream fed with zero frames between pulses.
func (p *Player) playSilence(sink Sink, dur time.Duration, cancel chan struct{}) error {
	total := int(dur.Seconds() * float64(p.sampleRate))
	frame := make([]float32, FrameSize)

	for off := 0; off < total; off += FrameSize {
		select {
		case <-cancel:
			return errStopped
		default:
		}
		n := min(FrameSize, total-off)
		if err := sink.Write(frame[:n]); err != nil {
			return err
		}
	}
	return nil
}

// Phase is one step of a breathing cycle.
type Phase struct {
	Name     string
	Duration time.Duration
}

// ParsePattern parses an inhale-hold-exhale pattern such as "4-7-8" into
// ordered phases. Each segment is whole seconds within [1, 60].
func ParsePattern(pattern string) ([]Phase, error) {
	parts := strings.Split(strings.TrimSpace(pattern), "-")
	if len(parts) != 3 {
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "breathing pattern %q needs three segments", pattern)
	}

	names := []string{"inhale", "hold", "exhale"}
	phases := make([]Phase, 0, len(parts))
	for i, part := range parts {
		secs, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeInvalidArgument, "breathing pattern %q segment %d", pattern, i+1)
		}
		if secs < MinPhaseSeconds || secs > MaxPhaseSeconds {
			return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "breathing pattern %q segment %d out of range", pattern, i+1)
		}
		phases = append(phases, Phase{Name: names[i], Duration: time.Duration(secs) * time.Second})
	}
	return phases, nil
}
