package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/sageorb/platform/internal/errors"
	"github.com/sageorb/platform/internal/mode"
	"github.com/sageorb/platform/internal/oracle"
)

// DeviceBridge is the slice of the audio device the machine drives:
// microphone capture plus the shared spectrum analyser.
type DeviceBridge interface {
	StartInput(onChunk func([]float32), onStopped func()) error
	StopInput()
	Spectrum() ([]byte, bool)
	ResetAnalyser()
}

// Analyzer performs the analyze/synthesize round trip for one utterance.
type Analyzer interface {
	Analyze(ctx context.Context, pcm []byte, sampleRate int, m mode.Mode) (*oracle.Analysis, error)
	Synthesize(ctx context.Context, text string, m mode.Mode) ([]byte, error)
}

// Player streams a synthesized clip and reports when it drains.
type Player interface {
	Play(clip []byte, onDone func()) error
	Stop()
}

// Ambient drives the background audio side effects of a result. Calls
// must return promptly; playback runs on the implementation's goroutines.
type Ambient interface {
	PlayMood(emotion string)
	StartBreathing(pattern string)
	Stop()
}

// ModeSource yields the cultural mode to attach to oracle requests.
type ModeSource interface {
	Current() mode.Mode
}

// Notifier observes session events. Callbacks run with the machine lock
// held and must not call back into the machine.
type Notifier interface {
	StateChanged(s State)
	ResultReady(r Result)
	Notice(message string)
}

// Result is the outcome of one completed processing phase.
type Result struct {
	Emotion          string    `json:"emotion"`
	Wisdom           string    `json:"wisdom"`
	BreathingPattern string    `json:"breathing_pattern"`
	Reasoning        string    `json:"reasoning,omitempty"`
	Mode             mode.Mode `json:"mode"`
	At               time.Time `json:"at"`
}

// Config carries the machine's tunables.
type Config struct {
	SampleRate       int
	SilenceThreshold float64
	SilenceWindow    time.Duration
	TickInterval     time.Duration
}

// Machine is the session state machine. All transitions are serialized
// under one mutex; asynchronous completions (silence, utterance finalize,
// playback drain, oracle responses) carry the cycle ID of the phase that
// scheduled them, and a completion whose cycle no longer matches is
// discarded. An explicit stop therefore always wins over a pending silence
// signal from the same phase.
type Machine struct {
	device   DeviceBridge
	analyzer Analyzer
	player   Player
	ambient  Ambient
	modes    ModeSource
	notify   Notifier
	log      *slog.Logger
	cfg      Config

	capture *CaptureController

	mu       sync.Mutex
	state    State
	cycle    string
	detector *SilenceDetector
	result   *Result

	ctx context.Context
}

func NewMachine(device DeviceBridge, analyzer Analyzer, player Player, ambient Ambient, modes ModeSource, notify Notifier, log *slog.Logger, cfg Config) *Machine {
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = DefaultSilenceWindow
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	m := &Machine{
		device:   device,
		analyzer: analyzer,
		player:   player,
		ambient:  ambient,
		modes:    modes,
		notify:   notify,
		log:      log,
		cfg:      cfg,
		state:    Idle,
		ctx:      context.Background(),
	}
	m.capture = NewCaptureController(device)
	return m
}

// Run parks until ctx ends, then tears the session down. Goroutines the
// machine spawns inherit ctx.
func (m *Machine) Run(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	if m.detector != nil {
		m.detector.Cancel()
		m.detector = nil
	}
	m.state = Idle
	m.mu.Unlock()

	m.capture.Stop()
	m.player.Stop()
	m.ambient.Stop()
	return ctx.Err()
}

// Snapshot reports the current state and the most recent result, if any.
func (m *Machine) Snapshot() (State, *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return m.state, nil
	}
	r := *m.result
	return m.state, &r
}

// StartListening begins a capture phase. Only valid from idle; a start
// intent in any other state is a session conflict.
func (m *Machine) StartListening() error {
	m.mu.Lock()

	if m.state != Idle {
		state := m.state
		m.mu.Unlock()
		return apperrors.Newf(apperrors.CodeSessionConflict, "cannot start listening while %s", state)
	}

	cycle := uuid.NewString()
	m.cycle = cycle
	m.result = nil

	m.ambient.Stop()
	m.device.ResetAnalyser()

	err := m.capture.Begin(func(payload []byte) {
		go m.process(cycle, payload)
	})
	if err != nil {
		m.mu.Unlock()
		return apperrors.Wrap(err, apperrors.CodeDeviceFailed, "open input stream")
	}

	m.detector = NewSilenceDetector(m.device, m.cfg.SilenceThreshold, m.cfg.SilenceWindow, m.cfg.TickInterval, func() {
		m.onSilence(cycle)
	})
	go m.detector.Run(m.ctx)

	m.setState(Listening)
	m.log.Info("listening started", "cycle", cycle)
	m.mu.Unlock()
	return nil
}

// StopListening applies the explicit stop intent. From listening it ends
// the capture phase; from speaking it cuts the response short. A stop
// while processing is deliberately inert so the in-flight round trip can
// finish, and a stop while idle is a no-op.
func (m *Machine) StopListening() {
	m.mu.Lock()

	switch m.state {
	case Listening:
		if m.detector != nil {
			m.detector.Cancel()
			m.detector = nil
		}
		m.setState(Processing)
		m.log.Info("listening stopped by user", "cycle", m.cycle)
		m.mu.Unlock()
		m.capture.Stop()

	case Speaking:
		m.mu.Unlock()
		m.player.Stop()

	default:
		m.mu.Unlock()
	}
}

// onSilence handles the detector's signal. Stale signals, including one
// racing a user stop from the same phase, are discarded by the state and
// cycle guard.
func (m *Machine) onSilence(cycle string) {
	m.mu.Lock()

	if m.state != Listening || m.cycle != cycle {
		m.mu.Unlock()
		return
	}

	m.detector = nil
	m.setState(Processing)
	m.log.Info("silence detected", "cycle", cycle)
	m.mu.Unlock()

	m.capture.Stop()
}

// process runs the analyze/synthesize round trip for a finalized
// utterance. Runs on its own goroutine.
func (m *Machine) process(cycle string, payload []byte) {
	m.mu.Lock()
	if m.state != Processing || m.cycle != cycle {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.mu.Unlock()

	if len(payload) == 0 {
		m.fail(cycle, apperrors.New(apperrors.CodeInvalidArgument, "no speech captured"))
		return
	}

	culturalMode := m.modes.Current()

	analysis, err := m.analyzer.Analyze(ctx, payload, m.cfg.SampleRate, culturalMode)
	if err != nil {
		m.fail(cycle, err)
		return
	}

	clip, err := m.analyzer.Synthesize(ctx, analysis.Wisdom, culturalMode)
	if err != nil {
		m.fail(cycle, err)
		return
	}

	m.mu.Lock()
	if m.state != Processing || m.cycle != cycle {
		m.mu.Unlock()
		return
	}

	result := Result{
		Emotion:          analysis.Emotion,
		Wisdom:           analysis.Wisdom,
		BreathingPattern: analysis.BreathingPattern,
		Reasoning:        analysis.Reasoning,
		Mode:             culturalMode,
		At:               time.Now(),
	}
	m.result = &result
	m.notify.ResultReady(result)

	m.ambient.PlayMood(analysis.Emotion)
	if analysis.BreathingPattern != "" {
		m.ambient.StartBreathing(analysis.BreathingPattern)
	}

	err = m.player.Play(clip, func() {
		m.onPlaybackDone(cycle)
	})
	if err != nil {
		m.mu.Unlock()
		m.fail(cycle, err)
		return
	}

	m.setState(Speaking)
	m.log.Info("speaking", "cycle", cycle, "emotion", analysis.Emotion)
	m.mu.Unlock()
}

// onPlaybackDone returns the session to idle once the response drains or
// is cut short.
func (m *Machine) onPlaybackDone(cycle string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Speaking || m.cycle != cycle {
		return
	}
	m.setState(Idle)
	m.log.Info("playback finished", "cycle", cycle)
}

// fail abandons the cycle and returns the session to idle with a
// user-facing notice.
func (m *Machine) fail(cycle string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cycle != cycle || m.state == Idle {
		return
	}

	m.log.Error("session cycle failed", "cycle", cycle, "error", err, "code", apperrors.CodeOf(err))
	m.notify.Notice(apperrors.Notice(err))
	m.setState(Idle)
}

// setState requires the lock to be held.
func (m *Machine) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.notify.StateChanged(s)
}
