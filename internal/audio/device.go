package audio

import (
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/sageorb/platform/internal/errors"
)

// Device is the process-wide bridge to the audio hardware. It lazily
// initializes portaudio on first use and owns the shared analyser. There is
// exactly one Device per process; components receive it explicitly rather
// than reaching for a global.
type Device struct {
	sampleRate int
	analyser   *Analyser

	initOnce    sync.Once
	initErr     error
	initialized bool

	mu       sync.Mutex
	inStream *portaudio.Stream
	inStop   chan struct{}
	inDone   chan struct{}
}

// NewDevice creates a device bridge. No hardware is touched until the first
// stream is opened.
func NewDevice(sampleRate int) *Device {
	return &Device{
		sampleRate: sampleRate,
		analyser:   NewAnalyser(),
	}
}

// Analyser returns the shared spectrum analyser.
func (d *Device) Analyser() *Analyser { return d.analyser }

// Spectrum exposes the analyser snapshot directly; the silence detector
// samples through this.
func (d *Device) Spectrum() ([]byte, bool) { return d.analyser.Spectrum() }

// ResetAnalyser clears the shared analyser window at phase boundaries.
func (d *Device) ResetAnalyser() { d.analyser.Reset() }

func (d *Device) ensureInit() error {
	d.initOnce.Do(func() {
		if err := portaudio.Initialize(); err != nil {
			d.initErr = apperrors.Wrap(err, apperrors.CodeDeviceDenied, "audio device unavailable")
			return
		}
		d.initialized = true
	})
	return d.initErr
}

// StartInput opens the default input stream and begins delivering captured
// chunks. onChunk receives each chunk in device order; onStopped fires once
// after the stream has fully stopped, strictly after the last onChunk.
// Open failure (typically microphone permission) is returned synchronously.
func (d *Device) StartInput(onChunk func([]float32), onStopped func()) error {
	if err := d.ensureInit(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inStream != nil {
		return apperrors.New(apperrors.CodeSessionConflict, "input stream already open")
	}

	buf := make([]float32, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(d.sampleRate), FramesPerBuffer, buf)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDeviceDenied, "microphone access denied")
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return apperrors.Wrap(err, apperrors.CodeDeviceFailed, "failed to start input stream")
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	d.inStream = stream
	d.inStop = stop
	d.inDone = done

	go func() {
		defer close(done)
		defer func() {
			_ = stream.Stop()
			_ = stream.Close()
			if onStopped != nil {
				onStopped()
			}
		}()

		for {
			select {
			case <-stop:
				return
			default:
			}

			if err := stream.Read(); err != nil {
				slog.Debug("audio read error", "error", err)
				return
			}

			chunk := append([]float32(nil), buf...)
			d.analyser.Feed(chunk)
			if onChunk != nil {
				onChunk(chunk)
			}
		}
	}()

	return nil
}

// StopInput requests the input stream to stop. The stop completes
// asynchronously; the onStopped callback passed to StartInput fires when it
// does. Calling StopInput with no open stream is a no-op.
func (d *Device) StopInput() {
	d.mu.Lock()
	stop := d.inStop
	done := d.inDone
	d.inStream = nil
	d.inStop = nil
	d.inDone = nil
	d.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// OutputStream is a writable playback stream.
type OutputStream struct {
	stream   *portaudio.Stream
	buf      []float32
	analyser *Analyser // nil when this stream should not feed the analyser

	closeOnce sync.Once
}

// OpenOutput opens an output stream. When analyse is true every written
// frame also feeds the shared analyser, keeping the speaking phase's
// amplitude observable.
func (d *Device) OpenOutput(analyse bool) (*OutputStream, error) {
	if err := d.ensureInit(); err != nil {
		return nil, err
	}

	buf := make([]float32, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(d.sampleRate), FramesPerBuffer, buf)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDeviceFailed, "failed to open output stream")
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeDeviceFailed, "failed to start output stream")
	}

	out := &OutputStream{stream: stream, buf: buf}
	if analyse {
		out.analyser = d.analyser
	}
	return out, nil
}

// Write plays one frame. Short frames are zero-padded; frames longer than
// the device buffer are truncated.
func (o *OutputStream) Write(frame []float32) error {
	n := copy(o.buf, frame)
	for i := n; i < len(o.buf); i++ {
		o.buf[i] = 0
	}
	if o.analyser != nil {
		o.analyser.Feed(o.buf)
	}
	if err := o.stream.Write(); err != nil {
		return apperrors.Wrap(err, apperrors.CodePlaybackFailed, "output stream write failed")
	}
	return nil
}

// Close stops and closes the stream. Idempotent.
func (o *OutputStream) Close() {
	o.closeOnce.Do(func() {
		_ = o.stream.Stop()
		_ = o.stream.Close()
	})
}

// SampleRate returns the device sample rate.
func (d *Device) SampleRate() int { return d.sampleRate }

// Close releases the portaudio handle. Only called at process shutdown.
func (d *Device) Close() {
	d.StopInput()
	if d.initialized {
		_ = portaudio.Terminate()
	}
}
