package session

import (
	"bytes"
	"sync"

	"github.com/go-audio/wav"

	apperrors "github.com/sageorb/platform/internal/errors"
)

// Sink consumes decoded PCM frames. The device's output stream implements
// it; tests substitute an in-memory sink.
type Sink interface {
	Write(frames []float32) error
	Close()
}

// SinkOpener opens a playback sink for one response. Opening is deferred to
// Play time so a phase that never reaches speaking holds no output stream.
type SinkOpener func() (Sink, error)

// PlaybackSequencer decodes a synthesized WAV response and streams it to
// the audio device on its own goroutine. The done callback fires exactly
// once per Play call, whether the clip drains fully, the sink fails, or
// Stop interrupts it.
type PlaybackSequencer struct {
	open      SinkOpener
	frameSize int

	mu     sync.Mutex
	stopCh chan struct{}
}

func NewPlaybackSequencer(open SinkOpener, frameSize int) *PlaybackSequencer {
	if frameSize <= 0 {
		frameSize = DefaultPlaybackFrames
	}
	return &PlaybackSequencer{open: open, frameSize: frameSize}
}

// Play decodes the WAV payload and starts streaming it. Decode and sink
// open failures are returned synchronously and the done callback does not
// fire; after Play returns nil, done is guaranteed.
func (p *PlaybackSequencer) Play(clip []byte, onDone func()) error {
	samples, err := decodeWAV(clip)
	if err != nil {
		return err
	}

	sink, err := p.open()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodePlaybackFailed, "open playback stream")
	}

	p.mu.Lock()
	if p.stopCh != nil {
		close(p.stopCh)
	}
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()

	go p.stream(samples, sink, stopCh, onDone)
	return nil
}

// Stop interrupts the clip currently streaming, if any. The interrupted
// Play's done callback still fires.
func (p *PlaybackSequencer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
}

func (p *PlaybackSequencer) stream(samples []float32, sink Sink, stopCh chan struct{}, onDone func()) {
	defer func() {
		sink.Close()
		p.mu.Lock()
		if p.stopCh == stopCh {
			p.stopCh = nil
		}
		p.mu.Unlock()
		if onDone != nil {
			onDone()
		}
	}()

	for off := 0; off < len(samples); off += p.frameSize {
		select {
		case <-stopCh:
			return
		default:
		}

		end := off + p.frameSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := sink.Write(samples[off:end]); err != nil {
			return
		}
	}
}

// decodeWAV converts a RIFF/WAVE payload into normalized float32 samples.
// The decoded integer samples are scaled by the source bit depth so a
// full-scale clip lands on [-1, 1].
func decodeWAV(clip []byte) ([]float32, error) {
	dec := wav.NewDecoder(bytes.NewReader(clip))
	if !dec.IsValidFile() {
		return nil, apperrors.New(apperrors.CodeDecodeFailed, "response is not a valid wav clip")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDecodeFailed, "decode wav response")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		return nil, apperrors.New(apperrors.CodeDecodeFailed, "wav response missing bit depth")
	}

	scale := float32(int(1) << (bitDepth - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return samples, nil
}
