package session

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"
	"time"

	apperrors "github.com/sageorb/platform/internal/errors"
)

// wavClip builds a minimal mono 16-bit PCM RIFF payload.
func wavClip(samples []int16, sampleRate uint32) []byte {
	dataLen := uint32(len(samples) * 2)
	buf := make([]byte, 0, 44+dataLen)

	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, 36+dataLen)
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1) // mono
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate*2)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, dataLen)
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}
	return buf
}

type memorySink struct {
	mu      sync.Mutex
	frames  [][]float32
	writes  int
	failOn  int // fail the nth write when > 0
	closed  int
	blockCh chan struct{} // when set, each write waits for a token
}

func (s *memorySink) Write(frames []float32) error {
	if s.blockCh != nil {
		<-s.blockCh
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failOn > 0 && s.writes >= s.failOn {
		return errSentinel
	}
	copied := make([]float32, len(frames))
	copy(copied, frames)
	s.frames = append(s.frames, copied)
	return nil
}

func (s *memorySink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *memorySink) samples() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []float32
	for _, f := range s.frames {
		out = append(out, f...)
	}
	return out
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("playback never completed")
	}
}

func TestPlaybackStreamsDecodedSamples(t *testing.T) {
	sink := &memorySink{}
	p := NewPlaybackSequencer(func() (Sink, error) { return sink, nil }, 2)

	clip := wavClip([]int16{16384, -16384, 32767}, 16000)
	done := make(chan struct{})
	if err := p.Play(clip, func() { close(done) }); err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitDone(t, done)

	got := sink.samples()
	if len(got) != 3 {
		t.Fatalf("streamed %d samples, want 3", len(got))
	}
	want := []float32{0.5, -0.5, float32(32767) / 32768}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-4 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
	if sink.closed != 1 {
		t.Fatalf("sink closed %d times, want 1", sink.closed)
	}
}

func TestPlaybackRejectsInvalidClip(t *testing.T) {
	p := NewPlaybackSequencer(func() (Sink, error) { return &memorySink{}, nil }, 0)

	err := p.Play([]byte("not a wav"), func() {
		t.Error("done callback fired for invalid clip")
	})
	if !apperrors.IsCode(err, apperrors.CodeDecodeFailed) {
		t.Fatalf("err = %v, want decode_failed", err)
	}
}

func TestPlaybackOpenFailure(t *testing.T) {
	p := NewPlaybackSequencer(func() (Sink, error) { return nil, errSentinel }, 0)

	clip := wavClip([]int16{0}, 16000)
	err := p.Play(clip, func() {
		t.Error("done callback fired after open failure")
	})
	if !apperrors.IsCode(err, apperrors.CodePlaybackFailed) {
		t.Fatalf("err = %v, want playback_failed", err)
	}
}

func TestPlaybackSinkErrorStillCompletes(t *testing.T) {
	sink := &memorySink{failOn: 1}
	p := NewPlaybackSequencer(func() (Sink, error) { return sink, nil }, 1)

	clip := wavClip([]int16{100, 200, 300}, 16000)
	done := make(chan struct{})
	if err := p.Play(clip, func() { close(done) }); err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitDone(t, done)

	if sink.closed != 1 {
		t.Fatal("sink not closed after write failure")
	}
}

func TestPlaybackStopInterrupts(t *testing.T) {
	sink := &memorySink{blockCh: make(chan struct{}, 1)}
	p := NewPlaybackSequencer(func() (Sink, error) { return sink, nil }, 1)

	samples := make([]int16, 100)
	done := make(chan struct{})
	if err := p.Play(wavClip(samples, 16000), func() { close(done) }); err != nil {
		t.Fatalf("Play: %v", err)
	}

	sink.blockCh <- struct{}{} // let one write through
	p.Stop()
	close(sink.blockCh) // unblock any write in flight

	waitDone(t, done)

	sink.mu.Lock()
	writes := sink.writes
	sink.mu.Unlock()
	if writes >= 100 {
		t.Fatal("Stop did not interrupt the clip")
	}
}

func TestPlaybackStopWithoutClip(t *testing.T) {
	p := NewPlaybackSequencer(func() (Sink, error) { return &memorySink{}, nil }, 0)
	p.Stop() // no clip in flight; must not panic
}
