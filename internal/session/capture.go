package session

import (
	"encoding/binary"
	"math"
	"sync"
)

// Recorder is the slice of the audio device the capture controller needs.
type Recorder interface {
	StartInput(onChunk func([]float32), onStopped func()) error
	StopInput()
}

// CaptureController accumulates microphone chunks for one listening phase
// and hands the finished utterance off as a single contiguous payload.
//
// Chunk delivery and the stop-completed callback come from the device's
// reader goroutine, so every chunk is appended strictly before finalize
// runs. Finalize fires exactly once per phase regardless of how the phase
// ends.
type CaptureController struct {
	recorder Recorder

	mu       sync.Mutex
	chunks   [][]float32
	active   bool
	finalize *sync.Once
	onDone   func(payload []byte)
}

func NewCaptureController(recorder Recorder) *CaptureController {
	return &CaptureController{recorder: recorder}
}

// Begin starts a fresh accumulation phase. Any chunks left over from a
// previous phase are discarded. onComplete receives the concatenated
// utterance encoded as little-endian float32 PCM.
func (c *CaptureController) Begin(onComplete func(payload []byte)) error {
	c.mu.Lock()
	c.chunks = nil
	c.active = true
	c.finalize = &sync.Once{}
	c.onDone = onComplete
	once := c.finalize
	c.mu.Unlock()

	err := c.recorder.StartInput(c.addChunk, func() {
		once.Do(c.complete)
	})
	if err != nil {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// Stop ends the current phase. The utterance callback fires after the
// device confirms the input stream is drained. Calling Stop with no phase
// in progress is a no-op.
func (c *CaptureController) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.mu.Unlock()

	c.recorder.StopInput()
}

func (c *CaptureController) addChunk(chunk []float32) {
	if len(chunk) == 0 {
		return
	}
	c.mu.Lock()
	c.chunks = append(c.chunks, chunk)
	c.mu.Unlock()
}

func (c *CaptureController) complete() {
	c.mu.Lock()
	chunks := c.chunks
	c.chunks = nil
	c.active = false
	done := c.onDone
	c.mu.Unlock()

	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	samples := make([]float32, 0, total)
	for _, chunk := range chunks {
		samples = append(samples, chunk...)
	}

	if done != nil {
		done(Float32ToBytes(samples))
	}
}

// Float32ToBytes packs samples as little-endian IEEE 754 float32, the wire
// form the analysis service accepts.
func Float32ToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*Float32ByteSize)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*Float32ByteSize:], math.Float32bits(s))
	}
	return buf
}
