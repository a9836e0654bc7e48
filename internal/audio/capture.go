package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// ChunkDuration is the audio span of one Capture chunk.
const ChunkDuration = 20 * time.Millisecond

// chunkSizeBytes is one ChunkDuration of 16kHz mono s16.
const chunkSizeBytes = CaptureSampleRate * 2 * int(ChunkDuration/time.Millisecond) / 1000

// captureBuffer is the chunk backlog (about 2.5s) before Pulse data is dropped.
const captureBuffer = 128

// Capture streams fixed-size PCM chunks from one selected Pulse source. A
// consumer that falls more than captureBuffer chunks behind loses the newest
// audio instead of stalling the Pulse callback.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte

	mu       sync.Mutex
	pending  []byte
	stopped  bool
	inflight sync.WaitGroup

	dropped atomic.Int64
}

// StartCapture opens a 16kHz mono s16 record stream on selected. The stream
// stops when ctx ends.
func StartCapture(ctx context.Context, selected Device) (*Capture, error) {
	client, err := newPulseClient("audio-input-microphone")
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected)
	capture.client = client

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(CaptureSampleRate),
		pulse.RecordBufferFragmentSize(uint32(chunkSizeBytes)),
		pulse.RecordMediaName(appName+" listening"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()
	context.AfterFunc(ctx, capture.Close)

	return capture, nil
}

func newCapture(device Device) *Capture {
	return &Capture{
		device: device,
		chunks: make(chan []byte, captureBuffer),
	}
}

// Device returns the source being captured.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks returns the PCM stream as ChunkDuration byte slices.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// Dropped reports chunks discarded because the consumer fell behind.
func (c *Capture) Dropped() int64 {
	return c.dropped.Load()
}

// Stop halts the stream, flushes the partial chunk, and closes Chunks once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	tail := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(tail) > 0 {
		c.offer(tail)
	}
	close(c.chunks)
	return nil
}

// Close is Stop without the error.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM slices raw Pulse frames into chunkSizeBytes chunks.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped so Stop's Wait cannot race it.
	c.inflight.Add(1)
	defer c.inflight.Done()

	c.pending = append(c.pending, buffer...)
	var ready [][]byte
	for len(c.pending) >= chunkSizeBytes {
		ready = append(ready, append([]byte(nil), c.pending[:chunkSizeBytes]...))
		c.pending = c.pending[chunkSizeBytes:]
	}
	c.mu.Unlock()

	for _, chunk := range ready {
		c.offer(chunk)
	}
	return len(buffer), nil
}

// offer hands chunk to the consumer without blocking.
func (c *Capture) offer(chunk []byte) {
	select {
	case c.chunks <- chunk:
	default:
		c.dropped.Add(1)
	}
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
