// Package turn decides when the user has finished speaking, using a silence
// timeout over the live transcript.
package turn

import (
	"strings"
	"sync"
	"time"

	"github.com/rbright/studyvoice/internal/recognition"
)

// DefaultSilenceTimeout is the quiet period that completes a turn.
const DefaultSilenceTimeout = 1500 * time.Millisecond

// DispatchFunc receives a completed turn. It returns false when the turn is
// refused because a previous one is still being processed.
type DispatchFunc func(text string) bool

// Segmenter coalesces transcript events into turns. Finality alone never
// completes a turn; only silence does.
type Segmenter struct {
	timeout  time.Duration
	dispatch DispatchFunc

	mu       sync.Mutex
	buffer   string
	lastSeq  uint64
	timer    *time.Timer
	revision uint64
}

// NewSegmenter builds a segmenter; timeout <= 0 selects DefaultSilenceTimeout.
func NewSegmenter(timeout time.Duration, dispatch DispatchFunc) *Segmenter {
	if timeout <= 0 {
		timeout = DefaultSilenceTimeout
	}
	return &Segmenter{timeout: timeout, dispatch: dispatch}
}

// Observe records ev as the latest turn text and re-arms the silence timer.
func (s *Segmenter) Observe(ev recognition.TranscriptEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Sequence != 0 && ev.Sequence < s.lastSeq {
		return
	}
	if ev.Sequence != 0 {
		s.lastSeq = ev.Sequence
	}
	s.buffer = strings.Join(strings.Fields(ev.Text), " ")
	s.revision++
	s.arm()
}

// Reset clears the buffer and cancels any pending timer.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.buffer = ""
	s.lastSeq = 0
	s.revision++
}

// Resume re-arms the silence timer for text whose dispatch was refused. It is
// a no-op when nothing is buffered or a timer is already pending.
func (s *Segmenter) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buffer == "" || s.timer != nil {
		return
	}
	s.arm()
}

// Pending returns the buffered, not yet dispatched text.
func (s *Segmenter) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

// arm replaces the single timer slot. Caller holds s.mu.
func (s *Segmenter) arm() {
	if s.timer != nil {
		s.timer.Stop()
	}
	rev := s.revision
	s.timer = time.AfterFunc(s.timeout, func() { s.fire(rev) })
}

func (s *Segmenter) fire(rev uint64) {
	s.mu.Lock()
	if rev != s.revision {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	text := s.buffer
	s.mu.Unlock()

	if text == "" || s.dispatch == nil {
		return
	}
	if !s.dispatch(text) {
		return
	}

	s.mu.Lock()
	if rev == s.revision {
		s.buffer = ""
	}
	s.mu.Unlock()
}
