// Package recognition owns the continuous speech-recognition stream lifecycle:
// restart-on-end, error classification, and transcript forwarding.
package recognition

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// restartDelay debounces stream restarts so a stream that ends immediately
// cannot spin the loop.
const restartDelay = 100 * time.Millisecond

// DefaultLanguage is the locale used when none is configured.
const DefaultLanguage = "en-US"

// ErrNoRecognizer indicates the manager was built without a platform recognizer.
var ErrNoRecognizer = errors.New("recognition: no recognizer configured")

// TranscriptEvent is one recognized transcript delta. Later sequences
// supersede earlier interim text within the same turn.
type TranscriptEvent struct {
	Text     string
	IsFinal  bool
	Sequence uint64
}

// Options controls how the manager drives the recognizer.
type Options struct {
	Language   string
	Continuous bool
}

// Recognizer runs one platform recognition stream. Recognize blocks until the
// stream ends; nil means a normal end, *Error a classified failure.
type Recognizer interface {
	Recognize(ctx context.Context, opts Options, emit func(TranscriptEvent)) error
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(context.Context, Options, func(TranscriptEvent)) error

func (f RecognizerFunc) Recognize(ctx context.Context, opts Options, emit func(TranscriptEvent)) error {
	return f(ctx, opts, emit)
}

// Callbacks receive manager output. All are optional and are never invoked
// while the manager holds its lock.
type Callbacks struct {
	OnTranscript      func(TranscriptEvent)
	OnError           func(ErrorCode, string)
	OnWarning         func(ErrorCode, string)
	OnListeningChange func(bool)
}

// Manager starts, restarts, and stops recognition streams.
type Manager struct {
	recognizer   Recognizer
	opts         Options
	logger       *slog.Logger
	callbacks    Callbacks
	restartDelay time.Duration

	mu           sync.Mutex
	listening    bool
	generation   uint64
	cancel       context.CancelFunc
	transcript   string
	sequence     uint64
	idleRestarts int
}

// NewManager constructs a manager; a nil logger discards output.
func NewManager(recognizer Recognizer, opts Options, logger *slog.Logger, callbacks Callbacks) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	return &Manager{
		recognizer:   recognizer,
		opts:         opts,
		logger:       logger,
		callbacks:    callbacks,
		restartDelay: restartDelay,
	}
}

// Listening reports whether a session is active.
func (m *Manager) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

// Transcript returns the most recent transcript text of the current session.
func (m *Manager) Transcript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript
}

// Start begins listening. It is a no-op while already listening.
func (m *Manager) Start(ctx context.Context) error {
	if m.recognizer == nil {
		return ErrNoRecognizer
	}

	m.mu.Lock()
	if m.listening {
		m.mu.Unlock()
		return nil
	}
	m.generation++
	gen := m.generation
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.listening = true
	m.transcript = ""
	m.idleRestarts = 0
	m.mu.Unlock()

	m.logger.Info("recognition started", "language", m.opts.Language, "continuous", m.opts.Continuous)
	m.notifyListening(true)
	go m.loop(runCtx, gen)
	return nil
}

// Stop ends the session and suppresses auto-restart. Safe to call repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.listening {
		m.mu.Unlock()
		return
	}
	m.listening = false
	m.generation++
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.logger.Info("recognition stopped")
	m.notifyListening(false)
}

// loop runs streams for one generation until stop, fatal error, or one-shot end.
func (m *Manager) loop(ctx context.Context, gen uint64) {
	for {
		err := m.recognizer.Recognize(ctx, m.opts, func(ev TranscriptEvent) {
			m.forward(gen, ev)
		})
		if !m.current(gen) {
			return
		}
		if ctx.Err() != nil {
			m.finish(gen)
			return
		}

		if err != nil {
			code := CodeOf(err)
			switch Classify(code) {
			case SeverityIgnore:
				m.mu.Lock()
				m.idleRestarts++
				idle := m.idleRestarts
				m.mu.Unlock()
				m.logger.Debug("recognition stream ended quietly", "code", code.String(), "consecutive", idle)
			case SeverityFatal:
				m.logger.Error("recognition failed", "code", code.String(), "error", err.Error())
				if m.finish(gen) && m.callbacks.OnError != nil {
					m.callbacks.OnError(code, code.Message())
				}
				return
			default:
				m.logger.Warn("recognition warning", "code", code.String(), "error", err.Error())
				if m.callbacks.OnWarning != nil {
					m.callbacks.OnWarning(code, code.Message())
				}
			}
		}

		if !m.opts.Continuous {
			m.finish(gen)
			return
		}

		timer := time.NewTimer(m.restartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.finish(gen)
			return
		case <-timer.C:
		}
		if !m.current(gen) {
			return
		}
		m.logger.Debug("recognition stream restarting")
	}
}

// forward stamps and delivers one event if gen is still the active session.
func (m *Manager) forward(gen uint64, ev TranscriptEvent) {
	m.mu.Lock()
	if gen != m.generation || !m.listening {
		m.mu.Unlock()
		return
	}
	m.sequence++
	ev.Sequence = m.sequence
	m.transcript = ev.Text
	m.idleRestarts = 0
	m.mu.Unlock()

	if m.callbacks.OnTranscript != nil {
		m.callbacks.OnTranscript(ev)
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.generation && m.listening
}

// finish ends generation gen from inside the loop; false when already superseded.
func (m *Manager) finish(gen uint64) bool {
	m.mu.Lock()
	if gen != m.generation || !m.listening {
		m.mu.Unlock()
		return false
	}
	m.listening = false
	m.generation++
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.notifyListening(false)
	return true
}

func (m *Manager) notifyListening(listening bool) {
	if m.callbacks.OnListeningChange != nil {
		m.callbacks.OnListeningChange(listening)
	}
}
