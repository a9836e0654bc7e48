// Package session coordinates live-mode state, turn dispatch, and spoken replies.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/studyvoice/internal/fsm"
	"github.com/rbright/studyvoice/internal/ipc"
	"github.com/rbright/studyvoice/internal/playback"
	"github.com/rbright/studyvoice/internal/recognition"
	"github.com/rbright/studyvoice/internal/turn"
)

// ErrNotLive is returned by operations that only apply in live mode.
var ErrNotLive = errors.New("session is not live")

// VoiceSessionState is a snapshot of the conversation flags.
type VoiceSessionState struct {
	Listening  bool
	Speaking   bool
	Processing bool
	Mode       fsm.State
	SessionID  string
	Pending    string
}

// Result is the lifecycle output of one Run invocation.
type Result struct {
	SessionID  string
	State      fsm.State
	Turns      int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Speaker is the playback surface the controller drives.
type Speaker interface {
	Speak(ctx context.Context, text string, opts playback.Options) error
	Stop()
	Speaking() bool
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowListening(context.Context)
	ShowThinking(context.Context)
	ShowError(context.Context, string)
	CueStop(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowThinking(context.Context)      {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) Hide(context.Context)              {}

// Config wires a Controller. Recognizer and Speaker are required for live
// mode; the callbacks are optional.
type Config struct {
	Recognizer     recognition.Recognizer
	Language       string
	SilenceTimeout time.Duration
	Speaker        Speaker
	SpeakOptions   playback.Options
	Indicator      Indicator
	Logger         *slog.Logger

	// OnUserSpeech receives each completed turn on its own goroutine. The
	// context ends when the session leaves live mode.
	OnUserSpeech func(ctx context.Context, text string)
	// OnError receives the user-facing message of a fatal condition.
	OnError func(message string)
	// OnLive runs on its own goroutine after each successful start.
	OnLive func(ctx context.Context)
}

// Controller is the conversation orchestrator. It is the only component that
// changes the live-mode state.
type Controller struct {
	cfg       Config
	logger    *slog.Logger
	indicator Indicator
	recog     *recognition.Manager
	segmenter *turn.Segmenter

	mu         sync.Mutex
	state      fsm.State
	processing bool
	sessionID  string
	sessionCtx context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	turns      int
	failure    error
}

// NewController builds the orchestrator and its recognition manager and
// turn segmenter.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	indicator := cfg.Indicator
	if indicator == nil {
		indicator = noopIndicator{}
	}

	c := &Controller{
		cfg:       cfg,
		logger:    logger,
		indicator: indicator,
		state:     fsm.StateIdle,
	}
	c.segmenter = turn.NewSegmenter(cfg.SilenceTimeout, c.dispatch)
	c.recog = recognition.NewManager(cfg.Recognizer, recognition.Options{
		Language:   cfg.Language,
		Continuous: true,
	}, logger, recognition.Callbacks{
		OnTranscript: c.segmenter.Observe,
		OnError:      c.fail,
		OnWarning: func(code recognition.ErrorCode, message string) {
			logger.Warn("recognition warning", "code", code.String(), "message", message)
		},
	})
	return c
}

// State returns a snapshot of the session flags.
func (c *Controller) State() VoiceSessionState {
	c.mu.Lock()
	state := VoiceSessionState{
		Processing: c.processing,
		Mode:       c.state,
		SessionID:  c.sessionID,
	}
	c.mu.Unlock()

	state.Listening = c.recog.Listening()
	if c.cfg.Speaker != nil {
		state.Speaking = c.cfg.Speaker.Speaking()
	}
	state.Pending = c.segmenter.Pending()
	return state
}

// Start enters live mode. It is a no-op while already live.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == fsm.StateLive {
		c.mu.Unlock()
		return nil
	}
	next, err := fsm.Transition(c.state, fsm.EventStart)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.state = next
	c.processing = false
	c.sessionID = uuid.NewString()
	c.sessionCtx = sessionCtx
	c.cancel = cancel
	c.done = make(chan struct{})
	c.turns = 0
	c.failure = nil
	id := c.sessionID
	c.mu.Unlock()

	c.segmenter.Reset()
	if !c.recog.Listening() {
		if err := c.recog.Start(sessionCtx); err != nil {
			c.leave(fsm.EventFail)
			return fmt.Errorf("start recognition: %w", err)
		}
	}

	// A Stop that ran while recognition was starting could not stop it.
	c.mu.Lock()
	stale := c.state != fsm.StateLive || c.sessionID != id
	idle := c.state != fsm.StateLive
	c.mu.Unlock()
	if stale {
		if idle {
			c.recog.Stop()
		}
		c.logger.Debug("live mode ended while starting", "session_id", id)
		return nil
	}

	c.logger.Info("live mode started", "session_id", id)
	c.indicator.ShowListening(sessionCtx)
	if c.cfg.OnLive != nil {
		go c.cfg.OnLive(sessionCtx)
	}
	return nil
}

// Stop leaves live mode and tears everything down. Safe to call repeatedly.
func (c *Controller) Stop() {
	if c.leave(fsm.EventStop) {
		c.indicator.CueStop(context.Background())
		c.hide()
	}
}

// Toggle flips between idle and live.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	event := fsm.ToggleEvent(c.state)
	c.mu.Unlock()

	if event == fsm.EventStop {
		c.Stop()
		return nil
	}
	return c.Start(ctx)
}

// SpeakResponse speaks text as the reply to the current turn and clears the
// processing flag. It blocks until playback ends.
func (c *Controller) SpeakResponse(ctx context.Context, text string) error {
	return c.SpeakReply(ctx, text, "")
}

// SpeakReply is SpeakResponse with an emotion preset; empty keeps the
// configured default.
func (c *Controller) SpeakReply(ctx context.Context, text string, emotion string) error {
	c.mu.Lock()
	if c.state != fsm.StateLive {
		c.mu.Unlock()
		return ErrNotLive
	}
	c.processing = false
	sessionCtx := c.sessionCtx
	c.mu.Unlock()

	c.segmenter.Resume()
	return c.speak(ctx, sessionCtx, text, emotion)
}

// SpeakGreeting speaks text outside of any turn. Unlike SpeakReply it leaves
// the processing flag alone, so a turn dispatched meanwhile stays guarded.
func (c *Controller) SpeakGreeting(ctx context.Context, text string, emotion string) error {
	c.mu.Lock()
	if c.state != fsm.StateLive {
		c.mu.Unlock()
		return ErrNotLive
	}
	sessionCtx := c.sessionCtx
	c.mu.Unlock()

	return c.speak(ctx, sessionCtx, text, emotion)
}

func (c *Controller) speak(ctx, sessionCtx context.Context, text string, emotion string) error {
	if c.cfg.Speaker == nil {
		return playback.ErrNoSynthesizer
	}
	opts := c.cfg.SpeakOptions
	if emotion != "" {
		opts.Emotion = emotion
	}

	// Playback must not outlive the session it answers.
	speakCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessionCtx, cancel)
	defer stop()

	c.indicator.ShowListening(ctx)
	if err := c.cfg.Speaker.Speak(speakCtx, text, opts); err != nil {
		c.logger.Warn("reply playback failed", "error", err.Error())
		return err
	}
	return nil
}

// EndTurn clears the processing flag without speaking. Text that arrived
// while the turn was processing is dispatched after the silence timeout.
func (c *Controller) EndTurn() {
	c.mu.Lock()
	c.processing = false
	live := c.state == fsm.StateLive
	c.mu.Unlock()

	if live {
		c.segmenter.Resume()
		c.indicator.ShowListening(context.Background())
	}
}

// Run starts live mode and blocks until the session leaves it or ctx ends.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.Start(ctx); err != nil {
		result.State = c.currentMode()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	c.mu.Lock()
	done := c.done
	result.SessionID = c.sessionID
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.Stop()
		result.Err = ctx.Err()
	case <-done:
	}

	c.mu.Lock()
	result.State = c.state
	result.Turns = c.turns
	if result.Err == nil {
		result.Err = c.failure
	}
	c.mu.Unlock()
	result.FinishedAt = time.Now()
	return result
}

// Handle serves IPC commands for the owner session.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		state := c.State()
		return ipc.Response{OK: true, State: string(state.Mode), Message: describe(state)}
	case ipc.CommandToggle:
		if err := c.Toggle(ctx); err != nil {
			return ipc.Response{OK: false, State: string(c.currentMode()), Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(c.currentMode()), Message: "toggled"}
	case ipc.CommandStop:
		if c.currentMode() != fsm.StateLive {
			return ipc.Response{OK: true, State: string(fsm.StateIdle), Message: "already idle"}
		}
		c.Stop()
		return ipc.Response{OK: true, State: string(c.currentMode()), Message: "stop requested"}
	case ipc.CommandSay:
		text := strings.TrimSpace(req.Text)
		if text == "" {
			return ipc.Response{OK: false, State: string(c.currentMode()), Error: "say requires text"}
		}
		if c.currentMode() != fsm.StateLive {
			return ipc.Response{OK: false, State: string(c.currentMode()), Error: ErrNotLive.Error()}
		}
		go func() {
			if err := c.SpeakResponse(context.WithoutCancel(ctx), text); err != nil && !errors.Is(err, ErrNotLive) {
				c.logger.Warn("say failed", "error", err.Error())
			}
		}()
		return ipc.Response{OK: true, State: string(fsm.StateLive), Message: "speaking"}
	default:
		return ipc.Response{OK: false, State: string(c.currentMode()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// dispatch accepts one completed turn from the segmenter.
func (c *Controller) dispatch(text string) bool {
	c.mu.Lock()
	if c.state != fsm.StateLive || c.processing {
		c.mu.Unlock()
		return false
	}
	c.processing = true
	c.turns++
	ctx := c.sessionCtx
	id := c.sessionID
	c.mu.Unlock()

	c.logger.Info("turn completed", "session_id", id, "chars", len(text))
	c.indicator.ShowThinking(ctx)
	if c.cfg.OnUserSpeech != nil {
		go c.cfg.OnUserSpeech(ctx, text)
	}
	return true
}

// fail handles a fatal recognition error reported by the manager.
func (c *Controller) fail(code recognition.ErrorCode, message string) {
	c.mu.Lock()
	if c.state == fsm.StateLive {
		c.failure = recognition.NewError(code, errors.New(message))
	}
	c.mu.Unlock()

	if !c.leave(fsm.EventFail) {
		return
	}
	c.logger.Error("live mode ended by recognition error", "code", code.String())
	c.indicator.ShowError(context.Background(), message)
	if c.cfg.OnError != nil {
		c.cfg.OnError(message)
	}
}

// leave applies event out of live mode and releases every session resource.
// It reports false when the session was not live.
func (c *Controller) leave(event fsm.Event) bool {
	c.mu.Lock()
	next, err := fsm.Transition(c.state, event)
	if err != nil || c.state != fsm.StateLive {
		c.mu.Unlock()
		return false
	}
	c.state = next
	c.processing = false
	cancel := c.cancel
	c.cancel = nil
	done := c.done
	id := c.sessionID
	c.mu.Unlock()

	c.recog.Stop()
	c.segmenter.Reset()
	if c.cfg.Speaker != nil {
		c.cfg.Speaker.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		close(done)
	}
	c.logger.Info("live mode stopped", "session_id", id, "event", string(event))
	return true
}

func (c *Controller) currentMode() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) hide() {
	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	c.indicator.Hide(ctx)
}

func describe(s VoiceSessionState) string {
	return fmt.Sprintf("mode=%s listening=%t speaking=%t processing=%t", s.Mode, s.Listening, s.Speaking, s.Processing)
}
