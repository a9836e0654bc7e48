// Package indicator surfaces live-session state as desktop notifications and
// short audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/studyvoice/internal/audio"
	"github.com/rbright/studyvoice/internal/config"
)

const (
	textListening = "Listening…"
	textThinking  = "Thinking…"
	textError     = "Voice session error"
)

// CuePlayer plays one synthesized cue clip.
type CuePlayer interface {
	Play(ctx context.Context, clip audio.Clip) error
}

// Notifier is the concrete indicator used by live sessions.
type Notifier struct {
	cfg    config.IndicatorConfig
	logger *slog.Logger
	player CuePlayer
	notify func(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error)
	close  func(ctx context.Context, id uint32) error

	mu             sync.Mutex
	active         bool
	notificationID uint32
	soundMu        sync.Mutex
	cues           sync.WaitGroup
}

// NewNotifier creates an indicator from config; cues play through Pulse.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		logger: logger,
		player: audio.NewPulsePlayer("studyvoice cue"),
		notify: desktopNotify,
		close:  desktopDismiss,
	}
}

// ShowListening signals that the session is waiting for the student. The
// start cue plays only on the first call after a stop.
func (n *Notifier) ShowListening(ctx context.Context) {
	n.mu.Lock()
	first := !n.active
	n.active = true
	n.mu.Unlock()

	if first {
		n.playCue(cueStart)
	}
	n.show(ctx, 0, textListening)
}

// ShowThinking signals that a turn was handed to the tutor.
func (n *Notifier) ShowThinking(ctx context.Context) {
	n.show(ctx, 0, textThinking)
}

// ShowError plays the error cue and displays text.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	n.mu.Lock()
	n.active = false
	n.mu.Unlock()

	n.playCue(cueError)
	if strings.TrimSpace(text) == "" {
		text = textError
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 4000
	}
	n.show(ctx, timeout, text)
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.mu.Lock()
	n.active = false
	n.mu.Unlock()
	n.playCue(cueStop)
}

// Hide dismisses the active notification.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.DesktopNotify {
		return
	}
	n.mu.Lock()
	id := n.notificationID
	n.notificationID = 0
	n.mu.Unlock()
	if id == 0 {
		return
	}
	n.run(ctx, func(ctx context.Context) error { return n.close(ctx, id) })
}

// Wait blocks until queued cues have finished.
func (n *Notifier) Wait() {
	n.cues.Wait()
}

// show sends or replaces the session notification. timeoutMS 0 keeps it
// until replaced or hidden.
func (n *Notifier) show(ctx context.Context, timeoutMS int, text string) {
	if !n.cfg.DesktopNotify {
		return
	}
	appName := strings.TrimSpace(n.cfg.AppName)
	if appName == "" {
		appName = "studyvoice"
	}

	n.run(ctx, func(ctx context.Context) error {
		n.mu.Lock()
		replaceID := n.notificationID
		n.mu.Unlock()

		id, err := n.notify(ctx, appName, replaceID, text, timeoutMS)
		if err != nil {
			return err
		}
		n.mu.Lock()
		n.notificationID = id
		n.mu.Unlock()
		return nil
	})
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable || n.player == nil {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := emitCue(ctx, n.player, kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
