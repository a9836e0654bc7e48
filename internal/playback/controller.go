// Package playback speaks text through a remote synthesizer with an
// on-device fallback, keeping at most one playback active at a time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/studyvoice/internal/audio"
)

// ErrNoSynthesizer indicates neither the remote nor a fallback synthesizer can run.
var ErrNoSynthesizer = errors.New("playback: no synthesizer available")

var errRemoteMarkedDown = errors.New("remote synthesizer marked unavailable")

// Options carries per-utterance voice hints for the remote synthesizer.
type Options struct {
	Emotion  string
	AgeGroup string
}

// RemoteSynthesizer turns text into WAV bytes.
type RemoteSynthesizer interface {
	Synthesize(ctx context.Context, text string, opts Options) ([]byte, error)
}

// Player plays a decoded clip, blocking until it ends or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, clip audio.Clip) error
}

// LocalSynthesizer speaks text on-device, blocking until done or ctx is cancelled.
type LocalSynthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Config wires a Controller.
type Config struct {
	Remote          RemoteSynthesizer
	Player          Player
	Local           LocalSynthesizer
	FallbackEnabled bool
	Logger          *slog.Logger

	// OnSpeakingChange observes isSpeaking transitions. Called without locks held.
	OnSpeakingChange func(bool)
}

// Controller owns the single active playback handle.
type Controller struct {
	remote           RemoteSynthesizer
	player           Player
	local            LocalSynthesizer
	fallbackEnabled  bool
	logger           *slog.Logger
	onSpeakingChange func(bool)

	mu                sync.Mutex
	generation        uint64
	cancel            context.CancelFunc
	speaking          bool
	remoteUnavailable bool
}

// NewController builds a controller from cfg; a nil logger discards output.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		remote:           cfg.Remote,
		player:           cfg.Player,
		local:            cfg.Local,
		fallbackEnabled:  cfg.FallbackEnabled,
		logger:           logger,
		onSpeakingChange: cfg.OnSpeakingChange,
	}
}

// Speaking reports whether audio is currently playing.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// RemoteAvailable reports whether the remote synthesizer is still trusted.
func (c *Controller) RemoteAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.remoteUnavailable
}

// Speak cancels any active playback, then synthesizes and plays text. It
// blocks until playback ends. A call that is superseded or stopped returns nil.
func (c *Controller) Speak(ctx context.Context, text string, opts Options) error {
	clean := Sanitize(text)
	if !Speakable(clean) {
		return nil
	}

	c.mu.Lock()
	previous := c.cancel
	c.generation++
	gen := c.generation
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	wasSpeaking := c.speaking
	c.speaking = false
	skipRemote := c.remoteUnavailable && c.fallbackUsable()
	c.mu.Unlock()

	if previous != nil {
		previous()
	}
	if wasSpeaking {
		c.notifySpeaking(false)
	}
	defer c.release(gen, cancel)

	if skipRemote || c.remote == nil {
		cause := errRemoteMarkedDown
		if c.remote == nil {
			cause = ErrNoSynthesizer
		}
		return c.fallback(runCtx, gen, clean, cause)
	}

	payload, err := c.remote.Synthesize(runCtx, clean, opts)
	if runCtx.Err() != nil {
		return nil
	}
	var clip audio.Clip
	if err == nil {
		clip, err = audio.DecodeWAV(payload)
		if err != nil {
			err = fmt.Errorf("decode synthesized audio: %w", err)
		}
	}
	if err != nil {
		c.markRemoteUnavailable(err)
		return c.fallback(runCtx, gen, clean, err)
	}

	if c.player == nil {
		return c.fallback(runCtx, gen, clean, errors.New("no audio player configured"))
	}
	playErr := c.play(runCtx, gen, func(ctx context.Context) error {
		return c.player.Play(ctx, clip)
	})
	if playErr == nil || runCtx.Err() != nil {
		return nil
	}
	c.logger.Warn("remote speech playback failed", "error", playErr.Error())
	return c.fallback(runCtx, gen, clean, playErr)
}

// Stop cancels the in-flight request and any playing audio. Safe to call
// repeatedly or with nothing active.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.generation++
	wasSpeaking := c.speaking
	c.speaking = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wasSpeaking {
		c.notifySpeaking(false)
	}
}

func (c *Controller) fallback(ctx context.Context, gen uint64, text string, cause error) error {
	if !c.fallbackUsable() {
		if errors.Is(cause, ErrNoSynthesizer) {
			return ErrNoSynthesizer
		}
		return fmt.Errorf("speak without fallback: %w", cause)
	}

	c.logger.Debug("speaking with fallback synthesizer", "cause", cause.Error())
	err := c.play(ctx, gen, func(ctx context.Context) error {
		return c.local.Speak(ctx, text)
	})
	if err == nil || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("fallback synthesizer: %w", err)
}

// play marks the handle speaking for the duration of fn, as long as gen is
// still the current handle.
func (c *Controller) play(ctx context.Context, gen uint64, fn func(context.Context) error) error {
	if !c.setSpeaking(gen, true) {
		return nil
	}
	err := fn(ctx)
	c.setSpeaking(gen, false)
	return err
}

func (c *Controller) setSpeaking(gen uint64, speaking bool) bool {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return false
	}
	changed := c.speaking != speaking
	c.speaking = speaking
	c.mu.Unlock()

	if changed {
		c.notifySpeaking(speaking)
	}
	return true
}

func (c *Controller) release(gen uint64, cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	if gen == c.generation {
		c.cancel = nil
	}
	c.mu.Unlock()
}

func (c *Controller) markRemoteUnavailable(err error) {
	c.mu.Lock()
	already := c.remoteUnavailable
	c.remoteUnavailable = true
	c.mu.Unlock()

	if !already {
		c.logger.Warn("remote synthesizer unavailable", "error", err.Error())
	}
}

func (c *Controller) fallbackUsable() bool {
	return c.fallbackEnabled && c.local != nil
}

func (c *Controller) notifySpeaking(speaking bool) {
	if c.onSpeakingChange != nil {
		c.onSpeakingChange(speaking)
	}
}
