// Package pipeline implements the platform speech recognizer: Pulse capture,
// energy endpointing, and remote transcription of each utterance.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rbright/studyvoice/internal/audio"
	"github.com/rbright/studyvoice/internal/backend"
	"github.com/rbright/studyvoice/internal/config"
	"github.com/rbright/studyvoice/internal/recognition"
)

const (
	bytesPerSecond = audio.CaptureSampleRate * 2
	// noSpeechWindow ends a stream that never heard a voice.
	noSpeechWindow = 8 * time.Second
	preRollChunks  = 10
	interimEvery   = time.Second
	// holdEvery repeats the latest interim text while the final transcription
	// is pending. It must stay below the turn silence timeout.
	holdEvery = 500 * time.Millisecond
)

// Stream is one open microphone capture.
type Stream interface {
	Chunks() <-chan []byte
	Stop() error
}

// OpenFunc opens a capture stream.
type OpenFunc func(ctx context.Context) (Stream, error)

// Transcriber converts one WAV utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, language string) (backend.Transcription, error)
}

// Endpointing bounds one utterance window.
type Endpointing struct {
	EnergyThreshold float64
	EndSilence      time.Duration
	MaxUtterance    time.Duration
}

// Recognizer runs one utterance window per Recognize call.
type Recognizer struct {
	open      OpenFunc
	stt       Transcriber
	endpoint  Endpointing
	interim   bool
	hold      time.Duration
	audioDump bool
	logger    *slog.Logger
}

// NewRecognizer builds a Pulse-backed recognizer from runtime config.
func NewRecognizer(cfg config.Config, stt Transcriber, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recognizer{
		open:      pulseOpener(cfg.Audio, logger),
		stt:       stt,
		endpoint:  EndpointingFromConfig(cfg.Recognition),
		interim:   cfg.Recognition.InterimResults,
		hold:      holdEvery,
		audioDump: cfg.Debug.AudioDump,
		logger:    logger,
	}
}

// EndpointingFromConfig converts millisecond settings into durations.
func EndpointingFromConfig(cfg config.RecognitionConfig) Endpointing {
	return Endpointing{
		EnergyThreshold: cfg.EnergyThreshold,
		EndSilence:      time.Duration(cfg.EndSilenceMS) * time.Millisecond,
		MaxUtterance:    time.Duration(cfg.MaxUtteranceMS) * time.Millisecond,
	}
}

func pulseOpener(cfg config.AudioConfig, logger *slog.Logger) OpenFunc {
	return func(ctx context.Context) (Stream, error) {
		selection, err := audio.SelectDevice(ctx, cfg.Input, cfg.Fallback)
		if err != nil {
			return nil, err
		}
		if selection.Warning != "" {
			logger.Warn(selection.Warning)
		}
		capture, err := audio.StartCapture(ctx, selection.Device)
		if err != nil {
			return nil, err
		}
		logger.Debug("capture started", "device", describeDevice(selection.Device))
		return capture, nil
	}
}

// Recognize captures until the utterance ends, transcribes it, and emits one
// final event. Interim events may precede it when enabled; the newest one is
// repeated while the final transcription is in flight.
func (r *Recognizer) Recognize(ctx context.Context, opts recognition.Options, emit func(recognition.TranscriptEvent)) error {
	if r.stt == nil {
		return recognition.NewError(recognition.ErrorServiceNotAllowed, errors.New("no speech-to-text backend configured"))
	}

	stream, err := r.open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return recognition.NewError(recognition.ErrorAborted, ctx.Err())
		}
		if errors.Is(err, audio.ErrDeviceMuted) {
			return recognition.NewError(recognition.ErrorNotAllowed, err)
		}
		return recognition.NewError(recognition.ErrorAudioCapture, err)
	}
	defer func() { _ = stream.Stop() }()

	language := STTLanguage(opts.Language)
	u := &utterance{
		endpoint: r.endpoint,
		emit:     emit,
	}
	interimCtx, cancelInterim := context.WithCancel(ctx)
	defer cancelInterim()
	holding := r.interim && r.hold > 0
	stopHold := func() {}
	if holding {
		stopHold = u.holdTurn(ctx, r.hold)
	}
	defer stopHold()

	for {
		var (
			chunk []byte
			open  bool
		)
		select {
		case <-ctx.Done():
			return recognition.NewError(recognition.ErrorAborted, ctx.Err())
		case chunk, open = <-stream.Chunks():
		}

		if !open {
			if ctx.Err() != nil {
				return recognition.NewError(recognition.ErrorAborted, ctx.Err())
			}
			if !u.started {
				return recognition.NewError(recognition.ErrorAudioCapture, errors.New("capture ended before speech"))
			}
			break
		}

		done, timedOut := u.push(chunk)
		if timedOut {
			return recognition.NewError(recognition.ErrorNoSpeech, nil)
		}
		if done {
			break
		}
		if r.interim && u.interimDue() {
			u.startInterim(interimCtx, r.stt, language, r.logger)
		}
	}

	_ = stream.Stop()
	if lossy, ok := stream.(interface{ Dropped() int64 }); ok && lossy.Dropped() > 0 {
		r.logger.Warn("capture dropped audio chunks", "dropped", lossy.Dropped())
	}
	pcm := u.finish(cancelInterim)
	if holding {
		u.repeatLatest()
	}
	r.writeDebugAudio(pcm)

	result, err := r.stt.Transcribe(ctx, audio.EncodeWAV(pcm, audio.CaptureSampleRate), language)
	stopHold()
	if err != nil {
		return classify(ctx, err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return recognition.NewError(recognition.ErrorNoSpeech, nil)
	}
	emit(recognition.TranscriptEvent{Text: result.Text, IsFinal: true})
	return nil
}

// utterance tracks endpointing state for one stream.
type utterance struct {
	endpoint Endpointing
	emit     func(recognition.TranscriptEvent)

	started     bool
	preRoll     [][]byte
	pcm         []byte
	quiet       time.Duration
	waited      time.Duration
	lastInterim time.Duration

	mu        sync.Mutex
	finalized bool
	inflight  bool
	latest    string
	wg        sync.WaitGroup
}

// push applies one chunk. done means the utterance ended; timedOut means no
// voice was heard within the no-speech window.
func (u *utterance) push(chunk []byte) (done bool, timedOut bool) {
	d := chunkDuration(chunk)
	voiced := audio.RMS(chunk) >= u.endpoint.EnergyThreshold

	if !u.started {
		if !voiced {
			u.waited += d
			u.preRoll = append(u.preRoll, chunk)
			if len(u.preRoll) > preRollChunks {
				u.preRoll = u.preRoll[1:]
			}
			return false, u.waited >= noSpeechWindow
		}
		u.started = true
		for _, c := range u.preRoll {
			u.pcm = append(u.pcm, c...)
		}
		u.preRoll = nil
	}

	u.mu.Lock()
	u.pcm = append(u.pcm, chunk...)
	spoken := pcmDuration(len(u.pcm))
	u.mu.Unlock()

	if voiced {
		u.quiet = 0
	} else {
		u.quiet += d
	}
	if u.endpoint.EndSilence > 0 && u.quiet >= u.endpoint.EndSilence {
		return true, false
	}
	if u.endpoint.MaxUtterance > 0 && spoken >= u.endpoint.MaxUtterance {
		return true, false
	}
	return false, false
}

func (u *utterance) interimDue() bool {
	if !u.started {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	spoken := pcmDuration(len(u.pcm))
	return !u.inflight && spoken-u.lastInterim >= interimEvery
}

// startInterim transcribes the audio so far. Only one request is in flight,
// and its result is dropped once the utterance is finalized.
func (u *utterance) startInterim(ctx context.Context, stt Transcriber, language string, logger *slog.Logger) {
	u.mu.Lock()
	snapshot := append([]byte(nil), u.pcm...)
	u.lastInterim = pcmDuration(len(snapshot))
	u.inflight = true
	u.wg.Add(1)
	u.mu.Unlock()

	go func() {
		defer u.wg.Done()
		result, err := stt.Transcribe(ctx, audio.EncodeWAV(snapshot, audio.CaptureSampleRate), language)

		u.mu.Lock()
		defer u.mu.Unlock()
		u.inflight = false
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug("interim transcription failed", "error", err.Error())
			}
			return
		}
		text := strings.TrimSpace(result.Text)
		if u.finalized || text == "" {
			return
		}
		u.latest = text
		u.emit(recognition.TranscriptEvent{Text: text})
	}()
}

// repeatLatest re-emits the newest interim text so a listener's silence timer
// does not close the turn before the final result arrives.
func (u *utterance) repeatLatest() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.latest != "" {
		u.emit(recognition.TranscriptEvent{Text: u.latest})
	}
}

// holdTurn calls repeatLatest every interval until the returned stop func
// runs. Stop blocks until the last repeat has been emitted.
func (u *utterance) holdTurn(ctx context.Context, every time.Duration) func() {
	holdCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-holdCtx.Done():
				return
			case <-ticker.C:
				u.repeatLatest()
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// finish seals the utterance so no interim can follow, then returns its PCM.
func (u *utterance) finish(cancelInterim context.CancelFunc) []byte {
	u.mu.Lock()
	u.finalized = true
	pcm := u.pcm
	u.mu.Unlock()

	cancelInterim()
	u.wg.Wait()
	return pcm
}

// classify maps a transcription failure onto the recognition taxonomy.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return recognition.NewError(recognition.ErrorAborted, err)
	}
	if statusErr, ok := backend.AsStatusError(err); ok {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable:
			return recognition.NewError(recognition.ErrorServiceNotAllowed, err)
		default:
			return recognition.NewError(recognition.ErrorUnclassified, err)
		}
	}
	if backend.IsTransport(err) {
		return recognition.NewError(recognition.ErrorNetwork, err)
	}
	return recognition.NewError(recognition.ErrorUnclassified, err)
}

// STTLanguage reduces a BCP-47 tag to the primary subtag the backend expects.
func STTLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "en"
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

func chunkDuration(chunk []byte) time.Duration {
	return pcmDuration(len(chunk))
}

func pcmDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / bytesPerSecond
}

// describeDevice formats device metadata for logs.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}
