package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rbright/studyvoice/internal/audio"
	"github.com/rbright/studyvoice/internal/backend"
	"github.com/rbright/studyvoice/internal/config"
	"github.com/rbright/studyvoice/internal/indicator"
	"github.com/rbright/studyvoice/internal/pipeline"
	"github.com/rbright/studyvoice/internal/playback"
	"github.com/rbright/studyvoice/internal/session"
	"github.com/rbright/studyvoice/internal/tutor"
	"github.com/rbright/studyvoice/internal/turn"
)

func newBackend(cfg config.Config) *backend.Client {
	return backend.New(
		cfg.Backend.BaseURL,
		backend.FileToken{Path: cfg.Backend.TokenFile},
		time.Duration(cfg.Backend.TimeoutMS)*time.Millisecond,
	)
}

// remoteSpeech adapts the backend TTS endpoint to playback.RemoteSynthesizer.
type remoteSpeech struct {
	client *backend.Client
}

func (r remoteSpeech) Synthesize(ctx context.Context, text string, opts playback.Options) ([]byte, error) {
	speech, err := r.client.Synthesize(ctx, backend.SynthesizeRequest{
		Text:     text,
		Emotion:  opts.Emotion,
		AgeGroup: opts.AgeGroup,
	})
	if err != nil {
		return nil, err
	}
	return speech.Audio, nil
}

func newSpeaker(cfg config.Config, client *backend.Client, logger *slog.Logger) *playback.Controller {
	return playback.NewController(playback.Config{
		Remote: remoteSpeech{client: client},
		Player: audio.NewPulsePlayer(cfg.Indicator.AppName + " speech"),
		Local: playback.NewCommandSynthesizer(
			cfg.Playback.FallbackCmd.Argv,
			cfg.Playback.Rate,
			cfg.Playback.Pitch,
			cfg.Playback.Voice,
		),
		FallbackEnabled: cfg.Playback.FallbackEnable,
		Logger:          logger,
		OnSpeakingChange: func(speaking bool) {
			logger.Debug("speaking changed", "speaking", speaking)
		},
	})
}

// newResponder selects the tutor collaborator for cfg.Tutor.Kind.
func newResponder(cfg config.Config, client *backend.Client) (tutor.Responder, io.Closer, error) {
	profile := tutor.Profile{
		Subject:    cfg.Tutor.Subject,
		GradeLevel: cfg.Tutor.GradeLevel,
		AgeGroup:   cfg.Playback.AgeGroup,
	}

	switch cfg.Tutor.Kind {
	case config.TutorOpenAI:
		responder, err := tutor.NewOpenAIResponder(tutor.OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: cfg.Tutor.OpenAIBaseURL,
			Model:   cfg.Tutor.OpenAIModel,
			Profile: profile,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openai tutor: %w", err)
		}
		return responder, nil, nil
	case config.TutorLecture:
		url, err := tutor.LectureURL(cfg.Tutor.LectureURL, cfg.Backend.BaseURL, profile)
		if err != nil {
			return nil, nil, err
		}
		responder := tutor.NewLectureResponder(url)
		return responder, responder, nil
	default:
		return tutor.NewHTTPResponder(client, cfg.Tutor.Subject), nil, nil
	}
}

// liveSession bundles the owner controller with the resources it must release.
type liveSession struct {
	controller *session.Controller
	notifier   *indicator.Notifier
	closer     io.Closer
}

func newLiveSession(cfg config.Config, logger *slog.Logger) (*liveSession, error) {
	client := newBackend(cfg)
	responder, closer, err := newResponder(cfg, client)
	if err != nil {
		return nil, err
	}

	notifier := indicator.NewNotifier(cfg.Indicator, logger)
	live := &liveSession{notifier: notifier, closer: closer}

	var controller *session.Controller
	controller = session.NewController(session.Config{
		Recognizer:     pipeline.NewRecognizer(cfg, client, logger),
		Language:       cfg.Recognition.Language,
		SilenceTimeout: turn.DefaultSilenceTimeout,
		Speaker:        newSpeaker(cfg, client, logger),
		SpeakOptions:   playback.Options{Emotion: cfg.Playback.Emotion, AgeGroup: cfg.Playback.AgeGroup},
		Indicator:      notifier,
		Logger:         logger,
		OnUserSpeech: func(ctx context.Context, text string) {
			answerTurn(ctx, controller, responder, logger, text)
		},
		OnError: func(message string) {
			logger.Error("live session failed", "message", message)
		},
		OnLive: func(ctx context.Context) {
			greeter, ok := responder.(tutor.Greeter)
			if !ok {
				return
			}
			reply, err := greeter.Greeting(ctx)
			if err != nil {
				logger.Warn("tutor greeting failed", "error", err.Error())
				return
			}
			if strings.TrimSpace(reply.Text) == "" {
				return
			}
			reportSpeech(logger, "speak greeting failed", controller.SpeakGreeting(ctx, reply.Text, reply.Emotion))
		},
	})
	live.controller = controller
	return live, nil
}

// answerTurn asks the tutor for a reply to one user turn and speaks it.
func answerTurn(ctx context.Context, controller *session.Controller, responder tutor.Responder, logger *slog.Logger, text string) {
	logger.Debug("user turn", "chars", len(text))
	reply, err := responder.Respond(ctx, text)
	if err != nil {
		logger.Warn("tutor reply failed", "error", err.Error())
		controller.EndTurn()
		return
	}
	reportSpeech(logger, "speak reply failed", controller.SpeakReply(ctx, reply.Text, reply.Emotion))
}

// reportSpeech logs playback failures other than the session ending.
func reportSpeech(logger *slog.Logger, msg string, err error) {
	switch {
	case err == nil, errors.Is(err, session.ErrNotLive), errors.Is(err, context.Canceled):
	default:
		logger.Warn(msg, "error", err.Error())
	}
}

// Close waits for indicator cues and releases the tutor connection.
func (l *liveSession) Close() {
	l.notifier.Wait()
	if l.closer != nil {
		_ = l.closer.Close()
	}
}
