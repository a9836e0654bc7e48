package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type jsoncConfig struct {
	Backend     *jsoncBackend     `json:"backend"`
	Recognition *jsoncRecognition `json:"recognition"`
	Playback    *jsoncPlayback    `json:"playback"`
	Audio       *jsoncAudio       `json:"audio"`
	Tutor       *jsoncTutor       `json:"tutor"`
	Indicator   *jsoncIndicator   `json:"indicator"`
	Debug       *jsoncDebug       `json:"debug"`
}

type jsoncBackend struct {
	BaseURL   *string `json:"base_url"`
	GRPC      *string `json:"grpc"`
	TokenFile *string `json:"token_file"`
	TimeoutMS *int    `json:"timeout_ms"`
}

type jsoncRecognition struct {
	Language        *string  `json:"language"`
	Continuous      *bool    `json:"continuous"`
	MaxUtteranceMS  *int     `json:"max_utterance_ms"`
	EndSilenceMS    *int     `json:"end_silence_ms"`
	EnergyThreshold *float64 `json:"energy_threshold"`
	InterimResults  *bool    `json:"interim_results"`
}

type jsoncPlayback struct {
	Emotion        *string  `json:"emotion"`
	AgeGroup       *string  `json:"age_group"`
	FallbackEnable *bool    `json:"fallback_enable"`
	FallbackCmd    *string  `json:"fallback_cmd"`
	Rate           *float64 `json:"rate"`
	Pitch          *float64 `json:"pitch"`
	Voice          *string  `json:"voice"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncTutor struct {
	Kind          *string `json:"kind"`
	Subject       *string `json:"subject"`
	GradeLevel    *int    `json:"grade_level"`
	OpenAIModel   *string `json:"openai_model"`
	OpenAIBaseURL *string `json:"openai_base_url"`
	LectureURL    *string `json:"lecture_url"`
}

type jsoncIndicator struct {
	SoundEnable    *bool   `json:"sound_enable"`
	DesktopNotify  *bool   `json:"desktop_notify"`
	AppName        *string `json:"app_name"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncDebug struct {
	AudioDump *bool   `json:"audio_dump"`
	LogLevel  *string `json:"log_level"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := stripJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, locateJSONError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, locateJSONError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if b := payload.Backend; b != nil {
		setString(&cfg.Backend.BaseURL, b.BaseURL)
		setString(&cfg.Backend.GRPC, b.GRPC)
		setString(&cfg.Backend.TokenFile, b.TokenFile)
		setValue(&cfg.Backend.TimeoutMS, b.TimeoutMS)
	}

	if r := payload.Recognition; r != nil {
		setString(&cfg.Recognition.Language, r.Language)
		setValue(&cfg.Recognition.Continuous, r.Continuous)
		setValue(&cfg.Recognition.MaxUtteranceMS, r.MaxUtteranceMS)
		setValue(&cfg.Recognition.EndSilenceMS, r.EndSilenceMS)
		setValue(&cfg.Recognition.EnergyThreshold, r.EnergyThreshold)
		setValue(&cfg.Recognition.InterimResults, r.InterimResults)
		if r.Continuous != nil && !*r.Continuous {
			warnings = append(warnings, Warning{Message: "recognition.continuous=false only affects one-shot commands; live mode always listens continuously"})
		}
	}

	if p := payload.Playback; p != nil {
		setString(&cfg.Playback.Emotion, p.Emotion)
		setString(&cfg.Playback.AgeGroup, p.AgeGroup)
		setValue(&cfg.Playback.FallbackEnable, p.FallbackEnable)
		setValue(&cfg.Playback.Rate, p.Rate)
		setValue(&cfg.Playback.Pitch, p.Pitch)
		setString(&cfg.Playback.Voice, p.Voice)
		if p.FallbackCmd != nil {
			raw := *p.FallbackCmd
			argv, err := splitCommand(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid playback.fallback_cmd: %w", err)
			}
			cfg.Playback.FallbackCmd = CommandConfig{Raw: raw, Argv: argv}
		}
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
	}

	if t := payload.Tutor; t != nil {
		if t.Kind != nil {
			cfg.Tutor.Kind = strings.ToLower(strings.TrimSpace(*t.Kind))
		}
		setString(&cfg.Tutor.Subject, t.Subject)
		setValue(&cfg.Tutor.GradeLevel, t.GradeLevel)
		setString(&cfg.Tutor.OpenAIModel, t.OpenAIModel)
		setString(&cfg.Tutor.OpenAIBaseURL, t.OpenAIBaseURL)
		setString(&cfg.Tutor.LectureURL, t.LectureURL)
	}

	if i := payload.Indicator; i != nil {
		setValue(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setValue(&cfg.Indicator.DesktopNotify, i.DesktopNotify)
		setString(&cfg.Indicator.AppName, i.AppName)
		setValue(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
	}

	if d := payload.Debug; d != nil {
		setValue(&cfg.Debug.AudioDump, d.AudioDump)
		if d.LogLevel != nil {
			cfg.Debug.LogLevel = strings.ToLower(strings.TrimSpace(*d.LogLevel))
		}
	}

	return warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
