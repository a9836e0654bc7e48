package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty base url", mutate: func(c *Config) { c.Backend.BaseURL = "" }, wantErr: "backend.base_url must not be empty"},
		{name: "non-http base url", mutate: func(c *Config) { c.Backend.BaseURL = "ftp://host" }, wantErr: "http(s) URL"},
		{name: "hostless base url", mutate: func(c *Config) { c.Backend.BaseURL = "http://" }, wantErr: "http(s) URL"},
		{name: "zero timeout", mutate: func(c *Config) { c.Backend.TimeoutMS = 0 }, wantErr: "backend.timeout_ms"},
		{name: "empty language", mutate: func(c *Config) { c.Recognition.Language = "" }, wantErr: "recognition.language"},
		{name: "zero end silence", mutate: func(c *Config) { c.Recognition.EndSilenceMS = 0 }, wantErr: "end_silence_ms"},
		{name: "utterance shorter than silence", mutate: func(c *Config) { c.Recognition.MaxUtteranceMS = 500 }, wantErr: "max_utterance_ms"},
		{name: "energy out of range", mutate: func(c *Config) { c.Recognition.EnergyThreshold = 1.5 }, wantErr: "energy_threshold"},
		{name: "unknown emotion", mutate: func(c *Config) { c.Playback.Emotion = "angry" }, wantErr: "playback.emotion"},
		{name: "unknown age group", mutate: func(c *Config) { c.Playback.AgeGroup = "toddler" }, wantErr: "playback.age_group"},
		{name: "zero rate", mutate: func(c *Config) { c.Playback.Rate = 0 }, wantErr: "playback.rate"},
		{name: "fallback without command", mutate: func(c *Config) { c.Playback.FallbackCmd = CommandConfig{} }, wantErr: "fallback_cmd"},
		{name: "unknown tutor", mutate: func(c *Config) { c.Tutor.Kind = "oracle" }, wantErr: "tutor.kind"},
		{name: "grade out of range", mutate: func(c *Config) { c.Tutor.GradeLevel = 30 }, wantErr: "grade_level"},
		{name: "http lecture url", mutate: func(c *Config) { c.Tutor.LectureURL = "http://host/ws" }, wantErr: "tutor.lecture_url"},
		{name: "notify without app name", mutate: func(c *Config) { c.Indicator.AppName = " " }, wantErr: "indicator.app_name"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "error_timeout"},
		{name: "unknown log level", mutate: func(c *Config) { c.Debug.LogLevel = "trace" }, wantErr: "debug.log_level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateAllowsDisabledFallbackWithoutCommand(t *testing.T) {
	cfg := Default()
	cfg.Playback.FallbackEnable = false
	cfg.Playback.FallbackCmd = CommandConfig{}

	_, err := Validate(cfg)
	require.NoError(t, err)
}

func TestValidateWarnsOnIgnoredOpenAIBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Tutor.OpenAIBaseURL = "http://localhost:11434/v1"

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "openai_base_url")

	cfg.Tutor.Kind = TutorOpenAI
	warnings, err = Validate(cfg)
	require.NoError(t, err)
	require.Empty(t, warnings)
}
