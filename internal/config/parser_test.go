package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidConfig(t *testing.T) {
	input := `
{
  // learning-app API
  "backend": {
    "base_url": "https://learn.example.com",
    "grpc": "127.0.0.1:50051",
    "timeout_ms": 12000,
  },
  "recognition": {
    "end_silence_ms": 900,
    "energy_threshold": 0.05,
    "interim_results": false
  },
  "playback": {
    "emotion": "calm",
    "age_group": "high_school",
    "fallback_cmd": "espeak-ng -a 120",
    "voice": "en-gb"
  },
  "audio": {"input": "Elgato"},
  "tutor": {"kind": "lecture", "grade_level": 10, "subject": "biology"},
}
`

	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "https://learn.example.com", cfg.Backend.BaseURL)
	require.Equal(t, "127.0.0.1:50051", cfg.Backend.GRPC)
	require.Equal(t, 12000, cfg.Backend.TimeoutMS)
	require.Equal(t, 900, cfg.Recognition.EndSilenceMS)
	require.Equal(t, 0.05, cfg.Recognition.EnergyThreshold)
	require.False(t, cfg.Recognition.InterimResults)
	require.Equal(t, "calm", cfg.Playback.Emotion)
	require.Equal(t, "high_school", cfg.Playback.AgeGroup)
	require.Equal(t, []string{"espeak-ng", "-a", "120"}, cfg.Playback.FallbackCmd.Argv)
	require.Equal(t, "en-gb", cfg.Playback.Voice)
	require.Equal(t, "Elgato", cfg.Audio.Input)
	require.Equal(t, "default", cfg.Audio.Fallback)
	require.Equal(t, TutorLecture, cfg.Tutor.Kind)
	require.Equal(t, 10, cfg.Tutor.GradeLevel)

	// Untouched sections keep defaults.
	require.Equal(t, Default().Indicator, cfg.Indicator)
	require.Equal(t, 15000, cfg.Recognition.MaxUtteranceMS)
}

func TestParseEmptyKeepsDefaults(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseLeadingCommentIsJSONC(t *testing.T) {
	cfg, _, err := Parse("// studyvoice\n{\"debug\": {\"audio_dump\": true}}", Default())
	require.NoError(t, err)
	require.True(t, cfg.Debug.AudioDump)
}

func TestParseRejectsNonObject(t *testing.T) {
	_, _, err := Parse(`backend.base_url = http://localhost`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "JSONC object")
}

func TestParseUnknownKeyFails(t *testing.T) {
	_, _, err := Parse(`{"backend": {"base": "http://localhost"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseValidationFailureSurfaces(t *testing.T) {
	_, _, err := Parse(`{"playback": {"emotion": "angry"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "playback.emotion")
}

func TestParseRateWarning(t *testing.T) {
	_, warnings, err := Parse(`{"playback": {"rate": 3.0}}`, Default())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "clamped")
}
