package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	base := strings.TrimSpace(cfg.Backend.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("backend.base_url must not be empty")
	}
	parsed, err := url.Parse(base)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("backend.base_url must be an http(s) URL, got %q", base)
	}
	if cfg.Backend.TimeoutMS <= 0 {
		return nil, fmt.Errorf("backend.timeout_ms must be > 0")
	}

	if strings.TrimSpace(cfg.Recognition.Language) == "" {
		return nil, fmt.Errorf("recognition.language must not be empty")
	}
	if cfg.Recognition.EndSilenceMS <= 0 {
		return nil, fmt.Errorf("recognition.end_silence_ms must be > 0")
	}
	if cfg.Recognition.MaxUtteranceMS <= cfg.Recognition.EndSilenceMS {
		return nil, fmt.Errorf("recognition.max_utterance_ms must be greater than recognition.end_silence_ms")
	}
	if cfg.Recognition.EnergyThreshold <= 0 || cfg.Recognition.EnergyThreshold >= 1 {
		return nil, fmt.Errorf("recognition.energy_threshold must be between 0 and 1")
	}

	if cfg.Playback.Emotion != "" && !slices.Contains(Emotions, cfg.Playback.Emotion) {
		return nil, fmt.Errorf("playback.emotion must be one of: %s", strings.Join(Emotions, ", "))
	}
	if cfg.Playback.AgeGroup != "" && !slices.Contains(AgeGroups, cfg.Playback.AgeGroup) {
		return nil, fmt.Errorf("playback.age_group must be one of: %s", strings.Join(AgeGroups, ", "))
	}
	if cfg.Playback.Rate <= 0 || cfg.Playback.Pitch <= 0 {
		return nil, fmt.Errorf("playback.rate and playback.pitch must be > 0")
	}
	if cfg.Playback.FallbackEnable && len(cfg.Playback.FallbackCmd.Argv) == 0 {
		return nil, fmt.Errorf("playback.fallback_cmd must not be empty when playback.fallback_enable=true")
	}
	if cfg.Playback.Rate > 2.5 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("playback.rate %.2f is clamped by the fallback synthesizer", cfg.Playback.Rate)})
	}

	switch cfg.Tutor.Kind {
	case TutorBackend, TutorOpenAI, TutorLecture:
	default:
		return nil, fmt.Errorf("tutor.kind must be one of: %s, %s, %s", TutorBackend, TutorOpenAI, TutorLecture)
	}
	if cfg.Tutor.GradeLevel < 0 || cfg.Tutor.GradeLevel > 16 {
		return nil, fmt.Errorf("tutor.grade_level must be between 0 and 16")
	}
	if lecture := strings.TrimSpace(cfg.Tutor.LectureURL); lecture != "" {
		parsed, err := url.Parse(lecture)
		if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
			return nil, fmt.Errorf("tutor.lecture_url must be a ws(s) URL, got %q", lecture)
		}
	}
	if cfg.Tutor.Kind != TutorOpenAI && cfg.Tutor.OpenAIBaseURL != "" {
		warnings = append(warnings, Warning{Message: "tutor.openai_base_url is ignored unless tutor.kind=openai"})
	}

	if cfg.Indicator.DesktopNotify && strings.TrimSpace(cfg.Indicator.AppName) == "" {
		return nil, fmt.Errorf("indicator.app_name must not be empty when indicator.desktop_notify=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	switch cfg.Debug.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("debug.log_level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}
