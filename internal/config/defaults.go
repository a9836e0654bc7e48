package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	fallback := "espeak-ng"

	return Config{
		Backend: BackendConfig{
			BaseURL:   "http://127.0.0.1:8000",
			TokenFile: "~/.config/studyvoice/token",
			TimeoutMS: 30000,
		},
		Recognition: RecognitionConfig{
			Language:        "en-US",
			Continuous:      true,
			MaxUtteranceMS:  15000,
			EndSilenceMS:    700,
			EnergyThreshold: 0.02,
			InterimResults:  true,
		},
		Playback: PlaybackConfig{
			Emotion:        "friendly",
			AgeGroup:       "middle_school",
			FallbackEnable: true,
			FallbackCmd:    CommandConfig{Raw: fallback, Argv: []string{fallback}},
			Rate:           0.9,
			Pitch:          1.1,
			Voice:          "english",
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Tutor: TutorConfig{
			Kind:        TutorBackend,
			Subject:     "general",
			GradeLevel:  7,
			OpenAIModel: "gpt-4o-mini",
		},
		Indicator: IndicatorConfig{
			SoundEnable:    true,
			DesktopNotify:  true,
			AppName:        "studyvoice",
			ErrorTimeoutMS: 4000,
		},
		Debug: DebugConfig{LogLevel: "info"},
	}
}
