// Package config resolves, parses, validates, and defaults studyvoice configuration.
package config

// Config is the fully materialized runtime configuration used by studyvoice.
type Config struct {
	Backend     BackendConfig
	Recognition RecognitionConfig
	Playback    PlaybackConfig
	Audio       AudioConfig
	Tutor       TutorConfig
	Indicator   IndicatorConfig
	Debug       DebugConfig
}

// BackendConfig locates the learning-app API and its credentials.
type BackendConfig struct {
	BaseURL   string
	GRPC      string
	TokenFile string
	TimeoutMS int
}

// RecognitionConfig controls capture endpointing and transcription.
type RecognitionConfig struct {
	Language        string
	Continuous      bool
	MaxUtteranceMS  int
	EndSilenceMS    int
	EnergyThreshold float64
	InterimResults  bool
}

// PlaybackConfig controls reply synthesis and the on-device fallback.
type PlaybackConfig struct {
	Emotion        string
	AgeGroup       string
	FallbackEnable bool
	FallbackCmd    CommandConfig
	Rate           float64
	Pitch          float64
	Voice          string
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// TutorConfig selects the collaborator that answers each turn.
type TutorConfig struct {
	Kind          string
	Subject       string
	GradeLevel    int
	OpenAIModel   string
	OpenAIBaseURL string
	LectureURL    string
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	SoundEnable    bool
	DesktopNotify  bool
	AppName        string
	ErrorTimeoutMS int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output and log verbosity.
type DebugConfig struct {
	AudioDump bool
	LogLevel  string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// Tutor kinds.
const (
	TutorBackend = "backend"
	TutorOpenAI  = "openai"
	TutorLecture = "lecture"
)

// Emotions lists the synthesis presets accepted by the voice backend.
var Emotions = []string{"friendly", "excited", "encouraging", "calm", "playful"}

// AgeGroups lists the voice age presets accepted by the voice backend.
var AgeGroups = []string{"primary", "middle_school", "high_school", "adult"}
