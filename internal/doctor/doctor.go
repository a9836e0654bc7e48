// Package doctor runs readiness diagnostics for config, backend, audio, and
// the speech fallbacks.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/rbright/studyvoice/internal/audio"
	"github.com/rbright/studyvoice/internal/backend"
	"github.com/rbright/studyvoice/internal/config"
	"github.com/rbright/studyvoice/internal/tutor"
)

const probeTimeout = 3 * time.Second

// Check is one diagnostic line.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

func pass(name, format string, args ...any) Check {
	return Check{Name: name, Pass: true, Message: fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) Check {
	return Check{Name: name, Message: fmt.Sprintf(format, args...)}
}

// Report is every check in run order.
type Report struct {
	Checks []Check
}

// OK reports whether no check failed.
func (r Report) OK() bool {
	return !slices.ContainsFunc(r.Checks, func(c Check) bool { return !c.Pass })
}

// String renders one "[OK] name: message" line per check.
func (r Report) String() string {
	lines := make([]string, 0, len(r.Checks))
	for _, c := range r.Checks {
		status := "OK"
		if !c.Pass {
			status = "FAIL"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", status, c.Name, c.Message))
	}
	return strings.Join(lines, "\n")
}

// StatusClient is the backend surface the doctor probes.
type StatusClient interface {
	Status(ctx context.Context) (backend.VoiceStatus, error)
}

// Run checks config, backend, audio, and speech fallbacks for loaded.
func Run(ctx context.Context, loaded config.Loaded, client StatusClient) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded), checkRuntimeDir(), checkToken(cfg.Backend), checkVoiceStatus(ctx, client)}
	if strings.TrimSpace(cfg.Backend.GRPC) != "" {
		checks = append(checks, checkGRPCHealth(ctx, cfg.Backend.GRPC))
	}
	checks = append(checks, checkAudioSelection(ctx, cfg))
	if cfg.Playback.FallbackEnable {
		checks = append(checks, checkFallbackCommand(cfg.Playback.FallbackCmd.Argv))
	}
	checks = append(checks, checkTutor(cfg))
	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 {
		message = fmt.Sprintf("%s (%d warnings)", message, n)
	}
	return pass("config", "%s", message)
}

// checkRuntimeDir fails when toggle/stop would have nowhere to find the
// session socket.
func checkRuntimeDir() Check {
	const name = "XDG_RUNTIME_DIR"
	dir := strings.TrimSpace(os.Getenv(name))
	if dir == "" {
		return fail(name, "unset; toggle/stop cannot reach a live session")
	}
	return pass(name, "session socket under %s", dir)
}

// checkFallbackCommand resolves the fallback synthesizer binary on PATH.
func checkFallbackCommand(argv []string) Check {
	const name = "playback.fallback_cmd"
	if len(argv) == 0 {
		return fail(name, "command is empty")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fail(name, "%s not found in PATH", argv[0])
	}
	return pass(name, "%s found at %s", argv[0], path)
}

// checkToken reports whether a bearer token is available without printing it.
func checkToken(cfg config.BackendConfig) Check {
	token, err := backend.FileToken{Path: cfg.TokenFile}.Token()
	if err != nil {
		return fail("backend.token", "%v", err)
	}
	if token == "" {
		return fail("backend.token", "no token in %s or %s", backend.TokenEnv, cfg.TokenFile)
	}
	source := cfg.TokenFile
	if strings.TrimSpace(os.Getenv(backend.TokenEnv)) != "" {
		source = backend.TokenEnv
	}
	return pass("backend.token", "token present (%s)", source)
}

// checkVoiceStatus asks the backend whether its speech models are loaded.
func checkVoiceStatus(ctx context.Context, client StatusClient) Check {
	if client == nil {
		return fail("backend.voice", "backend client not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		return fail("backend.voice", "status request failed: %v", err)
	}

	var missing []string
	if !status.TTS.Loaded {
		missing = append(missing, "tts")
	}
	if !status.STT.Loaded {
		missing = append(missing, "stt")
	}
	if len(missing) > 0 {
		return fail("backend.voice", "not loaded: %s (fallback synthesizer will be used)", strings.Join(missing, ", "))
	}
	return pass("backend.voice", "tts %s @ %d Hz, stt %s, %d emotions",
		status.TTS.ModelType, status.TTS.SampleRate, status.STT.ModelSize, len(status.AvailableEmotions))
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return fail("audio.device", "%v", err)
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return pass("audio.device", "%s", message)
}

// checkTutor validates the prerequisites of the configured tutor kind.
func checkTutor(cfg config.Config) Check {
	switch cfg.Tutor.Kind {
	case config.TutorOpenAI:
		if strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) == "" {
			return fail("tutor", "tutor.kind=openai requires OPENAI_API_KEY")
		}
		return pass("tutor", "openai model %s", cfg.Tutor.OpenAIModel)
	case config.TutorLecture:
		url, err := tutor.LectureURL(cfg.Tutor.LectureURL, cfg.Backend.BaseURL, tutor.Profile{})
		if err != nil {
			return fail("tutor", "%v", err)
		}
		return pass("tutor", "live lecture at %s", url)
	default:
		return pass("tutor", "backend tutor chat (subject %s)", cfg.Tutor.Subject)
	}
}
