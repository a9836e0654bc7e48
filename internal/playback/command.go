package playback

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// DefaultCommand is the on-device synthesizer binary.
const DefaultCommand = "espeak-ng"

const (
	baseWordsPerMinute = 175
	basePitch          = 50
)

// CommandSynthesizer speaks through an espeak-compatible command line.
type CommandSynthesizer struct {
	argv  []string
	rate  float64
	pitch float64
	voice string

	runOutput func(ctx context.Context, name string, args ...string) ([]byte, error)

	voiceOnce sync.Once
	voiceArg  string
}

// NewCommandSynthesizer builds a fallback synthesizer. An empty argv selects
// DefaultCommand. rate and pitch are multipliers where 1 is the voice default.
func NewCommandSynthesizer(argv []string, rate float64, pitch float64, voice string) *CommandSynthesizer {
	if len(argv) == 0 {
		argv = []string{DefaultCommand}
	}
	return &CommandSynthesizer{
		argv:      append([]string(nil), argv...),
		rate:      rate,
		pitch:     pitch,
		voice:     strings.TrimSpace(voice),
		runOutput: runOutput,
	}
}

// Binary returns the executable the synthesizer runs.
func (s *CommandSynthesizer) Binary() string {
	return s.argv[0]
}

// Speak runs the synthesizer and waits for it to exit. Cancelling ctx kills it.
func (s *CommandSynthesizer) Speak(ctx context.Context, text string) error {
	args := s.args(ctx, text)
	out, err := s.runOutput(ctx, s.argv[0], args...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return fmt.Errorf("run %s: %w", s.argv[0], err)
		}
		return fmt.Errorf("run %s: %w (%s)", s.argv[0], err, trimmed)
	}
	return nil
}

func (s *CommandSynthesizer) args(ctx context.Context, text string) []string {
	args := append([]string(nil), s.argv[1:]...)
	if s.rate > 0 {
		args = append(args, "-s", strconv.Itoa(clampInt(int(baseWordsPerMinute*s.rate), 80, 450)))
	}
	if s.pitch > 0 {
		args = append(args, "-p", strconv.Itoa(clampInt(int(basePitch*s.pitch), 0, 99)))
	}
	if voice := s.resolveVoice(ctx); voice != "" {
		args = append(args, "-v", voice)
	}
	return append(args, "--", text)
}

// resolveVoice matches the preferred voice against the installed voice list
// once. No match leaves the synthesizer default in place.
func (s *CommandSynthesizer) resolveVoice(ctx context.Context) string {
	if s.voice == "" {
		return ""
	}
	s.voiceOnce.Do(func() {
		out, err := s.runOutput(ctx, s.argv[0], "--voices")
		if err != nil {
			return
		}
		s.voiceArg = matchVoice(string(out), s.voice)
	})
	return s.voiceArg
}

// matchVoice scans `--voices` output for the first row whose language, name,
// or file contains preferred, case-insensitively, and returns its language.
func matchVoice(listing string, preferred string) string {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	if preferred == "" {
		return ""
	}
	for i, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) < 5 {
			continue
		}
		language, name, file := fields[1], fields[3], fields[4]
		for _, candidate := range []string{name, language, file} {
			if strings.Contains(strings.ToLower(candidate), preferred) {
				return language
			}
		}
	}
	return ""
}

func runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSynthesizer, name)
	}
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return out, ctx.Err()
	}
	return out, err
}

func clampInt(v int, lo int, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
