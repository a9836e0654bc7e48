package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rbright/studyvoice/internal/audio"
)

// dumpSeq keeps dump names unique when two utterances end in the same millisecond.
var dumpSeq atomic.Uint64

// writeDebugAudio saves the utterance as WAV under the state dir when
// debug.audio_dump is set. Failures are logged, never returned.
func (r *Recognizer) writeDebugAudio(pcm []byte) {
	if !r.audioDump || len(pcm) == 0 {
		return
	}
	path, err := debugDumpPath(time.Now(), dumpSeq.Add(1))
	if err == nil {
		err = os.WriteFile(path, audio.EncodeWAV(pcm, audio.CaptureSampleRate), 0o600)
	}
	if err != nil {
		r.logger.Warn("debug audio dump failed", "error", err)
		return
	}
	r.logger.Debug("debug audio dump written", "path", path, "bytes", len(pcm))
}

// debugDumpPath returns <state>/studyvoice/debug/utterance-<time>-<seq>.wav,
// creating the directory.
func debugDumpPath(now time.Time, seq uint64) (string, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(stateDir, "studyvoice", "debug")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	name := fmt.Sprintf("utterance-%s-%03d.wav", now.Format("20060102-150405.000"), seq)
	return filepath.Join(dir, name), nil
}

func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
