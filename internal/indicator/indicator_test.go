package indicator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rbright/studyvoice/internal/audio"
	"github.com/rbright/studyvoice/internal/config"
	"github.com/stretchr/testify/require"
)

type fakeCuePlayer struct {
	mu    sync.Mutex
	clips []audio.Clip
	err   error
}

func (f *fakeCuePlayer) Play(_ context.Context, clip audio.Clip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips = append(f.clips, clip)
	return f.err
}

func (f *fakeCuePlayer) lengths() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.clips))
	for _, clip := range f.clips {
		out = append(out, len(clip.Samples))
	}
	return out
}

func newTestNotifier(t *testing.T, cfg config.IndicatorConfig) (*Notifier, *fakeCuePlayer) {
	t.Helper()
	player := &fakeCuePlayer{}
	n := NewNotifier(cfg, nil)
	n.player = player
	return n, player
}

func TestNotifierDesktopDispatchViaBusctl(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
echo "u 42"
`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false

	n, _ := newTestNotifier(t, cfg)
	n.ShowListening(context.Background())
	n.ShowThinking(context.Background())
	n.ShowError(context.Background(), "")
	n.Hide(context.Background())

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)

	prefix := "--user call org.freedesktop.Notifications /org/freedesktop/Notifications org.freedesktop.Notifications "
	require.Equal(t, prefix+"Notify susssasa{sv}i studyvoice 0 audio-input-microphone Listening…  0 0 0", lines[0])
	require.Equal(t, prefix+"Notify susssasa{sv}i studyvoice 42 audio-input-microphone Thinking…  0 0 0", lines[1])
	require.Equal(t, prefix+"Notify susssasa{sv}i studyvoice 42 audio-input-microphone Voice session error  0 0 4000", lines[2])
	require.Equal(t, prefix+"CloseNotification u 42", lines[3])
}

func TestNotifierDesktopDisabledSkipsBusctl(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
echo "u 1"
`)

	cfg := config.Default().Indicator
	cfg.DesktopNotify = false
	cfg.SoundEnable = false

	n, _ := newTestNotifier(t, cfg)
	n.ShowListening(context.Background())
	n.ShowError(context.Background(), "ignored")
	n.Hide(context.Background())

	_, err := os.Stat(argsFile)
	require.True(t, os.IsNotExist(err))
}

func TestNotifierCuesFollowSessionLifecycle(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.DesktopNotify = false

	n, player := newTestNotifier(t, cfg)
	n.ShowListening(context.Background())
	n.Wait()
	n.ShowListening(context.Background())
	n.ShowThinking(context.Background())
	n.Wait()
	n.CueStop(context.Background())
	n.Wait()
	n.ShowListening(context.Background())
	n.Wait()
	n.ShowError(context.Background(), "Microphone access denied.")
	n.Wait()

	require.Equal(t, []int{
		len(cueSamples(cueStart)),
		len(cueSamples(cueStop)),
		len(cueSamples(cueStart)),
		len(cueSamples(cueError)),
	}, player.lengths())
}

func TestNotifierSoundDisabledPlaysNothing(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.DesktopNotify = false
	cfg.SoundEnable = false

	n, player := newTestNotifier(t, cfg)
	n.ShowListening(context.Background())
	n.CueStop(context.Background())
	n.Wait()
	require.Empty(t, player.lengths())
}

func TestNotifierToleratesFailures(t *testing.T) {
	installBusctlStub(t, `
echo "no such service" >&2
exit 1
`)
	cfg := config.Default().Indicator
	n, player := newTestNotifier(t, cfg)
	player.err = errors.New("no pulse")

	n.ShowListening(context.Background())
	n.ShowError(context.Background(), "boom")
	n.Hide(context.Background())
	n.Wait()
	require.Len(t, player.lengths(), 2)
}

func TestParseNotificationID(t *testing.T) {
	id, err := parseNotificationID("u 17")
	require.NoError(t, err)
	require.Equal(t, uint32(17), id)

	_, err = parseNotificationID("s hello")
	require.ErrorContains(t, err, "invalid response")

	_, err = parseNotificationID("u notanumber")
	require.ErrorContains(t, err, "parse id")
}

func installBusctlStub(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "busctl")
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
