package indicator

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCueSamplesPresent(t *testing.T) {
	for _, kind := range []cueKind{cueStart, cueStop, cueError} {
		require.NotEmpty(t, cueSamples(kind), kind)
	}
	require.Empty(t, cueSamples(cueKind(99)))
}

func TestCueRenderIncludesGaps(t *testing.T) {
	start := cueTable[cueStart]
	want := 2 * sampleCount(noteGap)
	for _, n := range start.notes {
		want += sampleCount(n.span)
	}
	require.Len(t, cueSamples(cueStart), want)
}

func TestToneLengthAndFade(t *testing.T) {
	got := tone(440, 100*time.Millisecond, 0.2)
	require.Len(t, got, sampleCount(100*time.Millisecond))
	require.Zero(t, got[0])
	require.Zero(t, got[len(got)-1])

	var peak int16
	for _, s := range got {
		peak = max(peak, s)
	}
	require.LessOrEqual(t, float64(peak), 0.2*math.MaxInt16+1)
}

func TestToneInvalidInputIsEmpty(t *testing.T) {
	require.Empty(t, tone(0, 100*time.Millisecond, 0.2))
	require.Empty(t, tone(440, 0, 0.2))
	require.Empty(t, tone(440, 100*time.Millisecond, 0))
}

func TestSampleCount(t *testing.T) {
	require.Zero(t, sampleCount(-time.Second))
	require.Equal(t, 400, sampleCount(25*time.Millisecond))
}

func TestEmitCueRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	player := &fakeCuePlayer{}
	require.ErrorIs(t, emitCue(ctx, player, cueStart), context.Canceled)
	require.Empty(t, player.lengths())
}

func TestEmitCueSendsMonoClip(t *testing.T) {
	player := &fakeCuePlayer{}
	require.NoError(t, emitCue(context.Background(), player, cueStop))

	player.mu.Lock()
	defer player.mu.Unlock()
	require.Len(t, player.clips, 1)
	require.Equal(t, cueSampleRate, player.clips[0].SampleRate)
	require.Equal(t, 1, player.clips[0].Channels)
}
