package indicator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rbright/studyvoice/internal/audio"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueError
)

const (
	cueSampleRate = audio.CaptureSampleRate
	noteGap       = 25 * time.Millisecond
	maxFade       = 5 * time.Millisecond
)

type note struct {
	hz   float64
	span time.Duration
}

// cue is a note sequence played at one gain, with noteGap between notes.
type cue struct {
	gain  float64
	notes []note
}

var cueTable = map[cueKind]cue{
	// Rising C major arpeggio.
	cueStart: {gain: 0.17, notes: []note{{523.25, 60 * time.Millisecond}, {659.25, 60 * time.Millisecond}, {783.99, 100 * time.Millisecond}}},
	cueStop:  {gain: 0.17, notes: []note{{783.99, 60 * time.Millisecond}, {523.25, 120 * time.Millisecond}}},
	cueError: {gain: 0.2, notes: []note{{392.00, 90 * time.Millisecond}, {311.13, 150 * time.Millisecond}}},
}

var renderedCues = sync.OnceValue(func() map[cueKind][]int16 {
	out := make(map[cueKind][]int16, len(cueTable))
	for kind, c := range cueTable {
		out[kind] = c.render()
	}
	return out
})

func emitCue(ctx context.Context, player CuePlayer, kind cueKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return player.Play(ctx, audio.Clip{SampleRate: cueSampleRate, Channels: 1, Samples: samples})
}

// cueSamples returns the rendered PCM for kind, or nil for an unknown kind.
func cueSamples(kind cueKind) []int16 {
	return renderedCues()[kind]
}

func (c cue) render() []int16 {
	gap := make([]int16, sampleCount(noteGap))
	var pcm []int16
	for i, n := range c.notes {
		if i > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, tone(n.hz, n.span, c.gain)...)
	}
	return pcm
}

// tone renders a sine with linear fade-in and fade-out so cues do not click.
func tone(hz float64, span time.Duration, gain float64) []int16 {
	n := sampleCount(span)
	if n == 0 || hz <= 0 || gain <= 0 {
		return nil
	}

	fade := max(1, min(n/10, sampleCount(maxFade)))
	step := 2 * math.Pi * hz / cueSampleRate
	pcm := make([]int16, n)
	for i := range pcm {
		edge := min(i, n-1-i)
		envelope := min(1, float64(edge)/float64(fade))
		pcm[i] = int16(math.Round(math.Sin(step*float64(i)) * gain * envelope * math.MaxInt16))
	}
	return pcm
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
