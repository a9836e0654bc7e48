package audio

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
)

// PulsePlayer plays decoded clips on the default Pulse sink.
type PulsePlayer struct {
	MediaName string
}

// NewPulsePlayer returns a player labelled mediaName in the mixer.
func NewPulsePlayer(mediaName string) *PulsePlayer {
	return &PulsePlayer{MediaName: mediaName}
}

// Play blocks until clip has drained or ctx is cancelled. Cancellation stops
// feeding samples so the stream drains within one latency period.
func (p *PulsePlayer) Play(ctx context.Context, clip Clip) error {
	clip = clip.Mono()
	if len(clip.Samples) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := newPulseClient("audio-speakers")
	if err != nil {
		return err
	}
	defer client.Close()

	stream, err := client.NewPlayback(
		samplesReader(ctx, clip.Samples),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(clip.SampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName(p.mediaName()),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play pulse stream: %w", err)
	}
	return ctx.Err()
}

func (p *PulsePlayer) mediaName() string {
	if p == nil || p.MediaName == "" {
		return "studyvoice playback"
	}
	return p.MediaName
}

// samplesReader feeds samples to Pulse and ends early once ctx is done.
func samplesReader(ctx context.Context, samples []int16) pulse.Reader {
	cursor := 0
	return pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})
}
