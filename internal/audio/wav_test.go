package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/stretchr/testify/require"
)

func pcmBytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestWritePCM16WAVWritesHeaderAndPCM(t *testing.T) {
	var buf bytes.Buffer
	pcm := []byte{0x01, 0x00, 0xFF, 0x7F}
	require.NoError(t, WritePCM16WAV(&buf, pcm, 16000, 0))

	data := buf.Bytes()
	require.Len(t, data, 44+len(pcm))
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, "fmt ", string(data[12:16]))
	require.Equal(t, "data", string(data[36:40]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24])) // channels default to mono
	require.Equal(t, uint32(16000), binary.LittleEndian.Uint32(data[24:28]))
	require.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(data[40:44]))
	require.Equal(t, pcm, data[44:])
}

func TestDecodeWAVReadsEncodedCapture(t *testing.T) {
	clip, err := DecodeWAV(EncodeWAV(pcmBytes(1, -2, 32767, -32768), 22050))
	require.NoError(t, err)
	require.Equal(t, 22050, clip.SampleRate)
	require.Equal(t, 1, clip.Channels)
	require.Equal(t, []int16{1, -2, 32767, -32768}, clip.Samples)
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	wav := EncodeWAV(pcmBytes(7, 8), 16000)
	list := append([]byte("LIST"), 3, 0, 0, 0, 'a', 'b', 'c', 0) // odd size plus pad byte
	withList := append(append(append([]byte(nil), wav[:36]...), list...), wav[36:]...)

	clip, err := DecodeWAV(withList)
	require.NoError(t, err)
	require.Equal(t, []int16{7, 8}, clip.Samples)
}

func TestDecodeWAVToleratesOversizedDataLength(t *testing.T) {
	wav := EncodeWAV(pcmBytes(5, 6, 7), 16000)
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)

	clip, err := DecodeWAV(wav)
	require.NoError(t, err)
	require.Equal(t, []int16{5, 6, 7}, clip.Samples)
}

func TestDecodeWAVRejectsInvalidPayloads(t *testing.T) {
	tests := map[string][]byte{
		"empty":      nil,
		"not riff":   []byte("this is not audio at all"),
		"no data":    EncodeWAV(nil, 16000)[:36],
		"json error": []byte(`{"detail":"TTS not loaded"}`),
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeWAV(payload)
			require.ErrorIs(t, err, ErrInvalidWAV)
		})
	}

	eightBit := EncodeWAV(pcmBytes(1), 16000)
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)
	_, err := DecodeWAV(eightBit)
	require.ErrorIs(t, err, ErrInvalidWAV)
}

func TestClipMonoAndDuration(t *testing.T) {
	stereo := Clip{SampleRate: 4, Channels: 2, Samples: []int16{10, 20, -10, -30, 0, 0, 100, 200}}
	require.Equal(t, time.Second, stereo.Duration())

	mono := stereo.Mono()
	require.Equal(t, 1, mono.Channels)
	require.Equal(t, []int16{15, -20, 0, 150}, mono.Samples)
	require.Equal(t, time.Second, mono.Duration())
	require.Zero(t, Clip{}.Duration())
}

func TestRMS(t *testing.T) {
	require.Zero(t, RMS(nil))
	require.Zero(t, RMS(pcmBytes(0, 0, 0)))
	require.InDelta(t, 0.5, RMS(pcmBytes(16384, -16384)), 1e-9)
}

func TestPCMToSamples(t *testing.T) {
	require.Equal(t, []int16{1, -1}, PCMToSamples(append(pcmBytes(1, -1), 0x09)))
}

func TestSamplesReaderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := samplesReader(ctx, []int16{1, 2, 3, 4, 5}).(pulse.Int16Reader)

	buf := make([]int16, 2)
	n, err := reader(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	cancel()
	n, err = reader(buf)
	require.Zero(t, n)
	require.ErrorIs(t, err, pulse.EndOfData)
}

func TestSamplesReaderSignalsEndOfData(t *testing.T) {
	reader := samplesReader(context.Background(), []int16{1, 2, 3}).(pulse.Int16Reader)

	buf := make([]int16, 8)
	n, err := reader(buf)
	require.Equal(t, 3, n)
	require.ErrorIs(t, err, pulse.EndOfData)
}

func TestPulsePlayerSkipsEmptyClip(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	require.NoError(t, NewPulsePlayer("").Play(context.Background(), Clip{SampleRate: 16000, Channels: 1}))
}

func TestPulsePlayerFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	err := NewPulsePlayer("test").Play(context.Background(), Clip{SampleRate: 16000, Channels: 1, Samples: []int16{1, 2}})
	require.Error(t, err)
}
