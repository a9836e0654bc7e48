package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// CaptureSampleRate is the microphone stream rate used for recognition.
const CaptureSampleRate = 16000

// ErrInvalidWAV reports a payload that is not 16-bit PCM RIFF/WAVE audio.
var ErrInvalidWAV = errors.New("invalid wav payload")

// Clip is decoded PCM16 audio ready for playback.
type Clip struct {
	SampleRate int
	Channels   int
	Samples    []int16 // interleaved when Channels > 1
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Mono averages interleaved channels into a single channel.
func (c Clip) Mono() Clip {
	if c.Channels <= 1 {
		return c
	}
	frames := len(c.Samples) / c.Channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < c.Channels; ch++ {
			sum += int(c.Samples[i*c.Channels+ch])
		}
		out[i] = int16(sum / c.Channels)
	}
	return Clip{SampleRate: c.SampleRate, Channels: 1, Samples: out}
}

// WritePCM16WAV writes raw little-endian PCM bytes with a minimal WAV header.
func WritePCM16WAV(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// EncodeWAV wraps mono capture PCM in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	_ = WritePCM16WAV(&buf, pcm, sampleRate, 1)
	return buf.Bytes()
}

// DecodeWAV parses a RIFF/WAVE payload carrying 16-bit PCM. Unknown chunks
// before the data chunk are skipped.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		clip      Clip
		sawFormat bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if size < 0 || end > len(data) {
			if id != "data" {
				return Clip{}, fmt.Errorf("%w: truncated %q chunk", ErrInvalidWAV, id)
			}
			// streamed WAVs may carry a placeholder size
			end = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Clip{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			clip.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			// 0xFFFE is WAVE_FORMAT_EXTENSIBLE
			if (format != 1 && format != 0xFFFE) || bits != 16 {
				return Clip{}, fmt.Errorf("%w: unsupported format %d/%d-bit", ErrInvalidWAV, format, bits)
			}
			if clip.Channels <= 0 || clip.SampleRate <= 0 {
				return Clip{}, fmt.Errorf("%w: bad channel count or sample rate", ErrInvalidWAV)
			}
			sawFormat = true
		case "data":
			if !sawFormat {
				return Clip{}, fmt.Errorf("%w: data before fmt chunk", ErrInvalidWAV)
			}
			payload := data[body:end]
			clip.Samples = make([]int16, len(payload)/2)
			for i := range clip.Samples {
				clip.Samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
			}
			return clip, nil
		}

		offset = end
		if size%2 == 1 {
			offset++
		}
	}
	return Clip{}, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}

// PCMToSamples converts little-endian PCM16 bytes into samples.
func PCMToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
