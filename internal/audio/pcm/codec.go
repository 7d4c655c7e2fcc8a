// Package pcm converts between float audio samples and 16-bit little-endian
// linear PCM, the wire format of the Live API.
package pcm

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	// InputSampleRate is the capture rate sent upstream.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of model audio played back.
	OutputSampleRate = 24000

	bytesPerSample = 2
	pcmMax         = 32767
	pcmMin         = -32768
	scale          = 32768
)

var ErrInvalidFormat = errors.New("pcm: invalid format")

// Blob is an encoded media payload ready for the transport.
type Blob struct {
	MIMEType string
	Data     []byte
}

// MIMEType returns the Live API media type for raw PCM at rate.
func MIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// Encode clamps samples to [-1, 1] and writes them as int16 LE. NaN encodes
// as silence.
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		v := math.Round(float64(s) * scale)
		switch {
		case math.IsNaN(v):
			v = 0
		case v > pcmMax:
			v = pcmMax
		case v < pcmMin:
			v = pcmMin
		}
		out[i*2] = byte(int16(v))
		out[i*2+1] = byte(uint16(int16(v)) >> 8)
	}
	return out
}

// EncodeBlob encodes one captured frame as a 16 kHz media blob.
func EncodeBlob(samples []float32) Blob {
	return Blob{MIMEType: MIMEType(InputSampleRate), Data: Encode(samples)}
}

// Buffer is decoded, de-interleaved audio.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Len is the number of frames per channel.
func (b *Buffer) Len() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.SampleRate)
}

// Mono averages all channels into one.
func (b *Buffer) Mono() []float32 {
	switch len(b.Channels) {
	case 0:
		return nil
	case 1:
		return b.Channels[0]
	}
	out := make([]float32, b.Len())
	scale := 1 / float32(len(b.Channels))
	for _, ch := range b.Channels {
		for i, v := range ch {
			out[i] += v * scale
		}
	}
	return out
}

// Decode reads interleaved int16 LE samples. Trailing bytes that do not make
// up a whole frame are dropped.
func Decode(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: rate=%d channels=%d", ErrInvalidFormat, sampleRate, channels)
	}
	frames := len(data) / (bytesPerSample * channels)
	buf := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * bytesPerSample
			sample := int16(data[off]) | int16(data[off+1])<<8
			buf.Channels[ch][i] = float32(sample) / scale
		}
	}
	return buf, nil
}

// DecodeBase64 decodes a base64 inline-data payload.
func DecodeBase64(s string, sampleRate, channels int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("pcm: decode base64: %w", err)
	}
	return Decode(raw, sampleRate, channels)
}
