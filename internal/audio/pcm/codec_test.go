package pcm

import (
	"encoding/base64"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_ClampsOutOfRange(t *testing.T) {
	out := Encode([]float32{2, -2, 1, -1})
	require.Len(t, out, 8)

	assert.Equal(t, int16(32767), sampleAt(out, 0))
	assert.Equal(t, int16(-32768), sampleAt(out, 1))
	assert.Equal(t, int16(32767), sampleAt(out, 2))
	assert.Equal(t, int16(-32768), sampleAt(out, 3))
}

func TestEncode_LittleEndian(t *testing.T) {
	out := Encode([]float32{0.5})
	// 0.5 * 32768 = 16384 = 0x4000
	assert.Equal(t, []byte{0x00, 0x40}, out)
}

func TestEncode_PositiveAndNegativeShareOneScale(t *testing.T) {
	out := Encode([]float32{0.75, -0.75, 0.99})
	assert.Equal(t, int16(24576), sampleAt(out, 0))
	assert.Equal(t, int16(-24576), sampleAt(out, 1))
	assert.Equal(t, int16(32440), sampleAt(out, 2))
}

func TestEncode_NaNIsSilence(t *testing.T) {
	out := Encode([]float32{float32(math.NaN())})
	assert.Equal(t, []byte{0, 0}, out)
}

func TestEncodeDecode_RoundTripWithinOneStep(t *testing.T) {
	in := make([]float32, 0, 2001)
	for i := -1000; i <= 1000; i++ {
		in = append(in, float32(i)/1000)
	}
	in = append(in, 0.99999, -0.99999, 0.123456, 1e-6)

	buf, err := Decode(Encode(in), InputSampleRate, 1)
	require.NoError(t, err)
	require.Equal(t, len(in), buf.Len())

	for i, want := range in {
		got := buf.Channels[0][i]
		assert.InDelta(t, want, got, 1.0/32768, "sample %d", i)
	}
}

func TestDecode_TruncatesPartialSample(t *testing.T) {
	data := append(Encode([]float32{0.25, -0.25}), 0x7f)

	buf, err := Decode(data, OutputSampleRate, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Len())
}

func TestDecode_TruncatesPartialFrame(t *testing.T) {
	// three samples, two channels: the last frame is incomplete
	data := Encode([]float32{0.1, 0.2, 0.3})

	buf, err := Decode(data, OutputSampleRate, 2)
	require.NoError(t, err)
	require.Len(t, buf.Channels, 2)
	assert.Equal(t, 1, buf.Len())
	assert.InDelta(t, 0.1, buf.Channels[0][0], 1.0/32768)
	assert.InDelta(t, 0.2, buf.Channels[1][0], 1.0/32768)
}

func TestDecode_SilenceIsValid(t *testing.T) {
	buf, err := Decode(make([]byte, 480), OutputSampleRate, 1)
	require.NoError(t, err)
	assert.Equal(t, 240, buf.Len())
	assert.InDelta(t, 0.01, buf.Duration(), 1e-9)
	for _, v := range buf.Channels[0] {
		assert.Zero(t, v)
	}
}

func TestDecode_InvalidFormat(t *testing.T) {
	_, err := Decode([]byte{0, 0}, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Decode([]byte{0, 0}, OutputSampleRate, 0)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestDecodeBase64(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(Encode([]float32{0, 0.5, -0.5}))

	buf, err := DecodeBase64(payload, OutputSampleRate, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, buf.Len())

	_, err = DecodeBase64("not base64!!", OutputSampleRate, 1)
	assert.Error(t, err)
}

func TestBuffer_Mono(t *testing.T) {
	buf := &Buffer{SampleRate: 10, Channels: [][]float32{{1, 0}, {0, 1}}}
	assert.Equal(t, []float32{0.5, 0.5}, buf.Mono())
	assert.InDelta(t, 0.2, buf.Duration(), 1e-9)

	var empty *Buffer
	assert.Zero(t, empty.Len())
	assert.Zero(t, empty.Duration())
}

func TestEncodeBlob(t *testing.T) {
	blob := EncodeBlob(make([]float32, 4096))
	assert.Equal(t, "audio/pcm;rate=16000", blob.MIMEType)
	assert.Len(t, blob.Data, 8192)
}

func sampleAt(b []byte, i int) int16 {
	return int16(b[i*2]) | int16(b[i*2+1])<<8
}
