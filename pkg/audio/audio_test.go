package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(format Format, samples int, amplitude float64) []byte {
	var pcm []byte
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.MaxInt16 * math.Sin(2*math.Pi*440*float64(i)/float64(format.SampleRate)))
		for c := 0; c < format.Channels; c++ {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(v))
		}
	}
	return pcm
}

func TestFormat(t *testing.T) {
	assert.Equal(t, 2, SpeechFormat.FrameSize())
	assert.Equal(t, 32000, SpeechFormat.BytesPerSecond())
	assert.Equal(t, 2, SpeechFormat.Beep().Precision)
}

func TestEncodeWAV_RoundTrip(t *testing.T) {
	pcm := sine(SpeechFormat, 1600, 0.5)

	data, err := EncodeWAV(pcm, SpeechFormat)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Len(t, data, 44+len(pcm))

	decoded, format, err := DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, SpeechFormat, format)
	require.Len(t, decoded, len(pcm))
	assert.InDelta(t, RMS(pcm), RMS(decoded), 0.01)
}

func TestEncodeWAV_InvalidFormat(t *testing.T) {
	_, err := EncodeWAV([]byte{0, 0}, Format{})
	assert.Error(t, err)
}

func TestDecodeFile_ResamplesToTarget(t *testing.T) {
	source := Format{SampleRate: 32000, Channels: 2}
	data, err := EncodeWAV(sine(source, 3200, 0.5), source)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "question.wav")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	pcm, err := DecodeFile(path, SpeechFormat)
	require.NoError(t, err)
	assert.InDelta(t, 1600*SpeechFormat.FrameSize(), len(pcm), 64, "100ms at 16kHz mono")
	assert.Greater(t, RMS(pcm), 0.2)
}

func TestDecodeFile_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	_, err := DecodeFile(path, SpeechFormat)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.Zero(t, RMS(make([]byte, 320)))
	assert.InDelta(t, 0.5/math.Sqrt2, RMS(sine(SpeechFormat, 16000, 0.5)), 0.01)
}
