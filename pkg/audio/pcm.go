package audio

import (
	"encoding/binary"
	"math"

	"github.com/faiface/beep"
)

// Format describes signed 16 bit little endian PCM
type Format struct {
	SampleRate int `json:"sample_rate" mapstructure:"sample_rate"`
	Channels   int `json:"channels" mapstructure:"channels"`
}

// SpeechFormat is what recorders are asked to produce and what the
// transcriber uploads
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

const bytesPerSample = 2

// FrameSize is the number of bytes of one sample across all channels
func (f Format) FrameSize() int {
	return f.Channels * bytesPerSample
}

// BytesPerSecond is the PCM data rate
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// Beep converts f to a beep format
func (f Format) Beep() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(f.SampleRate),
		NumChannels: f.Channels,
		Precision:   bytesPerSample,
	}
}

// PCMStreamer streams s16le PCM as beep samples. Mono input is copied to
// both beep channels.
type PCMStreamer struct {
	data     []byte
	channels int
	pos      int
}

// NewPCMStreamer creates a streamer over pcm. A trailing partial frame is ignored.
func NewPCMStreamer(pcm []byte, format Format) *PCMStreamer {
	return &PCMStreamer{data: pcm, channels: format.Channels}
}

// Stream implements beep.Streamer
func (s *PCMStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	frame := s.channels * bytesPerSample
	for n < len(samples) && s.pos+frame <= len(s.data) {
		left := int16(binary.LittleEndian.Uint16(s.data[s.pos:]))
		right := left
		if s.channels > 1 {
			right = int16(binary.LittleEndian.Uint16(s.data[s.pos+bytesPerSample:]))
		}
		samples[n][0] = float64(left) / math.MaxInt16
		samples[n][1] = float64(right) / math.MaxInt16
		s.pos += frame
		n++
	}
	return n, n > 0
}

// Err implements beep.Streamer
func (s *PCMStreamer) Err() error {
	return nil
}

// StreamToPCM drains a beep streamer into s16le PCM with the given channel count
func StreamToPCM(s beep.Streamer, channels int) ([]byte, error) {
	var out []byte
	buf := make([][2]float64, 1024)
	for {
		n, ok := s.Stream(buf)
		for _, sample := range buf[:n] {
			if channels == 1 {
				out = appendSample(out, (sample[0]+sample[1])/2)
				continue
			}
			out = appendSample(out, sample[0])
			out = appendSample(out, sample[1])
		}
		if !ok {
			break
		}
	}
	return out, s.Err()
}

func appendSample(out []byte, v float64) []byte {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return binary.LittleEndian.AppendUint16(out, uint16(int16(v*math.MaxInt16)))
}

// RMS returns the root mean square level of pcm in the range [0, 1]
func RMS(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
