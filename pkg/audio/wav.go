package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

// resampleQuality is passed to beep.Resample
const resampleQuality = 4

// ErrUnsupportedFormat is returned for files that are neither wav nor mp3
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// EncodeWAV wraps s16le PCM in a WAV container
func EncodeWAV(pcm []byte, format Format) ([]byte, error) {
	if format.Channels < 1 || format.SampleRate < 1 {
		return nil, fmt.Errorf("invalid pcm format %+v", format)
	}

	w := &memWriteSeeker{}
	if err := wav.Encode(w, NewPCMStreamer(pcm, format), format.Beep()); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return w.buf, nil
}

// DecodeFile decodes a .wav or .mp3 file into s16le PCM in the target format
func DecodeFile(path string, target Format) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if int(format.SampleRate) != target.SampleRate {
		s = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(target.SampleRate), streamer)
	}

	return StreamToPCM(s, target.Channels)
}

// DecodeWAV decodes WAV bytes into s16le PCM, keeping the source format
func DecodeWAV(data []byte) ([]byte, Format, error) {
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Format{}, fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()

	pcm, err := StreamToPCM(streamer, format.NumChannels)
	return pcm, Format{SampleRate: int(format.SampleRate), Channels: format.NumChannels}, err
}

// memWriteSeeker is the in-memory io.WriteSeeker the wav encoder needs to
// patch its header
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative position %d", abs)
	}
	m.pos = int(abs)
	return abs, nil
}
