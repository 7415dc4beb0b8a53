package transcribe

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loudPCM(samples int) []byte {
	var pcm []byte
	for i := 0; i < samples; i++ {
		v := int16(8000)
		if i%2 == 1 {
			v = -8000
		}
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(v))
	}
	return pcm
}

func newWhisperServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

		file, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer file.Close()
			assert.Equal(t, "chunk.wav", header.Filename)
			riff := make([]byte, 4)
			_, _ = file.Read(riff)
			assert.Equal(t, "RIFF", string(riff))
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestWhisper(t *testing.T, url string) *WhisperTranscriber {
	t.Helper()
	config := DefaultWhisperConfig()
	config.APIKey = "test"
	config.BaseURL = url + "/"
	config.MinDuration = 100 * time.Millisecond

	w, err := NewWhisperTranscriber(config, audio.SpeechFormat, nil)
	require.NoError(t, err)
	return w
}

func TestWhisperTranscriber(t *testing.T) {
	server, calls := newWhisperServer(t, http.StatusOK, `{"text": " Explain the difference between a process and a thread. "}`)
	w := newTestWhisper(t, server.URL)

	result, err := w.Transcribe(context.Background(), loudPCM(3200))
	require.NoError(t, err)
	assert.Equal(t, "Explain the difference between a process and a thread.", result.Text)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestWhisperTranscriber_SkipsShortAndSilentChunks(t *testing.T) {
	server, calls := newWhisperServer(t, http.StatusOK, `{"text": "unused"}`)
	w := newTestWhisper(t, server.URL)

	result, err := w.Transcribe(context.Background(), loudPCM(100))
	require.NoError(t, err)
	assert.Empty(t, result.Text)

	result, err = w.Transcribe(context.Background(), make([]byte, 6400))
	require.NoError(t, err)
	assert.Empty(t, result.Text)

	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestWhisperTranscriber_APIError(t *testing.T) {
	server, _ := newWhisperServer(t, http.StatusUnauthorized, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
	w := newTestWhisper(t, server.URL)

	_, err := w.Transcribe(context.Background(), loudPCM(3200))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whisper transcription")
}

func TestNewWhisperTranscriber_RequiresKey(t *testing.T) {
	_, err := NewWhisperTranscriber(DefaultWhisperConfig(), audio.SpeechFormat, nil)
	assert.Error(t, err)
}

func TestConfidence(t *testing.T) {
	assert.Zero(t, Confidence("  "))
	assert.Equal(t, 0.6, Confidence("uh huh"))
	assert.Equal(t, 1.0, Confidence("what is a mutex"))
}

func TestPassthrough(t *testing.T) {
	result, err := Passthrough{}.Transcribe(context.Background(), []byte("  what is a heap?\n"))
	require.NoError(t, err)
	assert.Equal(t, "what is a heap?", result.Text)
	assert.Equal(t, 1.0, result.Confidence)

	result, err = Passthrough{}.Transcribe(context.Background(), []byte("\xff\xfe"))
	require.NoError(t, err)
	assert.Empty(t, result.Text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Passthrough{}.Transcribe(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
