package whisper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/kora/internal/config"
	"github.com/nadzzz/kora/internal/speech/capture"
)

func TestTranscribe_OpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-whisper", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "zh", r.FormValue("language"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "answer.webm", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte("audio"), data)

		_, _ = w.Write([]byte(`{"text":" 我负责后端开发 "}`))
	}))
	defer srv.Close()

	c := New(config.WhisperConfig{Endpoint: srv.URL, Model: "whisper-1", APIKey: "sk-whisper", Language: "zh"})
	text, err := c.Transcribe(context.Background(), []byte("audio"), "audio/webm;codecs=opus")
	require.NoError(t, err)
	assert.Equal(t, "我负责后端开发", text)
}

func TestTranscribe_ASR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/asr", r.URL.Path)
		assert.Equal(t, "transcribe", r.URL.Query().Get("task"))
		assert.Equal(t, "zh", r.URL.Query().Get("language"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("audio_file")
		require.NoError(t, err)
		_, _ = w.Write([]byte(`{"text":"你好"}`))
	}))
	defer srv.Close()

	c := New(config.WhisperConfig{Endpoint: srv.URL + "/asr", Type: "asr", Language: "zh"})
	text, err := c.Transcribe(context.Background(), []byte("audio"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "你好", text)
}

func TestTranscribe_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(config.WhisperConfig{Endpoint: srv.URL})
	_, err := c.Transcribe(context.Background(), []byte("audio"), "audio/wav")
	assert.ErrorContains(t, err, "status 503")

	_, err = c.Transcribe(context.Background(), nil, "audio/wav")
	assert.Error(t, err)
}

type stubTranscriber struct {
	text string
	err  error
}

func (s stubTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return s.text, s.err
}

func TestRecognizer_FeedsCapture(t *testing.T) {
	rec := NewRecognizer(stubTranscriber{text: "你好"})
	c := capture.New(rec, time.Minute)
	require.True(t, c.Supported())

	_, err := rec.Feed(context.Background(), []byte("a"), "audio/wav")
	assert.ErrorIs(t, err, ErrNotListening)

	c.Start()
	_, err = rec.Feed(context.Background(), []byte("a"), "audio/wav")
	require.NoError(t, err)
	rec.t = stubTranscriber{text: "世界"}
	_, err = rec.Feed(context.Background(), []byte("b"), "audio/wav")
	require.NoError(t, err)

	assert.Equal(t, "你好 世界", c.State().Transcript)

	c.Stop()
	assert.Equal(t, capture.StatusStopped, c.State().Status)
	_, err = rec.Feed(context.Background(), []byte("c"), "audio/wav")
	assert.ErrorIs(t, err, ErrNotListening)
}

func TestRecognizer_TranscriptionError(t *testing.T) {
	rec := NewRecognizer(stubTranscriber{err: errors.New("boom")})
	c := capture.New(rec, time.Minute)
	c.Start()

	_, err := rec.Feed(context.Background(), []byte("a"), "audio/wav")
	require.Error(t, err)
	st := c.State()
	assert.Equal(t, capture.StatusError, st.Status)
	assert.Equal(t, "transcription_failed", st.Error)
}
