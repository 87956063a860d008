package whisper

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nadzzz/kora/internal/speech/capture"
)

// ErrNotListening is returned when audio arrives outside a capture session.
var ErrNotListening = errors.New("no active capture session")

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

// Recognizer adapts a Transcriber to capture.Recognizer. Each uploaded clip
// becomes one final segment of the active session.
type Recognizer struct {
	t Transcriber

	mu       sync.Mutex
	listener capture.Listener
}

// NewRecognizer wraps t.
func NewRecognizer(t Transcriber) *Recognizer {
	return &Recognizer{t: t}
}

// Supported reports whether a transcriber is configured.
func (r *Recognizer) Supported() bool { return r.t != nil }

// Start opens a session.
func (r *Recognizer) Start(l capture.Listener) error {
	r.mu.Lock()
	r.listener = l
	r.mu.Unlock()
	l.OnStart()
	return nil
}

// Stop closes the session.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	l := r.listener
	r.listener = nil
	r.mu.Unlock()
	if l != nil {
		l.OnEnd()
	}
	return nil
}

// Feed transcribes one clip and delivers it to the active session.
func (r *Recognizer) Feed(ctx context.Context, audio []byte, contentType string) (string, error) {
	r.mu.Lock()
	l := r.listener
	r.mu.Unlock()
	if l == nil {
		return "", ErrNotListening
	}

	text, err := r.t.Transcribe(ctx, audio, contentType)
	if err != nil {
		slog.Warn("transcription failed", "error", err)
		l.OnError("transcription_failed")
		return "", err
	}
	if text != "" {
		l.OnResult([]capture.Segment{{Text: text, Final: true}})
	}
	return text, nil
}
