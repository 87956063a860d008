package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/kora/internal/style"
	"github.com/nadzzz/kora/internal/tts"
)

// blockingEngine speaks until released or cancelled.
type blockingEngine struct {
	mu       sync.Mutex
	spoken   []Utterance
	release  chan struct{}
	fail     error
	canceled int
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{release: make(chan struct{})}
}

func (e *blockingEngine) Supported() bool { return true }

func (e *blockingEngine) Speak(ctx context.Context, u Utterance) error {
	e.mu.Lock()
	e.spoken = append(e.spoken, u)
	fail := e.fail
	e.mu.Unlock()
	if fail != nil {
		return fail
	}
	select {
	case <-e.release:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		e.canceled++
		e.mu.Unlock()
		return ctx.Err()
	}
}

func (e *blockingEngine) utterances() []Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Utterance(nil), e.spoken...)
}

func (e *blockingEngine) cancelCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canceled
}

func TestPlayer_SpeakLifecycle(t *testing.T) {
	eng := newBlockingEngine()
	p := New(eng, "zh-CN")
	p.SetVoice(style.Voice{Rate: 1.05, Pitch: 1.1})

	assert.Equal(t, StatusIdle, p.Status())
	p.Speak("你好")
	assert.Equal(t, StatusSpeaking, p.Status())

	close(eng.release)
	require.Eventually(t, func() bool { return p.Status() == StatusStopped }, time.Second, 5*time.Millisecond)

	us := eng.utterances()
	require.Len(t, us, 1)
	assert.Equal(t, Utterance{Text: "你好", Language: "zh-CN", Rate: 1.05, Pitch: 1.1}, us[0])
}

func TestPlayer_LastWriteWins(t *testing.T) {
	eng := newBlockingEngine()
	p := New(eng, "zh-CN")

	p.Speak("第一句")
	require.Eventually(t, func() bool { return len(eng.utterances()) == 1 }, time.Second, 5*time.Millisecond)

	p.Speak("第二句")
	require.Eventually(t, func() bool { return eng.cancelCount() == 1 }, time.Second, 5*time.Millisecond)

	// The superseded utterance must not settle the status.
	assert.Equal(t, StatusSpeaking, p.Status())

	close(eng.release)
	require.Eventually(t, func() bool { return p.Status() == StatusStopped }, time.Second, 5*time.Millisecond)
	us := eng.utterances()
	assert.Equal(t, "第二句", us[len(us)-1].Text)
}

func TestPlayer_Cancel(t *testing.T) {
	eng := newBlockingEngine()
	p := New(eng, "zh-CN")

	p.Speak("很长的一段话")
	p.Cancel()
	assert.Equal(t, StatusStopped, p.Status())
	require.Eventually(t, func() bool { return eng.cancelCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusStopped, p.Status())
}

func TestPlayer_Error(t *testing.T) {
	eng := newBlockingEngine()
	eng.fail = errors.New("device lost")
	p := New(eng, "zh-CN")

	p.Speak("你好")
	require.Eventually(t, func() bool { return p.Status() == StatusError }, time.Second, 5*time.Millisecond)
}

func TestPlayer_Unsupported(t *testing.T) {
	p := New(nil, "zh-CN")
	assert.False(t, p.Supported())
	p.Speak("你好")
	p.Cancel()
	assert.Equal(t, StatusIdle, p.Status())
}

type fakeSynth struct {
	err  error
	opts tts.SynthesizeOpts
}

func (s *fakeSynth) Synthesize(_ context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return &tts.SynthesizeResult{Audio: []byte(text), ContentType: "audio/wav"}, nil
}

func (s *fakeSynth) Close() error { return nil }

type recordingSink struct {
	played []string
}

func (r *recordingSink) Play(_ context.Context, u Utterance, audio *tts.SynthesizeResult) error {
	r.played = append(r.played, string(audio.Audio))
	return nil
}

func TestSynthEngine(t *testing.T) {
	synth := &fakeSynth{}
	sink := &recordingSink{}
	e := NewSynthEngine(synth, sink)
	require.True(t, e.Supported())

	require.NoError(t, e.Speak(context.Background(), Utterance{Text: "问题一", Language: "zh-CN"}))
	assert.Equal(t, []string{"问题一"}, sink.played)
	assert.Equal(t, "zh-CN", synth.opts.Language)

	synth.err = errors.New("piper down")
	assert.Error(t, e.Speak(context.Background(), Utterance{Text: "问题二"}))
	assert.Len(t, sink.played, 1)

	assert.False(t, NewSynthEngine(nil, sink).Supported())
}
