package playback

import (
	"context"
	"fmt"

	"github.com/nadzzz/kora/internal/tts"
)

// AudioSink plays synthesized audio for an utterance. Play blocks until the
// audio finished playing or ctx is cancelled.
type AudioSink interface {
	Play(ctx context.Context, u Utterance, audio *tts.SynthesizeResult) error
}

// SynthEngine speaks by synthesizing on the daemon and handing the audio to a sink.
type SynthEngine struct {
	synth tts.Synthesizer
	sink  AudioSink
}

// NewSynthEngine creates an Engine over a synthesizer and a sink.
func NewSynthEngine(synth tts.Synthesizer, sink AudioSink) *SynthEngine {
	return &SynthEngine{synth: synth, sink: sink}
}

// Supported reports whether both halves are present.
func (e *SynthEngine) Supported() bool { return e.synth != nil && e.sink != nil }

// Speak synthesizes u and plays it.
func (e *SynthEngine) Speak(ctx context.Context, u Utterance) error {
	audio, err := e.synth.Synthesize(ctx, u.Text, tts.SynthesizeOpts{Language: u.Language})
	if err != nil {
		return fmt.Errorf("synthesizing utterance: %w", err)
	}
	if err := e.sink.Play(ctx, u, audio); err != nil {
		return fmt.Errorf("playing utterance: %w", err)
	}
	return nil
}
