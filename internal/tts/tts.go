// Package tts defines server-side text-to-speech synthesis.
//
// When playback runs on the daemon instead of the attached client, questions
// are synthesized here and the resulting audio is handed to a sink that
// plays it.
package tts

import (
	"context"
	"strings"
)

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language is a BCP-47 tag ("zh-CN") or ISO-639-1 code ("zh") selecting the voice.
	Language string

	// Voice overrides language-based voice selection.
	Voice string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize generates a WAV file from the given text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	Audio       []byte // WAV container
	ContentType string
	SampleRate  int
	Channels    int
}

// BaseLanguage reduces a BCP-47 tag to its primary ISO-639-1 subtag.
func BaseLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}
