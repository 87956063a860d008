// Package playback narrates text through a speech Engine.
//
// Only one utterance is active at a time: speaking cancels whatever is
// currently being spoken, with no queueing.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nadzzz/kora/internal/style"
)

// Status is the lifecycle state of the player.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusSpeaking Status = "speaking"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Utterance is one piece of text to speak with its voice parameters.
type Utterance struct {
	Text     string  `json:"text"`
	Language string  `json:"lang"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
	Voice    string  `json:"voice,omitempty"`
}

// Engine is a text-to-speech platform.
type Engine interface {
	// Supported reports whether the platform can speak at all.
	Supported() bool

	// Speak blocks until u has been spoken, ctx is cancelled or an error occurs.
	Speak(ctx context.Context, u Utterance) error
}

// Player is safe for concurrent use.
type Player struct {
	engine    Engine
	supported bool
	language  string

	mu        sync.Mutex
	voice     style.Voice
	status    Status
	gen       uint64
	cancel    context.CancelFunc
	observers []func()
}

// New creates a Player over engine. A nil engine is treated as unsupported.
func New(engine Engine, language string) *Player {
	return &Player{
		engine:    engine,
		supported: engine != nil && engine.Supported(),
		language:  language,
		voice:     style.Voice{Rate: 1, Pitch: 1},
		status:    StatusIdle,
	}
}

// Observe registers fn to be called after every status change.
func (p *Player) Observe(fn func()) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

// Supported reports the engine capability, computed once at construction.
func (p *Player) Supported() bool { return p.supported }

// Status returns the current status.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetVoice sets the rate, pitch and voice used by subsequent utterances.
func (p *Player) SetVoice(v style.Voice) {
	p.mu.Lock()
	p.voice = v
	p.mu.Unlock()
}

// Speak cancels the active utterance, if any, and starts speaking text.
// It returns immediately; the status follows the utterance lifecycle.
func (p *Player) Speak(text string) {
	if !p.supported {
		return
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.status = StatusSpeaking
	u := Utterance{
		Text:     text,
		Language: p.language,
		Rate:     p.voice.Rate,
		Pitch:    p.voice.Pitch,
		Voice:    p.voice.VoiceName,
	}
	p.mu.Unlock()
	p.notify()

	go p.run(ctx, gen, u)
}

func (p *Player) run(ctx context.Context, gen uint64, u Utterance) {
	err := p.engine.Speak(ctx, u)

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.cancel = nil
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		slog.Warn("speech playback failed", "error", err)
		p.status = StatusError
	default:
		p.status = StatusStopped
	}
	p.mu.Unlock()
	p.notify()
}

// Cancel silences playback immediately and sets the status to stopped.
func (p *Player) Cancel() {
	if !p.supported {
		return
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
	p.status = StatusStopped
	p.mu.Unlock()
	p.notify()
}

func (p *Player) notify() {
	p.mu.Lock()
	obs := make([]func(), len(p.observers))
	copy(obs, p.observers)
	p.mu.Unlock()
	for _, fn := range obs {
		fn()
	}
}
