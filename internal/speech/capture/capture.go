// Package capture turns recognizer events into an answer transcript.
//
// A Recognizer is the speech-to-text platform: the browser bridge, a
// server-side Whisper backend, or nothing at all. Capture accumulates its
// finalized segments into a committed transcript, keeps the latest interim
// segment as a partial, and stops the recognizer after a silence window
// without updates.
package capture

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Status is the lifecycle state of a capture session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusListening Status = "listening"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// DefaultMaxSilence is the auto-stop window used when none is configured.
const DefaultMaxSilence = 2 * time.Second

// Segment is one recognizer result. Final segments are committed; the rest
// make up the current partial.
type Segment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Listener receives recognizer events in arrival order.
type Listener interface {
	OnStart()
	OnResult(segments []Segment)
	OnError(code string)
	OnEnd()
}

// Recognizer is a speech-to-text source.
type Recognizer interface {
	// Supported reports whether the platform can recognize speech at all.
	Supported() bool

	// Start begins a recognition session delivering events to l.
	Start(l Listener) error

	// Stop ends the current session. The recognizer should call OnEnd.
	Stop() error
}

// State is a snapshot of the capture.
type State struct {
	Supported  bool   `json:"supported"`
	Status     Status `json:"status"`
	Transcript string `json:"transcript"`
	Partial    string `json:"partial"`
	Error      string `json:"error,omitempty"`
}

// Capture is safe for concurrent use.
type Capture struct {
	rec        Recognizer
	supported  bool
	maxSilence time.Duration

	mu         sync.Mutex
	status     Status
	transcript string
	partial    string
	errCode    string
	active     bool
	session    uint64
	silence    *time.Timer
	observers  []func()
}

// New creates a Capture over rec. A nil recognizer is treated as unsupported.
func New(rec Recognizer, maxSilence time.Duration) *Capture {
	if maxSilence <= 0 {
		maxSilence = DefaultMaxSilence
	}
	return &Capture{
		rec:        rec,
		supported:  rec != nil && rec.Supported(),
		maxSilence: maxSilence,
		status:     StatusIdle,
	}
}

// Observe registers fn to be called after every state change.
func (c *Capture) Observe(fn func()) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Supported reports the recognizer capability, computed once at construction.
func (c *Capture) Supported() bool { return c.supported }

// State returns the current snapshot.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Supported:  c.supported,
		Status:     c.status,
		Transcript: c.transcript,
		Partial:    c.partial,
		Error:      c.errCode,
	}
}

// Start begins a new capture session, clearing the previous transcript,
// partial and error. It does nothing when a session is already active or the
// recognizer is unsupported.
func (c *Capture) Start() {
	if !c.supported {
		return
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.session++
	id := c.session
	c.active = true
	c.transcript = ""
	c.partial = ""
	c.errCode = ""
	c.status = StatusListening
	c.mu.Unlock()

	if err := c.rec.Start(&sessionListener{c: c, id: id}); err != nil {
		slog.Warn("speech recognizer failed to start", "error", err)
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		c.fail(id, "start_failed")
		return
	}
	c.notify()
}

// Stop ends the current session and settles the status to stopped.
func (c *Capture) Stop() {
	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.stopSilenceLocked()
	c.status = StatusStopped
	c.mu.Unlock()

	if wasActive {
		if err := c.rec.Stop(); err != nil {
			slog.Warn("speech recognizer failed to stop", "error", err)
		}
	}
	c.notify()
}

// Reset clears transcript, partial and error and returns to idle. The
// recognizer session, if any, is left alone.
func (c *Capture) Reset() {
	c.mu.Lock()
	c.transcript = ""
	c.partial = ""
	c.errCode = ""
	c.status = StatusIdle
	c.mu.Unlock()
	c.notify()
}

func (c *Capture) onStart(id uint64) {
	c.mu.Lock()
	if id != c.session {
		c.mu.Unlock()
		return
	}
	c.status = StatusListening
	c.errCode = ""
	c.mu.Unlock()
	c.notify()
}

func (c *Capture) onResult(id uint64, segments []Segment) {
	c.mu.Lock()
	if id != c.session {
		c.mu.Unlock()
		return
	}

	var final, interim strings.Builder
	for _, s := range segments {
		if s.Final {
			final.WriteString(s.Text)
		} else {
			interim.WriteString(s.Text)
		}
	}
	if text := strings.TrimSpace(final.String()); text != "" {
		if c.transcript == "" {
			c.transcript = text
		} else {
			c.transcript += " " + text
		}
	}
	c.partial = interim.String()

	c.stopSilenceLocked()
	if c.active {
		c.silence = time.AfterFunc(c.maxSilence, func() { c.autoStop(id) })
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Capture) autoStop(id uint64) {
	c.mu.Lock()
	current := id == c.session && c.active
	c.mu.Unlock()
	if !current {
		return
	}
	slog.Debug("speech capture stopped on silence", "max_silence", c.maxSilence)
	c.Stop()
}

func (c *Capture) fail(id uint64, code string) {
	if code == "" {
		code = "speech_recognition_error"
	}
	c.mu.Lock()
	if id != c.session {
		c.mu.Unlock()
		return
	}
	c.status = StatusError
	c.errCode = code
	c.mu.Unlock()
	c.notify()
}

func (c *Capture) onEnd(id uint64) {
	c.mu.Lock()
	if id != c.session {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.stopSilenceLocked()
	if c.status != StatusError {
		c.status = StatusStopped
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Capture) stopSilenceLocked() {
	if c.silence != nil {
		c.silence.Stop()
		c.silence = nil
	}
}

func (c *Capture) notify() {
	c.mu.Lock()
	obs := make([]func(), len(c.observers))
	copy(obs, c.observers)
	c.mu.Unlock()
	for _, fn := range obs {
		fn()
	}
}

// sessionListener binds recognizer events to one capture session so that
// late events from an earlier session are ignored.
type sessionListener struct {
	c  *Capture
	id uint64
}

func (l *sessionListener) OnStart() { l.c.onStart(l.id) }
func (l *sessionListener) OnResult(segments []Segment) { l.c.onResult(l.id, segments) }
func (l *sessionListener) OnError(code string) { l.c.fail(l.id, code) }
func (l *sessionListener) OnEnd() { l.c.onEnd(l.id) }
