// Package bridge connects the daemon to the attached client page.
//
// Browsers recognize and speak Chinese well on their own, so by default the
// daemon delegates both to the page over a WebSocket: the Hub is a
// capture.Recognizer, a playback.Engine and a playback.AudioSink whose work
// is done by the client. The same connection carries view actions and
// session snapshots.
//
// One client is attached at a time; attaching a new one detaches the old.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nadzzz/kora/internal/speech/capture"
	"github.com/nadzzz/kora/internal/speech/playback"
	"github.com/nadzzz/kora/internal/tts"
)

// ErrNoClient is returned when no client page is attached.
var ErrNoClient = errors.New("no client attached")

var errDetached = errors.New("client detached")

// Conn is the subset of *websocket.Conn used by the hub.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Outbound message types.
const (
	TypeSnapshot    = "snapshot"
	TypeSpeak       = "speak"
	TypeAudio       = "audio"
	TypeCancel      = "cancel"
	TypeRecognition = "recognition"
	TypeError       = "error"
)

// Inbound message types.
const (
	TypeHello     = "hello"
	TypeAction    = "action"
	TypeUtterance = "utterance"
)

// Outbound is a message sent to the client.
type Outbound struct {
	Type      string              `json:"type"`
	ID        uint64              `json:"id,omitempty"`
	Utterance *playback.Utterance `json:"utterance,omitempty"`
	Command   string              `json:"command,omitempty"` // recognition: start or stop
	Lang      string              `json:"lang,omitempty"`
	Session   any                 `json:"session,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Inbound is a message received from the client.
type Inbound struct {
	Type string `json:"type"`

	// hello
	Recognition bool `json:"recognition,omitempty"`
	Synthesis   bool `json:"synthesis,omitempty"`

	// action
	Action    string `json:"action,omitempty"`
	Style     string `json:"style,omitempty"`
	Text      string `json:"text,omitempty"`
	Source    string `json:"source,omitempty"`
	Confirmed bool   `json:"confirmed,omitempty"`

	// recognition and utterance events
	Event    string            `json:"event,omitempty"` // start, result, error, end
	ID       uint64            `json:"id,omitempty"`
	Segments []capture.Segment `json:"segments,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ActionFunc handles a view action received from the client.
type ActionFunc func(ctx context.Context, msg Inbound) error

type client struct {
	conn Conn
	wmu  sync.Mutex

	recognition bool
	synthesis   bool
}

func (c *client) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) writeBinary(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Hub relays between the daemon and the attached client.
type Hub struct {
	lang string

	mu       sync.Mutex
	snapshot func() any
	client   *client
	nextID   uint64
	pending  map[uint64]chan error
	listener capture.Listener
}

// NewHub creates a hub. lang is the BCP-47 tag sent with recognition and
// speech requests.
func NewHub(lang string) *Hub {
	return &Hub{lang: lang, pending: make(map[uint64]chan error)}
}

// SetSnapshotFunc sets the source of the snapshot sent to each client on
// attach.
func (h *Hub) SetSnapshotFunc(fn func() any) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

// Attached reports whether a client is connected.
func (h *Hub) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.client != nil
}

// Serve attaches conn and reads from it until it fails or ctx is done.
// Actions are passed to onAction; their errors are reported back to the client.
func (h *Hub) Serve(ctx context.Context, conn Conn, onAction ActionFunc) error {
	c := &client{conn: conn, recognition: true, synthesis: true}

	h.mu.Lock()
	prev := h.client
	h.mu.Unlock()
	if prev != nil {
		slog.Info("replacing attached client")
		h.detach(prev)
		_ = prev.conn.Close()
	}

	h.mu.Lock()
	h.client = c
	snapshot := h.snapshot
	h.mu.Unlock()
	slog.Info("client attached")
	if snapshot != nil {
		_ = c.write(Outbound{Type: TypeSnapshot, Session: snapshot()})
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer h.detach(c)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading from client: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.write(Outbound{Type: TypeError, Error: "invalid message: " + err.Error()})
			continue
		}
		h.handle(ctx, c, msg, onAction)
	}
}

func (h *Hub) handle(ctx context.Context, c *client, msg Inbound, onAction ActionFunc) {
	switch msg.Type {
	case TypeHello:
		h.mu.Lock()
		c.recognition = msg.Recognition
		c.synthesis = msg.Synthesis
		h.mu.Unlock()
		slog.Info("client capabilities", "recognition", msg.Recognition, "synthesis", msg.Synthesis)

	case TypeAction:
		if onAction == nil {
			return
		}
		// Submissions block on follow-up generation; keep reading meanwhile.
		go func() {
			if err := onAction(ctx, msg); err != nil {
				_ = c.write(Outbound{Type: TypeError, Error: err.Error()})
			}
		}()

	case TypeRecognition:
		h.mu.Lock()
		l := h.listener
		h.mu.Unlock()
		if l == nil {
			return
		}
		switch msg.Event {
		case "start":
			l.OnStart()
		case "result":
			l.OnResult(msg.Segments)
		case "error":
			l.OnError(msg.Error)
		case "end":
			h.mu.Lock()
			if h.listener == l {
				h.listener = nil
			}
			h.mu.Unlock()
			l.OnEnd()
		}

	case TypeUtterance:
		var result error
		switch msg.Event {
		case "end":
		case "error":
			result = fmt.Errorf("client playback error: %s", msg.Error)
		default:
			return
		}
		h.mu.Lock()
		done, ok := h.pending[msg.ID]
		delete(h.pending, msg.ID)
		h.mu.Unlock()
		if ok {
			done <- result
		}

	default:
		slog.Debug("ignoring client message", "type", msg.Type)
	}
}

// detach fails everything waiting on c.
func (h *Hub) detach(c *client) {
	h.mu.Lock()
	if h.client != c {
		h.mu.Unlock()
		return
	}
	h.client = nil
	pending := h.pending
	h.pending = make(map[uint64]chan error)
	l := h.listener
	h.listener = nil
	h.mu.Unlock()

	for _, done := range pending {
		done <- errDetached
	}
	if l != nil {
		l.OnError("client_detached")
		l.OnEnd()
	}
	slog.Info("client detached")
}

// Broadcast sends a snapshot to the attached client, if any.
func (h *Hub) Broadcast(session any) error {
	h.mu.Lock()
	c := h.client
	h.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.write(Outbound{Type: TypeSnapshot, Session: session})
}

// Supported is true: capability depends on the client attached at the time
// of use, and is checked then.
func (h *Hub) Supported() bool { return true }

// Start asks the client to begin recognition.
func (h *Hub) Start(l capture.Listener) error {
	h.mu.Lock()
	c := h.client
	if c == nil {
		h.mu.Unlock()
		return ErrNoClient
	}
	if !c.recognition {
		h.mu.Unlock()
		return errors.New("client cannot recognize speech")
	}
	h.listener = l
	h.mu.Unlock()

	return c.write(Outbound{Type: TypeRecognition, Command: "start", Lang: h.lang})
}

// Stop asks the client to end recognition.
func (h *Hub) Stop() error {
	h.mu.Lock()
	c := h.client
	h.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.write(Outbound{Type: TypeRecognition, Command: "stop"})
}

// Speak has the client speak u with its own synthesizer.
func (h *Hub) Speak(ctx context.Context, u playback.Utterance) error {
	return h.await(ctx, func(c *client, id uint64) error {
		if !c.synthesis {
			return errors.New("client cannot synthesize speech")
		}
		return c.write(Outbound{Type: TypeSpeak, ID: id, Utterance: &u})
	})
}

// Play sends synthesized audio for u to the client.
func (h *Hub) Play(ctx context.Context, u playback.Utterance, audio *tts.SynthesizeResult) error {
	return h.await(ctx, func(c *client, id uint64) error {
		if err := c.write(Outbound{Type: TypeAudio, ID: id, Utterance: &u}); err != nil {
			return err
		}
		return c.writeBinary(audio.Audio)
	})
}

// await registers an utterance, sends it and waits for the client to finish it.
func (h *Hub) await(ctx context.Context, send func(c *client, id uint64) error) error {
	h.mu.Lock()
	c := h.client
	if c == nil {
		h.mu.Unlock()
		return ErrNoClient
	}
	h.nextID++
	id := h.nextID
	done := make(chan error, 1)
	h.pending[id] = done
	h.mu.Unlock()

	if err := send(c, id); err != nil {
		h.forget(id)
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		h.forget(id)
		_ = c.write(Outbound{Type: TypeCancel, ID: id})
		return ctx.Err()
	}
}

func (h *Hub) forget(id uint64) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}
