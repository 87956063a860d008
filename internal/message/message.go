// Package message defines the requests and results exchanged between the
// transports and the dispatcher.
package message

import (
	"time"

	"github.com/nadzzz/kora/internal/interview"
)

// Action names an operation on the interview.
type Action string

const (
	// ActionSnapshot returns the current state without changing it.
	ActionSnapshot Action = "snapshot"

	// ActionSummary returns the state once the interview is complete.
	ActionSummary Action = "summary"

	// ActionRestart replaces the session with a fresh one.
	ActionRestart Action = "restart"

	// ActionSelectStyle changes the tone preset (Welcome only).
	ActionSelectStyle Action = "select_style"

	// ActionBegin starts the interview.
	ActionBegin Action = "begin"

	// ActionStartAnswer starts speech capture for the active question.
	ActionStartAnswer Action = "start_answer"

	// ActionSubmitAnswer submits a typed or externally transcribed answer.
	ActionSubmitAnswer Action = "submit_answer"

	// ActionSubmitVoiceAnswer stops capture and submits its transcript.
	ActionSubmitVoiceAnswer Action = "submit_voice_answer"

	// ActionToggleTextMode switches between voice and typed answers.
	ActionToggleTextMode Action = "toggle_text_mode"

	// ActionCaptureAudio feeds a recorded clip to server-side transcription.
	ActionCaptureAudio Action = "capture_audio"
)

// Request is an action received from any transport.
type Request struct {
	// ID is a unique identifier for this request (UUID).
	ID string `json:"id"`

	// Source identifies the sender (e.g., "http", "grpc", "bridge").
	Source string `json:"source"`

	Action Action `json:"action"`

	// Style is the preset for ActionSelectStyle.
	Style string `json:"style,omitempty"`

	// Text is the answer for ActionSubmitAnswer.
	Text string `json:"text,omitempty"`

	// AnswerSource is "voice" or "text"; empty means text.
	AnswerSource string `json:"answer_source,omitempty"`

	// Confirmed acknowledges the first switch to text mode.
	Confirmed bool `json:"confirmed,omitempty"`

	// Audio is the recorded clip for ActionCaptureAudio.
	Audio []byte `json:"audio,omitempty"`

	// ContentType is the MIME type of Audio (e.g., "audio/webm").
	ContentType string `json:"content_type,omitempty"`

	// Timestamp is when the request was received.
	Timestamp time.Time `json:"timestamp"`
}

// HasAudio returns true if the request carries an audio clip.
func (r *Request) HasAudio() bool {
	return len(r.Audio) > 0
}

// Result is the outcome of a request. Snapshot is always the state after the
// action, including when the action was refused.
type Result struct {
	RequestID string `json:"request_id"`
	Action    Action `json:"action"`

	Snapshot interview.Snapshot `json:"snapshot"`

	// TextMode is set by ActionToggleTextMode.
	TextMode *bool `json:"text_mode,omitempty"`

	// Transcript is the text recognized from ActionCaptureAudio.
	Transcript string `json:"transcript,omitempty"`

	// Error is set when the action was refused or failed.
	Error string `json:"error,omitempty"`
}
