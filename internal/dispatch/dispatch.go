// Package dispatch implements the action router between the transports and
// the interview flow.
//
// Every transport turns its own wire format into a message.Request and hands
// it to Handle. The sender always receives the resulting snapshot, even when
// the action is refused.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/kora/internal/interview"
	"github.com/nadzzz/kora/internal/message"
	"github.com/nadzzz/kora/internal/style"
)

// ErrNoTranscriber is returned for audio uploads when server-side
// transcription is not configured.
var ErrNoTranscriber = errors.New("server-side transcription is not configured")

// ErrTranscription wraps failures of server-side transcription.
var ErrTranscription = errors.New("transcription failed")

// ErrUnknownAction is returned for requests naming no known action.
var ErrUnknownAction = errors.New("unknown action")

// Flow is the subset of *interview.Flow driven by the dispatcher.
type Flow interface {
	Snapshot() interview.Snapshot
	Restart() interview.Snapshot
	SelectStyle(s style.Style) error
	Begin() error
	StartAnswer() error
	SubmitAnswer(text string, source interview.AnswerSource) error
	SubmitVoiceAnswer() error
	ToggleTextMode(confirmed bool) (bool, error)
}

// AudioFeeder transcribes an uploaded clip into the active capture session.
type AudioFeeder interface {
	Feed(ctx context.Context, audio []byte, contentType string) (string, error)
}

// Observer is told about every handled request.
type Observer interface {
	ActionHandled(action message.Action, err error, elapsed time.Duration)
}

// Dispatcher is the central action router.
type Dispatcher struct {
	flow     Flow
	feeder   AudioFeeder // nil unless capture runs on the daemon
	observer Observer
}

// New creates a Dispatcher. feeder and observer may be nil.
func New(flow Flow, feeder AudioFeeder, observer Observer) *Dispatcher {
	return &Dispatcher{flow: flow, feeder: feeder, observer: observer}
}

// Handle runs one request against the flow. The returned error is the
// action's own error (interview.ErrInvalidTransition and friends); the result
// is returned either way.
// This function is passed as the transport.Handler to each transport.
func (d *Dispatcher) Handle(ctx context.Context, req *message.Request) (*message.Result, error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = start
	}
	logger := slog.With("request_id", req.ID, "source", req.Source, "action", req.Action)

	result := &message.Result{RequestID: req.ID, Action: req.Action}
	err := d.apply(ctx, req, result)
	if err != nil {
		result.Error = err.Error()
		logger.Info("action refused", "error", err)
	} else {
		logger.Debug("action handled", "duration", time.Since(start))
	}

	if req.Action != message.ActionRestart {
		result.Snapshot = d.flow.Snapshot()
	}
	if d.observer != nil {
		d.observer.ActionHandled(req.Action, err, time.Since(start))
	}
	return result, err
}

func (d *Dispatcher) apply(ctx context.Context, req *message.Request, result *message.Result) error {
	switch req.Action {
	case message.ActionSnapshot:
		return nil

	case message.ActionSummary:
		if d.flow.Snapshot().Phase != interview.PhaseSummary {
			return interview.ErrInvalidTransition
		}
		return nil

	case message.ActionRestart:
		result.Snapshot = d.flow.Restart()
		return nil

	case message.ActionSelectStyle:
		s, err := style.Parse(req.Style)
		if err != nil {
			return err
		}
		return d.flow.SelectStyle(s)

	case message.ActionBegin:
		return d.flow.Begin()

	case message.ActionStartAnswer:
		return d.flow.StartAnswer()

	case message.ActionSubmitAnswer:
		src, err := interview.ParseSource(req.AnswerSource)
		if err != nil {
			return err
		}
		return d.flow.SubmitAnswer(req.Text, src)

	case message.ActionSubmitVoiceAnswer:
		return d.flow.SubmitVoiceAnswer()

	case message.ActionToggleTextMode:
		on, err := d.flow.ToggleTextMode(req.Confirmed)
		if err != nil {
			return err
		}
		result.TextMode = &on
		return nil

	case message.ActionCaptureAudio:
		if d.feeder == nil {
			return ErrNoTranscriber
		}
		if !req.HasAudio() {
			return errors.New("request has no audio")
		}
		text, err := d.feeder.Feed(ctx, req.Audio, req.ContentType)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTranscription, err)
		}
		result.Transcript = text
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
}
