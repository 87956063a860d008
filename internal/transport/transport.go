// Package transport defines the interface for pluggable request transports.
//
// Each transport (gRPC, HTTP/WebSocket) implements this interface and hands
// every request to the dispatcher. The dispatcher doesn't care how requests
// arrive; it only works with the Transport contract.
package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/nadzzz/kora/internal/dispatch"
	"github.com/nadzzz/kora/internal/interview"
	"github.com/nadzzz/kora/internal/message"
	"github.com/nadzzz/kora/internal/whisper"
)

// Handler processes an incoming request and returns its result.
// The dispatcher provides this handler to each transport.
type Handler func(ctx context.Context, req *message.Request) (*message.Result, error)

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts accepting requests and passes them to the handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}

// HTTPStatus maps an action error to the HTTP status reported for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, interview.ErrInvalidTransition),
		errors.Is(err, interview.ErrGenerating),
		errors.Is(err, interview.ErrSpeaking),
		errors.Is(err, whisper.ErrNotListening):
		return http.StatusConflict
	case errors.Is(err, interview.ErrConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, dispatch.ErrNoTranscriber):
		return http.StatusNotImplemented
	case errors.Is(err, dispatch.ErrTranscription):
		return http.StatusBadGateway
	case errors.Is(err, dispatch.ErrUnknownAction):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
