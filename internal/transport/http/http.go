// Package http implements the HTTP/WebSocket transport for kora.
//
// This transport exposes a REST API over the interview actions, a WebSocket
// endpoint for the attached client page, and the client page itself. It is
// best suited for browsers and scripts that prefer HTTP-based communication.
package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/kora/internal/bridge"
	_ "github.com/nadzzz/kora/internal/docs" // registers the OpenAPI doc served under /swagger/
	"github.com/nadzzz/kora/internal/message"
	"github.com/nadzzz/kora/internal/transport"
)

// maxAudioBytes bounds uploaded answer recordings.
const maxAudioBytes = 25 << 20

//go:embed web
var webFS embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The page is served by this transport; other origins are local tools.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port   int
	hub    *bridge.Hub // nil disables /ws
	server *http.Server
}

// New creates a new HTTP transport on the given port. hub may be nil.
func New(port int, hub *bridge.Hub) *Transport {
	return &Transport{port: port, hub: hub}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Routes(ctx, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Routes builds the request multiplexer. WebSocket clients are detached when
// ctx is done.
func (t *Transport) Routes(ctx context.Context, handler transport.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /session", func(w http.ResponseWriter, r *http.Request) {
		t.handleSnapshot(w, r, handler)
	})
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		t.handleRestart(w, r, handler)
	})
	mux.HandleFunc("GET /session/summary", func(w http.ResponseWriter, r *http.Request) {
		t.handleSummary(w, r, handler)
	})
	mux.HandleFunc("POST /session/style", func(w http.ResponseWriter, r *http.Request) {
		t.handleStyle(w, r, handler)
	})
	mux.HandleFunc("POST /session/begin", func(w http.ResponseWriter, r *http.Request) {
		t.handleBegin(w, r, handler)
	})
	mux.HandleFunc("POST /session/answer/start", func(w http.ResponseWriter, r *http.Request) {
		t.handleStartAnswer(w, r, handler)
	})
	mux.HandleFunc("POST /session/answer", func(w http.ResponseWriter, r *http.Request) {
		t.handleSubmitAnswer(w, r, handler)
	})
	mux.HandleFunc("POST /session/answer/voice", func(w http.ResponseWriter, r *http.Request) {
		t.handleSubmitVoiceAnswer(w, r, handler)
	})
	mux.HandleFunc("POST /session/text-mode", func(w http.ResponseWriter, r *http.Request) {
		t.handleTextMode(w, r, handler)
	})
	mux.HandleFunc("POST /capture/audio", func(w http.ResponseWriter, r *http.Request) {
		t.handleCaptureAudio(w, r, handler)
	})

	// GET /ws: the attached client page.
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		t.handleWebSocket(ctx, w, r, handler)
	})

	// Swagger UI serving the registered OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, webFS, "web/index.html")
	})

	return mux
}

// StyleRequest is the body of POST /session/style.
type StyleRequest struct {
	Style string `json:"style" example:"friendly"`
}

// AnswerRequest is the body of POST /session/answer.
type AnswerRequest struct {
	Text   string `json:"text" example:"我在上一家公司负责支付系统的对账模块。"`
	Source string `json:"source,omitempty" example:"text"`
}

// TextModeRequest is the body of POST /session/text-mode.
type TextModeRequest struct {
	Confirmed bool `json:"confirmed"`
}

// handleSnapshot processes a GET /session request.
//
// @Summary     Current interview state
// @Description Returns the session with flow and speech device state.
// @Tags        session
// @Produce     json
// @Success     200  {object}  message.Result
// @Router      /session [get]
func (t *Transport) handleSnapshot(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	t.run(w, r, handler, &message.Request{Action: message.ActionSnapshot})
}

// handleRestart processes a POST /session request.
//
// @Summary     Start a fresh session
// @Description Discards the current session and returns a new one in the welcome phase.
// @Tags        session
// @Produce     json
// @Success     200  {object}  message.Result
// @Router      /session [post]
func (t *Transport) handleRestart(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	t.run(w, r, handler, &message.Request{Action: message.ActionRestart})
}

// handleSummary processes a GET /session/summary request.
//
// @Summary     Completed interview
// @Description Returns every question, answer and follow-up once the interview is complete.
// @Tags        session
// @Produce     json
// @Success     200  {object}  message.Result
// @Failure     409  {object}  message.Result  "Interview not complete"
// @Router      /session/summary [get]
func (t *Transport) handleSummary(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	t.run(w, r, handler, &message.Request{Action: message.ActionSummary})
}

// handleStyle processes a POST /session/style request.
//
// @Summary     Select interviewer style
// @Description Sets the tone preset (serious, friendly, campus). Only valid before the interview begins.
// @Tags        session
// @Accept      json
// @Produce     json
// @Param       request  body      StyleRequest  true  "Style"
// @Success     200  {object}  message.Result
// @Failure     400  {object}  message.Result  "Unknown style"
// @Failure     409  {object}  message.Result  "Interview already begun"
// @Router      /session/style [post]
func (t *Transport) handleStyle(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var body StyleRequest
	if !decode(w, r, &body) {
		return
	}
	t.run(w, r, handler, &message.Request{Action: message.ActionSelectStyle, Style: body.Style})
}

// handleBegin processes a POST /session/begin request.
//
// @Summary     Begin the interview
// @Description Speaks the greeting and, after a short pause, the first question.
// @Tags        session
// @Produce     json
// @Success     200  {object}  message.Result
// @Failure     409  {object}  message.Result  "Interview already begun"
// @Router      /session/begin [post]
func (t *Transport) handleBegin(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	t.run(w, r, handler, &message.Request{Action: message.ActionBegin})
}

// handleStartAnswer processes a POST /session/answer/start request.
//
// @Summary     Start a spoken answer
// @Description Clears and starts speech capture for the active question.
// @Tags        answer
// @Produce     json
// @Success     200  {object}  message.Result
// @Failure     409  {object}  message.Result  "Generating a follow-up or narrating a question"
// @Router      /session/answer/start [post]
func (t *Transport) handleStartAnswer(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	t.run(w, r, handler, &message.Request{Action: message.ActionStartAnswer})
}

// handleSubmitAnswer processes a POST /session/answer request.
//
// @Summary     Submit an answer
// @Description Records the answer to the active question. Blocks while the next follow-up question is generated.
// @Tags        answer
// @Accept      json
// @Produce     json
// @Param       request  body      AnswerRequest  true  "Answer"
// @Success     200  {object}  message.Result
// @Failure     409  {object}  message.Result  "Not in the interview phase or a follow-up is being generated"
// @Router      /session/answer [post]
func (t *Transport) handleSubmitAnswer(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var body AnswerRequest
	if !decode(w, r, &body) {
		return
	}
	t.run(w, r, handler, &message.Request{
		Action:       message.ActionSubmitAnswer,
		Text:         body.Text,
		AnswerSource: body.Source,
	})
}

// handleSubmitVoiceAnswer processes a POST /session/answer/voice request.
//
// @Summary     Submit the spoken answer
// @Description Stops speech capture and submits its transcript.
// @Tags        answer
// @Produce     json
// @Success     200  {object}  message.Result
// @Failure     409  {object}  message.Result  "Not in the interview phase or a follow-up is being generated"
// @Router      /session/answer/voice [post]
func (t *Transport) handleSubmitVoiceAnswer(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	t.run(w, r, handler, &message.Request{Action: message.ActionSubmitVoiceAnswer})
}

// handleTextMode processes a POST /session/text-mode request.
//
// @Summary     Toggle typed answers
// @Description Switches between voice and typed answers. The first switch to text mode must be confirmed.
// @Tags        answer
// @Accept      json
// @Produce     json
// @Param       request  body      TextModeRequest  false  "Confirmation"
// @Success     200  {object}  message.Result
// @Failure     428  {object}  message.Result  "Confirmation required"
// @Router      /session/text-mode [post]
func (t *Transport) handleTextMode(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var body TextModeRequest
	if !decode(w, r, &body) {
		return
	}
	t.run(w, r, handler, &message.Request{Action: message.ActionToggleTextMode, Confirmed: body.Confirmed})
}

// handleCaptureAudio processes a POST /capture/audio request.
//
// @Summary     Upload a recorded answer clip
// @Description Transcribes the clip on the server and appends it to the active capture session.
// @Tags        answer
// @Accept      audio/wav
// @Accept      audio/webm
// @Accept      audio/ogg
// @Produce     json
// @Success     200  {object}  message.Result
// @Failure     409  {object}  message.Result  "No capture session is active"
// @Failure     501  {object}  message.Result  "Server-side transcription not configured"
// @Failure     502  {object}  message.Result  "Transcription failed"
// @Router      /capture/audio [post]
func (t *Transport) handleCaptureAudio(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	audio, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBytes))
	if err != nil {
		http.Error(w, "reading audio: "+err.Error(), http.StatusBadRequest)
		return
	}
	t.run(w, r, handler, &message.Request{
		Action:      message.ActionCaptureAudio,
		Audio:       audio,
		ContentType: r.Header.Get("Content-Type"),
	})
}

// handleWebSocket attaches the client page to the bridge hub.
func (t *Transport) handleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	if t.hub == nil {
		http.Error(w, "client bridge disabled", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	err = t.hub.Serve(ctx, conn, func(actx context.Context, msg bridge.Inbound) error {
		_, err := handler(actx, &message.Request{
			Source:       "bridge",
			Action:       message.Action(msg.Action),
			Style:        msg.Style,
			Text:         msg.Text,
			AnswerSource: msg.Source,
			Confirmed:    msg.Confirmed,
		})
		return err
	})
	if err != nil {
		slog.Warn("client connection closed", "error", err)
	}
}

func (t *Transport) run(w http.ResponseWriter, r *http.Request, handler transport.Handler, req *message.Request) {
	req.Source = "http"
	result, err := handler(r.Context(), req)
	if result == nil {
		slog.Error("request failed", "action", req.Action, "error", err)
		http.Error(w, "request failed: "+errorText(err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, transport.HTTPStatus(err), result)
}

// decode reads an optional JSON body into v. It reports false after writing
// an error response.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorText(err error) string {
	if err == nil {
		return "no result"
	}
	return err.Error()
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
