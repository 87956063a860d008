package main

import (
	"fmt"
	"log/slog"

	"github.com/nadzzz/kora/internal/bridge"
	"github.com/nadzzz/kora/internal/config"
	"github.com/nadzzz/kora/internal/credential"
	"github.com/nadzzz/kora/internal/dispatch"
	"github.com/nadzzz/kora/internal/followup"
	"github.com/nadzzz/kora/internal/interview"
	"github.com/nadzzz/kora/internal/metrics"
	"github.com/nadzzz/kora/internal/speech/capture"
	"github.com/nadzzz/kora/internal/speech/playback"
	"github.com/nadzzz/kora/internal/style"
	"github.com/nadzzz/kora/internal/tts/piper"
	"github.com/nadzzz/kora/internal/whisper"
)

// stack is everything one interview process needs.
type stack struct {
	cfg        *config.Config
	hub        *bridge.Hub // nil when no client page is involved
	flow       *interview.Flow
	dispatcher *dispatch.Dispatcher
	generator  *followup.Generator
	metrics    *metrics.Metrics
	credential string
	closers    []func() error
}

// Close releases the flow and any backends.
func (s *stack) Close() {
	s.flow.Close()
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Warn("closing backend", "error", err)
		}
	}
}

// build assembles the interview stack from configuration. A headless stack
// has no client page, so bridge backends are replaced with none.
func build(cfg *config.Config, headless bool) (*stack, error) {
	questions, err := interview.LoadQuestions(cfg.Interview.QuestionsFile)
	if err != nil {
		return nil, err
	}
	initial, err := style.Parse(cfg.Interview.Style)
	if err != nil {
		return nil, fmt.Errorf("interview.style: %w", err)
	}

	store := credential.NewStore(cfg.Credential.File)
	cred, err := store.Resolve(cfg.Followup.APIKey)
	if err != nil {
		slog.Warn("credential file unreadable, continuing without it", "path", store.Path(), "error", err)
	}

	s := &stack{cfg: cfg, metrics: metrics.New(), credential: cred}
	s.generator = followup.New(cfg.Followup)
	s.generator.Observe = s.metrics.FollowupGenerated

	captureBackend, playbackBackend := cfg.Capture.Backend, cfg.Playback.Backend
	if headless {
		if captureBackend == "bridge" {
			captureBackend = "none"
		}
		if playbackBackend == "bridge" || playbackBackend == "piper" {
			playbackBackend = "none"
		}
	}
	if captureBackend == "bridge" || playbackBackend == "bridge" || playbackBackend == "piper" {
		s.hub = bridge.NewHub(cfg.Interview.Language)
	}

	var (
		rec    capture.Recognizer
		feeder dispatch.AudioFeeder
	)
	switch captureBackend {
	case "bridge":
		rec = s.hub
	case "whisper":
		wr := whisper.NewRecognizer(whisper.New(cfg.Capture.Whisper))
		rec, feeder = wr, wr
		slog.Info("using whisper transcription",
			"endpoint", cfg.Capture.Whisper.Endpoint,
			"type", cfg.Capture.Whisper.Type)
	}

	var engine playback.Engine
	switch playbackBackend {
	case "bridge":
		engine = s.hub
	case "piper":
		synth := piper.New(cfg.Playback.Piper)
		s.closers = append(s.closers, synth.Close)
		engine = playback.NewSynthEngine(synth, s.hub)
		slog.Info("using piper synthesis", "endpoint", cfg.Playback.Piper.Endpoint)
	}

	capt := capture.New(rec, cfg.Capture.MaxSilence)
	player := playback.New(engine, cfg.Interview.Language)

	deps := interview.Deps{
		Recorder:    capt,
		Narrator:    player,
		Generator:   s.generator,
		Credentials: store,
		Stats:       s.metrics,
	}
	s.flow, err = interview.NewFlow(interview.Options{
		Questions:        questions,
		Style:            initial,
		FollowupsEnabled: cfg.Interview.FollowupsEnabled,
		Greeting:         cfg.Interview.Greeting,
		QuestionDelay:    cfg.Interview.QuestionDelay,
		Credential:       cred,
	}, deps)
	if err != nil {
		return nil, err
	}
	capt.Observe(s.flow.Notify)
	player.Observe(s.flow.Notify)

	s.dispatcher = dispatch.New(s.flow, feeder, s.metrics)
	if s.hub != nil {
		s.hub.SetSnapshotFunc(func() any { return s.flow.Snapshot() })
	}

	slog.Info("interview ready",
		"questions", len(questions),
		"style", initial,
		"capture", captureBackend,
		"playback", playbackBackend,
		"followup_credential", cred != "")
	return s, nil
}

// providerStatus describes how follow-up questions will be produced.
func (s *stack) providerStatus() string {
	if !s.cfg.Interview.FollowupsEnabled {
		return "追问：已关闭"
	}
	if s.credential == "" {
		return "追问服务：未配置密钥，使用本地追问"
	}
	return fmt.Sprintf("追问服务：%s（%s）", s.cfg.Followup.BaseURL, s.cfg.Followup.Model)
}
