package interview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/kora/internal/followup"
	"github.com/nadzzz/kora/internal/speech/capture"
	"github.com/nadzzz/kora/internal/speech/playback"
	"github.com/nadzzz/kora/internal/style"
)

// Recorder captures spoken answers.
type Recorder interface {
	Supported() bool
	Start()
	Stop()
	Reset()
	State() capture.State
}

// Narrator speaks questions.
type Narrator interface {
	Supported() bool
	SetVoice(v style.Voice)
	Speak(text string)
	Cancel()
	Status() playback.Status
}

// Generator produces follow-up questions and never fails.
type Generator interface {
	Generate(ctx context.Context, req followup.Request) string
}

// CredentialSaver persists the credential after it has been used.
type CredentialSaver interface {
	Save(credential string) error
}

// Stats receives interview events for metrics.
type Stats interface {
	SessionStarted(s style.Style)
	SessionCompleted()
	AnswerSubmitted(slot SubSlot, source AnswerSource)
}

// Options configures a Flow.
type Options struct {
	Questions        []string
	Style            style.Style
	FollowupsEnabled bool
	Greeting         string
	QuestionDelay    time.Duration // pause between greeting and first question
	Credential       string
}

// Deps are the collaborators of a Flow. Recorder, Narrator and Generator are
// required; the rest may be nil.
type Deps struct {
	Recorder    Recorder
	Narrator    Narrator
	Generator   Generator
	Credentials CredentialSaver
	Stats       Stats
}

// Flow drives one interview session at a time. All actions are safe for
// concurrent use; at most one follow-up generation is outstanding.
type Flow struct {
	opts Options
	deps Deps

	mu         sync.Mutex
	sess       Session
	generating bool
	textMode   bool
	confirmed  bool // text mode was confirmed once
	delay      *time.Timer
	closed     bool

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// NewFlow creates a Flow in the Welcome phase.
func NewFlow(opts Options, deps Deps) (*Flow, error) {
	if len(opts.Questions) == 0 {
		return nil, errors.New("interview needs at least one question")
	}
	if deps.Recorder == nil || deps.Narrator == nil || deps.Generator == nil {
		return nil, errors.New("interview needs a recorder, a narrator and a generator")
	}
	if opts.Style == "" {
		opts.Style = style.Default
	}

	f := &Flow{
		opts: opts,
		deps: deps,
		subs: make(map[chan struct{}]struct{}),
	}
	f.sess = f.newSession()
	deps.Narrator.SetVoice(opts.Style.Preset().Voice)
	return f, nil
}

func (f *Flow) newSession() Session {
	items := make([]QaItem, len(f.opts.Questions))
	for i, q := range f.opts.Questions {
		items[i] = QaItem{Question: q, Followups: []Followup{}}
	}
	return Session{
		ID:      uuid.NewString(),
		Phase:   PhaseWelcome,
		SubSlot: SlotMain,
		Style:   f.opts.Style,
		Items:   items,
	}
}

// Snapshot returns a copy of the session with flow and device state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	sess := f.sess.clone()
	snap := Snapshot{
		Session:          sess,
		CurrentQuestion:  sess.CurrentQuestion(),
		Generating:       f.generating,
		TextMode:         f.textMode,
		FollowupsEnabled: f.opts.FollowupsEnabled,
		HasCredential:    f.opts.Credential != "",
	}
	f.mu.Unlock()

	snap.Capture = f.deps.Recorder.State()
	snap.Playback = f.deps.Narrator.Status()
	snap.PlaybackSupported = f.deps.Narrator.Supported()
	return snap
}

// Subscribe returns a channel that receives a signal after state changes.
// Signals coalesce; readers should take a fresh Snapshot on each one.
func (f *Flow) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	f.subMu.Lock()
	f.subs[ch] = struct{}{}
	f.subMu.Unlock()

	return ch, func() {
		f.subMu.Lock()
		delete(f.subs, ch)
		f.subMu.Unlock()
	}
}

// Notify signals all subscribers. Device observers call it too.
func (f *Flow) Notify() {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SelectStyle changes the tone preset. Only valid before Begin.
func (f *Flow) SelectStyle(s style.Style) error {
	f.mu.Lock()
	if f.sess.Phase != PhaseWelcome {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	f.sess.Style = s
	f.mu.Unlock()

	f.deps.Narrator.SetVoice(s.Preset().Voice)
	slog.Debug("interview style selected", "style", s)
	f.Notify()
	return nil
}

// Begin moves from Welcome to the first main question, speaks the greeting
// and, after the configured delay, the first question.
func (f *Flow) Begin() error {
	f.mu.Lock()
	if f.closed || f.sess.Phase != PhaseWelcome {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	f.sess.Phase = PhaseInterview
	f.sess.CurrentIndex = 0
	f.sess.SubSlot = SlotMain
	id := f.sess.ID
	st := f.sess.Style
	first := f.sess.Items[0].Question

	if f.deps.Narrator.Supported() {
		f.deps.Narrator.Speak(f.opts.Greeting)
		f.delay = time.AfterFunc(f.opts.QuestionDelay, func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.sess.ID != id || f.sess.Phase != PhaseInterview ||
				f.sess.CurrentIndex != 0 || f.sess.SubSlot != SlotMain || f.generating {
				return
			}
			f.deps.Narrator.Speak(st.Narrate(first))
		})
	}
	f.mu.Unlock()

	if f.deps.Stats != nil {
		f.deps.Stats.SessionStarted(st)
	}
	slog.Info("interview started", "session_id", id, "style", st, "questions", len(f.opts.Questions))
	f.Notify()
	return nil
}

// StartAnswer clears and starts speech capture for the active question. It
// is refused while a follow-up is generated or a question is narrated, and
// does nothing when capture is unsupported.
func (f *Flow) StartAnswer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.sess.Phase != PhaseInterview {
		return ErrInvalidTransition
	}
	if f.generating {
		return ErrGenerating
	}
	if f.deps.Narrator.Status() == playback.StatusSpeaking {
		return ErrSpeaking
	}
	if !f.deps.Recorder.Supported() {
		return nil
	}
	// A capture already listening keeps its transcript.
	if f.deps.Recorder.State().Status == capture.StatusListening {
		return nil
	}
	f.deps.Recorder.Reset()
	f.deps.Recorder.Start()
	return nil
}

// SubmitVoiceAnswer stops capture and submits its transcript, falling back
// to the partial transcript when nothing was finalized.
func (f *Flow) SubmitVoiceAnswer() error {
	if err := f.checkSubmittable(); err != nil {
		return err
	}
	f.deps.Recorder.Stop()
	st := f.deps.Recorder.State()
	text := strings.TrimSpace(st.Transcript)
	if text == "" {
		text = strings.TrimSpace(st.Partial)
	}
	return f.SubmitAnswer(text, SourceVoice)
}

func (f *Flow) checkSubmittable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.sess.Phase != PhaseInterview {
		return ErrInvalidTransition
	}
	if f.generating {
		return ErrGenerating
	}
	if f.deps.Narrator.Status() == playback.StatusSpeaking {
		return ErrSpeaking
	}
	return nil
}

// SubmitAnswer records text as the answer to the active question and moves
// the session on. After a main or first follow-up answer it generates the
// next follow-up, blocking until the question is available. Empty answers
// are accepted; answers are refused while a question is narrated.
func (f *Flow) SubmitAnswer(text string, source AnswerSource) error {
	f.mu.Lock()
	if f.closed || f.sess.Phase != PhaseInterview {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	if f.generating {
		f.mu.Unlock()
		return ErrGenerating
	}
	if f.deps.Narrator.Status() == playback.StatusSpeaking {
		f.mu.Unlock()
		return ErrSpeaking
	}

	i := f.sess.CurrentIndex
	item := &f.sess.Items[i]
	slot := f.sess.SubSlot

	var req *followup.Request
	switch slot {
	case SlotMain:
		item.Answer = text
		item.AnswerSource = source
		if f.opts.FollowupsEnabled {
			req = &followup.Request{
				MainQuestion:    item.Question,
				PreviousAnswers: nonEmpty(text),
				FollowupIndex:   0,
			}
		} else {
			f.advanceLocked()
		}
	case SlotFollowup1:
		item.Followups[0].Answer = text
		item.Followups[0].AnswerSource = source
		req = &followup.Request{
			MainQuestion:    item.Question,
			PreviousAnswers: nonEmpty(item.Answer, text),
			FollowupIndex:   1,
		}
	case SlotFollowup2:
		item.Followups[1].Answer = text
		item.Followups[1].AnswerSource = source
		f.advanceLocked()
	}

	if req != nil {
		req.Style = f.sess.Style
		req.Credential = f.opts.Credential
		f.generating = true
	}
	id := f.sess.ID
	credential := f.opts.Credential
	f.mu.Unlock()

	slog.Debug("answer recorded", "session_id", id, "index", i, "slot", slot, "source", source)
	if f.deps.Stats != nil {
		f.deps.Stats.AnswerSubmitted(slot, source)
	}
	f.persistCredential(credential)
	f.Notify()

	if req != nil {
		f.generateFollowup(id, i, slot, *req)
	}
	return nil
}

// generateFollowup runs without the lock held and applies the result only
// if the session is still waiting for it.
func (f *Flow) generateFollowup(id string, index int, from SubSlot, req followup.Request) {
	question := f.deps.Generator.Generate(context.Background(), req)

	f.mu.Lock()
	if f.closed || f.sess.ID != id || f.sess.Phase != PhaseInterview ||
		f.sess.CurrentIndex != index || f.sess.SubSlot != from {
		f.mu.Unlock()
		slog.Info("discarding late follow-up", "session_id", id, "index", index, "slot", from)
		return
	}

	item := &f.sess.Items[index]
	if len(item.Followups) < MaxFollowups {
		item.Followups = append(item.Followups, Followup{Question: question})
	}
	if from == SlotMain {
		f.sess.SubSlot = SlotFollowup1
	} else {
		f.sess.SubSlot = SlotFollowup2
	}
	f.generating = false
	f.deps.Narrator.Speak(f.sess.Style.Narrate(question))
	f.mu.Unlock()

	f.Notify()
}

// advanceLocked moves to the next main question or to Summary.
func (f *Flow) advanceLocked() {
	f.sess.SubSlot = SlotMain
	if f.sess.CurrentIndex == len(f.sess.Items)-1 {
		f.deps.Narrator.Cancel()
		f.sess.Phase = PhaseSummary
		if f.delay != nil {
			f.delay.Stop()
		}
		if f.deps.Stats != nil {
			f.deps.Stats.SessionCompleted()
		}
		slog.Info("interview completed", "session_id", f.sess.ID)
		return
	}
	f.sess.CurrentIndex++
	f.deps.Narrator.Speak(f.sess.Style.Narrate(f.sess.Items[f.sess.CurrentIndex].Question))
}

func (f *Flow) persistCredential(credential string) {
	if credential == "" || f.deps.Credentials == nil {
		return
	}
	if err := f.deps.Credentials.Save(credential); err != nil {
		slog.Warn("failed to persist credential", "error", err)
	}
}

// ToggleTextMode switches between voice and typed answers. The first switch
// to text mode needs confirmed set; later switches do not.
func (f *Flow) ToggleTextMode(confirmed bool) (bool, error) {
	f.mu.Lock()
	if !f.textMode && !f.confirmed {
		if !confirmed {
			f.mu.Unlock()
			return false, ErrConfirmationRequired
		}
		f.confirmed = true
	}
	f.textMode = !f.textMode
	on := f.textMode
	f.mu.Unlock()

	f.Notify()
	return on, nil
}

// Restart replaces the session with a fresh one in the Welcome phase, like
// reloading the page. Device activity is stopped; an outstanding follow-up
// is discarded when it arrives.
func (f *Flow) Restart() Snapshot {
	f.mu.Lock()
	if f.delay != nil {
		f.delay.Stop()
		f.delay = nil
	}
	f.deps.Narrator.Cancel()
	f.deps.Recorder.Stop()
	f.deps.Recorder.Reset()
	f.sess = f.newSession()
	f.generating = false
	f.textMode = false
	f.confirmed = false
	f.mu.Unlock()

	f.deps.Narrator.SetVoice(f.opts.Style.Preset().Voice)
	f.Notify()
	return f.Snapshot()
}

// Close stops device activity. Later actions are refused.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if f.delay != nil {
		f.delay.Stop()
	}
	f.deps.Narrator.Cancel()
	f.deps.Recorder.Stop()
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
