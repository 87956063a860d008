package interview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/kora/internal/config"
	"github.com/nadzzz/kora/internal/followup"
	"github.com/nadzzz/kora/internal/speech/capture"
	"github.com/nadzzz/kora/internal/speech/playback"
	"github.com/nadzzz/kora/internal/style"
)

type fakeRecorder struct {
	mu        sync.Mutex
	supported bool
	state     capture.State
	starts    int
	stops     int
}

func (r *fakeRecorder) Supported() bool { return r.supported }
func (r *fakeRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.state.Status = capture.StatusListening
}
func (r *fakeRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	r.state.Status = capture.StatusStopped
}
func (r *fakeRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = capture.State{Supported: r.supported, Status: capture.StatusIdle}
}
func (r *fakeRecorder) State() capture.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
func (r *fakeRecorder) set(transcript, partial string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Transcript = transcript
	r.state.Partial = partial
}

type fakeNarrator struct {
	mu        sync.Mutex
	supported bool
	status    playback.Status
	voice     style.Voice
	spoken    []string
	cancels   int
}

func (n *fakeNarrator) Supported() bool { return n.supported }
func (n *fakeNarrator) SetVoice(v style.Voice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.voice = v
}
func (n *fakeNarrator) Speak(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.spoken = append(n.spoken, text)
}
func (n *fakeNarrator) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancels++
	n.status = playback.StatusStopped
}
func (n *fakeNarrator) Status() playback.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}
func (n *fakeNarrator) setStatus(s playback.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = s
}
func (n *fakeNarrator) said() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.spoken...)
}

// gatedGenerator blocks every Generate until released.
type gatedGenerator struct {
	release chan struct{}
	calls   chan followup.Request
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{release: make(chan struct{}), calls: make(chan followup.Request, 4)}
}

func (g *gatedGenerator) Generate(_ context.Context, req followup.Request) string {
	g.calls <- req
	<-g.release
	return "生成的追问"
}

type savedCredentials struct {
	mu    sync.Mutex
	saved []string
}

func (s *savedCredentials) Save(c string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, c)
	return nil
}

type countingStats struct {
	started, completed, answers int
}

func (c *countingStats) SessionStarted(style.Style) { c.started++ }
func (c *countingStats) SessionCompleted() { c.completed++ }
func (c *countingStats) AnswerSubmitted(SubSlot, AnswerSource) { c.answers++ }

type harness struct {
	flow     *Flow
	recorder *fakeRecorder
	narrator *fakeNarrator
}

func newHarness(t *testing.T, opts Options, gen Generator) *harness {
	t.Helper()
	if gen == nil {
		gen = followup.New(config.FollowupConfig{BaseURL: "http://127.0.0.1:1", MaxTokens: 128})
	}
	rec := &fakeRecorder{supported: true}
	nar := &fakeNarrator{supported: true, status: playback.StatusIdle}
	f, err := NewFlow(opts, Deps{Recorder: rec, Narrator: nar, Generator: gen})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return &harness{flow: f, recorder: rec, narrator: nar}
}

func TestFlow_EndToEndWithoutCredential(t *testing.T) {
	h := newHarness(t, Options{
		Questions:        []string{"介绍一个你负责的项目。"},
		FollowupsEnabled: true,
	}, nil)
	f := h.flow

	require.NoError(t, f.Begin())

	require.NoError(t, f.SubmitAnswer("我完成了一个项目", SourceVoice))
	s := f.Snapshot()
	require.Len(t, s.Items[0].Followups, 1)
	assert.Equal(t, followup.Fallbacks[0], s.Items[0].Followups[0].Question)
	assert.Equal(t, SlotFollowup1, s.SubSlot)
	assert.Equal(t, followup.Fallbacks[0], s.CurrentQuestion)

	require.NoError(t, f.SubmitAnswer("很顺利", SourceVoice))
	s = f.Snapshot()
	require.Len(t, s.Items[0].Followups, 2)
	assert.Equal(t, followup.Fallbacks[1], s.Items[0].Followups[1].Question)
	assert.Equal(t, SlotFollowup2, s.SubSlot)

	require.NoError(t, f.SubmitAnswer("学到了很多", SourceText))
	s = f.Snapshot()
	assert.Equal(t, PhaseSummary, s.Phase)
	assert.Equal(t, 0, s.CurrentIndex)

	item := s.Items[0]
	assert.Equal(t, "我完成了一个项目", item.Answer)
	assert.Equal(t, SourceVoice, item.AnswerSource)
	assert.Equal(t, []Followup{
		{Question: followup.Fallbacks[0], Answer: "很顺利", AnswerSource: SourceVoice},
		{Question: followup.Fallbacks[1], Answer: "学到了很多", AnswerSource: SourceText},
	}, item.Followups)
}

func TestFlow_AdvancesToNextItem(t *testing.T) {
	h := newHarness(t, Options{
		Questions:        []string{"第一题", "第二题"},
		Style:            style.Serious,
		FollowupsEnabled: true,
	}, nil)
	f := h.flow

	require.NoError(t, f.Begin())
	for _, a := range []string{"a", "b", "c"} {
		require.NoError(t, f.SubmitAnswer(a, SourceText))
	}

	s := f.Snapshot()
	assert.Equal(t, PhaseInterview, s.Phase)
	assert.Equal(t, 1, s.CurrentIndex)
	assert.Equal(t, SlotMain, s.SubSlot)
	assert.Equal(t, "第二题", s.CurrentQuestion)

	said := h.narrator.said()
	assert.Equal(t, style.Serious.Narrate("第二题"), said[len(said)-1])
	assert.Contains(t, said, style.Serious.Narrate(followup.Fallbacks[0]))
	assert.Contains(t, said, style.Serious.Narrate(followup.Fallbacks[1]))
}

func TestFlow_InvalidTransitions(t *testing.T) {
	h := newHarness(t, Options{Questions: []string{"唯一的问题"}, FollowupsEnabled: true}, nil)
	f := h.flow

	assert.ErrorIs(t, f.SubmitAnswer("太早了", SourceText), ErrInvalidTransition)
	assert.ErrorIs(t, f.StartAnswer(), ErrInvalidTransition)
	assert.ErrorIs(t, f.SubmitVoiceAnswer(), ErrInvalidTransition)
	assert.Equal(t, PhaseWelcome, f.Snapshot().Phase)

	require.NoError(t, f.Begin())
	assert.ErrorIs(t, f.Begin(), ErrInvalidTransition)
	assert.ErrorIs(t, f.SelectStyle(style.Campus), ErrInvalidTransition)
	assert.Equal(t, style.Default, f.Snapshot().Style)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.SubmitAnswer("", SourceText))
	}
	require.Equal(t, PhaseSummary, f.Snapshot().Phase)

	assert.ErrorIs(t, f.SubmitAnswer("迟到的回答", SourceText), ErrInvalidTransition)
	assert.ErrorIs(t, f.Begin(), ErrInvalidTransition)
	assert.Equal(t, PhaseSummary, f.Snapshot().Phase)
}

func TestFlow_FollowupsDisabled(t *testing.T) {
	h := newHarness(t, Options{Questions: []string{"一", "二"}}, nil)
	f := h.flow

	require.NoError(t, f.Begin())
	require.NoError(t, f.SubmitAnswer("回答一", SourceText))
	s := f.Snapshot()
	assert.Equal(t, 1, s.CurrentIndex)
	assert.Equal(t, SlotMain, s.SubSlot)
	assert.Empty(t, s.Items[0].Followups)

	require.NoError(t, f.SubmitAnswer("回答二", SourceText))
	assert.Equal(t, PhaseSummary, f.Snapshot().Phase)
}

func TestFlow_SummaryCancelsPlayback(t *testing.T) {
	stats := &countingStats{}
	rec := &fakeRecorder{supported: true}
	nar := &fakeNarrator{supported: true}
	f, err := NewFlow(Options{Questions: []string{"一"}}, Deps{
		Recorder:  rec,
		Narrator:  nar,
		Generator: followup.New(config.FollowupConfig{}),
		Stats:     stats,
	})
	require.NoError(t, err)

	require.NoError(t, f.Begin())
	require.NoError(t, f.SubmitAnswer("完", SourceText))

	assert.Equal(t, PhaseSummary, f.Snapshot().Phase)
	assert.Equal(t, 1, nar.cancels)
	assert.Equal(t, 1, stats.started)
	assert.Equal(t, 1, stats.completed)
	assert.Equal(t, 1, stats.answers)
}

func TestFlow_RejectsSubmitWhileGenerating(t *testing.T) {
	gen := newGatedGenerator()
	h := newHarness(t, Options{Questions: []string{"一"}, FollowupsEnabled: true}, gen)
	f := h.flow
	require.NoError(t, f.Begin())

	done := make(chan error, 1)
	go func() { done <- f.SubmitAnswer("主回答", SourceText) }()

	req := <-gen.calls
	assert.Equal(t, []string{"主回答"}, req.PreviousAnswers)
	assert.Equal(t, 0, req.FollowupIndex)

	s := f.Snapshot()
	assert.True(t, s.Generating)
	assert.Equal(t, SlotMain, s.SubSlot, "slot changes only when the follow-up arrives")
	assert.Equal(t, "主回答", s.Items[0].Answer)

	assert.ErrorIs(t, f.SubmitAnswer("重复提交", SourceText), ErrGenerating)
	assert.ErrorIs(t, f.StartAnswer(), ErrGenerating)

	close(gen.release)
	require.NoError(t, <-done)

	s = f.Snapshot()
	assert.False(t, s.Generating)
	assert.Equal(t, SlotFollowup1, s.SubSlot)
	assert.Equal(t, "生成的追问", s.Items[0].Followups[0].Question)
}

func TestFlow_SecondFollowupFiltersEmptyAnswers(t *testing.T) {
	gen := newGatedGenerator()
	close(gen.release)
	h := newHarness(t, Options{Questions: []string{"一"}, FollowupsEnabled: true}, gen)
	f := h.flow
	require.NoError(t, f.Begin())

	require.NoError(t, f.SubmitAnswer("", SourceText))
	<-gen.calls
	require.NoError(t, f.SubmitAnswer("追问回答", SourceVoice))
	req := <-gen.calls
	assert.Equal(t, []string{"追问回答"}, req.PreviousAnswers)
	assert.Equal(t, 1, req.FollowupIndex)
	assert.Equal(t, style.Default, req.Style)
}

func TestFlow_RestartDiscardsLateFollowup(t *testing.T) {
	gen := newGatedGenerator()
	h := newHarness(t, Options{Questions: []string{"一"}, FollowupsEnabled: true}, gen)
	f := h.flow
	require.NoError(t, f.Begin())
	oldID := f.Snapshot().ID

	done := make(chan error, 1)
	go func() { done <- f.SubmitAnswer("回答", SourceText) }()
	<-gen.calls

	fresh := f.Restart()
	assert.NotEqual(t, oldID, fresh.ID)
	assert.Equal(t, PhaseWelcome, fresh.Phase)

	close(gen.release)
	require.NoError(t, <-done)

	s := f.Snapshot()
	assert.Equal(t, PhaseWelcome, s.Phase)
	assert.Empty(t, s.Items[0].Followups)
	assert.Empty(t, s.Items[0].Answer)
}

func TestFlow_BeginNarratesGreetingThenQuestion(t *testing.T) {
	h := newHarness(t, Options{
		Questions:     []string{"第一题"},
		Style:         style.Campus,
		Greeting:      "欢迎",
		QuestionDelay: 10 * time.Millisecond,
	}, nil)

	require.NoError(t, h.flow.Begin())
	assert.Equal(t, []string{"欢迎"}, h.narrator.said())

	require.Eventually(t, func() bool { return len(h.narrator.said()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "来个轻松的问题：第一题", h.narrator.said()[1])
	assert.Equal(t, style.Campus.Preset().Voice, h.narrator.voice)
}

func TestFlow_BeginWithoutPlayback(t *testing.T) {
	h := newHarness(t, Options{Questions: []string{"第一题"}, QuestionDelay: time.Millisecond}, nil)
	h.narrator.supported = false

	require.NoError(t, h.flow.Begin())
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, h.narrator.said())
	assert.Equal(t, PhaseInterview, h.flow.Snapshot().Phase)
}

func TestFlow_StartAnswer(t *testing.T) {
	h := newHarness(t, Options{Questions: []string{"一"}}, nil)
	f := h.flow
	require.NoError(t, f.Begin())

	h.narrator.setStatus(playback.StatusSpeaking)
	assert.ErrorIs(t, f.StartAnswer(), ErrSpeaking)
	assert.Zero(t, h.recorder.starts)

	h.narrator.setStatus(playback.StatusStopped)
	h.recorder.set("旧的", "旧的部分")
	require.NoError(t, f.StartAnswer())
	assert.Equal(t, 1, h.recorder.starts)
	assert.Empty(t, h.recorder.State().Transcript)

	h.recorder.supported = false
	require.NoError(t, f.StartAnswer())
	assert.Equal(t, 1, h.recorder.starts)
}

func TestFlow_StartAnswerWhileListening(t *testing.T) {
	h := newHarness(t, Options{Questions: []string{"一"}}, nil)
	f := h.flow
	require.NoError(t, f.Begin())

	require.NoError(t, f.StartAnswer())
	h.recorder.set("已经说的话", "")

	require.NoError(t, f.StartAnswer())
	assert.Equal(t, 1, h.recorder.starts)
	st := f.Snapshot().Capture
	assert.Equal(t, capture.StatusListening, st.Status)
	assert.Equal(t, "已经说的话", st.Transcript)
}

func TestFlow_RefusesAnswersWhileNarrating(t *testing.T) {
	h := newHarness(t, Options{Questions: []string{"一", "二"}}, nil)
	f := h.flow
	require.NoError(t, f.Begin())

	h.narrator.setStatus(playback.StatusSpeaking)
	assert.ErrorIs(t, f.SubmitAnswer("回答", SourceText), ErrSpeaking)
	h.recorder.set("语音回答", "")
	assert.ErrorIs(t, f.SubmitVoiceAnswer(), ErrSpeaking)
	assert.Zero(t, h.recorder.stops)

	s := f.Snapshot()
	assert.Empty(t, s.Items[0].Answer)
	assert.Equal(t, 0, s.CurrentIndex)

	h.narrator.setStatus(playback.StatusStopped)
	require.NoError(t, f.SubmitAnswer("回答", SourceText))
	assert.Equal(t, "回答", f.Snapshot().Items[0].Answer)
}

func TestFlow_SubmitVoiceAnswer(t *testing.T) {
	h := newHarness(t, Options{Questions: []string{"一", "二"}}, nil)
	f := h.flow
	require.NoError(t, f.Begin())

	h.recorder.set("  最终文本 ", "部分")
	require.NoError(t, f.SubmitVoiceAnswer())
	assert.Equal(t, 1, h.recorder.stops)

	h.recorder.set("", " 只有部分 ")
	require.NoError(t, f.SubmitVoiceAnswer())

	s := f.Snapshot()
	assert.Equal(t, "最终文本", s.Items[0].Answer)
	assert.Equal(t, SourceVoice, s.Items[0].AnswerSource)
	assert.Equal(t, "只有部分", s.Items[1].Answer)
}

func TestFlow_ToggleTextMode(t *testing.T) {
	h := newHarness(t, Options{Questions: []string{"一"}}, nil)
	f := h.flow

	_, err := f.ToggleTextMode(false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.False(t, f.Snapshot().TextMode)

	on, err := f.ToggleTextMode(true)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = f.ToggleTextMode(false)
	require.NoError(t, err)
	assert.False(t, on)

	on, err = f.ToggleTextMode(false)
	require.NoError(t, err, "confirmation is only needed once")
	assert.True(t, on)
}

func TestFlow_PersistsCredentialAfterSubmit(t *testing.T) {
	gen := newGatedGenerator()
	close(gen.release)
	saver := &savedCredentials{}
	rec := &fakeRecorder{supported: true}
	nar := &fakeNarrator{supported: true}
	f, err := NewFlow(Options{Questions: []string{"一"}, FollowupsEnabled: true, Credential: "sk-live"},
		Deps{Recorder: rec, Narrator: nar, Generator: gen, Credentials: saver})
	require.NoError(t, err)

	require.NoError(t, f.Begin())
	require.NoError(t, f.SubmitAnswer("回答", SourceText))

	req := <-gen.calls
	assert.Equal(t, "sk-live", req.Credential)
	assert.Equal(t, []string{"sk-live"}, saver.saved)
	assert.True(t, f.Snapshot().HasCredential)
}

func TestFlow_Subscribe(t *testing.T) {
	h := newHarness(t, Options{Questions: []string{"一"}}, nil)
	ch, cancel := h.flow.Subscribe()
	defer cancel()

	require.NoError(t, h.flow.SelectStyle(style.Serious))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal")
	}
	assert.Equal(t, style.Serious, h.flow.Snapshot().Style)
	assert.Equal(t, style.Serious.Preset().Voice, h.narrator.voice)
}

func TestNewFlow_Validation(t *testing.T) {
	_, err := NewFlow(Options{}, Deps{})
	assert.Error(t, err)

	_, err = NewFlow(Options{Questions: []string{"一"}}, Deps{})
	assert.Error(t, err)
}
