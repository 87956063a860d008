// Package interview holds the interview session model and the Flow state
// machine that drives it.
//
// A session moves forward only: Welcome, then Interview, then Summary. Within
// Interview the position is a question index plus a sub-slot (the main
// question or one of up to two follow-ups).
package interview

import (
	"errors"

	"github.com/nadzzz/kora/internal/speech/capture"
	"github.com/nadzzz/kora/internal/speech/playback"
	"github.com/nadzzz/kora/internal/style"
)

// Phase is the coarse stage of a session.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"
	PhaseInterview Phase = "interview"
	PhaseSummary   Phase = "summary"
)

// SubSlot is the active question within the current item.
type SubSlot string

const (
	SlotMain      SubSlot = "main"
	SlotFollowup1 SubSlot = "followup1"
	SlotFollowup2 SubSlot = "followup2"
)

// AnswerSource records how an answer was given.
type AnswerSource string

const (
	SourceVoice AnswerSource = "voice"
	SourceText  AnswerSource = "text"
)

// ParseSource converts a request value into an AnswerSource.
func ParseSource(s string) (AnswerSource, error) {
	switch AnswerSource(s) {
	case SourceVoice, SourceText:
		return AnswerSource(s), nil
	case "":
		return SourceText, nil
	}
	return "", errors.New("answer source must be voice or text")
}

// MaxFollowups caps the follow-ups per main question.
const MaxFollowups = 2

var (
	// ErrInvalidTransition is returned for actions that do not apply in the
	// current state. The session is left unchanged.
	ErrInvalidTransition = errors.New("action not valid in current interview state")

	// ErrGenerating is returned while a follow-up question is being generated.
	ErrGenerating = errors.New("follow-up question is being generated")

	// ErrSpeaking is returned when an answer is started during narration.
	ErrSpeaking = errors.New("question is still being narrated")

	// ErrConfirmationRequired is returned when text mode is first enabled
	// without confirmation.
	ErrConfirmationRequired = errors.New("text mode must be confirmed before first use")
)

// Followup is a generated probing question and its answer.
type Followup struct {
	Question     string       `json:"question"`
	Answer       string       `json:"answer"`
	AnswerSource AnswerSource `json:"answer_source,omitempty"`
}

// QaItem is one main question with its answer and follow-ups.
type QaItem struct {
	Question     string       `json:"question"`
	Answer       string       `json:"answer"`
	AnswerSource AnswerSource `json:"answer_source,omitempty"`
	Followups    []Followup   `json:"followups"`
}

// Session is the state of one interview.
type Session struct {
	ID           string      `json:"id"`
	Phase        Phase       `json:"phase"`
	CurrentIndex int         `json:"current_index"`
	SubSlot      SubSlot     `json:"sub_slot"`
	Style        style.Style `json:"style"`
	Items        []QaItem    `json:"items"`
}

func (s *Session) clone() Session {
	out := *s
	out.Items = make([]QaItem, len(s.Items))
	for i, it := range s.Items {
		it.Followups = append([]Followup(nil), it.Followups...)
		out.Items[i] = it
	}
	return out
}

// CurrentQuestion is the text of the active question, or "" outside the
// Interview phase.
func (s *Session) CurrentQuestion() string {
	if s.Phase != PhaseInterview || s.CurrentIndex >= len(s.Items) {
		return ""
	}
	item := s.Items[s.CurrentIndex]
	switch s.SubSlot {
	case SlotFollowup1:
		if len(item.Followups) > 0 {
			return item.Followups[0].Question
		}
	case SlotFollowup2:
		if len(item.Followups) > 1 {
			return item.Followups[1].Question
		}
	default:
		return item.Question
	}
	return ""
}

// Snapshot is what a view renders: the session plus flow and device state.
type Snapshot struct {
	Session
	CurrentQuestion   string          `json:"current_question"`
	Generating        bool            `json:"generating"`
	TextMode          bool            `json:"text_mode"`
	FollowupsEnabled  bool            `json:"followups_enabled"`
	HasCredential     bool            `json:"has_credential"`
	Capture           capture.State   `json:"capture"`
	Playback          playback.Status `json:"playback"`
	PlaybackSupported bool            `json:"playback_supported"`
}
