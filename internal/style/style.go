// Package style defines the interviewer tone presets.
//
// A preset affects two things: how questions are narrated (voice rate, pitch
// and a short preamble read before each question) and the system instruction
// sent with every follow-up generation request.
package style

import (
	"fmt"
	"strings"
)

// Style identifies one of the fixed tone presets.
type Style string

const (
	Serious  Style = "serious"
	Friendly Style = "friendly"
	Campus   Style = "campus"
)

// Default is the preset used when none is chosen.
const Default = Friendly

// Voice holds the narration parameters of a preset.
type Voice struct {
	Rate      float64 `json:"rate" yaml:"rate"`
	Pitch     float64 `json:"pitch" yaml:"pitch"`
	VoiceName string  `json:"voice_name,omitempty" yaml:"voice_name,omitempty"`
}

// Preset is the full configuration of a style.
type Preset struct {
	Name              string `json:"name"`
	Voice             Voice  `json:"voice"`
	QuestionPreamble  string `json:"question_preamble"`
	SystemInstruction string `json:"system_instruction"`
}

var presets = map[Style]Preset{
	Serious: {
		Name:             "严肃",
		Voice:            Voice{Rate: 0.95, Pitch: 0.9},
		QuestionPreamble: "请回答：",
		SystemInstruction: "你是一位严谨专业的中文结构化面试官。问题简洁、逻辑清晰、避免寒暄。" +
			"根据候选人的回答提出高质量的追问，聚焦 STAR（情景、任务、行动、结果）和可量化指标。",
	},
	Friendly: {
		Name:              "亲切",
		Voice:             Voice{Rate: 1.05, Pitch: 1.1},
		QuestionPreamble:  "好的，我们聊聊这个：",
		SystemInstruction: "你是一位亲切、鼓励式的中文面试官。语气友好，追问温和且具体，引导候选人给出可观测行为与结果。",
	},
	Campus: {
		Name:              "校园风",
		Voice:             Voice{Rate: 1.1, Pitch: 1.2},
		QuestionPreamble:  "来个轻松的问题：",
		SystemInstruction: "你是一位校园招聘风格的中文面试官。表达轻松但结构化，追问聚焦在角色、团队合作、学习与成长。",
	},
}

// All lists the styles in display order.
func All() []Style {
	return []Style{Serious, Friendly, Campus}
}

// Parse converts a config or request value into a Style.
func Parse(s string) (Style, error) {
	st := Style(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return Default, nil
	}
	if _, ok := presets[st]; !ok {
		return "", fmt.Errorf("unknown interview style %q", s)
	}
	return st, nil
}

// Preset returns the configuration of s, falling back to the default preset
// for unknown values.
func (s Style) Preset() Preset {
	if p, ok := presets[s]; ok {
		return p
	}
	return presets[Default]
}

// Narrate prefixes a question with the preset's preamble.
func (s Style) Narrate(question string) string {
	return s.Preset().QuestionPreamble + question
}
