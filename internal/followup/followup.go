// Package followup generates short probing questions after a candidate's answer.
//
// When a credential is available, the generator asks a remote chat-completion
// endpoint (DeepSeek by default) for one question in the tone of the selected
// interview style. Every failure path, and the no-credential case, resolves to
// a fixed local fallback list so the interview never stalls on the network.
package followup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nadzzz/kora/internal/config"
	"github.com/nadzzz/kora/internal/style"
)

// Fallbacks is the deterministic local question list, indexed by
// followupIndex mod len(Fallbacks).
var Fallbacks = []string{
	"能具体说明你的目标、行动与量化结果吗？",
	"此事的关键难点是什么？你如何化解？",
	"你的影响如何体现？能给出数据吗？",
}

const instructionSuffix = " 你只需输出一条中文“追问问题”，不要寒暄，不要输出分析，不超过40字。"

// Outcome labels how a question was produced.
type Outcome string

const (
	OutcomeRemote       Outcome = "remote"
	OutcomeNoCredential Outcome = "no_credential"
	OutcomeFallback     Outcome = "fallback"
)

// Request describes the answer context a follow-up is generated for.
type Request struct {
	MainQuestion    string
	PreviousAnswers []string // main answer first, then answered follow-ups
	FollowupIndex   int      // 0 or 1
	Style           style.Style
	Credential      string
}

// Generator produces follow-up questions. It is safe for concurrent use.
type Generator struct {
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client

	// Observe, if set, is called once per Generate with how the question was produced.
	Observe func(Outcome)
}

// New creates a Generator from config.
func New(cfg config.FollowupConfig) *Generator {
	return &Generator{
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Fallback returns the local question for a follow-up index.
func Fallback(index int) string {
	n := len(Fallbacks)
	return Fallbacks[((index%n)+n)%n]
}

// Generate returns one follow-up question. It never fails: without a
// credential it answers locally, and any remote failure falls back to the
// same local list. Exactly one network attempt is made.
func (g *Generator) Generate(ctx context.Context, req Request) string {
	if req.Credential == "" {
		g.observe(OutcomeNoCredential)
		return Fallback(req.FollowupIndex)
	}

	question, err := g.requestRemote(ctx, req)
	if err != nil {
		slog.Warn("follow-up generation failed, using fallback",
			"followup_index", req.FollowupIndex, "error", err)
		g.observe(OutcomeFallback)
		return Fallback(req.FollowupIndex)
	}
	if question == "" {
		slog.Warn("follow-up generation returned empty content, using fallback",
			"followup_index", req.FollowupIndex)
		g.observe(OutcomeFallback)
		return Fallback(req.FollowupIndex)
	}

	g.observe(OutcomeRemote)
	return question
}

func (g *Generator) observe(o Outcome) {
	if g.Observe != nil {
		g.Observe(o)
	}
}

func (g *Generator) requestRemote(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(req.Style)},
			{Role: "user", Content: UserPrompt(req)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshalling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("chat failed (status %d): %s", resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", nil
	}

	slog.Debug("follow-up generated", "followup_index", req.FollowupIndex)
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// SystemPrompt is the style instruction plus the fixed output constraints.
func SystemPrompt(s style.Style) string {
	return s.Preset().SystemInstruction + instructionSuffix
}

// UserPrompt embeds the main question, the answers so far and the follow-up ordinal.
func UserPrompt(req Request) string {
	answered := strings.Join(req.PreviousAnswers, " | ")
	if answered == "" {
		answered = "（空）"
	}

	var sb strings.Builder
	sb.WriteString("主问题：" + req.MainQuestion + "\n")
	sb.WriteString("已回答：" + answered + "\n")
	fmt.Fprintf(&sb, "这是第%d条追问。请基于 STAR 框架提出一个高价值追问。", req.FollowupIndex+1)
	return sb.String()
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
