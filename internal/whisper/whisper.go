// Package whisper transcribes recorded answers on the daemon.
//
// Two endpoint flavors are supported:
//   - "openai": OpenAI-compatible /v1/audio/transcriptions (OpenAI, whisper.cpp
//     server, faster-whisper)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/nadzzz/kora/internal/config"
)

// maxAudioBytes bounds uploads accepted for transcription.
const maxAudioBytes = 25 << 20

// Client talks to a Whisper-compatible endpoint.
type Client struct {
	endpoint string
	flavor   string
	model    string
	apiKey   string
	language string
	client   *http.Client
}

// New creates a Client from config.
func New(cfg config.WhisperConfig) *Client {
	flavor := cfg.Type
	if flavor == "" {
		flavor = "openai"
	}
	return &Client{
		endpoint: cfg.Endpoint,
		flavor:   flavor,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		client:   &http.Client{},
	}
}

// Transcribe converts recorded audio to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}
	if len(audio) > maxAudioBytes {
		return "", fmt.Errorf("audio too large: %d bytes", len(audio))
	}

	var (
		req *http.Request
		err error
	)
	switch c.flavor {
	case "asr":
		req, err = c.asrRequest(ctx, audio, contentType)
	default:
		req, err = c.openaiRequest(ctx, audio, contentType)
	}
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding transcription: %w", err)
	}

	slog.Debug("transcription complete", "flavor", c.flavor, "text_length", len(result.Text))
	return strings.TrimSpace(result.Text), nil
}

func (c *Client) openaiRequest(ctx context.Context, audio []byte, contentType string) (*http.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "answer"+extFromContentType(contentType))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}
	if c.model != "" {
		_ = writer.WriteField("model", c.model)
	}
	if c.language != "" {
		_ = writer.WriteField("language", c.language)
	}
	_ = writer.WriteField("response_format", "json")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) asrRequest(ctx context.Context, audio []byte, contentType string) (*http.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio_file", "answer"+extFromContentType(contentType))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	q := url.Values{}
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if c.language != "" {
		q.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?"+q.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

func extFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return ".mp3"
	case strings.Contains(ct, "m4a"), strings.Contains(ct, "mp4"):
		return ".m4a"
	case strings.Contains(ct, "flac"):
		return ".flac"
	default:
		return ".wav"
	}
}
