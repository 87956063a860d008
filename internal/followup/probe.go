package followup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProbeResult reports whether the follow-up provider answered a models listing.
type ProbeResult struct {
	Reachable  bool          `json:"reachable"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// Probe issues GET <base>/models with the credential. A provider that answers
// at all counts as reachable, even when it rejects the credential.
func Probe(ctx context.Context, client *http.Client, baseURL, credential string) ProbeResult {
	if client == nil {
		client = http.DefaultClient
	}
	res := ProbeResult{CheckedAt: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/models", nil)
	if err != nil {
		res.Error = fmt.Sprintf("creating probe request: %v", err)
		return res
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res.Reachable = true
	res.StatusCode = resp.StatusCode
	if resp.StatusCode >= 400 {
		res.Error = http.StatusText(resp.StatusCode)
	}
	return res
}

// Probe checks the generator's configured provider.
func (g *Generator) Probe(ctx context.Context, credential string) ProbeResult {
	base := strings.TrimSuffix(g.endpoint, "/chat/completions")
	return Probe(ctx, g.client, base, credential)
}
