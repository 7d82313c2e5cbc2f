package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIProvider implements AIProvider on the OpenAI Assistants API.
// One assistant serves all users; per-user context lives in threads.
type OpenAIProvider struct {
	apiKey      string
	apiBase     string
	assistantID string
	client      *http.Client
}

// NewOpenAIProvider creates an Assistants-backed provider.
func NewOpenAIProvider(apiKey, apiBase, assistantID string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")

	return &OpenAIProvider{
		apiKey:      apiKey,
		apiBase:     apiBase,
		assistantID: assistantID,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageListResponse struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// CreateThread opens an empty assistant thread.
func (p *OpenAIProvider) CreateThread(ctx context.Context) (string, error) {
	var resp threadResponse
	if err := p.do(ctx, http.MethodPost, "/threads", map[string]any{}, &resp); err != nil {
		return "", fmt.Errorf("openai: create thread: %w", err)
	}
	return resp.ID, nil
}

// Respond appends the user message to the thread, runs the assistant, polls
// until the run reaches a terminal status, and returns the latest assistant
// message. The context deadline is the hard ceiling for the whole exchange.
func (p *OpenAIProvider) Respond(ctx context.Context, threadID, body string) (string, error) {
	msg := map[string]any{"role": "user", "content": body}
	if err := p.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", msg, nil); err != nil {
		return "", fmt.Errorf("openai: add message: %w", err)
	}

	var run runResponse
	runReq := map[string]any{"assistant_id": p.assistantID}
	if err := p.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", runReq, &run); err != nil {
		return "", fmt.Errorf("openai: create run: %w", err)
	}

	run, err := p.pollRun(ctx, threadID, run)
	if err != nil {
		return "", err
	}

	var msgs messageListResponse
	if err := p.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages?limit=1&order=desc", nil, &msgs); err != nil {
		return "", fmt.Errorf("openai: list messages: %w", err)
	}
	for _, m := range msgs.Data {
		if m.Role != "assistant" {
			continue
		}
		for _, c := range m.Content {
			if c.Type == "text" && c.Text.Value != "" {
				return c.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("openai: run %s completed but no assistant message found", run.ID)
}

// pollRun waits for the run to leave its active states. Polling starts fast
// and backs off: assistant runs usually finish within a few seconds, and
// hammering the retrieve endpoint burns rate budget for nothing.
func (p *OpenAIProvider) pollRun(ctx context.Context, threadID string, run runResponse) (runResponse, error) {
	start := time.Now()

	for {
		switch run.Status {
		case "completed":
			return run, nil
		case "failed":
			reason := "unknown error"
			if run.LastError != nil {
				reason = run.LastError.Message
			}
			return run, fmt.Errorf("openai: run %s failed: %s", run.ID, reason)
		case "cancelled", "expired":
			return run, fmt.Errorf("openai: run %s %s", run.ID, run.Status)
		}

		var interval time.Duration
		switch elapsed := time.Since(start); {
		case elapsed < time.Second:
			interval = 200 * time.Millisecond
		case elapsed < 3*time.Second:
			interval = 300 * time.Millisecond
		case elapsed < 10*time.Second:
			interval = 500 * time.Millisecond
		default:
			interval = time.Second
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return run, fmt.Errorf("openai: run %s: %w", run.ID, ctx.Err())
		case <-timer.C:
		}

		if err := p.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+run.ID, nil, &run); err != nil {
			return run, fmt.Errorf("openai: retrieve run: %w", err)
		}
	}
}

// do issues one Assistants API request and decodes the response into out.
func (p *OpenAIProvider) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.apiBase+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
