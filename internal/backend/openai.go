package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Wire types for the OpenAI-compatible completion endpoint both spawned
// servers expose.
type completionRequest struct {
	Model         string   `json:"model,omitempty"`
	Prompt        string   `json:"prompt"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   float64  `json:"temperature,omitempty"`
	TopP          float64  `json:"top_p,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"`
	Seed          int64    `json:"seed,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Stream        bool     `json:"stream"`
}

type completionChoice struct {
	Text string `json:"text"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	// Content is the llama.cpp native field, present when the server routes
	// the request through its own completion handler.
	Content string `json:"content,omitempty"`
}

// completions posts one non-streaming completion and returns the generated
// text. Deadlines come from ctx.
func completions(ctx context.Context, client *http.Client, baseURL, prompt string, gen GenerationConfig) (string, error) {
	gen = gen.withDefaults()
	body, err := json.Marshal(completionRequest{
		Prompt:        prompt,
		MaxTokens:     gen.MaxTokens,
		Temperature:   gen.Temperature,
		TopP:          gen.TopP,
		TopK:          gen.TopK,
		RepeatPenalty: gen.RepeatPenalty,
		Seed:          gen.Seed,
		Stop:          gen.Stop,
		Stream:        false,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) > 0 {
		return out.Choices[0].Text, nil
	}
	return out.Content, nil
}
