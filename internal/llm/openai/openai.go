// Package openai implements llm.Completer for OpenAI-compatible chat
// completion APIs, blocking and server-sent-event streaming.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"forumrag/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config configures the chat client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	// Timeout bounds each HTTP exchange including a full stream; zero means none.
	Timeout time.Duration
}

// Client implements llm.Completer. It never retries.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates a chat client reading its API key from cfg.APIKeyEnv.
func New(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &Client{
		apiKey:  key,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) body(prompt *llm.Prompt, opts *llm.RequestOptions, stream bool) ([]byte, error) {
	var msgs []map[string]string
	if prompt.SystemPrompt != "" {
		msgs = append(msgs, map[string]string{"role": string(llm.RoleSystem), "content": prompt.SystemPrompt})
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, map[string]string{"role": string(m.Role), "content": m.Content})
	}
	body := map[string]any{
		"model":    c.model,
		"messages": msgs,
	}
	if stream {
		body["stream"] = true
	}
	if opts != nil {
		if opts.MaxTokens != nil {
			body["max_tokens"] = *opts.MaxTokens
		}
		if opts.Temperature != nil {
			body["temperature"] = *opts.Temperature
		}
	}
	return json.Marshal(body)
}

func (c *Client) post(ctx context.Context, data []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai: %s: %s", resp.Status, bytes.TrimSpace(respBody))
	}
	return resp, nil
}

// Complete sends the prompt and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (string, error) {
	data, err := c.body(prompt, opts, false)
	if err != nil {
		return "", err
	}
	resp, err := c.post(ctx, data)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("openai: decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// Stream sends the prompt with stream=true and returns a reader over the
// content deltas.
func (c *Client) Stream(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (llm.ChunkReader, error) {
	data, err := c.body(prompt, opts, true)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, data)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &sseReader{body: resp.Body, scanner: sc}, nil
}

// sseReader decodes "data: {...}" lines of a chat completion stream.
type sseReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (r *sseReader) Recv() (string, error) {
	for !r.done {
		if !r.scanner.Scan() {
			r.done = true
			if err := r.scanner.Err(); err != nil {
				return "", err
			}
			break
		}
		line := strings.TrimSpace(r.scanner.Text())
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			r.done = true
			break
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			r.done = true
			return "", fmt.Errorf("openai: decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			r.done = true
			return "", fmt.Errorf("openai: stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
	return "", io.EOF
}

func (r *sseReader) Close() error {
	r.done = true
	return r.body.Close()
}
