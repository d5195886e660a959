package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ChatCompletions is an OpenAI-compatible backend. OpenAI and Groq differ
// only in base URL, key and display name.
type ChatCompletions struct {
	name  string
	model string
	http  *resty.Client
}

// NewChatCompletions creates an OpenAI-compatible backend.
func NewChatCompletions(name, apiKey, model, baseURL string, timeout time.Duration) *ChatCompletions {
	return &ChatCompletions{
		name:  name,
		model: model,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetAuthToken(apiKey).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *ChatCompletions) Name() string { return c.name }

func (c *ChatCompletions) Complete(ctx context.Context, system, user string) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%s request: %w", c.name, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%s API error: status %d", c.name, resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", errors.New(c.name + " response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Chat completions request/response types.

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
