package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// Gemini calls the generateContent endpoint. The system prompt is prepended
// to the user content because the v1beta single-turn call has no system role.
type Gemini struct {
	apiKey string
	model  string
	http   *resty.Client
}

// NewGemini creates a Gemini backend.
func NewGemini(apiKey, model, baseURL string, timeout time.Duration) *Gemini {
	return &Gemini{
		apiKey: apiKey,
		model:  model,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (g *Gemini) Name() string { return "Gemini" }

func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	body := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: system + "\n" + user}}}}}

	var out geminiResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(body).
		SetResult(&out).
		Post("/models/" + url.PathEscape(g.model) + ":generateContent")
	if err != nil {
		return "", redact(fmt.Errorf("gemini request: %w", err))
	}
	if resp.IsError() {
		return "", fmt.Errorf("gemini API error: status %d", resp.StatusCode())
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini response has no candidates")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// Gemini API request/response types.

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}
