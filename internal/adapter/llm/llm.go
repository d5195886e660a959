// Package llm holds the text-generation backends. Exactly one is selected at
// startup; there is no failover between them.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/couchcryptid/weather-broadcast-service/internal/report"
)

// Default endpoints.
const (
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
)

// Settings selects and configures a backend.
type Settings struct {
	Provider string // gemini, openai, groq
	APIKey   string
	Model    string
	BaseURL  string // empty selects the provider default
	Timeout  time.Duration
}

// New returns the backend for s.Provider. A missing key yields a backend
// that reports domain.ConfigMissingError on every call.
func New(s Settings) (report.Backend, error) {
	switch s.Provider {
	case "gemini", "":
		if s.APIKey == "" {
			return MissingCredentials{Provider: "Gemini", Setting: "GEMINI_API_KEY"}, nil
		}
		return NewGemini(s.APIKey, s.Model, orDefault(s.BaseURL, GeminiBaseURL), s.Timeout), nil
	case "openai":
		if s.APIKey == "" {
			return MissingCredentials{Provider: "OpenAI", Setting: "OPENAI_API_KEY"}, nil
		}
		return NewChatCompletions("OpenAI", s.APIKey, s.Model, orDefault(s.BaseURL, OpenAIBaseURL), s.Timeout), nil
	case "groq":
		if s.APIKey == "" {
			return MissingCredentials{Provider: "Groq", Setting: "GROQ_API_KEY"}, nil
		}
		return NewChatCompletions("Groq", s.APIKey, s.Model, orDefault(s.BaseURL, GroqBaseURL), s.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", s.Provider)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// keyParam matches credentials passed in query strings.
var keyParam = regexp.MustCompile(`([?&]key=)[^&\s"]+`)

// redact strips API keys from error text before it reaches the logs.
func redact(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s", keyParam.ReplaceAllString(err.Error(), "${1}REDACTED"))
}

// MissingCredentials stands in for a provider whose key is not configured.
type MissingCredentials struct {
	Provider string
	Setting  string
}

func (m MissingCredentials) Name() string { return m.Provider }

func (m MissingCredentials) Complete(_ context.Context, _, _ string) (string, error) {
	return "", &domain.ConfigMissingError{Setting: m.Setting}
}
