package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/couchcryptid/weather-broadcast-service/internal/observability"
)

// Backend is a single-turn prompt-completion service.
type Backend interface {
	// Name is the provider's display name, e.g. "Gemini".
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Generator turns structured input into a broadcast script. It never fails:
// any backend error degrades to a fallback text.
type Generator struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewGenerator wraps the configured backend. timeout bounds every call.
func NewGenerator(backend Backend, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Generator {
	return &Generator{
		backend: backend,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Provider returns the configured backend's display name.
func (g *Generator) Provider() string {
	return g.backend.Name()
}

// Generate renders the template and calls the backend. The returned flag is
// false when the text is a degraded fallback.
func (g *Generator) Generate(ctx context.Context, t Template, in Input) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.backend.Complete(ctx, systemPrompt(t), userPrompt(t, in))
	if err == nil {
		if text = strings.TrimSpace(text); text != "" {
			g.metrics.Generation.WithLabelValues(g.backend.Name(), "success").Inc()
			return text, true
		}
		err = errors.New("empty completion")
	}

	var cfgErr *domain.ConfigMissingError
	if errors.As(err, &cfgErr) {
		g.metrics.Generation.WithLabelValues(g.backend.Name(), "config_missing").Inc()
		g.logger.Warn("text generation not configured", "provider", g.backend.Name(), "setting", cfgErr.Setting)
		return fmt.Sprintf("未設定 %s API Key", g.backend.Name()), false
	}

	g.metrics.Generation.WithLabelValues(g.backend.Name(), "error").Inc()
	g.logger.Error("text generation failed, using fallback",
		"provider", g.backend.Name(),
		"template", t.String(),
		"error", &domain.GenerationError{Provider: g.backend.Name(), Err: err},
	)
	return g.fallback(in), false
}

func (g *Generator) fallback(in Input) string {
	if in.Overview != "" {
		return in.Overview
	}
	return fmt.Sprintf("%s 分析暫時無法使用，請參考上方數據。", strings.ToLower(g.backend.Name()))
}
