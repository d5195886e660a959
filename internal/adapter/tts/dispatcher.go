// Package tts delivers generated scripts to the speech-synthesis endpoint.
package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/couchcryptid/weather-broadcast-service/internal/observability"
	"github.com/go-resty/resty/v2"
)

// Dispatcher posts text to the speech endpoint. Delivery is best effort.
type Dispatcher struct {
	url     string
	engine  string
	http    *resty.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDispatcher creates a dispatcher. An empty url disables delivery; calls
// are logged and counted as skipped.
func NewDispatcher(url, engine string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		url:    url,
		engine: engine,
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		logger:  logger,
		metrics: metrics,
	}
}

type speakRequest struct {
	Engine string `json:"engine"`
	Text   string `json:"text"`
}

// Dispatch sends text to the speech endpoint. It never returns an error:
// failures are logged so that the caller's persistence is never gated on
// speech delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" || d.url == "" {
		d.metrics.Dispatch.WithLabelValues("skipped").Inc()
		d.logger.Debug("speech dispatch skipped", "configured", d.url != "", "chars", len([]rune(text)))
		return
	}

	if err := d.send(ctx, text); err != nil {
		d.metrics.Dispatch.WithLabelValues("error").Inc()
		d.logger.Warn("speech dispatch failed", "engine", d.engine, "error", err)
		return
	}
	d.metrics.Dispatch.WithLabelValues("success").Inc()
	d.logger.Info("speech dispatch sent", "engine", d.engine, "chars", len([]rune(text)))
}

func (d *Dispatcher) send(ctx context.Context, text string) error {
	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(speakRequest{Engine: d.engine, Text: text}).
		Post(d.url)
	if err != nil {
		return &domain.DispatchError{Err: err}
	}
	if !resp.IsSuccess() {
		return &domain.DispatchError{
			Status: resp.StatusCode(),
			Err:    fmt.Errorf("status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String())),
		}
	}
	return nil
}
