// Package http exposes the broadcast pipeline over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ForecastService serves and broadcasts the routine forecast.
type ForecastService interface {
	GetOrRefresh(ctx context.Context, force bool) (domain.ForecastSnapshot, error)
	Broadcast(ctx context.Context) (domain.ForecastSnapshot, error)
}

// CityLookup fetches one county directly from the upstream feed.
type CityLookup interface {
	FetchCity(ctx context.Context, name string) (domain.CityForecast, error)
}

// EventService runs feed ticks and manages stored records.
type EventService interface {
	RunFeed(ctx context.Context, feed domain.Feed) (int, error)
	ReReport(ctx context.Context, feed domain.Feed, id int64) (domain.Record, error)
	Recent(ctx context.Context, feed domain.Feed, limit int) ([]domain.Record, error)
}

// Server exposes the weather API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	forecast   ForecastService
	cities     CityLookup
	events     EventService
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API routes, /healthz, /readyz,
// and /metrics.
func NewServer(addr string, forecast ForecastService, cities CityLookup, events EventService, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     withCORS(mux),
			ReadTimeout: 10 * time.Second,
			// Handlers may wait on a generation call.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		forecast: forecast,
		cities:   cities,
		events:   events,
		logger:   logger,
	}

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /weather", s.handleWeather)
	mux.HandleFunc("GET /weather/{city}", s.handleCity)
	mux.HandleFunc("POST /weather/broadcast", s.handleBroadcast)
	mux.HandleFunc("GET /warnings", s.handleList(domain.FeedWarning))
	mux.HandleFunc("POST /warnings/{id}/re-report", s.handleReReport(domain.FeedWarning))
	mux.HandleFunc("GET /earthquakes", s.handleList(domain.FeedEarthquake))
	mux.HandleFunc("POST /earthquakes/{id}/re-report", s.handleReReport(domain.FeedEarthquake))
	mux.HandleFunc("POST /cron/check-warnings", s.handleCheck(domain.FeedWarning, "new_warnings_processed"))
	mux.HandleFunc("POST /cron/check-earthquakes", s.handleCheck(domain.FeedEarthquake, "new_earthquakes_processed"))

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "Weather Backend"})
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "refresh must be a boolean")
			return
		}
		force = b
	}

	snap, err := s.forecast.GetOrRefresh(r.Context(), force)
	if err != nil {
		s.logger.Error("forecast unavailable", "error", err)
		writeError(w, http.StatusBadGateway, "無法取得天氣資料")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCity(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("city")
	city, err := s.cities.FetchCity(r.Context(), name)
	if err == nil {
		sharedobs.WriteJSON(w, http.StatusOK, city)
		return
	}

	var (
		cfgErr   *domain.ConfigMissingError
		fetchErr *domain.FetchError
	)
	switch {
	case errors.Is(err, domain.ErrCityNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("找不到縣市: %s，請確認名稱是否正確 (例如: 臺北市)", name))
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusInternalServerError, "未設定 CWA API Key")
	case errors.As(err, &fetchErr) && fetchErr.Kind == domain.FetchHTTPStatus && fetchErr.Status >= 400:
		writeError(w, fetchErr.Status, "無法連線至氣象署 API")
	default:
		s.logger.Error("city lookup failed", "city", name, "error", err)
		writeError(w, http.StatusInternalServerError, "內部伺服器錯誤")
	}
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	snap, err := s.forecast.Broadcast(r.Context())
	if err != nil {
		s.logger.Error("forecast broadcast failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) handleList(feed domain.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
			limit = n
		}

		records, err := s.events.Recent(r.Context(), feed, limit)
		if err != nil {
			s.logger.Error("list records failed", "feed", string(feed), "error", err)
			writeError(w, http.StatusInternalServerError, "內部伺服器錯誤")
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, records)
	}
}

func (s *Server) handleReReport(feed domain.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "id must be an integer")
			return
		}

		rec, err := s.events.ReReport(r.Context(), feed, id)
		if errors.Is(err, domain.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("%s %d not found", feed, id))
			return
		}
		if err != nil {
			s.logger.Error("re-report failed", "feed", string(feed), "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "內部伺服器錯誤")
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, rec)
	}
}

// tickWait bounds how long a manual check waits for a running tick of the
// same feed, well inside WriteTimeout.
const tickWait = 30 * time.Second

func (s *Server) handleCheck(feed domain.Feed, countField string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), tickWait)
		defer cancel()

		n, err := s.events.RunFeed(ctx, feed)
		if err != nil {
			status := http.StatusInternalServerError
			var (
				fetchErr *domain.FetchError
				shapeErr *domain.ShapeError
			)
			switch {
			case errors.Is(err, domain.ErrTickInProgress):
				status = http.StatusConflict
			case errors.As(err, &fetchErr) || errors.As(err, &shapeErr):
				status = http.StatusBadGateway
			}
			sharedobs.WriteJSON(w, status, map[string]any{countField: n, "detail": err.Error()})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, map[string]int{countField: n})
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	sharedobs.WriteJSON(w, status, map[string]string{"detail": detail})
}

// withCORS allows any origin and answers preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
