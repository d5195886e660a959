package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/weather-broadcast-service/internal/adapter/http"
	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockForecast struct {
	snap   domain.ForecastSnapshot
	err    error
	forced []bool
	casts  int
}

func (m *mockForecast) GetOrRefresh(_ context.Context, force bool) (domain.ForecastSnapshot, error) {
	m.forced = append(m.forced, force)
	return m.snap, m.err
}

func (m *mockForecast) Broadcast(_ context.Context) (domain.ForecastSnapshot, error) {
	m.casts++
	return m.snap, m.err
}

type mockCities struct {
	err error
}

func (m *mockCities) FetchCity(_ context.Context, name string) (domain.CityForecast, error) {
	if m.err != nil {
		return domain.CityForecast{}, m.err
	}
	return domain.CityForecast{Name: name, Weather: "多雲", PrecipitationProbability: "30", MinTemp: "17", MaxTemp: "22"}, nil
}

type mockEvents struct {
	n        int
	err      error
	records  []domain.Record
	limit    int
	reported []int64
}

func (m *mockEvents) RunFeed(_ context.Context, _ domain.Feed) (int, error) { return m.n, m.err }

// deadlineEvents records the deadline RunFeed was called with.
type deadlineEvents struct {
	mockEvents
	deadline    time.Time
	hasDeadline bool
}

func (m *deadlineEvents) RunFeed(ctx context.Context, _ domain.Feed) (int, error) {
	m.deadline, m.hasDeadline = ctx.Deadline()
	return 1, nil
}

func (m *mockEvents) ReReport(_ context.Context, feed domain.Feed, id int64) (domain.Record, error) {
	for _, r := range m.records {
		if r.ID == id && r.Feed == feed {
			m.reported = append(m.reported, id)
			report := "重新播報"
			r.AIReport = &report
			return r, nil
		}
	}
	return domain.Record{}, fmt.Errorf("%w: %s %d", domain.ErrRecordNotFound, feed, id)
}

func (m *mockEvents) Recent(_ context.Context, feed domain.Feed, limit int) ([]domain.Record, error) {
	m.limit = limit
	out := []domain.Record{}
	for _, r := range m.records {
		if r.Feed == feed {
			out = append(out, r)
		}
	}
	return out, nil
}

type deps struct {
	forecast *mockForecast
	cities   *mockCities
	events   httpadapter.EventService
	ready    *mockReadiness
}

func newTestServer(d deps) *httpadapter.Server {
	if d.forecast == nil {
		d.forecast = &mockForecast{snap: domain.ForecastSnapshot{
			Cities:      []domain.CityForecast{{Name: "臺北市", Weather: "晴"}},
			AIReport:    "今日天氣晴朗",
			LastUpdated: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC),
		}}
	}
	if d.cities == nil {
		d.cities = &mockCities{}
	}
	if d.events == nil {
		d.events = &mockEvents{}
	}
	if d.ready == nil {
		d.ready = &mockReadiness{}
	}
	return httpadapter.NewServer(":0", d.forecast, d.cities, d.events, d.ready, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(srv http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// --- tests ---

func TestRootReturnsStatus(t *testing.T) {
	rec := do(newTestServer(deps{}), http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Weather Backend", body["service"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownPathIs404(t *testing.T) {
	rec := do(newTestServer(deps{}), http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreflight(t *testing.T) {
	rec := do(newTestServer(deps{}), http.MethodOptions, "/cron/check-warnings")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWeather(t *testing.T) {
	fc := &mockForecast{snap: domain.ForecastSnapshot{AIReport: "簡報", Cities: []domain.CityForecast{}, LastUpdated: time.Now()}}
	srv := newTestServer(deps{forecast: fc})

	rec := do(srv, http.MethodGet, "/weather")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "簡報", body["ai_report"])

	rec = do(srv, http.MethodGet, "/weather?refresh=true")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []bool{false, true}, fc.forced)

	rec = do(srv, http.MethodGet, "/weather?refresh=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeather_UpstreamFailure(t *testing.T) {
	fc := &mockForecast{err: &domain.FetchError{Feed: domain.FeedForecast, Kind: domain.FetchTimeout}}
	rec := do(newTestServer(deps{forecast: fc}), http.MethodGet, "/weather")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCity(t *testing.T) {
	rec := do(newTestServer(deps{}), http.MethodGet, "/weather/"+url.PathEscape("臺北市"))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "臺北市", body["name"])
	assert.Equal(t, "多雲", body["wx"])
	assert.Equal(t, "30", body["pop"])
	assert.Equal(t, "17", body["minT"])
	assert.Equal(t, "22", body["maxT"])
}

func TestCity_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"unknown city", fmt.Errorf("lookup: %w", domain.ErrCityNotFound), http.StatusNotFound, "找不到縣市"},
		{"missing key", &domain.ConfigMissingError{Setting: "CWA_API_KEY"}, http.StatusInternalServerError, "未設定 CWA API Key"},
		{"upstream status", &domain.FetchError{Feed: domain.FeedForecast, Kind: domain.FetchHTTPStatus, Status: 401}, http.StatusUnauthorized, "無法連線至氣象署 API"},
		{"network", &domain.FetchError{Feed: domain.FeedForecast, Kind: domain.FetchNetwork, Err: errors.New("refused")}, http.StatusInternalServerError, "內部伺服器錯誤"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(deps{cities: &mockCities{err: tt.err}})
			rec := do(srv, http.MethodGet, "/weather/"+url.PathEscape("台北"))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decode[map[string]string](t, rec)["detail"], tt.detail)
		})
	}
}

func TestBroadcast(t *testing.T) {
	fc := &mockForecast{snap: domain.ForecastSnapshot{AIReport: "整點播報", LastUpdated: time.Now()}}
	rec := do(newTestServer(deps{forecast: fc}), http.MethodPost, "/weather/broadcast")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fc.casts)
	assert.Empty(t, fc.forced, "broadcast must not go through the freshness check")
}

func TestGetBroadcastPathIsCityLookup(t *testing.T) {
	rec := do(newTestServer(deps{}), http.MethodGet, "/weather/broadcast")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "broadcast", decode[map[string]string](t, rec)["name"])
}

func TestCheckWarnings(t *testing.T) {
	rec := do(newTestServer(deps{events: &mockEvents{n: 2}}), http.MethodPost, "/cron/check-warnings")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"new_warnings_processed":2}`, rec.Body.String())
}

func TestCheckEarthquakes(t *testing.T) {
	rec := do(newTestServer(deps{events: &mockEvents{n: 0}}), http.MethodPost, "/cron/check-earthquakes")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"new_earthquakes_processed":0}`, rec.Body.String())
}

func TestCheckWarnings_FetchErrorIs502(t *testing.T) {
	ev := &mockEvents{err: &domain.FetchError{Feed: domain.FeedWarning, Kind: domain.FetchHTTPStatus, Status: 503}}
	rec := do(newTestServer(deps{events: ev}), http.MethodPost, "/cron/check-warnings")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.InDelta(t, 0, body["new_warnings_processed"], 0)
	assert.NotEmpty(t, body["detail"])
}

func TestCheckWarnings_TickInProgressIs409(t *testing.T) {
	ev := &mockEvents{err: fmt.Errorf("warning: %w: %w", domain.ErrTickInProgress, context.DeadlineExceeded)}
	rec := do(newTestServer(deps{events: ev}), http.MethodPost, "/cron/check-warnings")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[map[string]any](t, rec)["detail"], "already in progress")
}

func TestCheckWarnings_WaitIsBounded(t *testing.T) {
	ev := &deadlineEvents{}
	rec := do(newTestServer(deps{events: ev}), http.MethodPost, "/cron/check-warnings")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ev.hasDeadline)
	// Bounded well inside the 90s write timeout.
	assert.WithinDuration(t, time.Now().Add(30*time.Second), ev.deadline, 5*time.Second)
}

func TestCheckWarnings_MethodNotAllowed(t *testing.T) {
	rec := do(newTestServer(deps{}), http.MethodGet, "/cron/check-warnings")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListWarnings(t *testing.T) {
	report := "強風稿"
	ev := &mockEvents{records: []domain.Record{
		{ID: 2, Feed: domain.FeedWarning, Title: "陸上強風特報", AffectedAreas: []string{"基隆市", "新北市"}, AIReport: &report, IsReported: true},
		{ID: 9, Feed: domain.FeedEarthquake, EarthquakeNo: "114001", Title: "地震報告"},
	}}
	srv := newTestServer(deps{events: ev})

	rec := do(srv, http.MethodGet, "/warnings?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, ev.limit)

	body := decode[[]map[string]any](t, rec)
	require.Len(t, body, 1)
	assert.Equal(t, "陸上強風特報", body[0]["title"])
	assert.Equal(t, "基隆市,新北市", body[0]["affected_areas"])
	assert.Equal(t, "強風稿", body[0]["ai_report"])

	rec = do(srv, http.MethodGet, "/earthquakes")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, ev.limit)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = do(srv, http.MethodGet, "/warnings?limit=ten")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReReport(t *testing.T) {
	ev := &mockEvents{records: []domain.Record{{ID: 3, Feed: domain.FeedWarning, Title: "大雨特報"}}}
	srv := newTestServer(deps{events: ev})

	rec := do(srv, http.MethodPost, "/warnings/3/re-report")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "重新播報", decode[map[string]any](t, rec)["ai_report"])
	assert.Equal(t, []int64{3}, ev.reported)

	rec = do(srv, http.MethodPost, "/warnings/42/re-report")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(srv, http.MethodPost, "/earthquakes/3/re-report")
	assert.Equal(t, http.StatusNotFound, rec.Code, "ids are scoped per feed")

	rec = do(srv, http.MethodPost, "/warnings/abc/re-report")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(newTestServer(deps{}), http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(newTestServer(deps{ready: &mockReadiness{err: fmt.Errorf("ledger unreachable")}}), http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "ledger unreachable", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(deps{}), http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
