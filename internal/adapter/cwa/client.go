package cwa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the CWA open-data datastore root.
const DefaultBaseURL = "https://opendata.cwa.gov.tw/api/v1/rest/datastore"

// Client fetches CWA datasets and normalises them into domain types.
type Client struct {
	apiKey string
	http   *resty.Client
	cities []string
	logger *slog.Logger
}

// NewClient creates a CWA client. cities is the county list used for the
// routine forecast; nil selects domain.TargetCities.
func NewClient(apiKey, baseURL string, timeout time.Duration, cities []string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if len(cities) == 0 {
		cities = domain.TargetCities
	}
	return &Client{
		apiKey: apiKey,
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		cities: cities,
		logger: logger,
	}
}

// FetchAndNormalize polls one feed and returns its events in provider order.
// Forecast events carry no natural key; one event is produced per county.
func (c *Client) FetchAndNormalize(ctx context.Context, feed domain.Feed) ([]domain.NormalizedEvent, error) {
	if feed == domain.FeedForecast {
		cities, err := c.FetchForecast(ctx)
		if err != nil {
			return nil, err
		}
		return forecastEvents(cities), nil
	}
	if !feed.Valid() {
		return nil, fmt.Errorf("unknown feed %q", feed)
	}
	body, err := c.get(ctx, feed, nil)
	if err != nil {
		return nil, err
	}
	return Normalize(feed, body)
}

// Normalize decodes a raw warning or earthquake payload. It is the parsing
// boundary shared by the client and offline payload checks.
func Normalize(feed domain.Feed, body []byte) ([]domain.NormalizedEvent, error) {
	switch feed {
	case domain.FeedWarning:
		var recs warningRecords
		if err := decodeRecords(feed, body, &recs); err != nil {
			return nil, err
		}
		return normalizeWarnings(recs), nil
	case domain.FeedEarthquake:
		var recs earthquakeRecords
		if err := decodeRecords(feed, body, &recs); err != nil {
			return nil, err
		}
		return normalizeEarthquakes(recs), nil
	case domain.FeedForecast:
		var recs forecastRecords
		if err := decodeRecords(feed, body, &recs); err != nil {
			return nil, err
		}
		return forecastEvents(normalizeForecast(recs)), nil
	default:
		return nil, fmt.Errorf("unknown feed %q", feed)
	}
}

// FetchForecast returns the current forecast slot for every configured county.
func (c *Client) FetchForecast(ctx context.Context) ([]domain.CityForecast, error) {
	var recs forecastRecords
	params := map[string]string{"locationName": strings.Join(c.cities, ",")}
	if err := c.fetch(ctx, domain.FeedForecast, params, &recs); err != nil {
		return nil, err
	}
	return normalizeForecast(recs), nil
}

// FetchCity looks up a single county, bypassing any cache. The name must
// match the CWA spelling exactly (e.g. 臺北市, not 台北市).
func (c *Client) FetchCity(ctx context.Context, name string) (domain.CityForecast, error) {
	var recs forecastRecords
	if err := c.fetch(ctx, domain.FeedForecast, map[string]string{"locationName": name}, &recs); err != nil {
		return domain.CityForecast{}, err
	}
	cities := normalizeForecast(recs)
	if len(cities) == 0 {
		return domain.CityForecast{}, fmt.Errorf("%w: %s", domain.ErrCityNotFound, name)
	}
	return cities[0], nil
}

// fetch performs the GET and decodes the "records" object into out.
func (c *Client) fetch(ctx context.Context, feed domain.Feed, params map[string]string, out any) error {
	body, err := c.get(ctx, feed, params)
	if err != nil {
		return err
	}
	return decodeRecords(feed, body, out)
}

// get returns the raw body of a successful dataset request.
func (c *Client) get(ctx context.Context, feed domain.Feed, params map[string]string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, &domain.ConfigMissingError{Setting: "CWA_API_KEY"}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("Authorization", c.apiKey).
		SetQueryParam("format", "JSON").
		SetQueryParams(params).
		Get("/" + feed.DatasetID())
	if err != nil {
		kind := domain.FetchNetwork
		if isTimeout(err) {
			kind = domain.FetchTimeout
		}
		return nil, &domain.FetchError{Feed: feed, Kind: kind, Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &domain.FetchError{
			Feed:   feed,
			Kind:   domain.FetchHTTPStatus,
			Status: resp.StatusCode(),
			Err:    fmt.Errorf("%s", truncate(resp.String(), 200)),
		}
	}
	return resp.Body(), nil
}

// decodeRecords checks the envelope and decodes its records object.
func decodeRecords(feed domain.Feed, body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &domain.ShapeError{Feed: feed, Reason: "body is not a JSON object"}
	}
	raw := []byte(strings.TrimSpace(string(env.Records)))
	if len(raw) == 0 || raw[0] != '{' {
		return &domain.ShapeError{Feed: feed, Reason: "missing records object"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.ShapeError{Feed: feed, Reason: err.Error()}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
