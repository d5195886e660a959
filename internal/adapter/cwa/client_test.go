package cwa

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey           = "CWA-TEST-KEY"
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

const warningListPayload = `{"success":"true","records":{"record":[{
	"datasetInfo":{"datasetDescription":"陸上強風特報","issueTime":"2025-01-01T08:00:00","validTime":{"startTime":"2025-01-01 08:00:00","endTime":"2025-01-02 08:00:00"}},
	"contents":{"content":{"contentLanguage":"zh-TW","contentText":"一、東北季風增強，基隆北海岸有強陣風。"}},
	"hazardConditions":{"hazards":{"hazard":[{"info":{"language":"zh-TW","phenomena":"陸上強風","significance":"特報","affectedAreas":{"location":[{"locationName":"基隆市"},{"locationName":"新北市"}]}}}]}}
}]}}`

const warningBarePayload = `{"success":"true","records":{"record":{
	"datasetInfo":{"datasetDescription":"陸上強風特報","issueTime":"2025-01-01T08:00:00","validTime":{"startTime":"2025-01-01 08:00:00","endTime":"2025-01-02 08:00:00"}},
	"contents":{"content":{"contentLanguage":"zh-TW","contentText":"一、東北季風增強，基隆北海岸有強陣風。"}},
	"hazardConditions":{"hazards":{"hazard":{"info":{"language":"zh-TW","phenomena":"陸上強風","significance":"特報","affectedAreas":{"location":[{"locationName":"基隆市"},{"locationName":"新北市"}]}}}}}
}}}`

const earthquakePayload = `{"success":"true","records":{"datasetDescription":"地震報告","Earthquake":[{
	"EarthquakeNo":114001,"ReportType":"地震報告","ReportColor":"綠色",
	"ReportContent":"01/01-08:00花蓮縣近海發生規模4.5有感地震，最大震度3級。",
	"EarthquakeInfo":{"OriginTime":"2025-01-01 08:00:00","FocalDepth":10.0,
		"Epicenter":{"Location":"花蓮縣政府南南東 20.0 公里 (位於花蓮縣近海)","EpicenterLatitude":23.8,"EpicenterLongitude":121.7},
		"EarthquakeMagnitude":{"MagnitudeType":"芮氏規模","MagnitudeValue":4.5}},
	"Intensity":{"ShakingArea":[
		{"AreaDesc":"最大震度3級地區","CountyName":"花蓮縣","AreaIntensity":"3級"},
		{"AreaDesc":"最大震度2級地區","CountyName":"宜蘭縣、花蓮縣","AreaIntensity":"2級"}]}
}]}}`

const forecastPayload = `{"success":"true","records":{"datasetDescription":"三十六小時天氣預報","location":[
	{"locationName":"臺北市","weatherElement":[
		{"elementName":"Wx","time":[{"startTime":"2025-01-01 06:00:00","endTime":"2025-01-01 18:00:00","parameter":{"parameterName":"多雲短暫雨","parameterValue":"8"}}]},
		{"elementName":"PoP","time":[{"parameter":{"parameterName":"30","parameterUnit":"百分比"}}]},
		{"elementName":"MinT","time":[{"parameter":{"parameterName":"15","parameterUnit":"C"}}]},
		{"elementName":"MaxT","time":[]}
	]},
	{"locationName":"新北市","weatherElement":{"elementName":"Wx","time":{"parameter":{"parameterName":"陰"}}}}
]}}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, body string) (*httptest.Server, *http.Request) {
	t.Helper()
	var last http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last = *r
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func testClient(baseURL string) *Client {
	return NewClient(testKey, baseURL, 5*time.Second, []string{"臺北市", "新北市"}, discardLogger())
}

func TestFetchAndNormalize_Warnings(t *testing.T) {
	srv, req := serve(t, warningListPayload)

	events, err := testClient(srv.URL).FetchAndNormalize(context.Background(), domain.FeedWarning)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, "/"+domain.DatasetWarning, req.URL.Path)
	assert.Equal(t, testKey, req.URL.Query().Get("Authorization"))
	assert.Equal(t, "JSON", req.URL.Query().Get("format"))

	e := events[0]
	assert.Equal(t, domain.FeedWarning, e.Feed)
	assert.Equal(t, "陸上強風特報", e.Title)
	assert.Equal(t, "2025-01-01T08:00:00", e.IssueTime)
	assert.Equal(t, domain.NaturalKey{
		Feed:      domain.FeedWarning,
		DatasetID: domain.DatasetWarning,
		IssueTime: "2025-01-01T08:00:00",
		Title:     "陸上強風特報",
	}, e.Key)
	assert.Equal(t, []string{"基隆市", "新北市"}, e.AffectedAreas)
	assert.Equal(t, "陸上強風", e.RawFields["phenomena"])
	assert.Contains(t, e.Content, "東北季風增強")
}

func TestFetchAndNormalize_BareAndListWarningsAreEquivalent(t *testing.T) {
	listSrv, _ := serve(t, warningListPayload)
	bareSrv, _ := serve(t, warningBarePayload)

	fromList, err := testClient(listSrv.URL).FetchAndNormalize(context.Background(), domain.FeedWarning)
	require.NoError(t, err)
	fromBare, err := testClient(bareSrv.URL).FetchAndNormalize(context.Background(), domain.FeedWarning)
	require.NoError(t, err)

	if diff := cmp.Diff(fromList, fromBare); diff != "" {
		t.Fatalf("bare vs list mismatch (-list +bare):\n%s", diff)
	}
}

func TestFetchAndNormalize_NoWarnings(t *testing.T) {
	srv, _ := serve(t, `{"success":"true","records":{"record":[]}}`)

	events, err := testClient(srv.URL).FetchAndNormalize(context.Background(), domain.FeedWarning)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFetchAndNormalize_WarningMissingLeaves(t *testing.T) {
	srv, _ := serve(t, `{"success":"true","records":{"record":{"datasetInfo":{}}}}`)

	events, err := testClient(srv.URL).FetchAndNormalize(context.Background(), domain.FeedWarning)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.Placeholder, events[0].Title)
	assert.Equal(t, domain.Placeholder, events[0].IssueTime)
	assert.Empty(t, events[0].AffectedAreas)
}

func TestFetchAndNormalize_Earthquakes(t *testing.T) {
	srv, req := serve(t, earthquakePayload)

	events, err := testClient(srv.URL).FetchAndNormalize(context.Background(), domain.FeedEarthquake)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "/"+domain.DatasetEarthquake, req.URL.Path)

	e := events[0]
	assert.Equal(t, "114001", e.Key.EarthquakeNo)
	assert.Equal(t, domain.DatasetEarthquake, e.Key.DatasetID)
	assert.Equal(t, "2025-01-01 08:00:00", e.IssueTime)
	assert.Equal(t, "地震報告", e.Title)
	assert.Equal(t, []string{"花蓮縣", "宜蘭縣"}, e.AffectedAreas)
	assert.Equal(t, "4.5", e.Field("magnitude"))
	assert.Equal(t, "10.0", e.Field("depth"))
	assert.Equal(t, "3級", e.Field("max_intensity"))
	assert.Contains(t, e.Field("epicenter"), "花蓮縣近海")
}

func TestFetchForecast_DefaultsMissingElements(t *testing.T) {
	srv, req := serve(t, forecastPayload)

	cities, err := testClient(srv.URL).FetchForecast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "臺北市,新北市", req.URL.Query().Get("locationName"))

	want := []domain.CityForecast{
		{Name: "臺北市", Weather: "多雲短暫雨", PrecipitationProbability: "30", MinTemp: "15", MaxTemp: "-"},
		{Name: "新北市", Weather: "陰", PrecipitationProbability: "-", MinTemp: "-", MaxTemp: "-"},
	}
	if diff := cmp.Diff(want, cities); diff != "" {
		t.Fatalf("forecast mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchAndNormalize_ForecastEvents(t *testing.T) {
	srv, _ := serve(t, forecastPayload)

	events, err := testClient(srv.URL).FetchAndNormalize(context.Background(), domain.FeedForecast)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Key.IsZero())
	assert.Equal(t, "30", events[0].RawFields["pop"])
}

func TestFetchCity(t *testing.T) {
	srv, req := serve(t, forecastPayload)

	city, err := testClient(srv.URL).FetchCity(context.Background(), "臺北市")
	require.NoError(t, err)
	assert.Equal(t, "臺北市", city.Name)
	assert.Equal(t, "臺北市", req.URL.Query().Get("locationName"))
}

func TestFetchCity_NotFound(t *testing.T) {
	srv, _ := serve(t, `{"success":"true","records":{"location":[]}}`)

	_, err := testClient(srv.URL).FetchCity(context.Background(), "台北市")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCityNotFound)
}

func TestFetch_ShapeError(t *testing.T) {
	for name, body := range map[string]string{
		"no records":      `{"success":"true"}`,
		"records array":   `{"success":"true","records":[]}`,
		"not json object": `<html>maintenance</html>`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := serve(t, body)
			_, err := testClient(srv.URL).FetchAndNormalize(context.Background(), domain.FeedWarning)

			var shapeErr *domain.ShapeError
			require.ErrorAs(t, err, &shapeErr)
			assert.Equal(t, domain.FeedWarning, shapeErr.Feed)
		})
	}
}

func TestFetch_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchAndNormalize(context.Background(), domain.FeedEarthquake)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.FetchHTTPStatus, fetchErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, fetchErr.Status)
	assert.Contains(t, err.Error(), "401")
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testKey, srv.URL, 50*time.Millisecond, nil, discardLogger())
	_, err := c.FetchAndNormalize(context.Background(), domain.FeedWarning)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.FetchTimeout, fetchErr.Kind)
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := testClient(url).FetchAndNormalize(context.Background(), domain.FeedWarning)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.FetchNetwork, fetchErr.Kind)
}

func TestFetch_MissingKey(t *testing.T) {
	c := NewClient("", "http://127.0.0.1:1", time.Second, nil, discardLogger())
	_, err := c.FetchForecast(context.Background())

	var cfgErr *domain.ConfigMissingError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "CWA_API_KEY", cfgErr.Setting)
}

func TestNormalize_MatchesClient(t *testing.T) {
	srv, _ := serve(t, warningListPayload)
	fetched, err := testClient(srv.URL).FetchAndNormalize(context.Background(), domain.FeedWarning)
	require.NoError(t, err)

	offline, err := Normalize(domain.FeedWarning, []byte(warningListPayload))
	require.NoError(t, err)
	if diff := cmp.Diff(fetched, offline); diff != "" {
		t.Errorf("normalized events differ (-client +offline):\n%s", diff)
	}
}

func TestNormalize_Forecast(t *testing.T) {
	events, err := Normalize(domain.FeedForecast, []byte(forecastPayload))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Key.IsZero())
}

func TestNormalize_UnknownFeed(t *testing.T) {
	_, err := Normalize(domain.Feed("typhoon"), []byte(`{}`))
	assert.Error(t, err)
}
