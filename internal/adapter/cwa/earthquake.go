package cwa

import (
	"encoding/json"
	"strings"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
)

// E-A0015-001 wire types.

type earthquakeRecords struct {
	Earthquake domain.OneOrMany[earthquake] `json:"Earthquake"`
}

type earthquake struct {
	EarthquakeNo   json.Number `json:"EarthquakeNo"`
	ReportType     string      `json:"ReportType"`
	ReportColor    string      `json:"ReportColor"`
	ReportContent  string      `json:"ReportContent"`
	ReportImageURI string      `json:"ReportImageURI"`
	Web            string      `json:"Web"`
	EarthquakeInfo struct {
		OriginTime string      `json:"OriginTime"`
		Source     string      `json:"Source"`
		FocalDepth json.Number `json:"FocalDepth"`
		Epicenter  struct {
			Location           string      `json:"Location"`
			EpicenterLatitude  json.Number `json:"EpicenterLatitude"`
			EpicenterLongitude json.Number `json:"EpicenterLongitude"`
		} `json:"Epicenter"`
		EarthquakeMagnitude struct {
			MagnitudeType  string      `json:"MagnitudeType"`
			MagnitudeValue json.Number `json:"MagnitudeValue"`
		} `json:"EarthquakeMagnitude"`
	} `json:"EarthquakeInfo"`
	Intensity struct {
		ShakingArea domain.OneOrMany[shakingArea] `json:"ShakingArea"`
	} `json:"Intensity"`
}

type shakingArea struct {
	AreaDesc      string `json:"AreaDesc"`
	CountyName    string `json:"CountyName"`
	AreaIntensity string `json:"AreaIntensity"`
}

// countySeparators split multi-county strings such as "花蓮縣、宜蘭縣".
var countySeparators = strings.NewReplacer("、", ",", "，", ",")

func normalizeEarthquakes(recs earthquakeRecords) []domain.NormalizedEvent {
	events := make([]domain.NormalizedEvent, 0, len(recs.Earthquake))
	for _, q := range recs.Earthquake {
		info := q.EarthquakeInfo
		number := domain.OrPlaceholder(q.EarthquakeNo.String())
		origin := domain.OrPlaceholder(strings.TrimSpace(info.OriginTime))
		title := domain.OrPlaceholder(strings.TrimSpace(q.ReportType))
		if title == domain.Placeholder {
			title = "地震報告"
		}

		var maxIntensity string
		areas := []string{}
		for _, a := range q.Intensity.ShakingArea {
			if maxIntensity == "" && strings.HasPrefix(a.AreaDesc, "最大震度") {
				maxIntensity = a.AreaIntensity
			}
			for _, county := range strings.Split(countySeparators.Replace(a.CountyName), ",") {
				areas = appendUnique(areas, county)
			}
		}

		events = append(events, domain.NormalizedEvent{
			Feed: domain.FeedEarthquake,
			Key: domain.NaturalKey{
				Feed:         domain.FeedEarthquake,
				DatasetID:    domain.DatasetEarthquake,
				EarthquakeNo: number,
			},
			IssueTime:     origin,
			Title:         title,
			Content:       strings.TrimSpace(q.ReportContent),
			AffectedAreas: areas,
			RawFields: map[string]string{
				"earthquake_no":  number,
				"origin_time":    origin,
				"magnitude":      info.EarthquakeMagnitude.MagnitudeValue.String(),
				"magnitude_type": info.EarthquakeMagnitude.MagnitudeType,
				"depth":          info.FocalDepth.String(),
				"epicenter":      info.Epicenter.Location,
				"latitude":       info.Epicenter.EpicenterLatitude.String(),
				"longitude":      info.Epicenter.EpicenterLongitude.String(),
				"max_intensity":  maxIntensity,
				"report_color":   q.ReportColor,
				"report_image":   q.ReportImageURI,
				"web":            q.Web,
			},
		})
	}
	return events
}
