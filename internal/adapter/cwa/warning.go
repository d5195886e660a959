package cwa

import (
	"strings"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
)

// W-C0033-002 wire types.

type warningRecords struct {
	Record domain.OneOrMany[warningRecord] `json:"record"`
}

type warningRecord struct {
	DatasetInfo struct {
		DatasetDescription string `json:"datasetDescription"`
		DatasetLanguage    string `json:"datasetLanguage"`
		IssueTime          string `json:"issueTime"`
		Update             string `json:"update"`
		ValidTime          struct {
			StartTime string `json:"startTime"`
			EndTime   string `json:"endTime"`
		} `json:"validTime"`
	} `json:"datasetInfo"`
	Contents struct {
		Content struct {
			ContentLanguage string `json:"contentLanguage"`
			ContentText     string `json:"contentText"`
		} `json:"content"`
	} `json:"contents"`
	HazardConditions struct {
		Hazards struct {
			Hazard domain.OneOrMany[hazard] `json:"hazard"`
		} `json:"hazards"`
	} `json:"hazardConditions"`
}

type hazard struct {
	Info struct {
		Language      string `json:"language"`
		Phenomena     string `json:"phenomena"`
		Significance  string `json:"significance"`
		AffectedAreas struct {
			Location domain.OneOrMany[hazardLocation] `json:"location"`
		} `json:"affectedAreas"`
	} `json:"info"`
}

type hazardLocation struct {
	LocationName string `json:"locationName"`
}

func normalizeWarnings(recs warningRecords) []domain.NormalizedEvent {
	events := make([]domain.NormalizedEvent, 0, len(recs.Record))
	for _, r := range recs.Record {
		info := r.DatasetInfo
		title := domain.OrPlaceholder(strings.TrimSpace(info.DatasetDescription))
		issue := domain.OrPlaceholder(strings.TrimSpace(info.IssueTime))

		var phenomena, significance []string
		for _, h := range r.HazardConditions.Hazards.Hazard {
			phenomena = appendUnique(phenomena, h.Info.Phenomena)
			significance = appendUnique(significance, h.Info.Significance)
		}

		events = append(events, domain.NormalizedEvent{
			Feed: domain.FeedWarning,
			Key: domain.NaturalKey{
				Feed:      domain.FeedWarning,
				DatasetID: domain.DatasetWarning,
				IssueTime: issue,
				Title:     title,
			},
			IssueTime:     issue,
			Title:         title,
			Content:       strings.TrimSpace(r.Contents.Content.ContentText),
			AffectedAreas: affectedAreas(r.HazardConditions.Hazards.Hazard),
			RawFields: map[string]string{
				"phenomena":    strings.Join(phenomena, ","),
				"significance": strings.Join(significance, ","),
				"valid_start":  info.ValidTime.StartTime,
				"valid_end":    info.ValidTime.EndTime,
				"language":     info.DatasetLanguage,
			},
		})
	}
	return events
}

// affectedAreas flattens hazard -> info -> location into an ordered list of
// distinct location names.
func affectedAreas(hazards []hazard) []string {
	areas := []string{}
	for _, h := range hazards {
		for _, loc := range h.Info.AffectedAreas.Location {
			areas = appendUnique(areas, loc.LocationName)
		}
	}
	return areas
}

func appendUnique(list []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
