package cwa

import (
	"encoding/json"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
)

// envelope is the outer shape shared by every dataset.
type envelope struct {
	Success string          `json:"success"`
	Records json.RawMessage `json:"records"`
}

// F-C0032-001 wire types.

type forecastRecords struct {
	DatasetDescription string                             `json:"datasetDescription"`
	Location           domain.OneOrMany[forecastLocation] `json:"location"`
}

type forecastLocation struct {
	LocationName   string                           `json:"locationName"`
	WeatherElement domain.OneOrMany[weatherElement] `json:"weatherElement"`
}

type weatherElement struct {
	ElementName string                        `json:"elementName"`
	Time        domain.OneOrMany[elementTime] `json:"time"`
}

type elementTime struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Parameter struct {
		ParameterName  string `json:"parameterName"`
		ParameterValue string `json:"parameterValue"`
		ParameterUnit  string `json:"parameterUnit"`
	} `json:"parameter"`
}

// Weather element names in F-C0032-001.
const (
	elementWx   = "Wx"
	elementPoP  = "PoP"
	elementMinT = "MinT"
	elementMaxT = "MaxT"
)

func normalizeForecast(recs forecastRecords) []domain.CityForecast {
	cities := make([]domain.CityForecast, 0, len(recs.Location))
	for _, loc := range recs.Location {
		cities = append(cities, domain.CityForecast{
			Name:                     domain.OrPlaceholder(loc.LocationName),
			Weather:                  firstSlot(loc.WeatherElement, elementWx),
			PrecipitationProbability: firstSlot(loc.WeatherElement, elementPoP),
			MinTemp:                  firstSlot(loc.WeatherElement, elementMinT),
			MaxTemp:                  firstSlot(loc.WeatherElement, elementMaxT),
		})
	}
	return cities
}

// firstSlot returns the first time slot's parameter name for an element,
// or the placeholder when the element or its slots are missing.
func firstSlot(elements []weatherElement, name string) string {
	for _, el := range elements {
		if el.ElementName != name {
			continue
		}
		if len(el.Time) == 0 {
			return domain.Placeholder
		}
		return domain.OrPlaceholder(el.Time[0].Parameter.ParameterName)
	}
	return domain.Placeholder
}

func forecastEvents(cities []domain.CityForecast) []domain.NormalizedEvent {
	events := make([]domain.NormalizedEvent, 0, len(cities))
	for _, c := range cities {
		events = append(events, domain.NormalizedEvent{
			Feed:          domain.FeedForecast,
			Key:           domain.NaturalKey{Feed: domain.FeedForecast},
			Title:         c.Name,
			Content:       c.Weather,
			AffectedAreas: []string{c.Name},
			RawFields: map[string]string{
				"wx":   c.Weather,
				"pop":  c.PrecipitationProbability,
				"minT": c.MinTemp,
				"maxT": c.MaxTemp,
			},
		})
	}
	return events
}
