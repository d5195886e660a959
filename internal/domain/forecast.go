package domain

import "time"

// CityForecast is the current forecast slot for one county.
type CityForecast struct {
	Name                     string `json:"name"`
	Weather                  string `json:"wx"`
	PrecipitationProbability string `json:"pop"`
	MinTemp                  string `json:"minT"`
	MaxTemp                  string `json:"maxT"`
}

// ForecastSnapshot is the routine forecast plus its generated briefing.
type ForecastSnapshot struct {
	Overview    string         `json:"overview"`
	Cities      []CityForecast `json:"cities"`
	AIReport    string         `json:"ai_report"`
	LastUpdated time.Time      `json:"last_updated"`
}

// IsZero reports whether the snapshot was never populated.
func (s ForecastSnapshot) IsZero() bool {
	return s.LastUpdated.IsZero()
}

// FreshAt reports whether the snapshot is younger than window at now.
func (s ForecastSnapshot) FreshAt(now time.Time, window time.Duration) bool {
	if s.IsZero() {
		return false
	}
	return now.Sub(s.LastUpdated) < window
}

// TargetCities are the counties queried for the routine forecast.
var TargetCities = []string{
	"基隆市", "臺北市", "新北市", "桃園市", "新竹市", "新竹縣", "苗栗縣", "臺中市",
	"彰化縣", "南投縣", "雲林縣", "嘉義市", "嘉義縣", "臺南市", "高雄市", "屏東縣",
	"宜蘭縣", "花蓮縣", "臺東縣", "澎湖縣", "金門縣", "連江縣",
}
