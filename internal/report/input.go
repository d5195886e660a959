package report

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
)

// Input is the structured data a template is rendered from.
type Input struct {
	// Overview is echoed back as the degraded report when generation fails.
	Overview      string
	Cities        []domain.CityForecast
	Title         string
	IssueTime     string
	Content       string
	AffectedAreas []string
	Fields        map[string]string
}

// ForecastInput builds the input for the hourly briefing.
func ForecastInput(overview string, cities []domain.CityForecast) Input {
	return Input{Overview: overview, Cities: cities}
}

// EventInput builds the input for a newly seen warning or earthquake.
func EventInput(e domain.NormalizedEvent) Input {
	return Input{
		Overview:      echo(e.Title, e.Content),
		Title:         e.Title,
		IssueTime:     e.IssueTime,
		Content:       e.Content,
		AffectedAreas: e.AffectedAreas,
		Fields:        e.RawFields,
	}
}

// RecordInput builds the input for a manual re-report.
func RecordInput(r domain.Record) Input {
	return Input{
		Overview:      echo(r.Title, r.Content),
		Title:         r.Title,
		IssueTime:     r.IssueTime,
		Content:       r.Content,
		AffectedAreas: r.AffectedAreas,
	}
}

func echo(title, content string) string {
	if content == "" {
		return ""
	}
	return title + "：" + content
}

func (in Input) field(name string) string {
	if v := strings.TrimSpace(in.Fields[name]); v != "" {
		return v
	}
	return domain.Placeholder
}

// userPrompt renders the data section for a template.
func userPrompt(t Template, in Input) string {
	var b strings.Builder
	b.WriteString("【輸入資料】:\n")

	switch t {
	case TemplateForecast:
		b.WriteString("[觀測數據]:\n")
		if in.Overview != "" {
			fmt.Fprintf(&b, "概況: %s\n", in.Overview)
		}
		for _, c := range in.Cities {
			fmt.Fprintf(&b, "%s: 天氣%s, 氣溫%s-%s度, 降雨機率%s%%\n",
				c.Name, c.Weather, c.MinTemp, c.MaxTemp, c.PrecipitationProbability)
		}
	case TemplateWarning:
		fmt.Fprintf(&b, "特報名稱: %s\n", in.Title)
		fmt.Fprintf(&b, "發布時間: %s\n", in.IssueTime)
		fmt.Fprintf(&b, "影響地區: %s\n", areas(in.AffectedAreas))
		fmt.Fprintf(&b, "特報內容: %s\n", in.Content)
	default:
		fmt.Fprintf(&b, "標題: %s\n", in.Title)
		fmt.Fprintf(&b, "時間: %s\n", in.IssueTime)
		fmt.Fprintf(&b, "地點: %s\n", areas(in.AffectedAreas))
		if len(in.Fields) > 0 {
			fmt.Fprintf(&b, "震央: %s\n", in.field("epicenter"))
			fmt.Fprintf(&b, "規模: %s %s\n", in.field("magnitude_type"), in.field("magnitude"))
			fmt.Fprintf(&b, "深度: %s 公里\n", in.field("depth"))
			fmt.Fprintf(&b, "最大震度: %s\n", in.field("max_intensity"))
		}
		fmt.Fprintf(&b, "內容: %s\n", in.Content)
	}
	return b.String()
}

func areas(list []string) string {
	if len(list) == 0 {
		return domain.Placeholder
	}
	return strings.Join(list, "、")
}
