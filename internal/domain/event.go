package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Feed identifies one upstream data source.
type Feed string

const (
	FeedForecast   Feed = "forecast"
	FeedWarning    Feed = "warning"
	FeedEarthquake Feed = "earthquake"
)

// CWA dataset identifiers.
const (
	DatasetForecast   = "F-C0032-001"
	DatasetWarning    = "W-C0033-002"
	DatasetEarthquake = "E-A0015-001"
)

// Placeholder is substituted for any leaf value the provider omits.
const Placeholder = "-"

// DatasetID returns the CWA dataset backing the feed.
func (f Feed) DatasetID() string {
	switch f {
	case FeedForecast:
		return DatasetForecast
	case FeedWarning:
		return DatasetWarning
	case FeedEarthquake:
		return DatasetEarthquake
	default:
		return ""
	}
}

// Valid reports whether f is one of the known feeds.
func (f Feed) Valid() bool {
	return f.DatasetID() != ""
}

// NaturalKey is the feed-specific identity of a real-world event.
// Warnings use (DatasetID, IssueTime, Title); earthquakes use EarthquakeNo.
type NaturalKey struct {
	Feed         Feed
	DatasetID    string
	IssueTime    string
	Title        string
	EarthquakeNo string
}

// IsZero reports whether the key carries no identity (routine forecast).
func (k NaturalKey) IsZero() bool {
	return k.DatasetID == "" && k.IssueTime == "" && k.Title == "" && k.EarthquakeNo == ""
}

func (k NaturalKey) String() string {
	if k.Feed == FeedEarthquake {
		return string(k.Feed) + ":" + k.EarthquakeNo
	}
	return string(k.Feed) + ":" + k.DatasetID + "|" + k.IssueTime + "|" + k.Title
}

// NormalizedEvent is one uniform record produced from a provider payload.
// It lives only for the duration of a tick.
type NormalizedEvent struct {
	Feed          Feed
	Key           NaturalKey
	IssueTime     string
	Title         string
	Content       string
	AffectedAreas []string
	RawFields     map[string]string
}

// Field returns a raw field or the placeholder when absent.
func (e NormalizedEvent) Field(name string) string {
	if v, ok := e.RawFields[name]; ok && v != "" {
		return v
	}
	return Placeholder
}

// Record is the persisted form of an event. Its identity key is immutable;
// only AIReport and IsReported change after insertion.
type Record struct {
	ID            int64     `json:"id"`
	Feed          Feed      `json:"feed"`
	DatasetID     string    `json:"dataset_id"`
	EarthquakeNo  string    `json:"earthquake_no,omitempty"`
	IssueTime     string    `json:"issue_time"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	AffectedAreas []string  `json:"-"`
	AIReport      *string   `json:"ai_report"`
	IsReported    bool      `json:"is_reported"`
	CreatedAt     time.Time `json:"created_at"`
}

// recordJSON carries the comma-joined affected_areas column used by the
// dashboard.
type recordJSON struct {
	recordAlias
	AffectedAreas string `json:"affected_areas"`
}

type recordAlias Record

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{recordAlias: recordAlias(r), AffectedAreas: JoinAreas(r.AffectedAreas)})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var v recordJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Record(v.recordAlias)
	r.AffectedAreas = SplitAreas(v.AffectedAreas)
	return nil
}

// Key rebuilds the natural key of a persisted record.
func (r Record) Key() NaturalKey {
	return NaturalKey{
		Feed:         r.Feed,
		DatasetID:    r.DatasetID,
		IssueTime:    r.IssueTime,
		Title:        r.Title,
		EarthquakeNo: r.EarthquakeNo,
	}
}

// NewRecord builds the record persisted for a newly seen event together
// with the report generated for it.
func NewRecord(e NormalizedEvent, aiReport string) Record {
	rec := Record{
		Feed:          e.Feed,
		DatasetID:     e.Key.DatasetID,
		EarthquakeNo:  e.Key.EarthquakeNo,
		IssueTime:     e.IssueTime,
		Title:         e.Title,
		Content:       e.Content,
		AffectedAreas: e.AffectedAreas,
	}
	if aiReport != "" {
		rec.AIReport = &aiReport
		rec.IsReported = true
	}
	return rec
}

// PersistOutcome is the result of a persist-if-absent call.
type PersistOutcome int

const (
	Inserted PersistOutcome = iota
	AlreadyPresent
)

func (o PersistOutcome) String() string {
	if o == AlreadyPresent {
		return "already_present"
	}
	return "inserted"
}

// JoinAreas renders affected areas for display and storage.
func JoinAreas(areas []string) string {
	return strings.Join(areas, ",")
}

// SplitAreas is the inverse of JoinAreas.
func SplitAreas(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
