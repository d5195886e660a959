package postgres

import (
	"fmt"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
)

// schema bootstraps the two record tables. The unique constraints are what
// make PersistIfAbsent atomic across ticks and process instances.
const schema = `
CREATE TABLE IF NOT EXISTS weather_warnings (
	id             BIGSERIAL PRIMARY KEY,
	dataset_id     TEXT        NOT NULL,
	issue_time     TEXT        NOT NULL,
	title          TEXT        NOT NULL,
	content        TEXT        NOT NULL DEFAULT '',
	affected_areas TEXT        NOT NULL DEFAULT '',
	ai_report      TEXT,
	is_reported    BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT weather_warnings_identity UNIQUE (dataset_id, issue_time, title)
);
CREATE INDEX IF NOT EXISTS weather_warnings_created_at_idx ON weather_warnings (created_at DESC);

CREATE TABLE IF NOT EXISTS earthquake_reports (
	id             BIGSERIAL PRIMARY KEY,
	earthquake_no  TEXT        NOT NULL,
	dataset_id     TEXT        NOT NULL,
	issue_time     TEXT        NOT NULL,
	title          TEXT        NOT NULL,
	content        TEXT        NOT NULL DEFAULT '',
	affected_areas TEXT        NOT NULL DEFAULT '',
	ai_report      TEXT,
	is_reported    BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT earthquake_reports_identity UNIQUE (earthquake_no)
);
CREATE INDEX IF NOT EXISTS earthquake_reports_created_at_idx ON earthquake_reports (created_at DESC);
`

// table describes how one feed maps onto its record table.
type table struct {
	name     string
	columns  string // select list, in scanRecord order
	conflict string // ON CONFLICT target
	keyWhere string // WHERE clause matching the natural key
}

var (
	warningsTable = table{
		name:     "weather_warnings",
		columns:  "id, dataset_id, '' AS earthquake_no, issue_time, title, content, affected_areas, ai_report, is_reported, created_at",
		conflict: "(dataset_id, issue_time, title)",
		keyWhere: "dataset_id = $1 AND issue_time = $2 AND title = $3",
	}
	earthquakesTable = table{
		name:     "earthquake_reports",
		columns:  "id, dataset_id, earthquake_no, issue_time, title, content, affected_areas, ai_report, is_reported, created_at",
		conflict: "(earthquake_no)",
		keyWhere: "earthquake_no = $1",
	}
)

func tableFor(feed domain.Feed) (table, error) {
	switch feed {
	case domain.FeedWarning:
		return warningsTable, nil
	case domain.FeedEarthquake:
		return earthquakesTable, nil
	default:
		return table{}, fmt.Errorf("no record table for feed %q", feed)
	}
}

// keyArgs returns the arguments matching keyWhere.
func keyArgs(key domain.NaturalKey) []any {
	if key.Feed == domain.FeedEarthquake {
		return []any{key.EarthquakeNo}
	}
	return []any{key.DatasetID, key.IssueTime, key.Title}
}
