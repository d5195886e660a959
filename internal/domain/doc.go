// Package domain models the Central Weather Administration (CWA) open-data
// feeds consumed by the broadcast pipeline.
//
// # Data Source
//
// All feeds come from the CWA open-data REST API
// (https://opendata.cwa.gov.tw/api/v1/rest/datastore/<dataset>):
//
//	F-C0032-001  36-hour county forecast   (routine forecast, no dedup)
//	W-C0033-002  hazard warnings            (dedup on dataset_id, issue_time, title)
//	E-A0015-001  felt earthquake reports    (dedup on earthquake_no)
//
// # Payload Conventions
//
// Every response wraps its data in a top-level "records" object. Only a
// missing or non-object "records" is treated as an unrecognisable payload
// ([ShapeError]); anything deeper is best effort.
//
// Multiplicity:
//
//	The provider emits a bare object instead of a one-element array for
//	several fields (record, hazard, location, Earthquake, ShakingArea).
//	[OneOrMany] absorbs both shapes at decode time so nothing downstream
//	branches on shape.
//
// Missing values:
//
//	A weather element with no time slots, or a leaf that is absent, becomes
//	the [Placeholder] "-". Missing leaves are never errors.
//
// Affected areas:
//
//	hazard -> info -> affectedAreas -> location[] -> locationName is flattened
//	into an ordered, de-duplicated []string. The comma-joined form is produced
//	only when a record is stored or rendered.
//
// # Identity
//
// A [NaturalKey] identifies the real-world event. The ledger enforces it with
// a unique index so concurrent ticks cannot broadcast the same event twice.
package domain
