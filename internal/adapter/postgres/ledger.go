// Package postgres implements the event ledger on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/weather-broadcast-service/internal/domain"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Ledger stores hazard and earthquake records.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to PostgreSQL and configures the pool. The connection is not
// verified here; the scheduler waits on Ping before the first tick.
func Open(dsn string, maxOpen, maxIdle int, logger *slog.Logger) (*Ledger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	return New(db, logger), nil
}

// New wraps an existing handle.
func New(db *sql.DB, logger *slog.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Migrate creates the record tables if they do not exist.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) Exists(ctx context.Context, key domain.NaturalKey) (bool, error) {
	t, err := tableFor(key.Feed)
	if err != nil {
		return false, err
	}
	var exists bool
	q := "SELECT EXISTS (SELECT 1 FROM " + t.name + " WHERE " + t.keyWhere + ")"
	if err := l.db.QueryRowContext(ctx, q, keyArgs(key)...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s: %w", key, err)
	}
	return exists, nil
}

// PersistIfAbsent inserts rec. A conflicting natural key, whether caught by
// ON CONFLICT or surfaced as a unique violation, yields AlreadyPresent with
// the stored record.
func (l *Ledger) PersistIfAbsent(ctx context.Context, rec domain.Record) (domain.Record, domain.PersistOutcome, error) {
	t, err := tableFor(rec.Feed)
	if err != nil {
		return domain.Record{}, 0, err
	}

	var (
		q    string
		args []any
	)
	areas := domain.JoinAreas(rec.AffectedAreas)
	if rec.Feed == domain.FeedEarthquake {
		q = `INSERT INTO earthquake_reports (earthquake_no, dataset_id, issue_time, title, content, affected_areas, ai_report, is_reported)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT ` + t.conflict + ` DO NOTHING
RETURNING id, created_at`
		args = []any{rec.EarthquakeNo, rec.DatasetID, rec.IssueTime, rec.Title, rec.Content, areas, nullString(rec.AIReport), rec.IsReported}
	} else {
		q = `INSERT INTO weather_warnings (dataset_id, issue_time, title, content, affected_areas, ai_report, is_reported)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT ` + t.conflict + ` DO NOTHING
RETURNING id, created_at`
		args = []any{rec.DatasetID, rec.IssueTime, rec.Title, rec.Content, areas, nullString(rec.AIReport), rec.IsReported}
	}

	err = l.db.QueryRowContext(ctx, q, args...).Scan(&rec.ID, &rec.CreatedAt)
	switch {
	case err == nil:
		return rec, domain.Inserted, nil
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		l.logger.Debug("record already present", "key", rec.Key().String())
		existing, getErr := l.getByKey(ctx, t, rec.Key())
		if getErr != nil {
			return domain.Record{}, domain.AlreadyPresent, getErr
		}
		return existing, domain.AlreadyPresent, nil
	default:
		return domain.Record{}, 0, fmt.Errorf("insert %s: %w", rec.Key(), err)
	}
}

// UpdateReport overwrites the generated report. Identity columns and
// created_at are never touched.
func (l *Ledger) UpdateReport(ctx context.Context, feed domain.Feed, id int64, aiReport string) error {
	t, err := tableFor(feed)
	if err != nil {
		return err
	}
	res, err := l.db.ExecContext(ctx,
		"UPDATE "+t.name+" SET ai_report = $1, is_reported = TRUE WHERE id = $2", aiReport, id)
	if err != nil {
		return fmt.Errorf("update report %s %d: %w", feed, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report %s %d: %w", feed, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", domain.ErrRecordNotFound, feed, id)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, feed domain.Feed, id int64) (domain.Record, error) {
	t, err := tableFor(feed)
	if err != nil {
		return domain.Record{}, err
	}
	row := l.db.QueryRowContext(ctx, "SELECT "+t.columns+" FROM "+t.name+" WHERE id = $1", id)
	rec, err := scanRecord(row, feed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, fmt.Errorf("%w: %s %d", domain.ErrRecordNotFound, feed, id)
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("get %s %d: %w", feed, id, err)
	}
	return rec, nil
}

// ListRecent returns up to limit records, newest first.
func (l *Ledger) ListRecent(ctx context.Context, feed domain.Feed, limit int) ([]domain.Record, error) {
	t, err := tableFor(feed)
	if err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+t.columns+" FROM "+t.name+" ORDER BY created_at DESC, id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", feed, err)
	}
	defer rows.Close()

	records := make([]domain.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows, feed)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", feed, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (l *Ledger) getByKey(ctx context.Context, t table, key domain.NaturalKey) (domain.Record, error) {
	row := l.db.QueryRowContext(ctx, "SELECT "+t.columns+" FROM "+t.name+" WHERE "+t.keyWhere, keyArgs(key)...)
	rec, err := scanRecord(row, key.Feed)
	if err != nil {
		return domain.Record{}, fmt.Errorf("load existing %s: %w", key, err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, feed domain.Feed) (domain.Record, error) {
	var (
		rec      domain.Record
		areas    string
		aiReport sql.NullString
	)
	err := s.Scan(&rec.ID, &rec.DatasetID, &rec.EarthquakeNo, &rec.IssueTime, &rec.Title,
		&rec.Content, &areas, &aiReport, &rec.IsReported, &rec.CreatedAt)
	if err != nil {
		return domain.Record{}, err
	}
	rec.Feed = feed
	rec.AffectedAreas = domain.SplitAreas(areas)
	if aiReport.Valid {
		rec.AIReport = &aiReport.String
	}
	return rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
