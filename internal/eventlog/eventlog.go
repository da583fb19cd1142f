// Package eventlog implements the Event Log (spec §4.K, §6): an
// append-only relational record of every successfully processed job,
// plus a denormalized per-kind schema cache kept in sync on every save.
// The filesystem Store remains the source of truth for SavedTree and
// artifacts; this package only ever mirrors what the Store already
// persisted, grounded on the teacher's dotsql-loaded named queries
// (internal/core/db).
package eventlog

import (
	"fmt"
	"time"

	"github.com/schemaforge/schemaforge/internal/core/db"
	"github.com/schemaforge/schemaforge/internal/types"
)

// Log records EventRows and mirrors SchemaRecord summaries into the
// relational store.
type Log struct {
	q *db.Queries
}

// New constructs a Log backed by an already-migrated database.
func New(q *db.Queries) *Log {
	return &Log{q: q}
}

// AppendEventRow writes one append-only row per successfully processed
// job (§3 EventRow, §6 `events` table).
func (l *Log) AppendEventRow(row types.EventRow) error {
	_, err := l.q.Exec("append-event",
		string(row.Kind),
		row.PayloadFingerprint,
		row.SizeOriginal,
		row.SizeRedacted,
		row.RedactedFieldCount > 0,
		row.RedactedFieldCount,
		row.ReceivedAt.UTC().Format(time.RFC3339),
		row.ProcessedAt.UTC().Format(time.RFC3339),
		row.ProcessingDurationMs,
	)
	if err != nil {
		return fmt.Errorf("eventlog: append event row for %q: %w", row.Kind, err)
	}
	return nil
}

// UpsertSchemaCache mirrors record's summary fields into the `schemas`
// table (§6): a denormalized cache the filesystem Store remains
// authoritative over.
func (l *Log) UpsertSchemaCache(record *types.SchemaRecord) error {
	_, err := l.q.Exec("upsert-schema",
		string(record.Kind),
		record.Version,
		record.StructureFingerprint,
		record.FirstSeen.UTC().Format(time.RFC3339),
		record.LastSeen.UTC().Format(time.RFC3339),
		record.LastModified.UTC().Format(time.RFC3339),
		record.TotalReceived,
		len(record.Fields.Required),
		len(record.Fields.Optional),
		len(record.Fields.Redacted),
	)
	if err != nil {
		return fmt.Errorf("eventlog: upsert schema cache for %q: %w", record.Kind, err)
	}
	return nil
}

// EventRecord is one row read back from the `events` table (§6 GetRecentEvents).
type EventRecord struct {
	ID                   int64  `db:"id"`
	Kind                 string `db:"kind"`
	PayloadFingerprint   string `db:"payload_fp"`
	SizeOriginal         int    `db:"size_original"`
	SizeRedacted         int    `db:"size_redacted"`
	RedactedFlag         bool   `db:"redacted_flag"`
	RedactedFieldCount   int    `db:"redacted_field_count"`
	ReceivedAt           string `db:"received_at"`
	ProcessedAt          string `db:"processed_at"`
	ProcessingDurationMs int64  `db:"processing_duration_ms"`
}

// RecentEvents returns up to limit most-recently-processed rows,
// optionally filtered to one kind (§6 GetRecentEvents).
func (l *Log) RecentEvents(limit int, kind string) ([]EventRecord, error) {
	var rows []EventRecord
	var err error
	if kind == "" {
		err = l.q.Select("recent-events", &rows, limit)
	} else {
		err = l.q.Select("recent-events-by-kind", &rows, kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("eventlog: recent events: %w", err)
	}
	return rows, nil
}

// EventsSince returns every row processed at or after since, optionally
// filtered to one kind, ascending by processed_at. Used by
// GetHourlyTimeline (§6), which buckets these in Go rather than in SQL so
// the same query works across sqlite and postgres without driver-specific
// date-truncation syntax.
func (l *Log) EventsSince(since time.Time, kind string) ([]EventRecord, error) {
	var rows []EventRecord
	var err error
	ts := since.UTC().Format(time.RFC3339)
	if kind == "" {
		err = l.q.Select("events-since", &rows, ts)
	} else {
		err = l.q.Select("events-since-by-kind", &rows, ts, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("eventlog: events since %v: %w", since, err)
	}
	return rows, nil
}

// TotalEvents returns the all-time count of processed events (§6
// GetAggregates totalEvents).
func (l *Log) TotalEvents() (int64, error) {
	var n int64
	if err := l.q.Get("count-events-total", &n); err != nil {
		return 0, fmt.Errorf("eventlog: total events: %w", err)
	}
	return n, nil
}

// EventsSinceCount returns the count of events processed at or after
// since (§6 GetAggregates eventsLast1h/eventsLast24h).
func (l *Log) EventsSinceCount(since time.Time) (int64, error) {
	var n int64
	if err := l.q.Get("count-events-since", &n, since.UTC().Format(time.RFC3339)); err != nil {
		return 0, fmt.Errorf("eventlog: events since count: %w", err)
	}
	return n, nil
}

// AverageProcessingDurationMs returns the mean processing duration across
// every recorded event, 0 if none have been recorded yet (§6
// GetAggregates avgProcessingDurationMs).
func (l *Log) AverageProcessingDurationMs() (float64, error) {
	var avg float64
	if err := l.q.Get("avg-processing-duration", &avg); err != nil {
		return 0, fmt.Errorf("eventlog: average processing duration: %w", err)
	}
	return avg, nil
}

// DistinctKindCount returns the number of kinds present in the schemas
// cache (§6 GetAggregates uniqueKinds), as a cross-check against the
// Store's own filesystem-derived count.
func (l *Log) DistinctKindCount() (int64, error) {
	var n int64
	if err := l.q.Get("count-distinct-kinds", &n); err != nil {
		return 0, fmt.Errorf("eventlog: distinct kind count: %w", err)
	}
	return n, nil
}
