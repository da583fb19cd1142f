// Package query implements the outbound read-side API (spec §6):
// GetSchemaRecord, ListKinds, GetAggregates, GetRecentEvents, and
// GetHourlyTimeline. A plain Go service type, independent of any
// transport, mirroring the teacher's own split between its orchestration
// service and the gRPC layer that binds it to the wire.
package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/schemaforge/schemaforge/internal/eventlog"
	"github.com/schemaforge/schemaforge/internal/queue"
	"github.com/schemaforge/schemaforge/internal/store"
	"github.com/schemaforge/schemaforge/internal/types"
)

// Service answers read-side queries over the Store, Event Log, and Job
// Queue. A transport layer (gRPC, HTTP, or any other ingress a deployment
// chooses) wraps this type; it has no wire-format opinions of its own.
type Service struct {
	store *store.Store
	log   *eventlog.Log
	queue *queue.Queue
}

// New constructs a Service. log and q may be nil in a deployment that runs
// the Store without an Event Log or a live Queue (e.g. offline inspection
// of an existing data directory); the corresponding aggregate fields then
// read as zero.
func New(st *store.Store, log *eventlog.Log, q *queue.Queue) *Service {
	return &Service{store: st, log: log, queue: q}
}

// GetSchemaRecord returns the persisted record for kind, or nil if no
// payload of that kind has ever been observed (§6).
func (s *Service) GetSchemaRecord(kind types.EventKind) (*types.SchemaRecord, error) {
	record, err := s.store.Load(kind)
	if err != nil {
		return nil, fmt.Errorf("query: get schema record for %q: %w", kind, err)
	}
	return record, nil
}

// ListKinds returns every kind with a saved record (§6).
func (s *Service) ListKinds() ([]types.EventKind, error) {
	kinds, err := s.store.ListKinds()
	if err != nil {
		return nil, fmt.Errorf("query: list kinds: %w", err)
	}
	return kinds, nil
}

// Aggregates is the shape returned by GetAggregates (§6).
type Aggregates struct {
	TotalEvents             int64
	UniqueKinds             int
	EventsLast1h            int64
	EventsLast24h           int64
	AvgProcessingDurationMs float64
	QueueDepth              int
	DiskBytesBySection      map[string]int64
}

// GetAggregates assembles the operator dashboard's summary view (§6). Any
// component the Service was constructed without (nil log or queue)
// contributes its zero value rather than failing the whole call.
func (s *Service) GetAggregates(now time.Time) (Aggregates, error) {
	var agg Aggregates

	kinds, err := s.store.ListKinds()
	if err != nil {
		return agg, fmt.Errorf("query: get aggregates: list kinds: %w", err)
	}
	agg.UniqueKinds = len(kinds)

	usage, err := s.store.DiskUsageBySection()
	if err != nil {
		return agg, fmt.Errorf("query: get aggregates: disk usage: %w", err)
	}
	agg.DiskBytesBySection = usage

	if s.log != nil {
		total, err := s.log.TotalEvents()
		if err != nil {
			return agg, fmt.Errorf("query: get aggregates: total events: %w", err)
		}
		agg.TotalEvents = total

		last1h, err := s.log.EventsSinceCount(now.Add(-time.Hour))
		if err != nil {
			return agg, fmt.Errorf("query: get aggregates: events last 1h: %w", err)
		}
		agg.EventsLast1h = last1h

		last24h, err := s.log.EventsSinceCount(now.Add(-24 * time.Hour))
		if err != nil {
			return agg, fmt.Errorf("query: get aggregates: events last 24h: %w", err)
		}
		agg.EventsLast24h = last24h

		avg, err := s.log.AverageProcessingDurationMs()
		if err != nil {
			return agg, fmt.Errorf("query: get aggregates: avg processing duration: %w", err)
		}
		agg.AvgProcessingDurationMs = avg
	}

	if s.queue != nil {
		c := s.queue.Counters()
		agg.QueueDepth = c.Waiting + c.Delayed + c.Active
	}

	return agg, nil
}

// GetRecentEvents returns up to limit most-recently-processed events,
// optionally filtered to one kind (§6).
func (s *Service) GetRecentEvents(limit int, kind types.EventKind) ([]eventlog.EventRecord, error) {
	if s.log == nil {
		return nil, nil
	}
	rows, err := s.log.RecentEvents(limit, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query: get recent events: %w", err)
	}
	return rows, nil
}

// HourlyBucket is one hour-wide slice of the processing timeline (§6
// GetHourlyTimeline).
type HourlyBucket struct {
	HourStart time.Time
	Count     int
}

// GetHourlyTimeline buckets events processed within the last hours hours
// into hour-wide buckets, optionally filtered to one kind (§6). Bucketing
// happens here rather than in SQL so the same query works across sqlite
// and postgres without driver-specific date-truncation syntax.
func (s *Service) GetHourlyTimeline(now time.Time, hours int, kind types.EventKind) ([]HourlyBucket, error) {
	if s.log == nil {
		return nil, nil
	}
	if hours <= 0 {
		hours = 24
	}

	// The current, still-open hour counts as one bucket, so the window
	// spans hours-1 full hours before it plus the partial current one.
	start := truncateToHour(now).Add(-time.Duration(hours-1) * time.Hour)
	rows, err := s.log.EventsSince(start, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query: get hourly timeline: %w", err)
	}

	buckets := make(map[time.Time]int, hours)
	for h := 0; h < hours; h++ {
		buckets[start.Add(time.Duration(h)*time.Hour)] = 0
	}

	for _, row := range rows {
		processedAt, err := time.Parse(time.RFC3339, row.ProcessedAt)
		if err != nil {
			continue
		}
		bucket := truncateToHour(processedAt)
		if _, ok := buckets[bucket]; ok {
			buckets[bucket]++
		}
	}

	out := make([]HourlyBucket, 0, len(buckets))
	for hourStart, count := range buckets {
		out = append(out, HourlyBucket{HourStart: hourStart, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourStart.Before(out[j].HourStart) })
	return out, nil
}

func truncateToHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
