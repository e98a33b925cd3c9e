package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tourwise/pulse/pkg/logging"
)

const analyticsWindowHours = 24

// SQLCallAnalyticsSource aggregates the calls table into a 24h rollup.
type SQLCallAnalyticsSource struct {
	db     *sql.DB
	logger *logging.StructuredLogger
}

// NewSQLCallAnalyticsSource creates a source backed by the given database.
func NewSQLCallAnalyticsSource(db *sql.DB, logger *logging.StructuredLogger) *SQLCallAnalyticsSource {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &SQLCallAnalyticsSource{db: db, logger: logger.WithComponent("call_analytics")}
}

func (s *SQLCallAnalyticsSource) CallSnapshot(ctx context.Context) (*CallAnalyticsSnapshot, error) {
	since := time.Now().Add(-analyticsWindowHours * time.Hour)
	snap := &CallAnalyticsSnapshot{
		GeneratedAt:     time.Now().UTC(),
		WindowHours:     analyticsWindowHours,
		CallsByCountry:  make(map[string]int),
		SentimentCounts: make(map[string]int),
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COALESCE(AVG(duration_seconds), 0),
		       COALESCE(AVG(CASE WHEN booked THEN 100.0 ELSE 0.0 END), 0)
		FROM calls
		WHERE started_at >= $1`, since)
	if err := row.Scan(&snap.TotalCalls, &snap.CompletedCalls, &snap.FailedCalls,
		&snap.AvgDurationSeconds, &snap.BookingConversionPct); err != nil {
		return nil, fmt.Errorf("call totals query: %w", err)
	}

	if err := s.groupCount(ctx, snap.CallsByCountry,
		`SELECT country_code, COUNT(*) FROM calls WHERE started_at >= $1 GROUP BY country_code`, since); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, snap.SentimentCounts,
		`SELECT sentiment, COUNT(*) FROM calls WHERE started_at >= $1 GROUP BY sentiment`, since); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLCallAnalyticsSource) groupCount(ctx context.Context, into map[string]int, query string, since time.Time) error {
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return fmt.Errorf("call breakdown query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key sql.NullString
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("call breakdown scan: %w", err)
		}
		if key.Valid {
			into[key.String] = n
		}
	}
	return rows.Err()
}

// SQLSchedulingAnalyticsSource aggregates the appointments table into a 24h
// rollup.
type SQLSchedulingAnalyticsSource struct {
	db     *sql.DB
	logger *logging.StructuredLogger
}

// NewSQLSchedulingAnalyticsSource creates a source backed by the given
// database.
func NewSQLSchedulingAnalyticsSource(db *sql.DB, logger *logging.StructuredLogger) *SQLSchedulingAnalyticsSource {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &SQLSchedulingAnalyticsSource{db: db, logger: logger.WithComponent("scheduling_analytics")}
}

func (s *SQLSchedulingAnalyticsSource) SchedulingSnapshot(ctx context.Context) (*SchedulingAnalyticsSnapshot, error) {
	since := time.Now().Add(-analyticsWindowHours * time.Hour)
	snap := &SchedulingAnalyticsSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowHours: analyticsWindowHours,
		ByTimezone:  make(map[string]int),
		ByWindow:    make(map[string]int),
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE attended),
		       COUNT(*) FILTER (WHERE NOT attended AND scheduled_at < NOW()),
		       COALESCE(AVG(EXTRACT(EPOCH FROM scheduled_at - created_at) / 3600.0), 0)
		FROM appointments
		WHERE created_at >= $1`, since)
	if err := row.Scan(&snap.AppointmentsScheduled, &snap.AppointmentsCompleted,
		&snap.NoShows, &snap.AvgLeadTimeHours); err != nil {
		return nil, fmt.Errorf("appointment totals query: %w", err)
	}

	settled := snap.AppointmentsCompleted + snap.NoShows
	if settled > 0 {
		snap.ShowUpRatePct = float64(snap.AppointmentsCompleted) / float64(settled) * 100
	}

	if err := s.groupCount(ctx, snap.ByTimezone,
		`SELECT customer_timezone, COUNT(*) FROM appointments WHERE created_at >= $1 GROUP BY customer_timezone`, since); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, snap.ByWindow,
		`SELECT time_window, COUNT(*) FROM appointments WHERE created_at >= $1 GROUP BY time_window`, since); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLSchedulingAnalyticsSource) groupCount(ctx context.Context, into map[string]int, query string, since time.Time) error {
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return fmt.Errorf("appointment breakdown query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key sql.NullString
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("appointment breakdown scan: %w", err)
		}
		if key.Valid {
			into[key.String] = n
		}
	}
	return rows.Err()
}
