package scheduling

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// historyLookback bounds how far back preference derivation reads.
const historyLookback = 90 * 24 * time.Hour

// SQLAppointmentHistory reads historical appointment outcomes from the
// booking database. It only reads; the booking transaction flow that writes
// these rows lives outside this service.
type SQLAppointmentHistory struct {
	db *sql.DB
}

// NewSQLAppointmentHistory wraps a database handle.
func NewSQLAppointmentHistory(db *sql.DB) *SQLAppointmentHistory {
	return &SQLAppointmentHistory{db: db}
}

// Outcomes returns the customer's appointments from the lookback window,
// oldest first.
func (h *SQLAppointmentHistory) Outcomes(ctx context.Context, customerPhone string) ([]AppointmentOutcome, error) {
	const q = `
		SELECT scheduled_at, attended
		FROM appointments
		WHERE customer_phone = $1 AND scheduled_at >= $2
		ORDER BY scheduled_at ASC`

	rows, err := h.db.QueryContext(ctx, q, customerPhone, time.Now().Add(-historyLookback))
	if err != nil {
		return nil, fmt.Errorf("query appointment history: %w", err)
	}
	defer rows.Close()

	var out []AppointmentOutcome
	for rows.Next() {
		var o AppointmentOutcome
		if err := rows.Scan(&o.ScheduledAt, &o.Attended); err != nil {
			return nil, fmt.Errorf("scan appointment row: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointment rows: %w", err)
	}
	return out, nil
}
