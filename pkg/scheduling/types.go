// Package scheduling ranks callback appointment slots for internationally
// distributed customers, honoring business hours, agent availability, and the
// customer's local time-of-day preference.
package scheduling

import (
	"context"
	"time"
)

// Priority of an appointment request. Urgent and high priority requests are
// penalized harder for distance into the future, pulling their slots sooner.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Window is a customer-local time-of-day preference.
type Window string

const (
	WindowMorning   Window = "morning"   // 09:00-12:00
	WindowAfternoon Window = "afternoon" // 12:00-17:00
	WindowEvening   Window = "evening"   // 17:00-20:00
	WindowFlexible  Window = "flexible"  // 09:00-18:00
)

// windowRange returns the half-open customer-local hour range of a window.
// Unknown values fall back to flexible.
func windowRange(w Window) (int, int) {
	switch w {
	case WindowMorning:
		return 9, 12
	case WindowAfternoon:
		return 12, 17
	case WindowEvening:
		return 17, 20
	default:
		return 9, 18
	}
}

// AppointmentRequest is the transient input to slot optimization. Nothing in
// this package persists it.
type AppointmentRequest struct {
	CustomerPhone    string     `json:"customer_phone"`
	AppointmentType  string     `json:"appointment_type"`
	PreferredDate    *time.Time `json:"preferred_date,omitempty"`
	CustomerTimezone string     `json:"customer_timezone,omitempty"`
	Priority         Priority   `json:"priority"`
	Window           Window     `json:"preferred_time_slot,omitempty"`
}

// CallSummary is the call-analysis event that triggers scheduling.
type CallSummary struct {
	CustomerPhone   string   `json:"customer_phone"`
	AppointmentType string   `json:"appointment_type"`
	Priority        Priority `json:"priority"`
	Window          Window   `json:"preferred_time_slot,omitempty"`
}

// TimeSlot is a scored candidate appointment. Start and End are UTC. Slots
// live only for the duration of one scheduling call.
type TimeSlot struct {
	Start   time.Time `json:"start_time"`
	End     time.Time `json:"end_time"`
	AgentID string    `json:"agent_id"`
	Score   float64   `json:"score"`
}

// Agent is a bookable member of staff.
type Agent struct {
	ID              string   `json:"id"`
	Specializations []string `json:"specializations,omitempty"`
	DailyCapacity   int      `json:"daily_capacity"`
}

// AgentAvailability answers which agents can take an appointment of the given
// type at a UTC instant. Implemented by the static roster here and by
// external staffing systems in production wiring.
type AgentAvailability interface {
	AvailableAgents(ctx context.Context, at time.Time, appointmentType string) ([]Agent, error)
}

// AppointmentOutcome is one historical appointment for a customer.
type AppointmentOutcome struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	Attended    bool      `json:"attended"`
}

// AppointmentHistory supplies past outcomes for preference derivation.
type AppointmentHistory interface {
	Outcomes(ctx context.Context, customerPhone string) ([]AppointmentOutcome, error)
}

// TimePreference is derived fresh from history on every scheduling call and
// is never cached across calls.
type TimePreference struct {
	PreferredWindow   Window               `json:"preferred_time_of_day"`
	PreferredWeekdays map[time.Weekday]int `json:"preferred_days_of_week"`
	ShowUpRate        float64              `json:"show_up_rate"`
}
