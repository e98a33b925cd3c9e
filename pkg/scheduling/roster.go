package scheduling

import (
	"context"
	"sync"
	"time"
)

// StaticRoster is a configuration-driven AgentAvailability implementation.
// Each agent carries a daily booking capacity; Book consumes capacity so
// repeated scheduling spreads load across agents and days.
type StaticRoster struct {
	mu       sync.Mutex
	agents   []Agent
	bookings map[string]map[string]int // day -> agent id -> count
}

// NewStaticRoster creates a roster from configured agents.
func NewStaticRoster(agents []Agent) *StaticRoster {
	return &StaticRoster{
		agents:   agents,
		bookings: make(map[string]map[string]int),
	}
}

// AvailableAgents returns agents matching the appointment type with capacity
// remaining on the slot's day. An agent with no declared specializations is a
// generalist and matches every appointment type.
func (r *StaticRoster) AvailableAgents(ctx context.Context, at time.Time, appointmentType string) ([]Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	day := at.UTC().Format("2006-01-02")

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Agent
	for _, a := range r.agents {
		if !matchesSpecialization(a, appointmentType) {
			continue
		}
		capacity := a.DailyCapacity
		if capacity <= 0 {
			capacity = 8
		}
		if r.bookings[day][a.ID] >= capacity {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Book consumes one unit of the agent's capacity on the slot's day.
func (r *StaticRoster) Book(slot TimeSlot) {
	day := slot.Start.UTC().Format("2006-01-02")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bookings[day] == nil {
		r.bookings[day] = make(map[string]int)
	}
	r.bookings[day][slot.AgentID]++
}

func matchesSpecialization(a Agent, appointmentType string) bool {
	if len(a.Specializations) == 0 || appointmentType == "" {
		return true
	}
	for _, s := range a.Specializations {
		if s == appointmentType {
			return true
		}
	}
	return false
}
