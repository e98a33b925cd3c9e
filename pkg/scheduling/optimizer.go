package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/tourwise/pulse/pkg/logging"
)

const (
	maxSlots     = 10
	horizonDays  = 7
	slotDuration = time.Hour
)

// SlotOptimizer enumerates, filters, and scores candidate appointment slots.
// Scheduling is best-effort: collaborator failures degrade to "no slots
// found" rather than surfacing as errors, except for malformed caller input.
type SlotOptimizer struct {
	tz      *TimezoneResolver
	agents  AgentAvailability
	history AppointmentHistory // may be nil

	openHour  int // business reference hours, UTC
	closeHour int

	now    func() time.Time
	logger *logging.StructuredLogger
}

// NewSlotOptimizer creates a slot optimizer. history may be nil when no
// appointment history source is wired.
func NewSlotOptimizer(tz *TimezoneResolver, agents AgentAvailability, history AppointmentHistory,
	openHour, closeHour int, logger *logging.StructuredLogger) *SlotOptimizer {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if openHour <= 0 && closeHour <= 0 {
		openHour, closeHour = 9, 18
	}
	return &SlotOptimizer{
		tz:        tz,
		agents:    agents,
		history:   history,
		openHour:  openHour,
		closeHour: closeHour,
		now:       time.Now,
		logger:    logger.WithComponent("slot_optimizer"),
	}
}

// FindSlots returns up to ten candidate slots, best first. Only malformed
// input produces an error; every downstream failure yields an empty result.
func (s *SlotOptimizer) FindSlots(ctx context.Context, req AppointmentRequest) ([]TimeSlot, error) {
	loc, err := s.customerLocation(req)
	if err != nil {
		return nil, err
	}

	window := req.Window
	if window == "" {
		window = s.preferredWindow(ctx, req.CustomerPhone)
	}
	lo, hi := windowRange(window)

	now := s.now().UTC()
	start := now.Truncate(time.Hour).Add(time.Hour)
	end := now.Add(horizonDays * 24 * time.Hour)

	var candidates []TimeSlot
	for t := start; t.Before(end); t = t.Add(slotDuration) {
		if t.Hour() < s.openHour || t.Hour() >= s.closeHour {
			continue
		}
		if req.PreferredDate != nil && !sameDay(t, req.PreferredDate.UTC()) {
			continue
		}

		local := t.In(loc)
		if local.Hour() < lo || local.Hour() >= hi {
			continue
		}

		available, availErr := s.agents.AvailableAgents(ctx, t, req.AppointmentType)
		if availErr != nil {
			s.logger.Warn("agent availability lookup failed, returning no slots",
				"error", availErr.Error())
			return nil, nil
		}
		if len(available) == 0 {
			continue
		}

		candidates = append(candidates, TimeSlot{
			Start:   t,
			End:     t.Add(slotDuration),
			AgentID: available[0].ID,
			Score:   s.scoreSlot(now, t, local, req.Priority),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Start.Before(candidates[j].Start)
	})
	if len(candidates) > maxSlots {
		candidates = candidates[:maxSlots]
	}
	return candidates, nil
}

// ScheduleFromCall picks the best slot for a call-analysis event. The second
// return is false when no slot could be found; callers treat that as "no
// availability", not a fault.
func (s *SlotOptimizer) ScheduleFromCall(ctx context.Context, call CallSummary) (*TimeSlot, bool) {
	slots, err := s.FindSlots(ctx, AppointmentRequest{
		CustomerPhone:   call.CustomerPhone,
		AppointmentType: call.AppointmentType,
		Priority:        call.Priority,
		Window:          call.Window,
	})
	if err != nil {
		s.logger.Warn("rejecting scheduling request from call",
			"phone", call.CustomerPhone, "error", err.Error())
		return nil, false
	}
	if len(slots) == 0 {
		return nil, false
	}

	best := slots[0]
	if roster, ok := s.agents.(*StaticRoster); ok {
		roster.Book(best)
	}
	return &best, true
}

func (s *SlotOptimizer) customerLocation(req AppointmentRequest) (*time.Location, error) {
	if req.CustomerTimezone != "" {
		if loc, err := time.LoadLocation(req.CustomerTimezone); err == nil {
			return loc, nil
		}
		s.logger.Warn("unknown customer timezone, falling back to phone resolution",
			"timezone", req.CustomerTimezone)
	}
	return s.tz.Resolve(req.CustomerPhone)
}

func (s *SlotOptimizer) preferredWindow(ctx context.Context, phone string) Window {
	if s.history == nil {
		return WindowFlexible
	}
	outcomes, err := s.history.Outcomes(ctx, phone)
	if err != nil {
		s.logger.Warn("appointment history unavailable, assuming flexible window",
			"error", err.Error())
		return WindowFlexible
	}
	return DerivePreference(outcomes).PreferredWindow
}

// scoreSlot implements the ranking formula. Urgent and high priority pay a
// penalty of 5 per day of delay, routine requests 2, so urgency pulls slots
// toward the present without starving later business hours entirely. The
// business-hours bonus uses the same configured hours as slot enumeration.
func (s *SlotOptimizer) scoreSlot(now, slot time.Time, local time.Time, p Priority) float64 {
	daysFromNow := int(slot.Sub(now).Hours() / 24)

	penalty := 2
	if p == PriorityUrgent || p == PriorityHigh {
		penalty = 5
	}

	score := 100.0 - float64(daysFromNow*penalty)

	if local.Hour() >= s.openHour && local.Hour() < s.closeHour {
		score += 20
	} else {
		score -= 30
	}

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
	default:
		score += 15
	}
	return score
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
