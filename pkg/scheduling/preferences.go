package scheduling

import "time"

// DerivePreference computes a customer's time preference from historical
// appointment outcomes. It runs on every scheduling call against the full
// history returned by the collaborator; results are intentionally not cached
// between calls.
func DerivePreference(outcomes []AppointmentOutcome) TimePreference {
	pref := TimePreference{
		PreferredWindow:   WindowFlexible,
		PreferredWeekdays: make(map[time.Weekday]int),
		ShowUpRate:        1.0,
	}
	if len(outcomes) == 0 {
		return pref
	}

	windowCounts := map[Window]int{}
	attended := 0
	for _, o := range outcomes {
		windowCounts[windowOfHour(o.ScheduledAt.Hour())]++
		pref.PreferredWeekdays[o.ScheduledAt.Weekday()]++
		if o.Attended {
			attended++
		}
	}

	best := WindowFlexible
	bestCount := 0
	for _, w := range []Window{WindowMorning, WindowAfternoon, WindowEvening} {
		if windowCounts[w] > bestCount {
			best = w
			bestCount = windowCounts[w]
		}
	}
	pref.PreferredWindow = best
	pref.ShowUpRate = float64(attended) / float64(len(outcomes))
	return pref
}

func windowOfHour(hour int) Window {
	switch {
	case hour < 12:
		return WindowMorning
	case hour < 17:
		return WindowAfternoon
	default:
		return WindowEvening
	}
}
