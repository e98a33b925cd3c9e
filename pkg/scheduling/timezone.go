package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/tourwise/pulse/pkg/logging"
)

// ErrInvalidPhoneNumber rejects input that cannot be a phone number at all.
// Distinct from an unknown country code, which resolves to UTC instead.
var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// countryZones maps E.164 country calling codes to a representative IANA
// zone. The table is deliberately small; numbers outside it fall back to UTC.
// Whether production needs a full E.164 database is an open product question.
var countryZones = map[string]string{
	"1":  "America/New_York",
	"33": "Europe/Paris",
	"34": "Europe/Madrid",
	"39": "Europe/Rome",
	"44": "Europe/London",
	"49": "Europe/Berlin",
	"52": "America/Mexico_City",
	"61": "Australia/Sydney",
	"81": "Asia/Tokyo",
}

// TimezoneResolver maps customer phone numbers to IANA timezones.
type TimezoneResolver struct {
	zones  map[string]string
	logger *logging.StructuredLogger
}

// NewTimezoneResolver creates a resolver with the built-in country table.
func NewTimezoneResolver(logger *logging.StructuredLogger) *TimezoneResolver {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &TimezoneResolver{
		zones:  countryZones,
		logger: logger.WithComponent("timezone_resolver"),
	}
}

// Resolve returns the customer's timezone. A number with an unmapped country
// code resolves to UTC with a logged warning; only malformed input fails.
func (r *TimezoneResolver) Resolve(phone string) (*time.Location, error) {
	digits, err := normalizePhone(phone)
	if err != nil {
		return nil, err
	}

	// Country calling codes are 1-3 digits; try the longest match first.
	for l := 3; l >= 1; l-- {
		if l > len(digits) {
			continue
		}
		if zone, ok := r.zones[digits[:l]]; ok {
			loc, loadErr := time.LoadLocation(zone)
			if loadErr != nil {
				r.logger.Warn("timezone database missing zone, defaulting to UTC",
					"zone", zone, "error", loadErr.Error())
				return time.UTC, nil
			}
			return loc, nil
		}
	}

	r.logger.Warn("no timezone mapping for phone country code, defaulting to UTC",
		"prefix", digits[:min(3, len(digits))])
	return time.UTC, nil
}

// normalizePhone strips formatting and validates E.164 shape.
func normalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))

	if !strings.HasPrefix(cleaned, "+") {
		return "", fmt.Errorf("%w: missing leading plus in %q", ErrInvalidPhoneNumber, phone)
	}
	digits := cleaned[1:]
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q has %d digits", ErrInvalidPhoneNumber, phone, len(digits))
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return "", fmt.Errorf("%w: non-digit in %q", ErrInvalidPhoneNumber, phone)
		}
	}
	return digits, nil
}
