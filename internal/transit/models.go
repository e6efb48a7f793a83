package transit

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// Transit errors.
var (
	ErrProviderUnavailable = errors.New("transit provider unavailable")
)

// stationSuffix is the "station" suffix commonly appended to Korean station names.
const stationSuffix = "역"

// Arrival is a single live train arrival at a station.
type Arrival struct {
	// LineID is the provider's line identifier (e.g. "1002" for Seoul line 2).
	LineID string

	// Direction is the travel direction as reported by the provider (e.g. "상행", "외선").
	Direction string

	// ArrivalSeconds is the number of seconds until the train arrives.
	ArrivalSeconds int

	// Destination is the terminal station of the train.
	Destination string
}

// ArrivalProvider supplies live arrivals for a station.
type ArrivalProvider interface {
	// GetArrivals returns the live arrivals for a station name.
	// Unknown stations return an empty slice, not an error.
	GetArrivals(ctx context.Context, station string) ([]Arrival, error)

	// Name returns the provider name for logging.
	Name() string
}

// StripStationSuffix trims whitespace and a trailing "역" from a station name.
func StripStationSuffix(name string) string {
	name = strings.TrimSpace(name)
	if trimmed := strings.TrimSuffix(name, stationSuffix); trimmed != "" {
		return trimmed
	}
	return name
}

// MatchesLine reports whether a provider line id belongs to the user-facing line label.
//
// The first digit group n of the label is matched against ids of the form "100n", "10n"
// or any id ending in n. Labels without digits must equal the id exactly. An empty label
// matches every id.
func MatchesLine(label, lineID string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return true
	}

	n := firstDigitGroup(label)
	if n == "" {
		return label == lineID
	}

	switch lineID {
	case "100" + n, "10" + n:
		return true
	}
	return strings.HasSuffix(lineID, n)
}

// FilterByLine returns the arrivals whose line matches label.
func FilterByLine(arrivals []Arrival, label string) []Arrival {
	out := make([]Arrival, 0, len(arrivals))
	for _, a := range arrivals {
		if MatchesLine(label, a.LineID) {
			out = append(out, a)
		}
	}
	return out
}

// Soonest returns the arrival with the fewest seconds remaining.
func Soonest(arrivals []Arrival) (Arrival, bool) {
	if len(arrivals) == 0 {
		return Arrival{}, false
	}
	best := arrivals[0]
	for _, a := range arrivals[1:] {
		if a.ArrivalSeconds < best.ArrivalSeconds {
			best = a
		}
	}
	return best, true
}

// WaitMinutes converts seconds to whole minutes, rounding up.
func WaitMinutes(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}

func firstDigitGroup(s string) string {
	start := -1
	for i, r := range s {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}
