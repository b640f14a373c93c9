package timers

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
}

var _ Clock = clockwork.NewRealClock()

// Section is one of the three fixed board categories.
type Section int

const (
	SectionOne   Section = 1
	SectionTwo   Section = 2
	SectionThree Section = 3
)

// Valid reports whether s is one of the known sections.
func (s Section) Valid() bool {
	return s >= SectionOne && s <= SectionThree
}

// Duration returns the countdown a timer resets to when it enters s, in seconds.
func (s Section) Duration() int {
	switch s {
	case SectionOne:
		return 30 * 60
	case SectionTwo:
		return 15 * 60
	case SectionThree:
		return 10 * 60
	default:
		return 0
	}
}

// Timer is a named countdown visible on the board
type Timer struct {
	ID            string  `json:"id"`
	DisplayNumber string  `json:"displayNumber"`
	Section       Section `json:"section"`
}

// TimerState is the reference point remaining time is derived from.
type TimerState struct {
	TimeLeftSeconds int
	LastUpdate      time.Time
}

// remainingAt reconciles the stored value against now. Never negative.
func (s TimerState) remainingAt(now time.Time) int {
	elapsed := int(now.Sub(s.LastUpdate) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	if s.TimeLeftSeconds <= elapsed {
		return 0
	}
	return s.TimeLeftSeconds - elapsed
}

// DuplicatePolicy decides what Add does with an id that already exists.
type DuplicatePolicy string

const (
	DuplicateReject    DuplicatePolicy = "reject"
	DuplicateOverwrite DuplicatePolicy = "overwrite"
	DuplicateIgnore    DuplicatePolicy = "ignore"
)

// ParseDuplicatePolicy maps a config value onto a DuplicatePolicy.
func ParseDuplicatePolicy(v string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(v); p {
	case DuplicateReject, DuplicateOverwrite, DuplicateIgnore:
		return p, nil
	case "":
		return DuplicateReject, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", v)
	}
}
