package timers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Registry is the authoritative store of board timers and their countdowns.
type Registry interface {
	Snapshot() []Timer
	Get(id string) (Timer, bool)
	Add(timer Timer) (bool, error)
	Remove(id string) bool
	Move(id string, section Section) (int, error)
	RecordTick(id string, timeLeftSeconds int) bool
	ReadRemaining(id string) (int, bool)
	Len() int
}

type timerEntry struct {
	timer Timer
	seq   uint64
}

// MemoryRegistry keeps timers in memory. Countdown state is stored as a
// (value, timestamp) pair and reconciled on read, so nothing ticks in the
// background.
type MemoryRegistry struct {
	mu     sync.RWMutex
	timers map[string]timerEntry
	states map[string]TimerState
	seq    uint64

	clock  Clock
	policy DuplicatePolicy
}

// Option configures a MemoryRegistry
type Option func(*MemoryRegistry)

// WithClock overrides the clock used to timestamp mutations.
func WithClock(clock Clock) Option {
	return func(r *MemoryRegistry) { r.clock = clock }
}

// WithDuplicatePolicy sets how Add treats an existing id.
func WithDuplicatePolicy(policy DuplicatePolicy) Option {
	return func(r *MemoryRegistry) { r.policy = policy }
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry(opts ...Option) *MemoryRegistry {
	r := &MemoryRegistry{
		timers: make(map[string]timerEntry),
		states: make(map[string]TimerState),
		clock:  clockwork.NewRealClock(),
		policy: DuplicateReject,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns every timer in creation order.
func (r *MemoryRegistry) Snapshot() []Timer {
	r.mu.RLock()
	entries := make([]timerEntry, 0, len(r.timers))
	for _, e := range r.timers {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Timer, len(entries))
	for i, e := range entries {
		out[i] = e.timer
	}
	return out
}

// Add stores a new timer with a full countdown for its section. The bool
// reports whether the board changed, which is false when an existing id is
// ignored under DuplicateIgnore.
func (r *MemoryRegistry) Add(timer Timer) (bool, error) {
	if !timer.Section.Valid() {
		return false, fmt.Errorf("add timer %s: %w: %d", timer.ID, ErrInvalidSection, timer.Section)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.seq + 1
	if existing, exists := r.timers[timer.ID]; exists {
		switch r.policy {
		case DuplicateIgnore:
			return false, nil
		case DuplicateOverwrite:
			// keeps its place on the board
			seq = existing.seq
			log.Debug().Str("timer_id", timer.ID).Msg("overwriting existing timer")
		default:
			return false, fmt.Errorf("add timer %s: %w", timer.ID, ErrDuplicateID)
		}
	} else {
		r.seq = seq
	}

	r.timers[timer.ID] = timerEntry{timer: timer, seq: seq}
	r.states[timer.ID] = TimerState{
		TimeLeftSeconds: timer.Section.Duration(),
		LastUpdate:      r.clock.Now(),
	}
	return true, nil
}

// Remove deletes a timer and its countdown. Removing an unknown id is a no-op.
func (r *MemoryRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.timers[id]; !exists {
		return false
	}
	delete(r.timers, id)
	delete(r.states, id)
	return true
}

// Move changes a timer's section and restarts its countdown at the new
// section's duration, which is returned.
func (r *MemoryRegistry) Move(id string, section Section) (int, error) {
	if !section.Valid() {
		return 0, fmt.Errorf("move timer %s: %w: %d", id, ErrInvalidSection, section)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.timers[id]
	if !exists {
		return 0, fmt.Errorf("move timer %s: %w", id, ErrNotFound)
	}

	entry.timer.Section = section
	r.timers[id] = entry

	reset := section.Duration()
	r.states[id] = TimerState{
		TimeLeftSeconds: reset,
		LastUpdate:      r.clock.Now(),
	}
	return reset, nil
}

// Get returns a single timer
func (r *MemoryRegistry) Get(id string) (Timer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.timers[id]
	return entry.timer, exists
}

// RecordTick overwrites the countdown with a client-reported value. The last
// report to arrive wins; no plausibility check is made.
func (r *MemoryRegistry) RecordTick(id string, timeLeftSeconds int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.timers[id]; !exists {
		return false
	}
	r.states[id] = TimerState{
		TimeLeftSeconds: timeLeftSeconds,
		LastUpdate:      r.clock.Now(),
	}
	return true
}

// ReadRemaining derives the current remaining seconds from the stored
// reference point without mutating it.
func (r *MemoryRegistry) ReadRemaining(id string) (int, bool) {
	r.mu.RLock()
	state, exists := r.states[id]
	r.mu.RUnlock()

	if !exists {
		return 0, false
	}
	return state.remainingAt(r.clock.Now()), true
}

// Len returns the number of timers on the board
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.timers)
}
