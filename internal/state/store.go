package state

import (
	"sync"
	"time"
)

// Patch describes a partial update to the store. Nil fields are left
// untouched; non-nil group fields replace the whole group. A patch never
// merges individual values inside a group.
type Patch struct {
	Connected  *bool
	Connecting *bool
	StartedAt  *time.Time
	Fault      *string
	Position   *Position
	Attitude   *Attitude
	Battery    *Battery
}

// Store is the single source of truth for the latest telemetry.
//
// All access serializes through one mutex. Critical sections only copy a
// handful of fields and never perform I/O, so contention stays negligible
// even with many concurrent readers.
//
// Group structs are stored and replaced by value, and the float pointers
// inside a group are never written through after a patch. A value copy
// handed out by [Store.Get] is therefore a stable snapshot: later patches
// swap in fresh structs with fresh pointers.
type Store struct {
	mu          sync.Mutex
	connected   bool
	connecting  bool
	startedAt   *time.Time
	lastUpdated *time.Time
	fault       *string
	position    Position
	attitude    Attitude
	battery     Battery

	now func() time.Time
}

// NewStore creates a store with all-null defaults: no telemetry values,
// disconnected, no timestamps.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Apply merges the non-nil fields of p into the state and stamps
// last_updated with the current wall-clock time. The whole patch plus the
// timestamp update is one atomic unit: no reader observes part of it.
func (s *Store) Apply(p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Connected != nil {
		s.connected = *p.Connected
	}
	if p.Connecting != nil {
		s.connecting = *p.Connecting
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		s.startedAt = &t
	}
	if p.Fault != nil {
		f := *p.Fault
		s.fault = &f
	}
	if p.Position != nil {
		s.position = *p.Position
	}
	if p.Attitude != nil {
		s.attitude = *p.Attitude
	}
	if p.Battery != nil {
		s.battery = *p.Battery
	}

	// last_updated never goes backwards, even across wall-clock adjustments
	ts := s.now().UTC()
	if s.lastUpdated == nil || ts.After(*s.lastUpdated) {
		s.lastUpdated = &ts
	}
}

// Get returns a copy of the requested top-level keys, or the entire state if
// no keys are given. Unknown keys are ignored. The returned map is owned by
// the caller and never mutated by the store.
func (s *Store) Get(keys ...Key) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(keys) == 0 {
		keys = []Key{
			KeyConnected, KeyConnecting, KeyStartedAt,
			KeyPosition, KeyAttitude, KeyBattery,
			KeyLastUpdated, KeyFault,
		}
	}

	snap := make(map[string]any, len(keys))
	for _, k := range keys {
		switch k {
		case KeyConnected:
			snap[string(k)] = s.connected
		case KeyConnecting:
			snap[string(k)] = s.connecting
		case KeyStartedAt:
			snap[string(k)] = copyTime(s.startedAt)
		case KeyLastUpdated:
			snap[string(k)] = copyTime(s.lastUpdated)
		case KeyFault:
			snap[string(k)] = copyString(s.fault)
		case KeyPosition:
			snap[string(k)] = s.position
		case KeyAttitude:
			snap[string(k)] = s.attitude
		case KeyBattery:
			snap[string(k)] = s.battery
		}
	}
	return snap
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
