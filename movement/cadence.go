package movement

import "time"

// Activity selects how often the client polls for snapshots.
type Activity int

const (
	Idle Activity = iota
	Moving
	Resting
	Hidden
)

func (a Activity) String() string {
	switch a {
	case Moving:
		return "moving"
	case Resting:
		return "resting"
	case Hidden:
		return "hidden"
	default:
		return "idle"
	}
}

// ActivityOf resolves the polling state. Hidden wins over everything,
// moving over resting.
func ActivityOf(hidden, moving, resting bool) Activity {
	switch {
	case hidden:
		return Hidden
	case moving:
		return Moving
	case resting:
		return Resting
	default:
		return Idle
	}
}

// Cadence maps an activity to a polling interval.
type Cadence map[Activity]time.Duration

// DefaultCadence returns the stock polling table.
func DefaultCadence() Cadence {
	return Cadence{
		Moving:  650 * time.Millisecond,
		Idle:    1200 * time.Millisecond,
		Resting: 1800 * time.Millisecond,
		Hidden:  3500 * time.Millisecond,
	}
}

// Interval returns the polling interval, falling back to the idle entry.
func (c Cadence) Interval(a Activity) time.Duration {
	if d, ok := c[a]; ok && d > 0 {
		return d
	}
	if d, ok := c[Idle]; ok && d > 0 {
		return d
	}
	return DefaultCadence()[a]
}

// Clone copies the table.
func (c Cadence) Clone() Cadence {
	out := make(Cadence, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
