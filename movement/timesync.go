package movement

import "time"

// MaxBlendStep bounds how far one snapshot may move the server clock.
const MaxBlendStep = 0.12

// TimeSync maps the local monotonic clock onto server time (seconds).
// New server timestamps are blended in, never snapped, so animations
// computed from Now do not jump.
type TimeSync struct {
	serverAt float64
	localAt  time.Duration
	last     float64
	inited   bool
}

// Inited reports whether a server timestamp has been seen.
func (t *TimeSync) Inited() bool { return t.inited }

// Init anchors server time srv to the local elapsed time local.
func (t *TimeSync) Init(srv float64, local time.Duration) {
	t.serverAt = srv
	t.localAt = local
	t.inited = true
}

// Now returns the server-relative time for the local elapsed time.
// The result never decreases between calls.
func (t *TimeSync) Now(local time.Duration) float64 {
	if !t.inited {
		return 0
	}
	now := t.serverAt + (local - t.localAt).Seconds()
	if now < t.last {
		return t.last
	}
	t.last = now
	return now
}

// BlendTo nudges the offset toward srv by at most MaxBlendStep seconds.
func (t *TimeSync) BlendTo(srv float64, local time.Duration) {
	if !t.inited {
		t.Init(srv, local)
		return
	}
	d := srv - (t.serverAt + (local - t.localAt).Seconds())
	if d > MaxBlendStep {
		d = MaxBlendStep
	} else if d < -MaxBlendStep {
		d = -MaxBlendStep
	}
	t.serverAt += d
}
