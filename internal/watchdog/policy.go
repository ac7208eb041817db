package watchdog

import (
	"fmt"
	"time"
)

// Policy bounds soft restarts: at most one attempt per cooldown window, the
// window growing by Backoff after each consecutive attempt up to
// MaxCooldown, and at most MaxAttempts attempts before giving up.
type Policy struct {
	MaxAttempts int
	Cooldown    time.Duration
	Backoff     float64
	MaxCooldown time.Duration

	attempts int
	last     time.Time
}

// Allow reports whether a restart may run at now. exhausted is true once
// the attempt budget is spent and the last attempt's cooldown has passed;
// only Reset re-arms the policy.
func (p *Policy) Allow(now time.Time) (ok bool, exhausted bool) {
	if p.attempts > 0 && now.Sub(p.last) < p.window() {
		return false, false
	}
	if p.attempts >= p.MaxAttempts {
		return false, true
	}
	p.attempts++
	p.last = now
	return true, false
}

// Reset clears the attempt history after a recovered frame.
func (p *Policy) Reset() {
	p.attempts = 0
	p.last = time.Time{}
}

func (p *Policy) Attempts() int { return p.attempts }

// window is the cooldown that applies after the current attempt count.
func (p *Policy) window() time.Duration {
	w := float64(p.Cooldown)
	for i := 1; i < p.attempts; i++ {
		w *= p.Backoff
	}
	if p.MaxCooldown > 0 && time.Duration(w) > p.MaxCooldown {
		return p.MaxCooldown
	}
	return time.Duration(w)
}

// DeviceStallError reports that ingress stayed stalled through every
// allowed restart.
type DeviceStallError struct {
	Attempts  int
	LastFrame time.Time
}

func (e *DeviceStallError) Error() string {
	if e.LastFrame.IsZero() {
		return fmt.Sprintf("audio device stalled: no frames after %d restart attempts", e.Attempts)
	}
	return fmt.Sprintf("audio device stalled: no frames since %s after %d restart attempts", e.LastFrame.Format(time.RFC3339), e.Attempts)
}
