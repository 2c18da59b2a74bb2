package broadcast

import (
	"time"

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/store"
)

// GrowthGate is a dual condition: the new value must exceed the old by both
// a relative fraction AND an absolute amount. The pairing keeps small-baseline
// segments from notifying on noise and large segments from going silent.
type GrowthGate struct {
	Relative float64
	Absolute int
}

// pass reports whether growing from old to next clears the gate.
// Decreases never pass.
func (g GrowthGate) pass(old, next int) bool {
	delta := next - old
	if delta <= 0 {
		return false
	}
	return float64(delta)/float64(old) >= g.Relative && delta >= g.Absolute
}

// Engine decides whether a segment's fresh snapshot differs enough from its
// last broadcast to justify notifying again.
type Engine struct {
	// ResendAfter is the forced-resend window: a record older than this
	// notifies regardless of change magnitude.
	ResendAfter time.Duration

	CenterGate GrowthGate
	SlotGate   GrowthGate
}

// ShouldNotify implements the per-segment state machine.
//
//   - Unseen (no record): notify (bootstrap).
//   - Seen-stale (record older than ResendAfter): notify.
//   - Seen-fresh: notify only if the center gate or the slot gate passes.
//
// A stored baseline of zero routes through the bootstrap branch rather than
// computing a ratio; records are only ever written for non-empty snapshots,
// so this is a guard, not a normal path. Callers must skip zero-slot
// snapshots before reaching the engine.
func (e Engine) ShouldNotify(rec *store.AreaUpdate, newSlots, newCenters int, now time.Time) bool {
	if rec == nil {
		return true
	}
	if now.Sub(rec.SentAt) >= e.ResendAfter {
		return true
	}
	oldSlots, oldCenters, err := store.ParseSummary(rec.Summary)
	if err != nil {
		// Unreadable baseline: treat as unseen.
		return true
	}
	if oldSlots == 0 || oldCenters == 0 {
		return true
	}
	return e.CenterGate.pass(oldCenters, newCenters) || e.SlotGate.pass(oldSlots, newSlots)
}
