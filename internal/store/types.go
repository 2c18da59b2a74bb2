// Package store persists subscribers, per-segment broadcast state, and
// delivery accounting in a single SQLite database.
package store

import (
	"time"

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
)

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Subscriber is a chat user who completed onboarding. Never hard-deleted;
// stop/resume toggles Subscribed.
type Subscriber struct {
	UserID     int64
	Username   string
	FullName   string
	Subscribed bool
	AreaType   cowin.AreaType
	AreaCode   string
	MinAge     int
}

// AreaKey identifies a segment: one (area-type, area-code, eligibility) triple.
type AreaKey struct {
	AreaType cowin.AreaType
	AreaCode string
	MinAge   int
}

// AreaUpdate is the last-broadcast state for a segment. Created lazily on the
// first notified cycle, overwritten only after dispatch, never deleted.
type AreaUpdate struct {
	Key     AreaKey
	Summary string
	SentAt  time.Time
}

// BroadcastStats is cumulative delivery accounting for one subscriber.
type BroadcastStats struct {
	UserID       int64
	MessagesSent int
	LastSentAt   time.Time
}
