// Package broadcast implements the notification cycle: subscriber
// segmentation, cached upstream retrieval, eligibility filtering, the
// change-detection threshold engine, chunked message building, and dispatch
// with per-recipient failure isolation.
package broadcast

import (
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/store"
)

// Segments partitions subscriber ids by area type, then exact area code,
// then eligibility age.
type Segments map[cowin.AreaType]map[string]map[int][]int64

// Segment groups active subscribers into (area-type, area-code, eligibility)
// buckets. Pure function of the snapshot taken at cycle start; subscribers
// flipping state mid-cycle are picked up next cycle.
func Segment(subs []store.Subscriber) Segments {
	segs := make(Segments)
	for _, sub := range subs {
		if !sub.Subscribed {
			continue
		}
		byArea, ok := segs[sub.AreaType]
		if !ok {
			byArea = make(map[string]map[int][]int64)
			segs[sub.AreaType] = byArea
		}
		byAge, ok := byArea[sub.AreaCode]
		if !ok {
			byAge = make(map[int][]int64)
			byArea[sub.AreaCode] = byAge
		}
		byAge[sub.MinAge] = append(byAge[sub.MinAge], sub.UserID)
	}
	return segs
}
