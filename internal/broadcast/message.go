package broadcast

import (
	"fmt"
	"sort"
	"strings"

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/store"
)

const (
	msgFewOfThem    = "Here are few of them"
	msgViewComplete = "To view *complete list* press /get_latest"
	msgViewUpdated  = "To view *complete & updated list* press /get_latest"
	msgStopResume   = "Click here to /stop_receiving_updates\nYou can later /resume_updates"

	chunkSeparator = "\n\n"
)

// Builder renders a segment's snapshot into platform-length-bounded messages.
type Builder struct {
	// TopCenters is the display cap: above it, only the top-N facilities by
	// total capacity are shown.
	TopCenters int

	// MaxLen is the hard per-message length limit (Telegram: 4096).
	MaxLen int

	// DistrictName resolves a district code to its display name for the
	// summary line; nil or a miss falls back to the raw code.
	DistrictName func(code string) (string, bool)
}

// Summary produces the leading human-readable line, with the singular/plural
// and area phrasing the bot has always used.
func (b Builder) Summary(slotCount, centerCount int, key store.AreaKey) string {
	var sb strings.Builder
	if slotCount == 1 {
		sb.WriteString("There is 1 slot ")
	} else if slotCount == 0 {
		sb.WriteString("There are no slots ")
	} else {
		fmt.Fprintf(&sb, "There are %d slots ", slotCount)
	}
	if slotCount > 0 {
		noun := "centres"
		if centerCount == 1 {
			noun = "centre"
		}
		fmt.Fprintf(&sb, "available across %d %s ", centerCount, noun)
	}
	sb.WriteString("in ")
	sb.WriteString(b.areaPhrase(key))
	fmt.Fprintf(&sb, " for %s age group", agePhrase(key.MinAge))
	return sb.String()
}

func (b Builder) areaPhrase(key store.AreaKey) string {
	if key.AreaType == cowin.AreaPincode {
		return "[pin] " + key.AreaCode
	}
	if b.DistrictName != nil {
		if name, ok := b.DistrictName(key.AreaCode); ok {
			return name
		}
	}
	return "[district] " + key.AreaCode
}

func agePhrase(minAge int) string {
	if minAge <= 0 {
		return "all"
	}
	return fmt.Sprintf("%d+", minAge)
}

// Build assembles the ordered item list (summary, facility blocks or a top-N
// slice with a note, then the fixed calls-to-action) and packs it into chunks
// not exceeding MaxLen.
func (b Builder) Build(summary string, facilities []cowin.Facility) []string {
	limit := b.TopCenters
	if limit <= 0 {
		limit = 5
	}

	showAll := len(facilities) <= limit

	items := make([]string, 0, len(facilities)+4)
	items = append(items, summary)

	shown := facilities
	if !showAll {
		items = append(items, fmt.Sprintf("%s (%d of %d)", msgFewOfThem, limit, len(facilities)))
		shown = topByCapacity(facilities, limit)
	}
	for _, f := range shown {
		items = append(items, renderFacility(f))
	}

	if showAll {
		items = append(items, msgViewUpdated)
	} else {
		items = append(items, msgViewComplete)
	}
	items = append(items, msgStopResume)

	return packChunks(items, b.maxLen())
}

func (b Builder) maxLen() int {
	if b.MaxLen > 0 {
		return b.MaxLen
	}
	return 4096
}

// topByCapacity returns the n facilities with the highest total available
// capacity. The sort is stable so ties keep upstream order.
func topByCapacity(facilities []cowin.Facility, n int) []cowin.Facility {
	sorted := make([]cowin.Facility, len(facilities))
	copy(sorted, facilities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalCapacity() > sorted[j].TotalCapacity()
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

func renderFacility(f cowin.Facility) string {
	var sb strings.Builder
	sb.WriteString("Center - ")
	sb.WriteString(f.Name)
	if f.BlockName != "" {
		sb.WriteString(", ")
		sb.WriteString(f.BlockName)
	}
	sb.WriteString("\nFee: ")
	sb.WriteString(f.FeeType)
	sb.WriteString("\n________________________\n")
	sb.WriteString("| Date | Seats | Age Lim |\n")
	for _, s := range f.Sessions {
		fmt.Fprintf(&sb, "|%s   %5d    %7d\n", s.Date.Format("02/01"), s.Capacity, s.MinAgeLimit)
	}
	sb.WriteString("________________________")
	return sb.String()
}

// packChunks greedily packs ordered items into chunks of at most maxLen,
// joining items within a chunk by chunkSeparator. An item that alone exceeds
// maxLen is emitted as its own oversized chunk (best-effort; not sub-split).
func packChunks(items []string, maxLen int) []string {
	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	for _, it := range items {
		if len(it) > maxLen {
			flush()
			chunks = append(chunks, it)
			continue
		}
		if cur.Len() == 0 {
			cur.WriteString(it)
			continue
		}
		if cur.Len()+len(chunkSeparator)+len(it) <= maxLen {
			cur.WriteString(chunkSeparator)
			cur.WriteString(it)
			continue
		}
		flush()
		cur.WriteString(it)
	}
	flush()
	return chunks
}
