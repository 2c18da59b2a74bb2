package broadcast

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/store"
)

func facility(id int64, name string, capacities ...int) cowin.Facility {
	sessions := make([]cowin.Session, 0, len(capacities))
	for i, seats := range capacities {
		sessions = append(sessions, cowin.Session{
			ID:          fmt.Sprintf("%d-%d", id, i),
			Date:        time.Date(2021, 5, 15+i, 0, 0, 0, 0, time.UTC),
			MinAgeLimit: 18,
			Capacity:    seats,
		})
	}
	return cowin.Facility{ID: id, Name: name, FeeType: "Free", Sessions: sessions}
}

func TestSummaryWording(t *testing.T) {
	b := Builder{}
	pinKey := store.AreaKey{AreaType: cowin.AreaPincode, AreaCode: "110001", MinAge: 45}

	got := b.Summary(23, 3, pinKey)
	want := "There are 23 slots available across 3 centres in [pin] 110001 for 45+ age group"
	if got != want {
		t.Fatalf("Summary = %q, want %q", got, want)
	}

	got = b.Summary(1, 1, pinKey)
	want = "There is 1 slot available across 1 centre in [pin] 110001 for 45+ age group"
	if got != want {
		t.Fatalf("singular Summary = %q, want %q", got, want)
	}
}

func TestSummaryDistrictNameResolution(t *testing.T) {
	key := store.AreaKey{AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 0}

	b := Builder{DistrictName: func(code string) (string, bool) {
		if code == "114" {
			return "Ernakulam", true
		}
		return "", false
	}}
	if got := b.Summary(5, 1, key); !strings.Contains(got, "in Ernakulam for all age group") {
		t.Fatalf("district name not used: %q", got)
	}

	b.DistrictName = nil
	if got := b.Summary(5, 1, key); !strings.Contains(got, "[district] 114") {
		t.Fatalf("missing fallback phrase: %q", got)
	}
}

func TestBuildShowsAllBelowDisplayCap(t *testing.T) {
	b := Builder{TopCenters: 5, MaxLen: 4096}
	facilities := []cowin.Facility{facility(1, "A", 5), facility(2, "B", 3)}

	chunks := b.Build("summary", facilities)
	joined := strings.Join(chunks, chunkSeparator)
	if !strings.Contains(joined, "Center - A") || !strings.Contains(joined, "Center - B") {
		t.Fatalf("all facilities should render: %q", joined)
	}
	if strings.Contains(joined, msgFewOfThem) {
		t.Fatal("top-N note must not appear below the cap")
	}
	if !strings.Contains(joined, msgViewUpdated) {
		t.Fatal("expected updated-list CTA")
	}
	if !strings.Contains(joined, msgStopResume) {
		t.Fatal("expected stop/resume CTA")
	}
}

func TestBuildTopNAboveDisplayCap(t *testing.T) {
	b := Builder{TopCenters: 2, MaxLen: 4096}
	facilities := []cowin.Facility{
		facility(1, "Low", 1),
		facility(2, "High", 100),
		facility(3, "Mid", 50),
	}

	joined := strings.Join(b.Build("summary", facilities), chunkSeparator)
	if !strings.Contains(joined, "Here are few of them (2 of 3)") {
		t.Fatalf("missing top-N note: %q", joined)
	}
	if !strings.Contains(joined, "Center - High") || !strings.Contains(joined, "Center - Mid") {
		t.Fatalf("top facilities missing: %q", joined)
	}
	if strings.Contains(joined, "Center - Low") {
		t.Fatalf("low-capacity facility should be cut: %q", joined)
	}
	if !strings.Contains(joined, msgViewComplete) {
		t.Fatal("expected complete-list CTA")
	}
}

func TestTopByCapacityStableOnTies(t *testing.T) {
	facilities := []cowin.Facility{
		facility(1, "First", 10),
		facility(2, "Second", 10),
		facility(3, "Third", 10),
	}
	top := topByCapacity(facilities, 2)
	if top[0].ID != 1 || top[1].ID != 2 {
		t.Fatalf("tie order not preserved: %v, %v", top[0].ID, top[1].ID)
	}
}

func TestPackChunksRespectsMaxLen(t *testing.T) {
	items := []string{
		strings.Repeat("a", 30),
		strings.Repeat("b", 30),
		strings.Repeat("c", 30),
		strings.Repeat("d", 90), // oversized: emitted alone
		strings.Repeat("e", 30),
	}
	const maxLen = 70

	chunks := packChunks(items, maxLen)

	for i, ch := range chunks {
		if len(ch) > maxLen && ch != items[3] {
			t.Fatalf("chunk %d exceeds max length: %d", i, len(ch))
		}
	}

	// Concatenating chunks with the separator reconstructs the item sequence.
	joined := strings.Join(chunks, chunkSeparator)
	if joined != strings.Join(items, chunkSeparator) {
		t.Fatalf("item sequence not preserved:\n%q\nvs\n%q", joined, strings.Join(items, chunkSeparator))
	}
}

func TestPackChunksSingleSmallItem(t *testing.T) {
	chunks := packChunks([]string{"hello"}, 4096)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("unexpected chunks: %#v", chunks)
	}
}
