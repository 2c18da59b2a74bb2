package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/store"
	logx "github.com/abhijithasokan/cowin-slot-availability-telegram-bot/pkg/logx"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]cowin.RawCenter
	errs      map[string]error
	calls     int
}

func (f *fakeFetcher) Fetch(ctx context.Context, areaCode string, date time.Time, areaType cowin.AreaType) ([]cowin.RawCenter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	key := string(areaType) + "|" + areaCode
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.responses[key], nil
}

type fakeStorage struct {
	subs    []store.Subscriber
	records map[store.AreaKey]store.AreaUpdate

	mu        sync.Mutex
	updates   []store.AreaUpdate
	delivered []int64
	commits   int
}

func (s *fakeStorage) ActiveSubscribers(ctx context.Context) ([]store.Subscriber, error) {
	return s.subs, nil
}

func (s *fakeStorage) AreaUpdates(ctx context.Context) (map[store.AreaKey]store.AreaUpdate, error) {
	if s.records == nil {
		return map[store.AreaKey]store.AreaUpdate{}, nil
	}
	return s.records, nil
}

func (s *fakeStorage) CommitCycle(ctx context.Context, updates []store.AreaUpdate, delivered []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	s.updates = append(s.updates, updates...)
	s.delivered = append(s.delivered, delivered...)
	return nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    map[int64][]string
	failFor map[int64]bool
}

func (s *fakeSender) SendText(ctx context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[chatID] {
		return errors.New("blocked by recipient")
	}
	if s.sent == nil {
		s.sent = make(map[int64][]string)
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

func availableCenters(n int) []cowin.RawCenter {
	centers := make([]cowin.RawCenter, 0, n)
	for i := 0; i < n; i++ {
		centers = append(centers, cowin.RawCenter{
			CenterID: int64(i + 1),
			Name:     fmt.Sprintf("Center %d", i+1),
			FeeType:  "Free",
			Pincode:  110001,
			Sessions: []cowin.RawSession{{
				SessionID:         fmt.Sprintf("s%d", i+1),
				Date:              "15-05-2021",
				Vaccine:           "COVISHIELD",
				MinAgeLimit:       18,
				AvailableCapacity: 10,
			}},
		})
	}
	return centers
}

func newTestService(fetcher *fakeFetcher, storage *fakeStorage, sender *fakeSender) *Service {
	return New(Config{
		Workers:     1,
		MinCapacity: 1,
		TopCenters:  5,
		MaxLen:      4096,
		Engine:      testEngine(),
	}, fetcher, storage, sender, nil, logx.Nop())
}

func TestRunCycleNotifiesUnseenSegment(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string][]cowin.RawCenter{
		"district|114": availableCenters(2),
	}}
	storage := &fakeStorage{subs: []store.Subscriber{
		{UserID: 1, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
		{UserID: 2, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
	}}
	sender := &fakeSender{}

	if err := newTestService(fetcher, storage, sender).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(sender.sent[1]) == 0 || len(sender.sent[2]) == 0 {
		t.Fatalf("both subscribers must receive messages: %v", sender.sent)
	}
	if storage.commits != 1 {
		t.Fatalf("commits = %d, want 1", storage.commits)
	}
	if len(storage.updates) != 1 {
		t.Fatalf("staged records = %d, want 1", len(storage.updates))
	}
	slots, centers, err := store.ParseSummary(storage.updates[0].Summary)
	if err != nil || slots != 20 || centers != 2 {
		t.Fatalf("staged summary = %q (%v), want slots=20 centers=2", storage.updates[0].Summary, err)
	}
	if len(storage.delivered) != 2 {
		t.Fatalf("accounting entries = %v, want both users", storage.delivered)
	}
}

func TestRunCycleSkipsSegmentWithNoMatchingSessions(t *testing.T) {
	// Three facilities, none with a session matching the 18+ floor.
	centers := availableCenters(3)
	for i := range centers {
		centers[i].Sessions[0].MinAgeLimit = 45
	}
	fetcher := &fakeFetcher{responses: map[string][]cowin.RawCenter{"district|114": centers}}
	storage := &fakeStorage{subs: []store.Subscriber{
		{UserID: 1, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
	}}
	sender := &fakeSender{}

	if err := newTestService(fetcher, storage, sender).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no messages expected, got %v", sender.sent)
	}
	if len(storage.updates) != 0 {
		t.Fatalf("empty segment must not create a record: %v", storage.updates)
	}
}

func TestRunCycleEmptySnapshotKeepsExistingBaseline(t *testing.T) {
	key := store.AreaKey{AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18}
	fetcher := &fakeFetcher{responses: map[string][]cowin.RawCenter{"district|114": nil}}
	storage := &fakeStorage{
		subs: []store.Subscriber{
			{UserID: 1, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
		},
		records: map[store.AreaKey]store.AreaUpdate{
			key: {Key: key, Summary: store.EncodeSummary(100, 10), SentAt: time.Now()},
		},
	}
	sender := &fakeSender{}

	if err := newTestService(fetcher, storage, sender).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(storage.updates) != 0 {
		t.Fatalf("empty snapshot must not overwrite the baseline: %v", storage.updates)
	}
}

func TestRunCycleDispatchIsolatesRecipientFailures(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string][]cowin.RawCenter{
		"district|114": availableCenters(1),
	}}
	storage := &fakeStorage{subs: []store.Subscriber{
		{UserID: 1, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
		{UserID: 2, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
	}}
	sender := &fakeSender{failFor: map[int64]bool{1: true}}

	if err := newTestService(fetcher, storage, sender).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(sender.sent[2]) == 0 {
		t.Fatal("failure for user 1 must not block user 2")
	}
	if len(storage.delivered) != 1 || storage.delivered[0] != 2 {
		t.Fatalf("delivered = %v, want [2]", storage.delivered)
	}
}

func TestRunCycleAllDeliveriesFailedLeavesRecordForRetry(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string][]cowin.RawCenter{
		"district|114": availableCenters(1),
	}}
	storage := &fakeStorage{subs: []store.Subscriber{
		{UserID: 1, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
	}}
	sender := &fakeSender{failFor: map[int64]bool{1: true}}

	if err := newTestService(fetcher, storage, sender).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(storage.updates) != 0 {
		t.Fatalf("record must not be staged when nothing was delivered: %v", storage.updates)
	}
}

func TestRunCycleUpstreamFailureIsolatedPerArea(t *testing.T) {
	fetcher := &fakeFetcher{
		responses: map[string][]cowin.RawCenter{"pincode|110001": availableCenters(1)},
		errs:      map[string]error{"district|114": cowin.ErrUnavailable},
	}
	storage := &fakeStorage{subs: []store.Subscriber{
		{UserID: 1, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
		{UserID: 2, Subscribed: true, AreaType: cowin.AreaPincode, AreaCode: "110001", MinAge: 18},
	}}
	sender := &fakeSender{}

	if err := newTestService(fetcher, storage, sender).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(sender.sent[1]) != 0 {
		t.Fatal("failed area must not deliver")
	}
	if len(sender.sent[2]) == 0 {
		t.Fatal("healthy area must still deliver")
	}
	if len(storage.updates) != 1 {
		t.Fatalf("staged records = %d, want 1 (healthy area only)", len(storage.updates))
	}
}

func TestRunCycleBelowThresholdStaysQuiet(t *testing.T) {
	key := store.AreaKey{AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18}
	// 2 centers x 10 slots = same as the stored baseline.
	fetcher := &fakeFetcher{responses: map[string][]cowin.RawCenter{
		"district|114": availableCenters(2),
	}}
	storage := &fakeStorage{
		subs: []store.Subscriber{
			{UserID: 1, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
		},
		records: map[store.AreaKey]store.AreaUpdate{
			key: {Key: key, Summary: store.EncodeSummary(20, 2), SentAt: time.Now()},
		},
	}
	sender := &fakeSender{}

	if err := newTestService(fetcher, storage, sender).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("unchanged snapshot must not notify: %v", sender.sent)
	}
	if len(storage.updates) != 0 {
		t.Fatalf("record must stay untouched: %v", storage.updates)
	}
}

func TestRunCycleMalformedSnapshotSkipsSegment(t *testing.T) {
	bad := availableCenters(1)
	bad[0].Sessions[0].Date = "2021/05/15"
	fetcher := &fakeFetcher{responses: map[string][]cowin.RawCenter{"district|114": bad}}
	storage := &fakeStorage{subs: []store.Subscriber{
		{UserID: 1, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
	}}
	sender := &fakeSender{}

	if err := newTestService(fetcher, storage, sender).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(sender.sent) != 0 || len(storage.updates) != 0 {
		t.Fatal("malformed snapshot must notify nobody and mutate nothing")
	}
}
