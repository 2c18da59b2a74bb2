package broadcast

import (
	"reflect"
	"testing"

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/store"
)

func TestSegmentGroupsByAreaAndAge(t *testing.T) {
	subs := []store.Subscriber{
		{UserID: 1, Subscribed: true, AreaType: cowin.AreaPincode, AreaCode: "110001", MinAge: 18},
		{UserID: 2, Subscribed: true, AreaType: cowin.AreaPincode, AreaCode: "110001", MinAge: 18},
		{UserID: 3, Subscribed: true, AreaType: cowin.AreaPincode, AreaCode: "110001", MinAge: 45},
		{UserID: 4, Subscribed: true, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
		{UserID: 5, Subscribed: false, AreaType: cowin.AreaDistrict, AreaCode: "114", MinAge: 18},
	}

	segs := Segment(subs)

	if got := segs[cowin.AreaPincode]["110001"][18]; !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Fatalf("pincode/18 segment = %v", got)
	}
	if got := segs[cowin.AreaPincode]["110001"][45]; !reflect.DeepEqual(got, []int64{3}) {
		t.Fatalf("pincode/45 segment = %v", got)
	}
	if got := segs[cowin.AreaDistrict]["114"][18]; !reflect.DeepEqual(got, []int64{4}) {
		t.Fatalf("district segment = %v (paused subscriber must be excluded)", got)
	}
}

func TestSegmentEmptyInput(t *testing.T) {
	if segs := Segment(nil); len(segs) != 0 {
		t.Fatalf("expected no segments, got %v", segs)
	}
}

func TestFlattenJobsDistrictsFirst(t *testing.T) {
	segs := Segments{
		cowin.AreaPincode:  {"110001": {18: {1}}},
		cowin.AreaDistrict: {"114": {18: {2}}, "108": {45: {3}}},
	}
	jobs := flattenJobs(segs)
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}
	if jobs[0].areaType != cowin.AreaDistrict || jobs[0].areaCode != "108" {
		t.Fatalf("jobs[0] = %+v, want district 108", jobs[0])
	}
	if jobs[2].areaType != cowin.AreaPincode {
		t.Fatalf("pincode job must come last: %+v", jobs[2])
	}
}
