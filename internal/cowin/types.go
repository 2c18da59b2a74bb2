// Package cowin talks to the public CoWIN appointment availability API and
// turns its calendar responses into typed, eligibility-filtered facilities.
package cowin

import "time"

// AreaType selects which calendar endpoint a query hits.
type AreaType string

const (
	AreaPincode  AreaType = "pincode"
	AreaDistrict AreaType = "district"
)

// DateFormat is the wire format CoWIN uses for calendar dates (DD-MM-YYYY).
const DateFormat = "02-01-2006"

// RawCenter mirrors one element of the calendar response's centers[] array.
// Capacities arrive as JSON numbers that are occasionally fractional; they
// are validated during typed construction, not here.
type RawCenter struct {
	CenterID  int64        `json:"center_id"`
	Name      string       `json:"name"`
	BlockName string       `json:"block_name"`
	Pincode   int          `json:"pincode"`
	FeeType   string       `json:"fee_type"`
	Sessions  []RawSession `json:"sessions"`
}

type RawSession struct {
	SessionID         string  `json:"session_id"`
	Date              string  `json:"date"`
	Vaccine           string  `json:"vaccine"`
	MinAgeLimit       int     `json:"min_age_limit"`
	AvailableCapacity float64 `json:"available_capacity"`
	Dose1Capacity     float64 `json:"available_capacity_dose1,omitempty"`
	Dose2Capacity     float64 `json:"available_capacity_dose2,omitempty"`
}

type calendarResponse struct {
	Centers []RawCenter `json:"centers"`
}

// Session is an immutable dated capacity offering at a facility.
type Session struct {
	ID          string
	Date        time.Time
	Vaccine     string
	MinAgeLimit int
	Capacity    int
	Dose1       int
	Dose2       int
}

// Facility is a vaccination site with its surviving sessions.
// Immutable once built from a snapshot.
type Facility struct {
	ID        int64
	Name      string
	BlockName string
	FeeType   string
	Pincode   int
	Sessions  []Session
}

// TotalCapacity sums available capacity across the facility's sessions.
func (f Facility) TotalCapacity() int {
	total := 0
	for _, s := range f.Sessions {
		total += s.Capacity
	}
	return total
}

// SlotCount sums available capacity across all facilities.
func SlotCount(facilities []Facility) int {
	total := 0
	for _, f := range facilities {
		total += f.TotalCapacity()
	}
	return total
}

// State and District are the static reference hierarchy entries.
type State struct {
	StateID   int    `json:"state_id"`
	StateName string `json:"state_name"`
}

type District struct {
	DistrictID   int    `json:"district_id"`
	DistrictName string `json:"district_name"`
}
