package cowin

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// blockNamePlaceholder is what CoWIN sends when a center has no sub-location.
const blockNamePlaceholder = "not applicable"

// BuildFacilities constructs typed facilities from a raw snapshot.
//
// A malformed date or non-integral/negative capacity fails the WHOLE build:
// a miscounted capacity would corrupt the threshold engine's baselines, so
// the caller logs and skips the segment rather than trusting a partial parse.
func BuildFacilities(raw []RawCenter) ([]Facility, error) {
	facilities := make([]Facility, 0, len(raw))
	for _, ct := range raw {
		sessions := make([]Session, 0, len(ct.Sessions))
		for _, rs := range ct.Sessions {
			s, err := buildSession(rs)
			if err != nil {
				return nil, fmt.Errorf("center %d: %w", ct.CenterID, err)
			}
			sessions = append(sessions, s)
		}
		facilities = append(facilities, Facility{
			ID:        ct.CenterID,
			Name:      ct.Name,
			BlockName: normalizeBlockName(ct.BlockName),
			FeeType:   ct.FeeType,
			Pincode:   ct.Pincode,
			Sessions:  sessions,
		})
	}
	return facilities, nil
}

func buildSession(rs RawSession) (Session, error) {
	date, err := time.Parse(DateFormat, rs.Date)
	if err != nil {
		return Session{}, fmt.Errorf("session %s: bad date %q: %w", rs.SessionID, rs.Date, err)
	}
	capTotal, err := intCapacity("available_capacity", rs.AvailableCapacity)
	if err != nil {
		return Session{}, fmt.Errorf("session %s: %w", rs.SessionID, err)
	}
	dose1, err := intCapacity("available_capacity_dose1", rs.Dose1Capacity)
	if err != nil {
		return Session{}, fmt.Errorf("session %s: %w", rs.SessionID, err)
	}
	dose2, err := intCapacity("available_capacity_dose2", rs.Dose2Capacity)
	if err != nil {
		return Session{}, fmt.Errorf("session %s: %w", rs.SessionID, err)
	}
	return Session{
		ID:          rs.SessionID,
		Date:        date,
		Vaccine:     rs.Vaccine,
		MinAgeLimit: rs.MinAgeLimit,
		Capacity:    capTotal,
		Dose1:       dose1,
		Dose2:       dose2,
	}, nil
}

func intCapacity(field string, v float64) (int, error) {
	if v < 0 || v != math.Trunc(v) {
		return 0, fmt.Errorf("bad %s value %v", field, v)
	}
	return int(v), nil
}

func normalizeBlockName(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), blockNamePlaceholder) {
		return ""
	}
	return s
}

// FilterFacilities builds typed facilities and keeps, per facility, only the
// sessions matching the eligibility floor and minimum free capacity. A floor
// of zero (the "all ages" class) disables the age check. A facility with no
// surviving sessions is dropped entirely. Order preserved; the result is
// recomputed on every call.
func FilterFacilities(raw []RawCenter, minAge, minCapacity int) ([]Facility, error) {
	if minCapacity <= 0 {
		minCapacity = 1
	}
	all, err := BuildFacilities(raw)
	if err != nil {
		return nil, err
	}
	out := make([]Facility, 0, len(all))
	for _, f := range all {
		kept := make([]Session, 0, len(f.Sessions))
		for _, s := range f.Sessions {
			if (minAge <= 0 || s.MinAgeLimit <= minAge) && s.Capacity >= minCapacity {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			continue
		}
		f.Sessions = kept
		out = append(out, f)
	}
	return out, nil
}
