package store

import "fmt"

// The summary string stored per segment encodes exactly the two integers the
// threshold engine compares. It must round-trip losslessly.

func EncodeSummary(slots, centers int) string {
	return fmt.Sprintf("slots=%d;centers=%d", slots, centers)
}

func ParseSummary(s string) (slots, centers int, err error) {
	n, err := fmt.Sscanf(s, "slots=%d;centers=%d", &slots, &centers)
	if err != nil {
		return 0, 0, fmt.Errorf("store: bad summary %q: %w", s, err)
	}
	if n != 2 {
		return 0, 0, fmt.Errorf("store: bad summary %q", s)
	}
	return slots, centers, nil
}
