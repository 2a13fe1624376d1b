package dispute

import (
	"regexp"
	"testing"
)

var trackingPattern = regexp.MustCompile(`^DIS-[0-9A-F]{12}$`)

func TestNewTrackingID_Format(t *testing.T) {
	id, err := NewTrackingID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trackingPattern.MatchString(id) {
		t.Fatalf("tracking id %q does not match DIS-[0-9A-F]{12}", id)
	}
}

func TestNewTrackingID_Uniqueness(t *testing.T) {
	const n = 10000

	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id, err := NewTrackingID()
		if err != nil {
			t.Fatalf("generation %d: %v", i, err)
		}
		if !trackingPattern.MatchString(id) {
			t.Fatalf("generation %d: bad format %q", i, id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("generation %d: duplicate tracking id %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
