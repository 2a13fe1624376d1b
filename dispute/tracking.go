package dispute

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const trackingPrefix = "DIS-"

// NewTrackingID generates a human-shareable dispute identifier: the DIS-
// prefix followed by 12 uppercase hex characters (48 bits of randomness).
// Collisions are near-impossible but the storage layer still enforces a
// uniqueness constraint and the insert path retries once on conflict.
func NewTrackingID() (string, error) {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("dispute: tracking id entropy: %w", err)
	}
	return trackingPrefix + strings.ToUpper(hex.EncodeToString(buf[:])), nil
}
