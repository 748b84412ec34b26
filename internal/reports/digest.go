package reports

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// ComputeDigest returns the hex-encoded SHA-256 fingerprint over a
// submission's identifying fields. The concatenation order is fixed and
// carries no delimiter; both the store uniqueness constraint and later
// integrity re-verification depend on this exact construction.
func ComputeDigest(projectName, location, timestamp string) string {
	sum := sha256.Sum256([]byte(projectName + location + timestamp))
	return hex.EncodeToString(sum[:])
}

// LocationKey builds the composite key that groups submissions sharing a
// coordinate pair for crowd verification.
func LocationKey(latitude, longitude float64) string {
	return strconv.FormatFloat(latitude, 'f', -1, 64) + "," + strconv.FormatFloat(longitude, 'f', -1, 64)
}
