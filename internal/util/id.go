package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + hex.EncodeToString(bytes)
}

// SubQueryID derives the identifier of the n-th sub-query within a bundle.
// Sub-query ids are positional so the client can address an individual
// question without a second lookup.
func SubQueryID(bundleID string, index int) string {
	return fmt.Sprintf("%s-q%d", bundleID, index)
}
