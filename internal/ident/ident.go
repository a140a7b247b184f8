// Package ident provides identifier generation for records created offline.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Record ids assigned offline are time based with a random suffix so they
// never collide with server-assigned identifiers. When the record later
// syncs, the local id is preserved as the canonical key.
var recordIDRegex = regexp.MustCompile(`^[0-9]{13}-[0-9a-f]{8}$`)

// NewRecordID generates a new client-side record identifier.
// Format: <unix-milliseconds>-<8 hex chars>.
func NewRecordID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// math-free fallback, nanosecond bits stand in for the suffix
		return fmt.Sprintf("%013d-%08x", time.Now().UnixMilli(), time.Now().UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("%013d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// IsRecordID checks whether s matches the client-side record id format.
// Server-assigned identifiers (UUIDs, serials) do not match.
func IsRecordID(s string) bool {
	return recordIDRegex.MatchString(s)
}

// NewEnvelopeID generates an id for queue entries and pushed envelopes.
func NewEnvelopeID() string {
	return uuid.New().String()
}
