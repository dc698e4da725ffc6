// Package tid generates deterministic time-based (version 1) UUIDs used as
// implicit clustering tiebreakers on index companions. Node and clock
// sequence are fixed so that a given wall-clock instant always yields the
// same identifier.
package tid

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// 100ns intervals between the UUID epoch (1582-10-15) and the Unix epoch.
const gregorianOffset = 122192928000000000

const clockSeq uint16 = 0x2691

var node = [6]byte{0x91, 0x2e, 0xc0, 0x3b, 0x5c, 0xd1}

// FromTime builds the version 1 UUID for the given instant.
func FromTime(t time.Time) uuid.UUID {
	ts := uint64(t.UnixNano()/100) + gregorianOffset

	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], uint32(ts))
	binary.BigEndian.PutUint16(u[4:6], uint16(ts>>32))
	binary.BigEndian.PutUint16(u[6:8], uint16(ts>>48)&0x0fff|0x1000)
	binary.BigEndian.PutUint16(u[8:10], clockSeq&0x3fff|0x8000)
	copy(u[10:], node[:])
	return u
}

// New returns the string form of a v1 UUID for the current wall-clock time.
func New() string {
	return FromTime(time.Now()).String()
}
