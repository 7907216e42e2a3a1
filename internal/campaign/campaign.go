// Package campaign derives the campaign identifier attached to outbound
// email so provider analytics can be grouped per event.
package campaign

import (
	"strconv"
	"unicode/utf16"

	"github.com/sqids/sqids-go"
)

const (
	partnerPrefix  = "FE-"
	internalPrefix = "EX-"
	minLength      = 6
)

var encoder = mustEncoder()

func mustEncoder() *sqids.Sqids {
	s, err := sqids.New(sqids.Options{MinLength: minLength})
	if err != nil {
		panic("campaign: sqids encoder: " + err.Error())
	}
	return s
}

// ID returns the campaign id for an event. A partner event id always wins;
// otherwise the event id is hashed and short-encoded. Deterministic.
func ID(eventID, partnerEventID string) string {
	if partnerEventID != "" {
		return partnerPrefix + partnerEventID
	}

	n := absHash(hashCode(eventID))
	encoded, err := encoder.Encode([]uint64{n})
	if err != nil {
		// Only reachable when every blocklist regeneration collides.
		encoded = strconv.FormatUint(n, 10)
	}
	return internalPrefix + encoded
}

// hashCode is the 31-multiplier rolling hash over UTF-16 code units,
// wrapping at 32 bits.
func hashCode(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	return h
}

// absHash widens before negating so math.MinInt32 stays positive.
func absHash(h int32) uint64 {
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return uint64(v)
}
