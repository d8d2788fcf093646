// Package snapshot encodes the persisted counter table.
//
// A snapshot maps every live counter identity to its hit count and absolute
// expiry. It is written to the shared slot as one blob and always replaced
// in full. The blob uses the protobuf wire format:
//
//	1: varint  format version (currently 1)
//	2: bytes   entry, repeated
//
// and each entry:
//
//	1: string  namespace
//	2: string  limit name
//	3: bytes   variable {1: name, 2: value}, repeated, sorted by name
//	4: varint  hits
//	5: sint64  expiry as Unix nanoseconds
//
// Expiries therefore keep nanosecond precision only between the years 1678
// and 2262, and decode in UTC whatever location they were encoded from.
package snapshot

import (
	"sort"
	"time"

	"ratelimitfilter/internal/limit"
)

// FormatVersion is written into every encoded snapshot.
const FormatVersion = 1

// Entry is the persisted state of one counter.
type Entry struct {
	Counter   limit.Counter
	Hits      int64
	ExpiresAt time.Time
}

// Snapshot maps counter keys to entries.
type Snapshot map[string]Entry

// New returns an empty snapshot.
func New() Snapshot {
	return make(Snapshot)
}

// Put stores e under its counter key, replacing any previous entry.
func (s Snapshot) Put(e Entry) {
	s[e.Counter.Key()] = e
}

// Entries returns all entries ordered by counter key.
func (s Snapshot) Entries() []Entry {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, s[k])
	}
	return out
}
