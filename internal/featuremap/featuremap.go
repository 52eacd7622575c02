// Package featuremap implements Component A: mapping sparse string feature
// names to dense integer indices, either by hashing (fixed size, tolerates
// collisions) or by interning (growable, exact).
package featuremap

import (
	"github.com/twmb/murmur3"
)

// Absent is returned by Map.IndexOf for a name that is unknown and the map
// is frozen.
const Absent = -1

// Map is the shared contract for both providers. It is not safe for
// concurrent use during the open (unfrozen) phase; callers that intern
// features from multiple goroutines must serialize calls to IndexOf
// themselves (the trainer loop in this repo is single-threaded, per
// spec §5).
type Map interface {
	// IndexOf returns the index of name. While the map is open, an unseen
	// name is assigned the next free index. Once Freeze has been called,
	// an unseen name returns Absent instead.
	IndexOf(name string) int

	// Freeze prevents further growth: IndexOf on an unseen name returns
	// Absent from this point on.
	Freeze()

	// Frozen reports whether Freeze was called.
	Frozen() bool

	// NumFeatures returns the number of addressable feature slots: the
	// fixed hash-table size for Hashing, or the current cardinality for
	// Interning.
	NumFeatures() int
}

var (
	_ Map = (*Hashing)(nil)
	_ Map = (*Interning)(nil)
)

// Hashing maps feature names to indices in [0, 2^bits) via murmur3_32,
// tolerating collisions. Size is fixed at construction; Freeze is a no-op
// other than bookkeeping, since hashing never grows.
type Hashing struct {
	bits   uint
	size   uint64
	frozen bool
}

// NewHashing creates a Hashing feature map with 2^bits slots.
func NewHashing(bits uint) *Hashing {
	if bits == 0 || bits > 32 {
		panic("featuremap: NewHashing requires 0 < bits <= 32")
	}
	return &Hashing{
		bits: bits,
		size: uint64(1) << bits,
	}
}

// IndexOf implements Map. It never returns Absent: hashing is always "open"
// in the sense that any name maps to a slot, collisions and all.
func (h *Hashing) IndexOf(name string) int {
	return int(uint64(murmur3.Sum32([]byte(name))) % h.size)
}

// Freeze implements Map. For Hashing this only flips the bookkeeping flag
// returned by Frozen; it has no effect on IndexOf.
func (h *Hashing) Freeze() { h.frozen = true }

// Frozen implements Map.
func (h *Hashing) Frozen() bool { return h.frozen }

// NumFeatures implements Map, returning 2^bits.
func (h *Hashing) NumFeatures() int { return int(h.size) }

// Bits returns the configured hash width.
func (h *Hashing) Bits() uint { return h.bits }
