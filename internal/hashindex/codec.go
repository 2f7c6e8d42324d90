// Package hashindex implements an on-disk linear-probing hash table
// layered on a buffer pool: a header page recording the block page
// directory, and fixed-width block pages each holding a bucket of
// (key, value) slots plus occupied/readable bitmaps.
package hashindex

// Codec describes how to serialize a fixed-width key or value type to
// and from a byte slot. Size must be constant for every value of T —
// the table has no support for variable-length payloads.
type Codec[T any] struct {
	Size   int
	Encode func(T, []byte)
	Decode func([]byte) T
}

// KeyComparator is a three-way comparison: 0 denotes equality.
type KeyComparator[K any] func(a, b K) int

// HashFunc hashes a key to an unsigned integer; the table reduces it
// modulo the slot count to find a probe start.
type HashFunc[K any] func(key K) uint64
