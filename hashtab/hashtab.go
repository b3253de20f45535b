// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package hashtab implements an open-addressing hash table with
// cache-line-sized buckets and incremental rehashing.
//
// The table stores elements of type E keyed by type K. A Type descriptor
// supplies the hash, comparison and destruction behavior; any callback may
// be left nil to get a default. Elements are owned by the table: the
// destructor, if one is set, runs on deletion, replacement and release.
//
// Growing and shrinking happen incrementally between two coexisting bucket
// arrays. Each insertion, deletion or lookup migrates at most one bucket
// on its own account; only a resize demanded while a rehash is still
// running drives that rehash to completion at once. A process-wide resize policy
// throttles this work while a forked child holds a copy-on-write snapshot
// of the heap.
//
// Within a bucket, a one-byte filter holds the top bits of each element's
// hash, so the key comparison callback runs only on a byte match. A bucket
// that has ever been completely occupied keeps a sticky "ever-full" bit;
// probing continues past such buckets instead of maintaining per-slot
// deletion tombstones.
//
// The table is not safe for concurrent use. "Incremental" refers to
// amortizing work across successive calls, not to running concurrently
// with them.
package hashtab

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/dchest/siphash"
)

// ResizePolicy throttles the table's background resizing work. It is
// process-wide state shared by every table, intended to be set at startup
// and around fork.
type ResizePolicy int

const (
	// ResizeAllow is the normal mode: expand at the soft fill limit,
	// shrink at the soft minimum, and rehash opportunistically on every
	// lookup and insertion.
	ResizeAllow ResizePolicy = iota
	// ResizeAvoid defers resizing while a fork child holds a
	// copy-on-write snapshot: expand only at the hard fill limit, shrink
	// only at the hard minimum, and rehash only on writes (insertions,
	// replacements and deletions), not on lookups.
	ResizeAvoid
	// ResizeForbid never shrinks. Expansion is still permitted at the
	// hard limit since open addressing cannot exceed 100% fill.
	ResizeForbid
)

var (
	resizePolicy = ResizeAllow

	hashSeedK0 uint64
	hashSeedK1 uint64
)

func init() {
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("hashtab: cannot seed hash function: %v", err))
	}
	SetHashFunctionSeed(seed)
}

// SetResizePolicy sets the process-wide resize policy. Mutating it
// concurrently with table operations is undefined.
func SetResizePolicy(policy ResizePolicy) {
	resizePolicy = policy
}

// SetHashFunctionSeed seeds the default hash function. All tables in the
// process share the seed; set it before creating tables.
func SetHashFunctionSeed(seed [16]byte) {
	hashSeedK0 = binary.LittleEndian.Uint64(seed[0:8])
	hashSeedK1 = binary.LittleEndian.Uint64(seed[8:16])
}

// Type parameterizes a Table's behavior. It is a set of callbacks, all
// optional, and must not change once a table has been created with it.
type Type[K, E any] struct {
	// Hash returns the full hash of a key. If nil, the default seeded
	// SipHash function is used; it supports string, byte-slice, integer,
	// uintptr, unsafe.Pointer and bool keys and panics for other key
	// types, including typed pointers.
	Hash func(key K) uint64
	// KeyCompare reports whether two keys are equal. If nil, keys are
	// compared by interface identity, which for pointer keys is pointer
	// identity.
	KeyCompare func(t *Table[K, E], a, b K) bool
	// ElementGetKey extracts the key from an element. If nil, the
	// element is its own key and E must be assertable to K.
	ElementGetKey func(e E) K
	// ElementDestructor runs when an element is deleted, replaced or
	// released with the table. It must not call back into any mutating
	// operation on the table.
	ElementDestructor func(t *Table[K, E], e E)
	// RehashingStarted and RehashingCompleted observe the rehashing
	// state, e.g. to keep the table on a "currently rehashing" list.
	RehashingStarted   func(t *Table[K, E])
	RehashingCompleted func(t *Table[K, E])
	// MetadataSize returns the number of caller-owned metadata bytes to
	// allocate with the table, retrievable via Metadata.
	MetadataSize func() int
}

// Table is an open-addressing hash table. The zero value is not usable;
// create tables with New.
type Table[K, E any] struct {
	typ       *Type[K, E]
	tables    [2][]bucket[E]
	used      [2]int
	bucketExp [2]int8 // number of buckets is 1<<exp; -1 means no table

	// rehashIdx is the next source bucket to migrate, walked in
	// reverse-bit-increment order, or -1 when not rehashing.
	rehashIdx int64

	pauseRehash     int
	pauseAutoShrink int

	// scanning is nonzero while a scan callback may be running; released
	// is set by Release. Both are usage-violation guards, not
	// synchronization.
	scanning int
	released bool

	metadata []byte
}

func (t *Table[K, E]) checkNotReleased() {
	if t.released {
		panic("hashtab: use of released table")
	}
}

func (t *Table[K, E]) checkMayMutate() {
	t.checkNotReleased()
	if t.scanning > 0 {
		panic("hashtab: table mutated inside a scan callback")
	}
}

// New creates an empty table of the given type. No buckets are allocated
// until the first insertion.
func New[K, E any](typ *Type[K, E]) *Table[K, E] {
	t := &Table[K, E]{typ: typ, rehashIdx: -1}
	t.bucketExp[0] = -1
	t.bucketExp[1] = -1
	if typ.MetadataSize != nil {
		if n := typ.MetadataSize(); n > 0 {
			t.metadata = make([]byte, n)
		}
	}
	return t
}

// Release destroys every element through the element destructor and drops
// both bucket arrays. Any use of the table afterwards panics.
func (t *Table[K, E]) Release() {
	t.checkMayMutate()
	for ti := 0; ti <= 1; ti++ {
		if t.typ.ElementDestructor != nil {
			for i := range t.tables[ti] {
				b := &t.tables[ti][i]
				for pb := b.presence(); pb != 0; pb &= pb - 1 {
					pos := bits.TrailingZeros16(uint16(pb))
					t.typ.ElementDestructor(t, b.elems[pos])
				}
			}
		}
		t.tables[ti] = nil
		t.bucketExp[ti] = -1
		t.used[ti] = 0
	}
	t.rehashIdx = -1
	t.metadata = nil
	t.released = true
}

// TableType returns the type descriptor the table was created with.
func (t *Table[K, E]) TableType() *Type[K, E] {
	t.checkNotReleased()
	return t.typ
}

// Metadata returns the caller-owned metadata bytes allocated with the
// table, sized by the type's MetadataSize callback.
func (t *Table[K, E]) Metadata() []byte {
	t.checkNotReleased()
	return t.metadata
}

// Len returns the number of elements in the table.
func (t *Table[K, E]) Len() int {
	t.checkNotReleased()
	return t.used[0] + t.used[1]
}

// IsRehashing reports whether an incremental rehash is in progress.
func (t *Table[K, E]) IsRehashing() bool {
	t.checkNotReleased()
	return t.rehashIdx != -1
}

// IsRehashingPaused reports whether opportunistic rehashing is currently
// suspended by PauseRehashing, a scan or an iterator.
func (t *Table[K, E]) IsRehashingPaused() bool {
	t.checkNotReleased()
	return t.pauseRehash > 0
}

// PauseRehashing suspends opportunistic rehash steps and automatic
// expansion. Pauses nest; each must be matched by ResumeRehashing.
func (t *Table[K, E]) PauseRehashing() {
	t.checkNotReleased()
	t.pauseRehash++
}

// ResumeRehashing undoes one PauseRehashing.
func (t *Table[K, E]) ResumeRehashing() {
	t.checkNotReleased()
	if t.pauseRehash == 0 {
		panic("hashtab: ResumeRehashing without matching pause")
	}
	t.pauseRehash--
}

// PauseAutoShrink suspends the automatic shrinking normally triggered by
// deletions. Pauses nest; each must be matched by ResumeAutoShrink.
func (t *Table[K, E]) PauseAutoShrink() {
	t.checkNotReleased()
	t.pauseAutoShrink++
}

// ResumeAutoShrink undoes one PauseAutoShrink. On the final resume the
// table shrinks if deletions have brought it below the minimum fill.
func (t *Table[K, E]) ResumeAutoShrink() {
	t.checkNotReleased()
	if t.pauseAutoShrink == 0 {
		panic("hashtab: ResumeAutoShrink without matching pause")
	}
	t.pauseAutoShrink--
	if t.pauseAutoShrink == 0 {
		t.ShrinkIfNeeded()
	}
}

// Find looks up the element with the given key.
func (t *Table[K, E]) Find(key K) (E, bool) {
	t.checkNotReleased()
	var zero E
	if t.Len() == 0 {
		return zero, false
	}
	hash := t.hashKey(key)
	t.rehashStepOnRead()
	ti, b, pos := t.findBucket(hash, key)
	if ti < 0 {
		return zero, false
	}
	return b.elems[pos], true
}

// Add inserts an element. It returns false, without inserting and without
// running any destructor, if an element with the same key already exists.
func (t *Table[K, E]) Add(elem E) bool {
	_, inserted := t.AddOrFind(elem)
	return inserted
}

// AddOrFind is like Add, but on a duplicate key it also returns the
// existing element.
func (t *Table[K, E]) AddOrFind(elem E) (existing E, inserted bool) {
	t.checkMayMutate()
	key := t.elemKey(elem)
	hash := t.hashKey(key)
	t.rehashStepOnWrite()
	t.expandIfNeeded()
	if ti, b, pos := t.findBucket(hash, key); ti >= 0 {
		return b.elems[pos], false
	}
	t.insert(hash, elem)
	var zero E
	return zero, true
}

// Replace inserts an element, overwriting any existing element with the
// same key. The old element is destroyed. Returns true if the element was
// inserted, false if it replaced an existing one. An overwrite touches
// neither the presence bits nor the ever-full flag of the bucket.
func (t *Table[K, E]) Replace(elem E) bool {
	t.checkMayMutate()
	key := t.elemKey(elem)
	hash := t.hashKey(key)
	t.rehashStepOnWrite()
	t.expandIfNeeded()
	if ti, b, pos := t.findBucket(hash, key); ti >= 0 {
		old := b.elems[pos]
		b.elems[pos] = elem
		if t.typ.ElementDestructor != nil {
			t.typ.ElementDestructor(t, old)
		}
		return false
	}
	t.insert(hash, elem)
	return true
}

// Delete removes the element with the given key and destroys it. Deleting
// clears the slot's presence bit but not the bucket's ever-full flag, so
// probe chains through the bucket stay traversable; chains shorten only
// when the table is rehashed.
func (t *Table[K, E]) Delete(key K) bool {
	t.checkMayMutate()
	if t.Len() == 0 {
		return false
	}
	hash := t.hashKey(key)
	t.rehashStepOnWrite()
	ti, b, pos := t.findBucket(hash, key)
	if ti < 0 {
		return false
	}
	elem := b.elems[pos]
	var zero E
	b.elems[pos] = zero
	b.clearOccupied(pos)
	t.used[ti]--
	if t.typ.ElementDestructor != nil {
		t.typ.ElementDestructor(t, elem)
	}
	if t.pauseAutoShrink == 0 {
		t.ShrinkIfNeeded()
	}
	return true
}

// hashKey hashes a key using the type's hash function or the default.
func (t *Table[K, E]) hashKey(key K) uint64 {
	if t.typ.Hash != nil {
		return t.typ.Hash(key)
	}
	return defaultHash(key)
}

func (t *Table[K, E]) elemKey(e E) K {
	if t.typ.ElementGetKey != nil {
		return t.typ.ElementGetKey(e)
	}
	return any(e).(K)
}

func (t *Table[K, E]) hashElement(e E) uint64 {
	return t.hashKey(t.elemKey(e))
}

func (t *Table[K, E]) compareKeys(a, b K) bool {
	if t.typ.KeyCompare != nil {
		return t.typ.KeyCompare(t, a, b)
	}
	return any(a) == any(b)
}

// DefaultHash hashes a key with the process-wide seeded default hash
// function, for callers that partition keys across several tables and
// need the same routing hash the tables use.
func DefaultHash[K any](key K) uint64 {
	return defaultHash(key)
}

// defaultHash hashes the bytes of fixed-size and string-like keys with the
// seeded SipHash function. Key types without an obvious byte encoding need
// an explicit hash function in the table's type descriptor.
func defaultHash[K any](key K) uint64 {
	var buf [8]byte
	switch k := any(key).(type) {
	case string:
		return siphash.Hash(hashSeedK0, hashSeedK1, []byte(k))
	case []byte:
		return siphash.Hash(hashSeedK0, hashSeedK1, k)
	case int:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case int8:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case int16:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case int32:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case int64:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case uint:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case uint8:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case uint16:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case uint32:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case uint64:
		binary.LittleEndian.PutUint64(buf[:], k)
	case uintptr:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case unsafe.Pointer:
		binary.LittleEndian.PutUint64(buf[:], uint64(uintptr(k)))
	case bool:
		if k {
			buf[0] = 1
		}
	default:
		panic(fmt.Sprintf("hashtab: key type %T needs a Hash function in the table type", key))
	}
	return siphash.Hash(hashSeedK0, hashSeedK1, buf[:])
}

func (t *Table[K, E]) numBuckets(ti int) int {
	if t.bucketExp[ti] < 0 {
		return 0
	}
	return 1 << uint(t.bucketExp[ti])
}

func (t *Table[K, E]) mask(ti int) uint64 {
	return uint64(t.numBuckets(ti) - 1)
}

// rehashStepOnRead migrates one bucket on behalf of a lookup. Reads only
// help while the policy allows it, to avoid gratuitous copy-on-write
// faults after a fork.
func (t *Table[K, E]) rehashStepOnRead() {
	if t.IsRehashing() && t.pauseRehash == 0 && resizePolicy == ResizeAllow {
		t.rehashStep()
	}
}

// rehashStepOnWrite migrates one bucket on behalf of a mutation. Writes
// dirty pages regardless, so they make progress under ResizeAvoid too.
func (t *Table[K, E]) rehashStepOnWrite() {
	if t.IsRehashing() && t.pauseRehash == 0 && resizePolicy != ResizeForbid {
		t.rehashStep()
	}
}
