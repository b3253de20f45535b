// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtab

import "math/bits"

// resize starts an incremental rehash into a table sized for minCapacity.
// It returns false when the target exponent equals the current one or
// cannot be represented. If a rehash is already running it is driven to
// completion first, so at most one pair of tables exists at any time. When
// the current table is empty the rehash completes within this call.
func (t *Table[K, E]) resize(minCapacity int) bool {
	exp := nextBucketExp(minCapacity)
	cur := t.bucketExp[0]
	if t.IsRehashing() {
		cur = t.bucketExp[1]
	}
	if exp == cur || exp > maxBucketExp {
		return false
	}
	if t.IsRehashing() {
		t.rehashFastForward()
	}
	var newTable []bucket[E]
	if exp >= 0 {
		newTable = make([]bucket[E], 1<<uint(exp))
	}
	t.tables[1] = newTable
	t.bucketExp[1] = exp
	t.used[1] = 0
	t.rehashIdx = 0
	if t.typ.RehashingStarted != nil {
		t.typ.RehashingStarted(t)
	}
	if t.used[0] == 0 {
		t.completeRehashing()
	}
	return true
}

// rehashStep migrates the single source bucket at rehashIdx into the new
// table and advances rehashIdx in reverse-bit cursor order. When the index
// wraps to zero every bucket has been visited and the rehash completes.
func (t *Table[K, E]) rehashStep() {
	srcMask := t.mask(0)
	idx := uint64(t.rehashIdx)
	b := &t.tables[0][idx]

	// When shrinking, an element whose probe chain starts in this bucket
	// keeps its low hash bits, so its destination is this index masked
	// down. The chain starts here exactly when the preceding bucket in
	// cursor order is not ever-full. Migrated buckets keep their
	// ever-full flag, so this holds for them too.
	reuseIdx := false
	if t.bucketExp[1] < t.bucketExp[0] {
		reuseIdx = !t.tables[0][prevCursor(idx, srcMask)].everfull()
	}

	dstMask := t.mask(1)
	for pb := b.presence(); pb != 0; pb &= pb - 1 {
		pos := bits.TrailingZeros16(uint16(pb))
		elem := b.elems[pos]
		var dstIdx uint64
		if reuseIdx {
			dstIdx = idx & dstMask
		} else {
			dstIdx = t.hashElement(elem) & dstMask
		}
		// The stored hash byte comes from the same full hash and moves
		// unchanged.
		t.insertAt(1, dstIdx, b.hashes[pos], elem)
		t.used[0]--
	}

	var zero E
	for i := range b.elems {
		b.elems[i] = zero
	}
	b.bits &= everfullFlag

	next := nextCursor(idx, srcMask)
	if next == 0 {
		t.completeRehashing()
	} else {
		t.rehashIdx = int64(next)
	}
}

// rehashFastForward drives the current rehash to completion.
func (t *Table[K, E]) rehashFastForward() {
	for t.IsRehashing() {
		t.rehashStep()
	}
}

// completeRehashing invokes the user callback, frees the old bucket array
// and installs the new table in slot 0.
func (t *Table[K, E]) completeRehashing() {
	if t.typ.RehashingCompleted != nil {
		t.typ.RehashingCompleted(t)
	}
	t.tables[0] = t.tables[1]
	t.bucketExp[0] = t.bucketExp[1]
	t.used[0] = t.used[1]
	t.tables[1] = nil
	t.bucketExp[1] = -1
	t.used[1] = 0
	t.rehashIdx = -1
}
