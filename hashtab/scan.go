// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtab

import "math/bits"

// Scan visits a slice of the table and calls fn for each element in it.
// Start with cursor 0 and feed each returned cursor back in until 0 comes
// back. The scan is stateless: the table keeps nothing between calls, and
// the reverse-bit cursor stays meaningful across resizes, so every element
// present from the start of the scan to its end is emitted at least once.
// Elements added or deleted during the scan may or may not be emitted, and
// an element can be emitted more than once when a rehash splits buckets
// mid-scan. The callback must not add or delete elements.
func (t *Table[K, E]) Scan(cursor uint64, fn func(e E)) uint64 {
	return t.scan(cursor, func(b *bucket[E], pos int) {
		fn(b.elems[pos])
	})
}

// ScanRef is Scan with the callback receiving a pointer to the element's
// slot, for rewriting elements in place. Slot pointers are valid only for
// the duration of the callback; rehashing is suspended for the call, so
// buckets do not move under them.
func (t *Table[K, E]) ScanRef(cursor uint64, fn func(e *E)) uint64 {
	return t.scan(cursor, func(b *bucket[E], pos int) {
		fn(&b.elems[pos])
	})
}

// scan emits every occupied slot of the bucket at the cursor, in both
// tables while rehashing, and returns the advanced cursor. If any emitted
// bucket is ever-full, its probe chain may hold displaced elements whose
// primary bucket was already passed, so the walk continues through the
// chain until a bucket that was never full terminates it, or until the
// cursor wraps to zero: the scan started there, so the rest of the chain
// has already been emitted.
func (t *Table[K, E]) scan(cursor uint64, emit func(b *bucket[E], pos int)) uint64 {
	t.checkNotReleased()
	if t.Len() == 0 {
		return 0
	}
	t.PauseRehashing()
	t.scanning++
	defer func() {
		t.scanning--
		t.ResumeRehashing()
	}()

	for {
		inProbeSequence := false
		if !t.IsRehashing() {
			mask := t.mask(0)
			b := &t.tables[0][cursor&mask]
			emitBucket(b, emit)
			inProbeSequence = b.everfull()
			cursor = nextCursor(cursor, mask)
		} else {
			// Two tables of different size. Emit the bucket of the
			// smaller table, then the block of larger-table buckets
			// it expands to: the cursor walks all indexes that agree
			// with it on the smaller mask's bits.
			small, large := 0, 1
			if t.bucketExp[1] < t.bucketExp[0] {
				small, large = 1, 0
			}
			maskSmall := t.mask(small)
			maskLarge := t.mask(large)

			b := &t.tables[small][cursor&maskSmall]
			emitBucket(b, emit)
			inProbeSequence = b.everfull()
			for {
				b := &t.tables[large][cursor&maskLarge]
				emitBucket(b, emit)
				inProbeSequence = inProbeSequence || b.everfull()
				cursor = nextCursor(cursor, maskLarge)
				if cursor&(maskSmall^maskLarge) == 0 {
					break
				}
			}
		}
		if !inProbeSequence || cursor == 0 {
			break
		}
	}
	return cursor
}

func emitBucket[E any](b *bucket[E], emit func(b *bucket[E], pos int)) {
	for pb := b.presence(); pb != 0; pb &= pb - 1 {
		emit(b, bits.TrailingZeros16(uint16(pb)))
	}
}
