// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtab

import "math/bits"

// findBucket locates the bucket and slot holding the given key, probing
// from the key's primary bucket along the reverse-bit cursor order for as
// long as the ever-full flags say the chain continues. While rehashing,
// the new table is checked first: it has seen fewer insertions, so its
// chains are shorter. Returns table index -1 if the key is absent.
func (t *Table[K, E]) findBucket(hash uint64, key K) (int, *bucket[E], int) {
	h2 := highBits(hash)
	tables := [2]int{0, 1}
	if t.IsRehashing() {
		tables[0], tables[1] = 1, 0
	}
	for _, ti := range tables {
		if t.used[ti] == 0 {
			continue
		}
		mask := t.mask(ti)
		start := hash & mask
		idx := start
		for {
			b := &t.tables[ti][idx]
			for pb := b.presence(); pb != 0; pb &= pb - 1 {
				pos := bits.TrailingZeros16(uint16(pb))
				if b.hashes[pos] != h2 {
					continue
				}
				if t.compareKeys(key, t.elemKey(b.elems[pos])) {
					return ti, b, pos
				}
			}
			if !b.everfull() {
				break
			}
			idx = nextCursor(idx, mask)
			if idx == start {
				// Every bucket in the table is ever-full; the
				// probe has come full circle.
				break
			}
		}
	}
	return -1, nil, -1
}

// insert places an element in the active destination table (the new table
// while rehashing). The caller has already ruled out a duplicate key and
// made sure the table is not completely full, so the walk terminates.
func (t *Table[K, E]) insert(hash uint64, elem E) {
	ti := 0
	if t.IsRehashing() {
		ti = 1
	}
	t.insertAt(ti, hash&t.mask(ti), highBits(hash), elem)
}

// insertAt walks from a primary bucket index to the first bucket with a
// free slot and stores the element there. Any completely occupied bucket
// on the way is already marked ever-full, so skipping it keeps the probe
// chain intact for lookups.
func (t *Table[K, E]) insertAt(ti int, idx uint64, h2 uint8, elem E) {
	mask := t.mask(ti)
	for {
		b := &t.tables[ti][idx]
		if !b.full() {
			pos := b.freePos()
			b.elems[pos] = elem
			b.hashes[pos] = h2
			b.setOccupied(pos)
			t.used[ti]++
			return
		}
		idx = nextCursor(idx, mask)
	}
}
