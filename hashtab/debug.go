// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtab

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes the internal bucket state to w, for debugging only.
func (t *Table[K, E]) Dump(w io.Writer) {
	t.checkNotReleased()
	fmt.Fprintf(w, "len: %d rehashIdx: %d pauseRehash: %d pauseAutoShrink: %d\n",
		t.Len(), t.rehashIdx, t.pauseRehash, t.pauseAutoShrink)
	for ti := 0; ti <= 1; ti++ {
		if t.bucketExp[ti] < 0 {
			continue
		}
		fmt.Fprintf(w, "table %d: buckets: %d used: %d\n", ti, t.numBuckets(ti), t.used[ti])
		for i := range t.tables[ti] {
			b := &t.tables[ti][i]
			fmt.Fprintf(w, "  bucket %d:", i)
			if b.everfull() {
				fmt.Fprint(w, " everfull")
			}
			for pos := 0; pos < elementsPerBucket; pos++ {
				if b.occupied(pos) {
					fmt.Fprintf(w, " [%d]=0x%02x", pos, b.hashes[pos])
				}
			}
			fmt.Fprintln(w)
		}
	}
}

// Histogram returns a textual histogram of bucket occupancy, one line per
// table, for debugging only.
func (t *Table[K, E]) Histogram() string {
	t.checkNotReleased()
	var buf strings.Builder
	for ti := 0; ti <= 1; ti++ {
		if t.bucketExp[ti] < 0 {
			continue
		}
		var counts [elementsPerBucket + 1]int
		everfull := 0
		for i := range t.tables[ti] {
			b := &t.tables[ti][i]
			counts[b.numOccupied()]++
			if b.everfull() {
				everfull++
			}
		}
		fmt.Fprintf(&buf, "table %d:", ti)
		for n, c := range counts {
			fmt.Fprintf(&buf, " %d:%d", n, c)
		}
		fmt.Fprintf(&buf, " everfull:%d\n", everfull)
	}
	return buf.String()
}

// LongestProbingChain returns the longest distance, in buckets, between
// any element's primary bucket and the bucket it is stored in. For
// debugging only; this rehashes nothing and visits every element.
func (t *Table[K, E]) LongestProbingChain() int {
	t.checkNotReleased()
	longest := 0
	for ti := 0; ti <= 1; ti++ {
		mask := t.mask(ti)
		for i := range t.tables[ti] {
			b := &t.tables[ti][i]
			for pos := 0; pos < elementsPerBucket; pos++ {
				if !b.occupied(pos) {
					continue
				}
				idx := t.hashElement(b.elems[pos]) & mask
				dist := 0
				for idx != uint64(i) && dist <= int(mask) {
					idx = nextCursor(idx, mask)
					dist++
				}
				if dist > longest {
					longest = dist
				}
			}
		}
	}
	return longest
}
