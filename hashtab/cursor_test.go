// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtab

import "testing"

func TestNextCursorFullCycle(t *testing.T) {
	for _, mask := range []uint64{0, 1, 3, 7, 15, 255, 1023} {
		seen := make(map[uint64]bool)
		v := uint64(0)
		for {
			if v > mask {
				t.Fatalf("mask %#x: cursor %#x out of range", mask, v)
			}
			if seen[v] {
				t.Fatalf("mask %#x: cursor %#x visited twice", mask, v)
			}
			seen[v] = true
			v = nextCursor(v, mask)
			if v == 0 {
				break
			}
		}
		if len(seen) != int(mask)+1 {
			t.Errorf("mask %#x: visited %d buckets, want %d", mask, len(seen), mask+1)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	for _, mask := range []uint64{0, 1, 7, 63, 255} {
		for c := uint64(0); c <= mask; c++ {
			if got := prevCursor(nextCursor(c, mask), mask); got != c {
				t.Errorf("mask %#x: prevCursor(nextCursor(%#x)) = %#x", mask, c, got)
			}
			if got := nextCursor(prevCursor(c, mask), mask) & mask; got != c {
				t.Errorf("mask %#x: nextCursor(prevCursor(%#x)) = %#x", mask, c, got)
			}
		}
	}
}

// The scan interleave depends on the cursor order grouping all large-table
// indexes that project onto the same small-table index into one
// consecutive block.
func TestCursorMaskProjection(t *testing.T) {
	const maskSmall, maskLarge = 7, 63
	var order []uint64
	v := uint64(0)
	for {
		order = append(order, v)
		v = nextCursor(v, maskLarge)
		if v == 0 {
			break
		}
	}
	runs := 0
	seen := make(map[uint64]bool)
	prev := uint64(1 << 63)
	for _, v := range order {
		small := v & maskSmall
		if small != prev {
			if seen[small] {
				t.Fatalf("small index %d appears in more than one block", small)
			}
			seen[small] = true
			runs++
			prev = small
		}
	}
	if runs != maskSmall+1 {
		t.Errorf("cursor order has %d blocks, want %d", runs, maskSmall+1)
	}
}
