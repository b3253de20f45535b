// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtab

import "math/bits"

// A table with 2^e buckets holds up to 2^e*elementsPerBucket elements.
// Capacity above this exponent would overflow the bucket array size.
const maxBucketExp = bits.UintSize - 5

// bucket is one probe unit of the table. The hashes array holds the top
// byte of each occupied slot's full hash and is checked before the key
// comparison callback is invoked.
type bucket[E any] struct {
	bits   bucketBits
	hashes [elementsPerBucket]uint8
	elems  [elementsPerBucket]E
}

// everfull reports whether this bucket has at some point been completely
// occupied. The flag is sticky: a probe chain may continue past this
// bucket even if slots have since been freed.
func (b *bucket[E]) everfull() bool {
	return b.bits&everfullFlag != 0
}

func (b *bucket[E]) occupied(pos int) bool {
	return b.bits&(1<<pos) != 0
}

// setOccupied marks a slot as present. Filling the last free slot makes
// the bucket ever-full, in the same operation, so the probe chain is
// extended before anything else can observe the bucket.
func (b *bucket[E]) setOccupied(pos int) {
	b.bits |= 1 << pos
	if b.bits&presenceMask == presenceMask {
		b.bits |= everfullFlag
	}
}

func (b *bucket[E]) clearOccupied(pos int) {
	b.bits &^= 1 << pos
}

func (b *bucket[E]) full() bool {
	return b.bits&presenceMask == presenceMask
}

func (b *bucket[E]) presence() bucketBits {
	return b.bits & presenceMask
}

// freePos returns the lowest free slot index. Only valid if !full().
func (b *bucket[E]) freePos() int {
	return bits.TrailingZeros16(uint16(^b.bits & presenceMask))
}

func (b *bucket[E]) numOccupied() int {
	return bits.OnesCount16(uint16(b.bits & presenceMask))
}

// highBits extracts the byte of the hash stored per slot as a fast reject
// filter. The low bits select the bucket, so the two parts are independent
// for any table of fewer than 2^56 buckets.
func highBits(hash uint64) uint8 {
	return uint8(hash >> 56)
}

// nextCursor advances a bucket cursor in reverse-bit-increment order: the
// masked index is incremented from its most significant bit downwards.
// Successive calls visit every index in [0, mask] exactly once before
// returning to zero. The same ordering is used for probing, for the rehash
// source index and for scanning, because it is stable across table
// resizes: a cursor position under a larger mask projects onto the
// position under a smaller mask by dropping high bits.
func nextCursor(v, mask uint64) uint64 {
	v |= ^mask
	v = bits.Reverse64(v)
	v++
	return bits.Reverse64(v)
}

// prevCursor is the inverse of nextCursor under the same mask.
func prevCursor(v, mask uint64) uint64 {
	v = bits.Reverse64(v & mask)
	v--
	return bits.Reverse64(v) & mask
}
