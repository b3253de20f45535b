// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtab

import (
	"errors"
	"math/bits"
)

// Sizing: a resize to hold n elements allocates at least
// n*bucketFactor/bucketDivisor buckets, rounded up to a power of two. The
// constants keep the fill factor after any completed resize at or below
// maxFillPercentSoft.
const (
	bucketFactor  = 3
	bucketDivisor = 16

	maxFillPercentSoft = 77
	maxFillPercentHard = 90
	minFillPercentSoft = 13
	minFillPercentHard = 3
)

// Fails to compile if the sizing constants allow a post-resize fill above
// the soft limit, i.e. unless 100*divisor <= soft*factor*elementsPerBucket.
const _ uint = maxFillPercentSoft*bucketFactor*elementsPerBucket - 100*bucketDivisor

// ErrCapacity is returned by TryExpand when the requested capacity cannot
// be represented by any bucket array on this platform.
var ErrCapacity = errors.New("hashtab: capacity out of range")

// nextBucketExp returns the smallest bucket exponent accommodating
// minCapacity elements within the soft fill limit, or -1 for an empty
// table. Computed without division: the bucket count is rounded up to
// minCapacity*bucketFactor/bucketDivisor and then to a power of two.
func nextBucketExp(minCapacity int) int8 {
	if minCapacity <= 0 {
		return -1
	}
	minBuckets := (uint64(minCapacity)*bucketFactor + bucketDivisor - 1) / bucketDivisor
	if minBuckets <= 1 {
		return 0
	}
	return int8(bits.Len64(minBuckets - 1))
}

// Expand grows the table to hold at least size elements. It returns false
// if size is smaller than the current number of elements, if the table
// already has the target size, or if the required bucket array would be
// too large.
func (t *Table[K, E]) Expand(size int) bool {
	t.checkMayMutate()
	if size < t.Len() {
		return false
	}
	return t.resize(size)
}

// TryExpand is Expand, but reports an unrepresentable capacity as
// ErrCapacity rather than folding it into the boolean result. A size below
// the current length is also an error; a size that needs no new bucket
// array is not, and returns nil where Expand returns false.
func (t *Table[K, E]) TryExpand(size int) error {
	t.checkMayMutate()
	if size < t.Len() {
		return errors.New("hashtab: expand size below current length")
	}
	if nextBucketExp(size) > maxBucketExp {
		return ErrCapacity
	}
	t.resize(size)
	return nil
}

// ExpandIfNeeded grows the table when one more element would exceed the
// policy's fill limit: the soft limit normally, the hard limit when the
// policy avoids resizing. It does not start a new rehash while rehashing
// is paused.
func (t *Table[K, E]) ExpandIfNeeded() bool {
	t.checkMayMutate()
	if t.pauseRehash > 0 {
		return false
	}
	minCapacity := t.Len() + 1
	ti := 0
	if t.IsRehashing() {
		ti = 1
	}
	capacity := t.numBuckets(ti) * elementsPerBucket
	maxFill := maxFillPercentSoft
	if resizePolicy != ResizeAllow {
		maxFill = maxFillPercentHard
	}
	if minCapacity*100 <= capacity*maxFill {
		return false
	}
	return t.resize(minCapacity)
}

func (t *Table[K, E]) expandIfNeeded() {
	t.ExpandIfNeeded()
}

// ShrinkIfNeeded shrinks the table when deletions have brought the fill
// below the policy's minimum. Shrinking never happens during a rehash,
// while auto-shrink is paused, or under the forbid policy.
func (t *Table[K, E]) ShrinkIfNeeded() bool {
	t.checkMayMutate()
	if t.IsRehashing() || t.pauseAutoShrink > 0 || resizePolicy == ResizeForbid {
		return false
	}
	if t.bucketExp[0] < 0 {
		return false
	}
	capacity := t.numBuckets(0) * elementsPerBucket
	minFill := minFillPercentSoft
	if resizePolicy != ResizeAllow {
		minFill = minFillPercentHard
	}
	if t.used[0]*100 >= capacity*minFill {
		return false
	}
	return t.resize(t.used[0])
}
