// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

//go:build !386 && !arm && !mips && !mipsle

package hashtab

// On 64-bit targets a bucket with pointer-sized elements is exactly one
// 64-byte cache line: a one-byte header, 7 hash bytes and 7 eight-byte
// element slots.
const elementsPerBucket = 7

// bucketBits is the bucket header: the presence bitmap in its low 7 bits,
// the ever-full flag in the top bit.
type bucketBits uint8

const (
	everfullFlag bucketBits = 1 << 7
	presenceMask bucketBits = 1<<elementsPerBucket - 1
)
