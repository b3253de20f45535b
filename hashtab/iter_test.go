// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtab

import (
	"fmt"
	"testing"
)

func TestIterVisitsAllOnce(t *testing.T) {
	ht := newEntryTable()
	const count = 1000
	for i := 0; i < count; i++ {
		ht.Add(&entry{key: fmt.Sprintf("k%d", i)})
	}
	seen := make(map[string]int)
	it := ht.Iter()
	for it.Next() {
		seen[it.Elem().key]++
	}
	it.Release()
	if len(seen) != count {
		t.Fatalf("iterator visited %d distinct keys, want %d", len(seen), count)
	}
	for key, n := range seen {
		if n != 1 {
			t.Errorf("key %q visited %d times", key, n)
		}
	}
}

func TestIterDuringRehash(t *testing.T) {
	defer SetResizePolicy(ResizeAllow)
	ht := forceFrozenRehash(t, 300)
	seen := make(map[string]int)
	it := ht.Iter()
	for it.Next() {
		seen[it.Elem().key]++
	}
	it.Release()
	if len(seen) != 300 {
		t.Fatalf("iterator visited %d distinct keys, want 300", len(seen))
	}
	for key, n := range seen {
		if n != 1 {
			t.Errorf("key %q visited %d times", key, n)
		}
	}
	if ht.IsRehashingPaused() {
		t.Error("rehashing still paused after Release")
	}
}

func TestIterPausesRehashing(t *testing.T) {
	defer SetResizePolicy(ResizeAllow)
	ht := forceFrozenRehash(t, 100)
	SetResizePolicy(ResizeAllow)
	before := ht.rehashIdx
	it := ht.Iter()
	for it.Next() {
		if !ht.IsRehashingPaused() {
			t.Fatal("rehashing not paused during iteration")
		}
	}
	it.Release()
	if ht.rehashIdx != before {
		t.Error("iteration advanced the rehash")
	}
}

func TestSafeIterDelete(t *testing.T) {
	ht := newEntryTable()
	const count = 1000
	for i := 0; i < count; i++ {
		ht.Add(&entry{key: fmt.Sprintf("k%d", i)})
	}
	ht.rehashFastForward()
	expBefore := ht.bucketExp[0]
	it := ht.SafeIter()
	deleted := 0
	for it.Next() {
		if deleted < count-10 {
			if !ht.Delete(it.Elem().key) {
				t.Fatalf("Delete(%q) during safe iteration failed", it.Elem().key)
			}
			deleted++
		}
	}
	// Auto-shrink is suspended while the safe iterator is live, so the
	// bucket array must not have moved under it.
	if ht.bucketExp[0] != expBefore {
		t.Error("table resized during safe iteration")
	}
	it.Release()
	if ht.Len() != count-deleted {
		t.Errorf("Len() = %d, want %d", ht.Len(), count-deleted)
	}
	// Release resumes auto-shrink, which shrinks the now nearly empty
	// table.
	ht.rehashFastForward()
	if ht.bucketExp[0] >= expBefore {
		t.Errorf("table did not shrink after Release: exp %d", ht.bucketExp[0])
	}
	checkTable(t, ht)
}

func TestIterEmptyTable(t *testing.T) {
	ht := newEntryTable()
	it := ht.Iter()
	if it.Next() {
		t.Error("Next() on empty table returned true")
	}
	it.Release()
}
