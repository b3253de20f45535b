// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtab

import (
	"fmt"
	"sort"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"golang.org/x/exp/rand"
)

// runScan drives a scan from cursor 0 to completion and returns every
// emitted key, deduplicated.
func runScan(ht *entryTable) map[string]bool {
	emitted := make(map[string]bool)
	cursor := uint64(0)
	for {
		cursor = ht.Scan(cursor, func(e *entry) {
			emitted[e.key] = true
		})
		if cursor == 0 {
			return emitted
		}
	}
}

func TestScanEmitsAll(t *testing.T) {
	ht := newEntryTable()
	want := make([]string, 1000)
	for i := range want {
		want[i] = fmt.Sprintf("k%d", i)
		ht.Add(&entry{key: want[i]})
	}
	emitted := runScan(ht)
	got := make([]string, 0, len(emitted))
	for key := range emitted {
		got = append(got, key)
	}
	sort.Strings(got)
	sort.Strings(want)
	if diff := pretty.Compare(got, want); diff != "" {
		t.Errorf("scan emitted wrong key set: (-got +want)\n%s", diff)
	}
}

func TestScanEmptyTable(t *testing.T) {
	ht := newEntryTable()
	if cursor := ht.Scan(0, func(e *entry) {}); cursor != 0 {
		t.Errorf("Scan of empty table returned cursor %d", cursor)
	}
}

func TestScanDuringRehash(t *testing.T) {
	defer SetResizePolicy(ResizeAllow)
	ht := forceFrozenRehash(t, 300)
	if !ht.IsRehashing() {
		t.Fatal("table not rehashing")
	}
	emitted := runScan(ht)
	for i := 0; i < 300; i++ {
		if !emitted[fmt.Sprintf("k%d", i)] {
			t.Errorf("k%d not emitted while rehashing", i)
		}
	}
}

func TestScanPausesRehashing(t *testing.T) {
	defer SetResizePolicy(ResizeAllow)
	ht := forceFrozenRehash(t, 100)
	SetResizePolicy(ResizeAllow)
	before := ht.rehashIdx
	ht.Scan(0, func(e *entry) {
		if !ht.IsRehashingPaused() {
			t.Error("rehashing not paused inside scan callback")
		}
	})
	if ht.rehashIdx != before {
		t.Error("scan itself advanced the rehash")
	}
	if ht.IsRehashingPaused() {
		t.Error("rehashing still paused after scan returned")
	}
}

// Every element present for the whole scan must be emitted at least once,
// despite interleaved insertions, deletions and the resizes they trigger.
func TestScanCoverageUnderChurn(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	ht := newEntryTable()
	const fixed = 64
	for i := 0; i < fixed; i++ {
		ht.Add(&entry{key: fmt.Sprintf("fixed-%d", i)})
	}
	churn := 0
	for i := 0; i < 100; i++ {
		ht.Add(&entry{key: fmt.Sprintf("churn-%d", churn)})
		churn++
	}
	emitted := make(map[string]bool)
	cursor := uint64(0)
	iterations := 0
	for {
		cursor = ht.Scan(cursor, func(e *entry) {
			emitted[e.key] = true
		})
		if cursor == 0 {
			break
		}
		// Mutate between scan calls: grow and shrink the churn set so
		// the table resizes while the scan is mid-flight.
		n := r.Intn(60)
		for i := 0; i < n; i++ {
			ht.Add(&entry{key: fmt.Sprintf("churn-%d", churn)})
			churn++
		}
		for i := 0; i < n+40 && churn > 0; i++ {
			churn--
			ht.Delete(fmt.Sprintf("churn-%d", churn))
		}
		if iterations++; iterations > 100000 {
			t.Fatal("scan did not terminate")
		}
	}
	for i := 0; i < fixed; i++ {
		key := fmt.Sprintf("fixed-%d", i)
		if !emitted[key] {
			t.Errorf("%s present throughout the scan but never emitted", key)
		}
	}
}

func TestScanRefRewritesInPlace(t *testing.T) {
	ht := newEntryTable()
	for i := 0; i < 500; i++ {
		ht.Add(&entry{key: fmt.Sprintf("k%d", i), val: i})
	}
	cursor := uint64(0)
	for {
		cursor = ht.ScanRef(cursor, func(e **entry) {
			// Replace the element handle, keeping the key.
			*e = &entry{key: (*e).key, val: (*e).val + 1000}
		})
		if cursor == 0 {
			break
		}
	}
	for i := 0; i < 500; i++ {
		e, ok := ht.Find(fmt.Sprintf("k%d", i))
		if !ok {
			t.Fatalf("Find(k%d) failed after rewrite", i)
		}
		if e.val < 1000 {
			t.Errorf("k%d not rewritten: val=%d", i, e.val)
		}
	}
	checkTable(t, ht)
}

// Deleting every key discovered by a scan must empty the table, with any
// remaining rehashing settled afterwards.
func TestScanGuidedDeletion(t *testing.T) {
	ht := newEntryTable()
	for i := 0; i < 16; i++ {
		ht.Add(&entry{key: fmt.Sprintf("%d", i)})
	}
	if ht.Len() != 16 {
		t.Fatalf("Len() = %d, want 16", ht.Len())
	}
	if _, ok := ht.Find("7"); !ok {
		t.Error(`Find("7") failed`)
	}
	if _, ok := ht.Find("99"); ok {
		t.Error(`Find("99") succeeded`)
	}
	for key := range runScan(ht) {
		if !ht.Delete(key) {
			t.Errorf("Delete(%q) failed", key)
		}
	}
	ht.rehashFastForward()
	if ht.Len() != 0 {
		t.Errorf("Len() = %d after deleting all scanned keys", ht.Len())
	}
}
