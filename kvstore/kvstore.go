// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package kvstore composes hashtab tables into a partitioned key-value
// store. Keys route to a fixed set of shards by the same seeded hash the
// tables use internally, so each rehash covers one shard rather than the
// whole keyspace; several shards may be rehashing at once. The store tracks which shards are mid-rehash through
// the table lifecycle hooks.
package kvstore

import (
	"encoding/binary"

	"github.com/aristanetworks/glog"

	"github.com/zuiderkwast/placeholderkv/hashtab"
)

// Entry is one key-value pair. The value is opaque to the store.
type Entry struct {
	Key   string
	Value interface{}
}

type shard = hashtab.Table[string, *Entry]

// Store is a set of 1<<shardBits hash table shards.
type Store struct {
	shards    []*shard
	shardBits uint
	rehashing int
}

// New creates a store with 1<<shardBits shards.
func New(shardBits uint) *Store {
	s := &Store{
		shards:    make([]*shard, 1<<shardBits),
		shardBits: shardBits,
	}
	typ := &hashtab.Type[string, *Entry]{
		ElementGetKey: func(e *Entry) string { return e.Key },
		KeyCompare: func(_ *shard, a, b string) bool {
			return a == b
		},
		RehashingStarted: func(t *shard) {
			s.rehashing++
			glog.V(2).Infof("kvstore: shard %d rehashing (%d total)", shardIndex(t), s.rehashing)
		},
		RehashingCompleted: func(t *shard) {
			s.rehashing--
			glog.V(2).Infof("kvstore: shard %d done rehashing (%d left)", shardIndex(t), s.rehashing)
		},
		// Each table carries its shard index so the hooks can tell the
		// shards apart without a lookup.
		MetadataSize: func() int { return 8 },
	}
	for i := range s.shards {
		t := hashtab.New(typ)
		binary.LittleEndian.PutUint64(t.Metadata(), uint64(i))
		s.shards[i] = t
	}
	return s
}

func shardIndex(t *shard) int {
	return int(binary.LittleEndian.Uint64(t.Metadata()))
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[hashtab.DefaultHash(key)&uint64(len(s.shards)-1)]
}

// Set stores a value under key, replacing any existing value. It returns
// true if the key was new.
func (s *Store) Set(key string, value interface{}) bool {
	return s.shardFor(key).Replace(&Entry{Key: key, Value: value})
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (interface{}, bool) {
	e, ok := s.shardFor(key).Find(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Delete removes key from the store.
func (s *Store) Delete(key string) bool {
	return s.shardFor(key).Delete(key)
}

// Len returns the number of keys across all shards.
func (s *Store) Len() int {
	n := 0
	for _, t := range s.shards {
		n += t.Len()
	}
	return n
}

// NumShards returns the number of shards.
func (s *Store) NumShards() int {
	return len(s.shards)
}

// RehashingCount returns the number of shards currently mid-rehash.
func (s *Store) RehashingCount() int {
	return s.rehashing
}

// Scan walks the whole store with a stateless cursor, shard by shard.
// Start at 0 and feed each returned cursor back in until 0 comes back.
// The shard index lives in the cursor's low bits, the shard's own scan
// cursor above them, so the coverage guarantee of the table scan carries
// over per shard.
func (s *Store) Scan(cursor uint64, fn func(e *Entry)) uint64 {
	i := cursor & uint64(len(s.shards)-1)
	c := cursor >> s.shardBits
	for i < uint64(len(s.shards)) {
		c = s.shards[i].Scan(c, fn)
		if c != 0 {
			return c<<s.shardBits | i
		}
		i++
	}
	return 0
}

// TryResizeShards expands or shrinks any shard whose fill has drifted
// outside the policy's bounds. Intended to be called periodically from
// the server's cron.
func (s *Store) TryResizeShards() {
	for _, t := range s.shards {
		t.ExpandIfNeeded()
		t.ShrinkIfNeeded()
	}
}

// Release frees all shards and their entries.
func (s *Store) Release() {
	for _, t := range s.shards {
		t.Release()
	}
	s.shards = nil
}
