// Package storage defines the primitives shared with the key-value storage
// engine: ordered byte keys, column/value entries, and the slice range
// matcher used when scanning a row's sorted entries.
package storage

import "bytes"

// ByteKey is an immutable byte string ordered lexicographically.
type ByteKey []byte

// Compare returns -1, 0, or 1 as k sorts before, equal to, or after other.
func (k ByteKey) Compare(other ByteKey) int {
	return bytes.Compare(k, other)
}

// Equal reports whether k and other hold the same bytes.
func (k ByteKey) Equal(other ByteKey) bool {
	return bytes.Equal(k, other)
}

// ZeroKey returns a key of length n with every byte 0x00, the smallest key
// of that length.
func ZeroKey(n int) ByteKey {
	return make(ByteKey, n)
}

// OneKey returns a key of length n with every byte 0xff, the largest key of
// that length.
func OneKey(n int) ByteKey {
	k := make(ByteKey, n)
	for i := range k {
		k[i] = 0xff
	}
	return k
}

// Entry is a single column/value pair within a storage row. A row's entries
// are sorted ascending by column.
type Entry struct {
	Column ByteKey
	Value  []byte
}

// EntryList is a column-sorted sequence of entries for one row.
type EntryList []Entry
