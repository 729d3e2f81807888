// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"encoding/binary"
	"fmt"
	"io"
)

// hashEntry is one 16-byte classic hash table record.
type hashEntry struct {
	// NameA is the first verification hash of the file name.
	NameA uint32
	// NameB is the second verification hash of the file name.
	NameB uint32
	// Locale is the entry locale tag.
	Locale uint16
	// Platform is preserved but always zero in practice.
	Platform uint16
	// BlockIndex points into the block table, or holds a sentinel.
	BlockIndex uint32
}

// validHashCapacity reports whether n is a legal hash table size:
// a power of two in [4, 2^20].
func validHashCapacity(n uint32) bool {
	return n >= minHashCapacity && n <= maxHashCapacity && n&(n-1) == 0
}

// readHashTable reads and decrypts the classic hash table.
func readHashTable(ra io.ReaderAt, pos int64, count uint32) ([]hashEntry, error) {
	if !validHashCapacity(count) {
		return nil, fmt.Errorf("%w: size %d is not a power of two in [4, 2^20]", ErrCorruptHashTable, count)
	}

	raw := make([]byte, int64(count)*hashEntrySize)
	if _, err := ra.ReadAt(raw, pos); err != nil {
		return nil, fmt.Errorf("read hash table: %w", err)
	}

	decryptBytes(raw, hashTableKey)

	table := make([]hashEntry, count)
	for i := range table {
		rec := raw[i*hashEntrySize:]
		table[i] = hashEntry{
			NameA:      binary.LittleEndian.Uint32(rec[0:4]),
			NameB:      binary.LittleEndian.Uint32(rec[4:8]),
			Locale:     binary.LittleEndian.Uint16(rec[8:10]),
			Platform:   binary.LittleEndian.Uint16(rec[10:12]),
			BlockIndex: binary.LittleEndian.Uint32(rec[12:16]),
		}
	}

	return table, nil
}

// marshalHashTable serializes and encrypts the hash table for disk.
func marshalHashTable(table []hashEntry) []byte {
	raw := make([]byte, len(table)*hashEntrySize)
	for i, e := range table {
		rec := raw[i*hashEntrySize:]
		binary.LittleEndian.PutUint32(rec[0:4], e.NameA)
		binary.LittleEndian.PutUint32(rec[4:8], e.NameB)
		binary.LittleEndian.PutUint16(rec[8:10], e.Locale)
		binary.LittleEndian.PutUint16(rec[10:12], e.Platform)
		binary.LittleEndian.PutUint32(rec[12:16], e.BlockIndex)
	}

	encryptBytes(raw, hashTableKey)
	return raw
}

// newHashTable allocates a table of the given capacity with every slot in the
// never-used state. Synthesis never mints the deleted sentinel.
func newHashTable(capacity uint32) []hashEntry {
	table := make([]hashEntry, capacity)
	for i := range table {
		table[i] = hashEntry{
			NameA:      0xFFFFFFFF,
			NameB:      0xFFFFFFFF,
			Locale:     0xFFFF,
			Platform:   0xFFFF,
			BlockIndex: blockIndexEmpty,
		}
	}

	return table
}

// hashTableInsert places a name into the table by linear probing from its
// natural slot. Platform is always written as zero.
func hashTableInsert(table []hashEntry, name string, locale uint16, blockIndex uint32) error {
	capacity := uint32(len(table))
	start := hashName(name, hashTableIndex) % capacity

	for i := uint32(0); i < capacity; i++ {
		slot := &table[(start+i)%capacity]
		if slot.BlockIndex != blockIndexEmpty && slot.BlockIndex != blockIndexDeleted {
			continue
		}

		*slot = hashEntry{
			NameA:      hashName(name, hashNameA),
			NameB:      hashName(name, hashNameB),
			Locale:     locale,
			Platform:   0,
			BlockIndex: blockIndex,
		}
		return nil
	}

	return fmt.Errorf("%w: %d slots", ErrHashTableFull, capacity)
}

// hashTableLookup probes for a name. Probing is linear: a never-used slot
// terminates the search, a deleted slot is skipped, and the probe wraps
// around at most once.
func hashTableLookup(table []hashEntry, name string, locale uint16) (*hashEntry, error) {
	capacity := uint32(len(table))
	if capacity == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	start := hashName(name, hashTableIndex) % capacity
	nameA := hashName(name, hashNameA)
	nameB := hashName(name, hashNameB)

	for i := uint32(0); i < capacity; i++ {
		entry := &table[(start+i)%capacity]

		if entry.BlockIndex == blockIndexEmpty {
			break
		}
		if entry.BlockIndex == blockIndexDeleted {
			continue
		}
		if entry.NameA == nameA && entry.NameB == nameB &&
			(locale == LocaleAny || entry.Locale == locale) {
			return entry, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
}
