// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"encoding/binary"
	"fmt"
	"io"
)

// blockEntry is one 16-byte block table record, widened with the parallel
// hi-block table word when the archive carries one.
type blockEntry struct {
	// FilePos is the low 32 bits of the blob offset from the archive base.
	FilePos uint32
	// CompressedSize is the stored blob size including the sector map.
	CompressedSize uint32
	// FileSize is the uncompressed size.
	FileSize uint32
	// Flags is the flag word.
	Flags uint32
	// FilePosHi is the high 16 bits of the blob offset (v2+).
	FilePosHi uint16
}

// pos64 returns the full 48-bit blob position.
func (b *blockEntry) pos64() uint64 {
	return uint64(b.FilePosHi)<<32 | uint64(b.FilePos)
}

// setPos64 splits a position into the classic and hi-table parts.
func (b *blockEntry) setPos64(pos uint64) {
	b.FilePos = uint32(pos)
	b.FilePosHi = uint16(pos >> 32)
}

// readBlockTable reads and decrypts the classic block table.
func readBlockTable(ra io.ReaderAt, pos int64, count uint32) ([]blockEntry, error) {
	raw := make([]byte, int64(count)*blockEntrySize)
	if _, err := ra.ReadAt(raw, pos); err != nil {
		return nil, fmt.Errorf("read block table: %w", err)
	}

	decryptBytes(raw, blockTableKey)

	table := make([]blockEntry, count)
	for i := range table {
		rec := raw[i*blockEntrySize:]
		table[i] = blockEntry{
			FilePos:        binary.LittleEndian.Uint32(rec[0:4]),
			CompressedSize: binary.LittleEndian.Uint32(rec[4:8]),
			FileSize:       binary.LittleEndian.Uint32(rec[8:12]),
			Flags:          binary.LittleEndian.Uint32(rec[12:16]),
		}
	}

	return table, nil
}

// readHiBlockTable reads the unencrypted array of position high words and
// merges it into the block table.
func readHiBlockTable(ra io.ReaderAt, pos int64, table []blockEntry) error {
	raw := make([]byte, len(table)*2)
	if _, err := ra.ReadAt(raw, pos); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptHiBlockTable, err)
	}

	for i := range table {
		table[i].FilePosHi = binary.LittleEndian.Uint16(raw[i*2:])
	}

	return nil
}

// marshalBlockTable serializes and encrypts the block table for disk.
func marshalBlockTable(table []blockEntry) []byte {
	raw := make([]byte, len(table)*blockEntrySize)
	for i, e := range table {
		rec := raw[i*blockEntrySize:]
		binary.LittleEndian.PutUint32(rec[0:4], e.FilePos)
		binary.LittleEndian.PutUint32(rec[4:8], e.CompressedSize)
		binary.LittleEndian.PutUint32(rec[8:12], e.FileSize)
		binary.LittleEndian.PutUint32(rec[12:16], e.Flags)
	}

	encryptBytes(raw, blockTableKey)
	return raw
}

// marshalHiBlockTable serializes the parallel high-word array. It is stored
// unencrypted.
func marshalHiBlockTable(table []blockEntry) []byte {
	raw := make([]byte, len(table)*2)
	for i := range table {
		binary.LittleEndian.PutUint16(raw[i*2:], table[i].FilePosHi)
	}

	return raw
}
