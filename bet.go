// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"encoding/binary"
	"fmt"
)

// betHeaderSize is the fixed header inside the BET body: 20 little-endian
// 32-bit words.
const betHeaderSize = 80

// betTable is the extended block table: bit-packed file records with
// per-field widths chosen at build time, a small distinct-flags array the
// records index into, and a parallel 64-bit name hash array.
type betTable struct {
	fileCount      uint32
	tableEntrySize uint32

	bitIndexFilePos   uint32
	bitIndexFileSize  uint32
	bitIndexCmpSize   uint32
	bitIndexFlagIndex uint32

	bitCountFilePos   uint32
	bitCountFileSize  uint32
	bitCountCmpSize   uint32
	bitCountFlagIndex uint32

	flags   []uint32
	records *bitArray
	// nameHashes holds the full Jenkins hash of each member, parallel to the
	// record array, used to confirm HET probe hits.
	nameHashes []uint64
}

// betRecord is one unpacked BET file record.
type betRecord struct {
	FilePos        uint64
	FileSize       uint64
	CompressedSize uint64
	Flags          uint32
}

// record unpacks the file record at the given index.
func (t *betTable) record(index uint32) (*betRecord, error) {
	if index >= t.fileCount {
		return nil, fmt.Errorf("%w: BET index %d of %d", ErrInvalidBlockIndex, index, t.fileCount)
	}

	base := uint64(index) * uint64(t.tableEntrySize)
	rec := &betRecord{
		FilePos:        t.records.extract(base+uint64(t.bitIndexFilePos), uint64(t.bitCountFilePos)),
		FileSize:       t.records.extract(base+uint64(t.bitIndexFileSize), uint64(t.bitCountFileSize)),
		CompressedSize: t.records.extract(base+uint64(t.bitIndexCmpSize), uint64(t.bitCountCmpSize)),
	}

	flagIndex := t.records.extract(base+uint64(t.bitIndexFlagIndex), uint64(t.bitCountFlagIndex))
	if flagIndex < uint64(len(t.flags)) {
		rec.Flags = t.flags[flagIndex]
	}

	return rec, nil
}

// verifyName confirms that the record at index belongs to the given name.
func (t *betTable) verifyName(index uint32, name string) bool {
	if index >= uint32(len(t.nameHashes)) {
		// No hash array; trust the HET probe.
		return true
	}
	return t.nameHashes[index] == hashJenkins(name)
}

// buildBetTable packs block records with minimum field widths. The record
// order mirrors the classic block table, so BET file indices equal block
// indices.
func buildBetTable(blocks []blockEntry, hashes []uint64) *betTable {
	var maxPos, maxSize, maxCmp uint64
	flagIndex := make(map[uint32]uint32)
	var flags []uint32

	for i := range blocks {
		if p := blocks[i].pos64(); p > maxPos {
			maxPos = p
		}
		if s := uint64(blocks[i].FileSize); s > maxSize {
			maxSize = s
		}
		if c := uint64(blocks[i].CompressedSize); c > maxCmp {
			maxCmp = c
		}
		if _, ok := flagIndex[blocks[i].Flags]; !ok {
			flagIndex[blocks[i].Flags] = uint32(len(flags))
			flags = append(flags, blocks[i].Flags)
		}
	}

	t := &betTable{
		fileCount:         uint32(len(blocks)),
		bitCountFilePos:   uint32(bitsFor(maxPos)),
		bitCountFileSize:  uint32(bitsFor(maxSize)),
		bitCountCmpSize:   uint32(bitsFor(maxCmp)),
		bitCountFlagIndex: uint32(bitsFor(uint64(len(flags) - 1))),
		flags:             flags,
		nameHashes:        hashes,
	}

	t.bitIndexFilePos = 0
	t.bitIndexFileSize = t.bitIndexFilePos + t.bitCountFilePos
	t.bitIndexCmpSize = t.bitIndexFileSize + t.bitCountFileSize
	t.bitIndexFlagIndex = t.bitIndexCmpSize + t.bitCountCmpSize
	t.tableEntrySize = t.bitIndexFlagIndex + t.bitCountFlagIndex

	t.records = newBitArray(uint64(t.fileCount) * uint64(t.tableEntrySize))
	for i := range blocks {
		base := uint64(i) * uint64(t.tableEntrySize)
		t.records.put(base+uint64(t.bitIndexFilePos), uint64(t.bitCountFilePos), blocks[i].pos64())
		t.records.put(base+uint64(t.bitIndexFileSize), uint64(t.bitCountFileSize), uint64(blocks[i].FileSize))
		t.records.put(base+uint64(t.bitIndexCmpSize), uint64(t.bitCountCmpSize), uint64(blocks[i].CompressedSize))
		t.records.put(base+uint64(t.bitIndexFlagIndex), uint64(t.bitCountFlagIndex), uint64(flagIndex[blocks[i].Flags]))
	}

	return t
}

// marshal serializes, optionally compresses, and encrypts the table.
func (t *betTable) marshal() []byte {
	recordBytes := t.records.data
	body := make([]byte, betHeaderSize+4*len(t.flags)+len(recordBytes)+8*len(t.nameHashes))

	binary.LittleEndian.PutUint32(body[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(body[4:8], t.fileCount)
	binary.LittleEndian.PutUint32(body[8:12], 0x10)
	binary.LittleEndian.PutUint32(body[12:16], t.tableEntrySize)
	binary.LittleEndian.PutUint32(body[16:20], t.bitIndexFilePos)
	binary.LittleEndian.PutUint32(body[20:24], t.bitIndexFileSize)
	binary.LittleEndian.PutUint32(body[24:28], t.bitIndexCmpSize)
	binary.LittleEndian.PutUint32(body[28:32], t.bitIndexFlagIndex)
	binary.LittleEndian.PutUint32(body[32:36], t.tableEntrySize)
	binary.LittleEndian.PutUint32(body[36:40], t.bitCountFilePos)
	binary.LittleEndian.PutUint32(body[40:44], t.bitCountFileSize)
	binary.LittleEndian.PutUint32(body[44:48], t.bitCountCmpSize)
	binary.LittleEndian.PutUint32(body[48:52], t.bitCountFlagIndex)
	binary.LittleEndian.PutUint32(body[52:56], 0)
	binary.LittleEndian.PutUint32(body[56:60], uint32(len(t.nameHashes))*64)
	binary.LittleEndian.PutUint32(body[60:64], 0)
	binary.LittleEndian.PutUint32(body[64:68], 64)
	binary.LittleEndian.PutUint32(body[68:72], uint32(len(t.nameHashes))*8)
	binary.LittleEndian.PutUint32(body[72:76], uint32(len(t.flags)))
	binary.LittleEndian.PutUint32(body[76:80], uint32(len(recordBytes)))

	off := betHeaderSize
	for _, f := range t.flags {
		binary.LittleEndian.PutUint32(body[off:], f)
		off += 4
	}
	copy(body[off:], recordBytes)
	off += len(recordBytes)
	for _, h := range t.nameHashes {
		binary.LittleEndian.PutUint64(body[off:], h)
		off += 8
	}

	return marshalExtTable(magicBet, body, blockTableKey)
}

// parseBetTable decodes a BET table read from disk.
func parseBetTable(raw []byte) (*betTable, error) {
	body, err := openExtTable(raw, magicBet, blockTableKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBetTable, err)
	}
	if len(body) < betHeaderSize {
		return nil, fmt.Errorf("%w: body %d bytes", ErrCorruptBetTable, len(body))
	}

	t := &betTable{
		fileCount:         binary.LittleEndian.Uint32(body[4:8]),
		tableEntrySize:    binary.LittleEndian.Uint32(body[12:16]),
		bitIndexFilePos:   binary.LittleEndian.Uint32(body[16:20]),
		bitIndexFileSize:  binary.LittleEndian.Uint32(body[20:24]),
		bitIndexCmpSize:   binary.LittleEndian.Uint32(body[24:28]),
		bitIndexFlagIndex: binary.LittleEndian.Uint32(body[28:32]),
		bitCountFilePos:   binary.LittleEndian.Uint32(body[36:40]),
		bitCountFileSize:  binary.LittleEndian.Uint32(body[40:44]),
		bitCountCmpSize:   binary.LittleEndian.Uint32(body[44:48]),
		bitCountFlagIndex: binary.LittleEndian.Uint32(body[48:52]),
	}

	hashArrayBytes := binary.LittleEndian.Uint32(body[68:72])
	flagCount := binary.LittleEndian.Uint32(body[72:76])
	recordBytes := binary.LittleEndian.Uint32(body[76:80])

	for _, width := range []uint32{t.bitCountFilePos, t.bitCountFileSize, t.bitCountCmpSize, t.bitCountFlagIndex} {
		if width > 64 {
			return nil, fmt.Errorf("%w: field width %d bits", ErrCorruptBetTable, width)
		}
	}

	need := uint64(betHeaderSize) + 4*uint64(flagCount) + uint64(recordBytes) + uint64(hashArrayBytes)
	if need > uint64(len(body)) {
		return nil, fmt.Errorf("%w: declared %d bytes in %d byte body", ErrCorruptBetTable, need, len(body))
	}
	if uint64(t.fileCount)*uint64(t.tableEntrySize) > uint64(recordBytes)*8 {
		return nil, fmt.Errorf("%w: %d records of %d bits exceed record array",
			ErrCorruptBetTable, t.fileCount, t.tableEntrySize)
	}

	off := uint32(betHeaderSize)
	t.flags = make([]uint32, flagCount)
	for i := range t.flags {
		t.flags[i] = binary.LittleEndian.Uint32(body[off:])
		off += 4
	}

	t.records = &bitArray{data: body[off : off+recordBytes]}
	off += recordBytes

	t.nameHashes = make([]uint64, hashArrayBytes/8)
	for i := range t.nameHashes {
		t.nameHashes[i] = binary.LittleEndian.Uint64(body[off:])
		off += 8
	}

	return t, nil
}
