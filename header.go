// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"crypto/md5" //nolint:gosec // Header format requires MD5.
	"encoding/binary"
	"fmt"
	"io"
)

// Magic markers, little-endian.
const (
	magicArchive  = 0x1A51504D // "MPQ\x1A"
	magicUserData = 0x1B51504D // "MPQ\x1B"
	magicHet      = 0x1A544548 // "HET\x1A"
	magicBet      = 0x1A544542 // "BET\x1A"
)

// Header sizes per revision. The revision is determined by the header size,
// not the version field; sizes outside this set are rejected.
const (
	headerSizeV1 = 32
	headerSizeV2 = 44
	headerSizeV3 = 68
	headerSizeV4 = 208
)

// headerMD5Prefix is the extent of the v4 header covered by its own MD5:
// everything up to and including the HET table digest.
const headerMD5Prefix = headerSizeV4 - md5.Size

// Header is the parsed archive header. Extension fields absent on disk are
// zero. Offsets are relative to the archive base discovered by the scan.
type Header struct {
	HeaderSize      uint32
	ArchiveSize     uint32
	FormatVersion   uint16
	SectorSizeShift uint16
	HashTablePos    uint32
	BlockTablePos   uint32
	HashTableCount  uint32
	BlockTableCount uint32

	// v2 extension
	HiBlockTablePos uint64
	HashTablePosHi  uint16
	BlockTablePosHi uint16

	// v3 extension
	ArchiveSize64 uint64
	BetTablePos   uint64
	HetTablePos   uint64

	// v4 extension
	HashTableSize64    uint64
	BlockTableSize64   uint64
	HiBlockTableSize64 uint64
	HetTableSize64     uint64
	BetTableSize64     uint64
	RawChunkSize       uint32
	MD5BlockTable      [md5.Size]byte
	MD5HashTable       [md5.Size]byte
	MD5HiBlockTable    [md5.Size]byte
	MD5BetTable        [md5.Size]byte
	MD5HetTable        [md5.Size]byte
	MD5Header          [md5.Size]byte
}

// SectorSize returns the sector size in bytes, 512 << shift.
func (h *Header) SectorSize() uint32 {
	return 512 << h.SectorSizeShift
}

// hashTablePos64 combines the 32-bit offset with the v2 high part.
func (h *Header) hashTablePos64() uint64 {
	return uint64(h.HashTablePosHi)<<32 | uint64(h.HashTablePos)
}

// blockTablePos64 combines the 32-bit offset with the v2 high part.
func (h *Header) blockTablePos64() uint64 {
	return uint64(h.BlockTablePosHi)<<32 | uint64(h.BlockTablePos)
}

// archiveSize64 returns the effective archive size for any revision.
func (h *Header) archiveSize64() uint64 {
	if h.HeaderSize >= headerSizeV3 && h.ArchiveSize64 != 0 {
		return h.ArchiveSize64
	}
	return uint64(h.ArchiveSize)
}

// setHashTablePos64 splits a 64-bit offset into the classic fields.
func (h *Header) setHashTablePos64(pos uint64) {
	h.HashTablePos = uint32(pos)
	h.HashTablePosHi = uint16(pos >> 32)
}

// setBlockTablePos64 splits a 64-bit offset into the classic fields.
func (h *Header) setBlockTablePos64(pos uint64) {
	h.BlockTablePos = uint32(pos)
	h.BlockTablePosHi = uint16(pos >> 32)
}

// locateHeader scans the source at 512-byte boundaries for the archive
// header, following at most one user-data preamble redirect per position.
// It returns the archive base offset.
func locateHeader(ra io.ReaderAt, size int64) (int64, error) {
	var probe [16]byte

	for offset := int64(0); offset+4 <= size; {
		n, err := ra.ReadAt(probe[:4], offset)
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("scan header: %w", err)
		}
		if n < 4 {
			break
		}

		switch binary.LittleEndian.Uint32(probe[:4]) {
		case magicArchive:
			return offset, nil

		case magicUserData:
			// User data preamble: magic, user data size, header offset,
			// user data header size. The scan restarts at the declared
			// offset from the preamble start.
			if _, err := ra.ReadAt(probe[:16], offset); err != nil {
				return 0, fmt.Errorf("read user data preamble: %w", err)
			}

			target := offset + int64(binary.LittleEndian.Uint32(probe[8:12]))
			if target > offset && target+4 <= size {
				offset = target
				continue
			}
			offset += headerAlign

		default:
			offset += headerAlign
		}
	}

	return 0, ErrNotAnArchive
}

// readHeader parses the header at the archive base.
func readHeader(ra io.ReaderAt, base int64) (*Header, error) {
	var raw [headerSizeV4]byte
	if _, err := ra.ReadAt(raw[:headerSizeV1], base); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	h := &Header{
		HeaderSize:      binary.LittleEndian.Uint32(raw[4:8]),
		ArchiveSize:     binary.LittleEndian.Uint32(raw[8:12]),
		FormatVersion:   binary.LittleEndian.Uint16(raw[12:14]),
		SectorSizeShift: binary.LittleEndian.Uint16(raw[14:16]),
		HashTablePos:    binary.LittleEndian.Uint32(raw[16:20]),
		BlockTablePos:   binary.LittleEndian.Uint32(raw[20:24]),
		HashTableCount:  binary.LittleEndian.Uint32(raw[24:28]),
		BlockTableCount: binary.LittleEndian.Uint32(raw[28:32]),
	}

	switch h.HeaderSize {
	case headerSizeV1, headerSizeV2, headerSizeV3, headerSizeV4:
	default:
		return nil, fmt.Errorf("%w: header size %d", ErrUnknownVersion, h.HeaderSize)
	}

	if h.HeaderSize > headerSizeV1 {
		if _, err := ra.ReadAt(raw[headerSizeV1:h.HeaderSize], base+headerSizeV1); err != nil {
			return nil, fmt.Errorf("read extended header: %w", err)
		}
	}

	if h.HeaderSize >= headerSizeV2 {
		h.HiBlockTablePos = binary.LittleEndian.Uint64(raw[32:40])
		h.HashTablePosHi = binary.LittleEndian.Uint16(raw[40:42])
		h.BlockTablePosHi = binary.LittleEndian.Uint16(raw[42:44])
	}

	// v3 stores the BET offset ahead of the HET offset on the wire.
	if h.HeaderSize >= headerSizeV3 {
		h.ArchiveSize64 = binary.LittleEndian.Uint64(raw[44:52])
		h.BetTablePos = binary.LittleEndian.Uint64(raw[52:60])
		h.HetTablePos = binary.LittleEndian.Uint64(raw[60:68])
	}

	if h.HeaderSize >= headerSizeV4 {
		h.HashTableSize64 = binary.LittleEndian.Uint64(raw[68:76])
		h.BlockTableSize64 = binary.LittleEndian.Uint64(raw[76:84])
		h.HiBlockTableSize64 = binary.LittleEndian.Uint64(raw[84:92])
		h.HetTableSize64 = binary.LittleEndian.Uint64(raw[92:100])
		h.BetTableSize64 = binary.LittleEndian.Uint64(raw[100:108])
		h.RawChunkSize = binary.LittleEndian.Uint32(raw[108:112])
		copy(h.MD5BlockTable[:], raw[112:128])
		copy(h.MD5HashTable[:], raw[128:144])
		copy(h.MD5HiBlockTable[:], raw[144:160])
		copy(h.MD5BetTable[:], raw[160:176])
		copy(h.MD5HetTable[:], raw[176:192])
		copy(h.MD5Header[:], raw[192:208])
	}

	return h, nil
}

// marshal serializes the header to its on-disk form. For v4 the header MD5
// is computed over the serialized prefix and patched in.
func (h *Header) marshal() []byte {
	raw := make([]byte, h.HeaderSize)

	binary.LittleEndian.PutUint32(raw[0:4], magicArchive)
	binary.LittleEndian.PutUint32(raw[4:8], h.HeaderSize)
	binary.LittleEndian.PutUint32(raw[8:12], h.ArchiveSize)
	binary.LittleEndian.PutUint16(raw[12:14], h.FormatVersion)
	binary.LittleEndian.PutUint16(raw[14:16], h.SectorSizeShift)
	binary.LittleEndian.PutUint32(raw[16:20], h.HashTablePos)
	binary.LittleEndian.PutUint32(raw[20:24], h.BlockTablePos)
	binary.LittleEndian.PutUint32(raw[24:28], h.HashTableCount)
	binary.LittleEndian.PutUint32(raw[28:32], h.BlockTableCount)

	if h.HeaderSize >= headerSizeV2 {
		binary.LittleEndian.PutUint64(raw[32:40], h.HiBlockTablePos)
		binary.LittleEndian.PutUint16(raw[40:42], h.HashTablePosHi)
		binary.LittleEndian.PutUint16(raw[42:44], h.BlockTablePosHi)
	}

	if h.HeaderSize >= headerSizeV3 {
		binary.LittleEndian.PutUint64(raw[44:52], h.ArchiveSize64)
		binary.LittleEndian.PutUint64(raw[52:60], h.BetTablePos)
		binary.LittleEndian.PutUint64(raw[60:68], h.HetTablePos)
	}

	if h.HeaderSize >= headerSizeV4 {
		binary.LittleEndian.PutUint64(raw[68:76], h.HashTableSize64)
		binary.LittleEndian.PutUint64(raw[76:84], h.BlockTableSize64)
		binary.LittleEndian.PutUint64(raw[84:92], h.HiBlockTableSize64)
		binary.LittleEndian.PutUint64(raw[92:100], h.HetTableSize64)
		binary.LittleEndian.PutUint64(raw[100:108], h.BetTableSize64)
		binary.LittleEndian.PutUint32(raw[108:112], h.RawChunkSize)
		copy(raw[112:128], h.MD5BlockTable[:])
		copy(raw[128:144], h.MD5HashTable[:])
		copy(raw[144:160], h.MD5HiBlockTable[:])
		copy(raw[160:176], h.MD5BetTable[:])
		copy(raw[176:192], h.MD5HetTable[:])

		sum := md5.Sum(raw[:headerMD5Prefix]) //nolint:gosec // Header format requires MD5.
		h.MD5Header = sum
		copy(raw[192:208], sum[:])
	}

	return raw
}

// headerSizeForVersion maps a format version 1..4 to its header size.
func headerSizeForVersion(version int) (uint32, error) {
	switch version {
	case 1:
		return headerSizeV1, nil
	case 2:
		return headerSizeV2, nil
	case 3:
		return headerSizeV3, nil
	case 4:
		return headerSizeV4, nil
	default:
		return 0, fmt.Errorf("%w: version %d", ErrUnknownVersion, version)
	}
}
