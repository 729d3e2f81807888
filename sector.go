// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// blockHasSectorMap reports whether a non-single-unit member stores a sector
// offset table. Plain members (neither compressed, imploded, encrypted, nor
// CRC-carrying) are stored contiguous without one.
func blockHasSectorMap(flags uint32) bool {
	return flags&(FlagCompress|FlagImplode|FlagEncrypted|FlagSectorCRC) != 0
}

// sectorCount returns the number of data sectors for a file size.
func sectorCount(fileSize uint64, sectorSize uint32) uint32 {
	return uint32((fileSize + uint64(sectorSize) - 1) / uint64(sectorSize))
}

// sectorMap is the decoded prefix of a sectored blob: n+1 offsets relative to
// the blob start, plus the per-sector CRC32 array when the file carries one.
type sectorMap struct {
	offsets []uint32
	crcs    []uint32
}

// readSectorMap reads and validates the sector offset table of one blob.
// The offset table is encrypted with key-1 when the file is encrypted; the
// CRC array that follows it is stored in the clear.
func (a *Archive) readSectorMap(blobPos int64, b *blockEntry, key uint32, encrypted bool) (*sectorMap, error) {
	count := sectorCount(uint64(b.FileSize), a.header.SectorSize())
	mapLen := (count + 1) * 4

	raw := make([]byte, mapLen)
	if _, err := a.ra.ReadAt(raw, blobPos); err != nil {
		return nil, fmt.Errorf("read sector table: %w", err)
	}

	if encrypted {
		if a.opts.StrictDecrypt {
			if err := decryptBytesStrict(raw, key-1); err != nil {
				return nil, err
			}
		} else {
			decryptBytes(raw, key-1)
		}
	}

	sm := &sectorMap{offsets: make([]uint32, count+1)}
	for i := range sm.offsets {
		sm.offsets[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	crcLen := uint32(0)
	if b.Flags&FlagSectorCRC != 0 {
		crcLen = count * 4

		crcRaw := make([]byte, crcLen)
		if _, err := a.ra.ReadAt(crcRaw, blobPos+int64(mapLen)); err != nil {
			return nil, fmt.Errorf("read sector CRC array: %w", err)
		}

		sm.crcs = make([]uint32, count)
		for i := range sm.crcs {
			sm.crcs[i] = binary.LittleEndian.Uint32(crcRaw[i*4:])
		}
	}

	if sm.offsets[0] < mapLen {
		return nil, fmt.Errorf("%w: first offset %d before end of table (%d)",
			ErrCorruptSectorTable, sm.offsets[0], mapLen)
	}
	for i := 0; i < len(sm.offsets)-1; i++ {
		if sm.offsets[i+1] < sm.offsets[i] {
			return nil, fmt.Errorf("%w: offsets %d..%d decrease", ErrCorruptSectorTable, i, i+1)
		}
	}
	if last := sm.offsets[count]; last != b.CompressedSize {
		return nil, fmt.Errorf("%w: terminator %d, compressed size %d",
			ErrCorruptSectorTable, last, b.CompressedSize)
	}

	return sm, nil
}

// readBlockData reads and decodes one member's whole content: resolve the
// blob position, then per sector verify, decrypt, decompress, concatenate.
func (a *Archive) readBlockData(name string, b *blockEntry) ([]byte, error) {
	if b.Flags&FlagExists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if b.FileSize == 0 {
		return []byte{}, nil
	}

	blobPos := a.base + int64(b.pos64())
	encrypted := b.Flags&FlagEncrypted != 0

	var key uint32
	if encrypted {
		if name == "" || isPlaceholderName(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFileKey, name)
		}
		key = fileKey(name, b.pos64(), b.FileSize, b.Flags)
	}

	if b.Flags&FlagSingleUnit != 0 {
		return a.readSingleUnit(blobPos, b, key, encrypted)
	}

	// Plain sectored members carry no sector map; their bytes are contiguous.
	if !blockHasSectorMap(b.Flags) {
		return a.readSingleUnit(blobPos, b, key, encrypted)
	}

	sm, err := a.readSectorMap(blobPos, b, key, encrypted)
	if err != nil {
		return nil, err
	}

	sectorSize := a.header.SectorSize()
	count := sectorCount(uint64(b.FileSize), sectorSize)
	out := make([]byte, 0, b.FileSize)

	for i := uint32(0); i < count; i++ {
		raw := make([]byte, sm.offsets[i+1]-sm.offsets[i])
		if _, err := a.ra.ReadAt(raw, blobPos+int64(sm.offsets[i])); err != nil {
			return nil, fmt.Errorf("read sector %d: %w", i, err)
		}

		// CRCs cover the raw on-disk bytes, after compression and encryption.
		if sm.crcs != nil && !a.opts.SkipSectorCRC {
			if got := crc32.ChecksumIEEE(raw); got != sm.crcs[i] {
				return nil, fmt.Errorf("%w: sector %d has CRC 0x%08X, want 0x%08X",
					ErrCrcMismatch, i, got, sm.crcs[i])
			}
		}

		if encrypted {
			if a.opts.StrictDecrypt {
				if err := decryptBytesStrict(raw, key+i); err != nil {
					return nil, err
				}
			} else {
				decryptBytes(raw, key+i)
			}
		}

		expected := sectorSize
		if i == count-1 {
			expected = b.FileSize - i*sectorSize
		}

		// A raw sector shorter than its decoded length is compressed; equal
		// lengths mean the sector is stored verbatim with no mask byte.
		switch {
		case uint32(len(raw)) == expected:
			out = append(out, raw...)

		case uint32(len(raw)) < expected:
			decoded, err := a.decodeSector(raw, int(expected), b.Flags)
			if err != nil {
				return nil, fmt.Errorf("sector %d: %w", i, err)
			}
			out = append(out, decoded...)

		default:
			return nil, fmt.Errorf("%w: sector %d holds %d bytes, expected at most %d",
				ErrCorruptSectorTable, i, len(raw), expected)
		}
	}

	return out, nil
}

// readSingleUnit decodes a member stored as one contiguous unit.
func (a *Archive) readSingleUnit(blobPos int64, b *blockEntry, key uint32, encrypted bool) ([]byte, error) {
	raw := make([]byte, b.CompressedSize)
	if _, err := a.ra.ReadAt(raw, blobPos); err != nil {
		return nil, fmt.Errorf("read single unit: %w", err)
	}

	if encrypted {
		if a.opts.StrictDecrypt {
			if err := decryptBytesStrict(raw, key); err != nil {
				return nil, err
			}
		} else {
			decryptBytes(raw, key)
		}
	}

	if b.Flags&(FlagCompress|FlagImplode) != 0 && b.CompressedSize < b.FileSize {
		return a.decodeSector(raw, int(b.FileSize), b.Flags)
	}

	if uint32(len(raw)) != b.FileSize {
		return nil, fmt.Errorf("%w: single unit holds %d bytes, want %d", ErrCorruptData, len(raw), b.FileSize)
	}

	return raw, nil
}

// decodeSector dispatches one compressed sector. Imploded data carries no
// mask byte and always decodes as PKWARE.
func (a *Archive) decodeSector(raw []byte, expected int, flags uint32) ([]byte, error) {
	if flags&FlagImplode != 0 {
		out, err := pkwareDecompress(raw, expected)
		if err != nil {
			return nil, err
		}
		if len(out) != expected {
			return nil, fmt.Errorf("%w: imploded sector decoded to %d bytes, want %d",
				ErrCorruptData, len(out), expected)
		}
		return out, nil
	}

	return decompressPayload(raw, expected)
}

// fileBlob is the on-disk form of one member plus its block record fields.
type fileBlob struct {
	data           []byte
	compressedSize uint32
	flags          uint32
}

// buildFileBlob runs the write path for one member: split into sectors,
// compress, encrypt, emit the sector map and CRC array. The mask byte is
// only prepended when compression actually shrank a sector.
func buildFileBlob(name string, data []byte, opts FileOptions, mask byte, sectorSize uint32, filePos uint64) (*fileBlob, error) {
	flags := uint32(FlagExists)
	if opts.Encrypt {
		flags |= FlagEncrypted
	}
	if opts.FixKey {
		flags |= FlagFixKey
	}

	if opts.SingleUnit || len(data) == 0 {
		return buildSingleUnit(name, data, opts, mask, flags, filePos)
	}

	// A plain member needs no sector map: its bytes lie contiguous and the
	// stored size equals the file size.
	if mask == 0 && !opts.Encrypt && !opts.SectorCRC {
		return &fileBlob{
			data:           data,
			compressedSize: uint32(len(data)),
			flags:          flags,
		}, nil
	}

	if opts.SectorCRC {
		flags |= FlagSectorCRC
	}
	if mask != 0 {
		flags |= FlagCompress
	}

	var key uint32
	if opts.Encrypt {
		key = fileKey(name, filePos, uint32(len(data)), flags)
	}

	count := sectorCount(uint64(len(data)), sectorSize)
	mapLen := (count + 1) * 4
	crcLen := uint32(0)
	if opts.SectorCRC {
		crcLen = count * 4
	}

	sectors := make([][]byte, 0, count)
	crcs := make([]uint32, 0, count)
	offsets := make([]uint32, count+1)
	offsets[0] = mapLen + crcLen

	for i := uint32(0); i < count; i++ {
		start := i * sectorSize
		end := start + sectorSize
		if end > uint32(len(data)) {
			end = uint32(len(data))
		}
		sector := data[start:end]

		payload, err := encodeSectorPayload(sector, mask)
		if err != nil {
			return nil, err
		}

		if opts.Encrypt {
			encrypted := make([]byte, len(payload))
			copy(encrypted, payload)
			encryptBytes(encrypted, key+i)
			payload = encrypted
		}

		if opts.SectorCRC {
			crcs = append(crcs, crc32.ChecksumIEEE(payload))
		}

		sectors = append(sectors, payload)
		offsets[i+1] = offsets[i] + uint32(len(payload))
	}

	blob := make([]byte, 0, offsets[count])

	rawMap := make([]byte, mapLen)
	for i, off := range offsets {
		binary.LittleEndian.PutUint32(rawMap[i*4:], off)
	}
	if opts.Encrypt {
		encryptBytes(rawMap, key-1)
	}
	blob = append(blob, rawMap...)

	for _, crc := range crcs {
		blob = binary.LittleEndian.AppendUint32(blob, crc)
	}
	for _, sector := range sectors {
		blob = append(blob, sector...)
	}

	return &fileBlob{
		data:           blob,
		compressedSize: uint32(len(blob)),
		flags:          flags,
	}, nil
}

// buildSingleUnit emits a member as one contiguous unit.
func buildSingleUnit(name string, data []byte, opts FileOptions, mask byte, flags uint32, filePos uint64) (*fileBlob, error) {
	flags |= FlagSingleUnit

	payload, err := encodeSectorPayload(data, mask)
	if err != nil {
		return nil, err
	}
	if uint32(len(payload)) < uint32(len(data)) {
		flags |= FlagCompress
	}

	if opts.Encrypt && len(payload) > 0 {
		key := fileKey(name, filePos, uint32(len(data)), flags)
		encrypted := make([]byte, len(payload))
		copy(encrypted, payload)
		encryptBytes(encrypted, key)
		payload = encrypted
	}

	return &fileBlob{
		data:           payload,
		compressedSize: uint32(len(payload)),
		flags:          flags,
	}, nil
}

// encodeSectorPayload compresses one sector and falls back to the verbatim
// bytes when the codec output (plus its mask byte) is not strictly smaller,
// or when an ADPCM mask meets a sector that is not whole 16-bit frames.
func encodeSectorPayload(sector []byte, mask byte) ([]byte, error) {
	if mask == 0 || len(sector) == 0 {
		return sector, nil
	}

	encoded, err := encodeMask(mask, sector)
	if err != nil {
		if mask&(CompressADPCMMono|CompressADPCMStereo) != 0 && errors.Is(err, ErrUnsupportedCompression) {
			return sector, nil
		}
		return nil, err
	}
	if len(encoded)+1 >= len(sector) {
		return sector, nil
	}

	out := make([]byte, 0, len(encoded)+1)
	out = append(out, mask)
	return append(out, encoded...), nil
}
