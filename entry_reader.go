// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"fmt"
	"hash/crc32"
	"io"
)

// File is a streaming view of one archive member. It decodes one sector at a
// time, so large members never need a whole-file buffer. File implements
// io.Reader; it borrows the archive and must not outlive it.
type File struct {
	a     *Archive
	info  FileInfo
	block *blockEntry

	key       uint32
	encrypted bool

	// sm is the decoded sector map; nil for single-unit members.
	sm        *sectorMap
	sectorIdx uint32

	// buf holds the undelivered tail of the current decoded sector.
	buf []byte
	err error
}

// OpenFile opens a member for streaming reads.
func (a *Archive) OpenFile(name string) (*File, error) {
	if a == nil || a.ra == nil {
		return nil, ErrNilReader
	}

	name = NormalizePath(name)

	info, err := a.FindAnyLocale(name)
	if err != nil {
		return nil, err
	}
	if info.BlockIndex >= uint32(len(a.blockTable)) {
		return nil, fmt.Errorf("%w: block %d of %d", ErrInvalidBlockIndex, info.BlockIndex, len(a.blockTable))
	}

	block := &a.blockTable[info.BlockIndex]
	f := &File{
		a:         a,
		info:      *info,
		block:     block,
		encrypted: block.Flags&FlagEncrypted != 0,
	}

	if f.encrypted {
		if isPlaceholderName(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFileKey, name)
		}
		f.key = fileKey(name, block.pos64(), block.FileSize, block.Flags)
	}

	if block.Flags&FlagSingleUnit == 0 && blockHasSectorMap(block.Flags) && block.FileSize > 0 {
		sm, err := a.readSectorMap(a.base+int64(block.pos64()), block, f.key, f.encrypted)
		if err != nil {
			return nil, err
		}
		f.sm = sm
	}

	return f, nil
}

// Info returns the member metadata this stream was opened with.
func (f *File) Info() FileInfo {
	return f.info
}

// Read delivers decoded content one sector at a time.
func (f *File) Read(p []byte) (int, error) {
	if f == nil || f.a == nil {
		return 0, ErrNilReader
	}
	if f.err != nil {
		return 0, f.err
	}

	for len(f.buf) == 0 {
		if err := f.fill(); err != nil {
			f.err = err
			return 0, err
		}
	}

	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

// fill decodes the next sector into the buffer.
func (f *File) fill() error {
	block := f.block

	if block.FileSize == 0 {
		return io.EOF
	}

	// Single-unit members decode in one step.
	if f.sm == nil {
		if f.sectorIdx > 0 {
			return io.EOF
		}
		f.sectorIdx++

		data, err := f.a.readSingleUnit(f.a.base+int64(block.pos64()), block, f.key, f.encrypted)
		if err != nil {
			return err
		}
		f.buf = data
		return nil
	}

	sectorSize := f.a.header.SectorSize()
	count := sectorCount(uint64(block.FileSize), sectorSize)
	if f.sectorIdx >= count {
		return io.EOF
	}

	i := f.sectorIdx
	f.sectorIdx++

	raw := make([]byte, f.sm.offsets[i+1]-f.sm.offsets[i])
	blobPos := f.a.base + int64(block.pos64())
	if _, err := f.a.ra.ReadAt(raw, blobPos+int64(f.sm.offsets[i])); err != nil {
		return fmt.Errorf("read sector %d: %w", i, err)
	}

	if f.sm.crcs != nil && !f.a.opts.SkipSectorCRC {
		if got := crc32.ChecksumIEEE(raw); got != f.sm.crcs[i] {
			return fmt.Errorf("%w: sector %d has CRC 0x%08X, want 0x%08X", ErrCrcMismatch, i, got, f.sm.crcs[i])
		}
	}

	if f.encrypted {
		if f.a.opts.StrictDecrypt {
			if err := decryptBytesStrict(raw, f.key+i); err != nil {
				return err
			}
		} else {
			decryptBytes(raw, f.key+i)
		}
	}

	expected := sectorSize
	if i == count-1 {
		expected = block.FileSize - i*sectorSize
	}

	switch {
	case uint32(len(raw)) == expected:
		f.buf = raw
	case uint32(len(raw)) < expected:
		decoded, err := f.a.decodeSector(raw, int(expected), block.Flags)
		if err != nil {
			return fmt.Errorf("sector %d: %w", i, err)
		}
		f.buf = decoded
	default:
		return fmt.Errorf("%w: sector %d holds %d bytes, expected at most %d",
			ErrCorruptSectorTable, i, len(raw), expected)
	}

	return nil
}

// Close releases the stream. The archive stays open.
func (f *File) Close() error {
	if f == nil {
		return nil
	}
	f.buf = nil
	f.err = ErrClosed
	return nil
}
