// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"crypto/md5" //nolint:gosec // Attributes format requires MD5.
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Attributes file layout constants.
const (
	attributesVersion = 100

	// AttrCRC32 marks a per-block CRC32 array.
	AttrCRC32 = 0x00000001
	// AttrFileTime marks a per-block Windows FILETIME array.
	AttrFileTime = 0x00000002
	// AttrMD5 marks a per-block MD5 array.
	AttrMD5 = 0x00000004
	// AttrPatchBit marks a per-block patch bit array.
	AttrPatchBit = 0x00000008
)

// Attributes is the parsed "(attributes)" member: parallel metadata arrays
// keyed by block index.
type Attributes struct {
	// Version is the attributes format version, 100 in practice.
	Version uint32 `json:"version" yaml:"version"`
	// Flags names which arrays are present.
	Flags uint32 `json:"flags" yaml:"flags"`
	// CRC32 holds one checksum of the decoded content per block.
	CRC32 []uint32 `json:"crc32,omitempty" yaml:"crc32,omitempty"`
	// FileTimes holds one Windows FILETIME per block.
	FileTimes []uint64 `json:"file_times,omitempty" yaml:"file_times,omitempty"`
	// MD5 holds one digest of the decoded content per block.
	MD5 [][md5.Size]byte `json:"md5,omitempty" yaml:"md5,omitempty"`
	// PatchBits marks blocks that are patch entries.
	PatchBits []bool `json:"patch_bits,omitempty" yaml:"patch_bits,omitempty"`
}

// parseAttributes decodes an attributes member covering blockCount blocks.
func parseAttributes(data []byte, blockCount int) (*Attributes, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: attributes header truncated", ErrCorruptData)
	}

	a := &Attributes{
		Version: binary.LittleEndian.Uint32(data[0:4]),
		Flags:   binary.LittleEndian.Uint32(data[4:8]),
	}
	pos := 8

	take := func(n int) ([]byte, error) {
		if pos+n > len(data) {
			return nil, fmt.Errorf("%w: attributes arrays truncated at %d of %d bytes",
				ErrCorruptData, pos+n, len(data))
		}
		chunk := data[pos : pos+n]
		pos += n
		return chunk, nil
	}

	if a.Flags&AttrCRC32 != 0 {
		chunk, err := take(blockCount * 4)
		if err != nil {
			return nil, err
		}
		a.CRC32 = make([]uint32, blockCount)
		for i := range a.CRC32 {
			a.CRC32[i] = binary.LittleEndian.Uint32(chunk[i*4:])
		}
	}

	if a.Flags&AttrFileTime != 0 {
		chunk, err := take(blockCount * 8)
		if err != nil {
			return nil, err
		}
		a.FileTimes = make([]uint64, blockCount)
		for i := range a.FileTimes {
			a.FileTimes[i] = binary.LittleEndian.Uint64(chunk[i*8:])
		}
	}

	if a.Flags&AttrMD5 != 0 {
		chunk, err := take(blockCount * md5.Size)
		if err != nil {
			return nil, err
		}
		a.MD5 = make([][md5.Size]byte, blockCount)
		for i := range a.MD5 {
			copy(a.MD5[i][:], chunk[i*md5.Size:])
		}
	}

	if a.Flags&AttrPatchBit != 0 {
		chunk, err := take((blockCount + 7) / 8)
		if err != nil {
			return nil, err
		}
		a.PatchBits = make([]bool, blockCount)
		for i := range a.PatchBits {
			a.PatchBits[i] = chunk[i/8]>>(i%8)&1 != 0
		}
	}

	return a, nil
}

// Attributes returns the parsed "(attributes)" member, or nil when the
// archive carries none. The parse result is cached.
func (a *Archive) Attributes() (*Attributes, error) {
	if a == nil {
		return nil, ErrNilReader
	}

	a.attrOnce.Do(func() {
		data, err := a.ReadFile(attributesName)
		if err != nil {
			if errIsNotFound(err) {
				return
			}
			a.attrErr = err
			return
		}

		a.attributes, a.attrErr = parseAttributes(data, len(a.blockTable))
	})

	return a.attributes, a.attrErr
}

// attributesWriter accumulates per-block metadata during synthesis.
type attributesWriter struct {
	crcs    []uint32
	digests [][md5.Size]byte
	times   []uint64
}

// newAttributesWriter sizes the arrays for the final block count.
func newAttributesWriter(blockCount int) *attributesWriter {
	return &attributesWriter{
		crcs:    make([]uint32, blockCount),
		digests: make([][md5.Size]byte, blockCount),
		times:   make([]uint64, blockCount),
	}
}

// setEntry records metadata of one block's decoded content. A nil content
// leaves the zero placeholder, used for the attributes member itself.
func (w *attributesWriter) setEntry(index int, content []byte) {
	if index < 0 || index >= len(w.crcs) {
		return
	}
	if content == nil {
		return
	}

	w.crcs[index] = crc32.ChecksumIEEE(content)
	w.digests[index] = md5.Sum(content) //nolint:gosec // Attributes format requires MD5.
}

// build renders the attributes member with CRC32, FILETIME and MD5 arrays.
// File times stay zero so builds are deterministic.
func (w *attributesWriter) build() []byte {
	out := make([]byte, 0, 8+len(w.crcs)*(4+8+md5.Size))
	out = binary.LittleEndian.AppendUint32(out, attributesVersion)
	out = binary.LittleEndian.AppendUint32(out, AttrCRC32|AttrFileTime|AttrMD5)

	for _, crc := range w.crcs {
		out = binary.LittleEndian.AppendUint32(out, crc)
	}
	for _, t := range w.times {
		out = binary.LittleEndian.AppendUint64(out, t)
	}
	for i := range w.digests {
		out = append(out, w.digests[i][:]...)
	}

	return out
}
