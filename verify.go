// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import "fmt"

// Verify sweeps the archive's structures and reports every violation it
// finds without aborting at the first. An empty result means the header
// parses, both classic tables are coherent, every occupied hash entry points
// into the block table, and every member's sector map is monotone and
// bounded.
func (a *Archive) Verify() []Problem {
	if a == nil {
		return nil
	}

	var problems []Problem
	archiveSize := a.header.archiveSize64()

	if !validHashCapacity(uint32(len(a.hashTable))) {
		problems = append(problems, Problem{
			Err:        ErrCorruptHashTable,
			Detail:     fmt.Sprintf("hash table size %d is not a power of two in [4, 2^20]", len(a.hashTable)),
			BlockIndex: -1,
		})
	}

	for i := range a.hashTable {
		entry := &a.hashTable[i]
		if entry.BlockIndex == blockIndexEmpty || entry.BlockIndex == blockIndexDeleted {
			continue
		}
		if entry.BlockIndex >= uint32(len(a.blockTable)) {
			problems = append(problems, Problem{
				Err:        ErrInvalidBlockIndex,
				Detail:     fmt.Sprintf("hash slot %d names block %d of %d", i, entry.BlockIndex, len(a.blockTable)),
				BlockIndex: int(entry.BlockIndex),
			})
		}
	}

	for i := range a.blockTable {
		block := &a.blockTable[i]
		if block.Flags&FlagExists == 0 {
			continue
		}

		if end := block.pos64() + uint64(block.CompressedSize); end > archiveSize {
			problems = append(problems, Problem{
				Err:        ErrCorruptBlockTable,
				Detail:     fmt.Sprintf("block %d ends at %d past archive size %d", i, end, archiveSize),
				BlockIndex: i,
			})
			continue
		}

		if !blockHasSectorMap(block.Flags) && block.CompressedSize != block.FileSize {
			problems = append(problems, Problem{
				Err:        ErrCorruptBlockTable,
				Detail:     fmt.Sprintf("block %d stored verbatim with %d of %d bytes", i, block.CompressedSize, block.FileSize),
				BlockIndex: i,
			})
			continue
		}

		problems = append(problems, a.verifySectorMap(i, block)...)
	}

	return problems
}

// verifySectorMap checks one member's sector offsets when they are readable
// without the file key.
func (a *Archive) verifySectorMap(index int, block *blockEntry) []Problem {
	if block.Flags&FlagSingleUnit != 0 || block.FileSize == 0 || !blockHasSectorMap(block.Flags) {
		return nil
	}
	if block.Flags&FlagEncrypted != 0 {
		// The map is encrypted under the file key; without a name there is
		// nothing to check.
		if _, ok := a.names[uint32(index)]; !ok {
			return nil
		}
	}

	name := a.names[uint32(index)]
	var key uint32
	encrypted := block.Flags&FlagEncrypted != 0
	if encrypted {
		key = fileKey(name, block.pos64(), block.FileSize, block.Flags)
	}

	if _, err := a.readSectorMap(a.base+int64(block.pos64()), block, key, encrypted); err != nil {
		return []Problem{{
			Err:        ErrCorruptSectorTable,
			Detail:     fmt.Sprintf("block %d: %v", index, err),
			BlockIndex: index,
		}}
	}

	return nil
}
