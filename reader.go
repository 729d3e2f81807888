// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// Archive provides read-only access to a parsed MPQ archive. It exclusively
// owns the underlying byte source for its lifetime; tables are immutable
// after open and safe for shared reads.
type Archive struct {
	// ra is the underlying random-access source.
	ra io.ReaderAt
	// file is set when the archive owns an *os.File opened via Open.
	file *os.File
	// size is the total source size in bytes.
	size int64
	// base is the archive start discovered by the header scan.
	base int64
	// header is the parsed header.
	header *Header
	// hashTable and blockTable are the decrypted classic tables.
	hashTable  []hashEntry
	blockTable []blockEntry
	// het and bet are the extended tables when the archive carries them.
	het *hetTable
	bet *betTable
	// names maps block indices to names resolved from the listfile.
	names map[uint32]string
	// attributes caches the parsed "(attributes)" member.
	attrOnce   sync.Once
	attributes *Attributes
	attrErr    error
	// opts are the reader options this archive was opened with.
	opts ReaderOptions
	// mu guards closed state.
	mu     sync.Mutex
	closed bool
}

// Open opens an MPQ archive file for reading.
func Open(path string) (*Archive, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions opens an MPQ archive file using explicit reader options.
func OpenWithOptions(path string, opts ReaderOptions) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	a, err := NewFromReaderAtWithOptions(f, fi.Size(), opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	a.file = f
	return a, nil
}

// NewFromReaderAt parses an archive from a random-access source of known size.
func NewFromReaderAt(ra io.ReaderAt, size int64) (*Archive, error) {
	return NewFromReaderAtWithOptions(ra, size, ReaderOptions{})
}

// NewFromReaderAtWithOptions parses an archive from a random-access source
// using explicit reader options.
func NewFromReaderAtWithOptions(ra io.ReaderAt, size int64, opts ReaderOptions) (*Archive, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	a := &Archive{ra: ra, size: size, opts: opts}
	if err := a.parse(); err != nil {
		return nil, err
	}

	return a, nil
}

// parse locates the header and loads every table the archive carries.
func (a *Archive) parse() error {
	base, err := locateHeader(a.ra, a.size)
	if err != nil {
		return err
	}
	a.base = base

	h, err := readHeader(a.ra, base)
	if err != nil {
		return err
	}
	a.header = h

	a.hashTable, err = readHashTable(a.ra, base+int64(h.hashTablePos64()), h.HashTableCount)
	if err != nil {
		return err
	}

	a.blockTable, err = readBlockTable(a.ra, base+int64(h.blockTablePos64()), h.BlockTableCount)
	if err != nil {
		return err
	}

	if h.HiBlockTablePos != 0 {
		if err := readHiBlockTable(a.ra, base+int64(h.HiBlockTablePos), a.blockTable); err != nil {
			return err
		}
	}

	if err := a.loadExtendedTables(); err != nil {
		return err
	}

	if !a.opts.SkipListfile {
		a.loadListfile()
	}

	return nil
}

// loadExtendedTables reads HET and BET when the header points at them.
func (a *Archive) loadExtendedTables() error {
	h := a.header
	if h.HeaderSize < headerSizeV3 || h.HetTablePos == 0 || h.BetTablePos == 0 {
		return nil
	}

	hetSize := h.HetTableSize64
	if hetSize == 0 {
		hetSize = a.tableExtent(h.HetTablePos)
	}
	betSize := h.BetTableSize64
	if betSize == 0 {
		betSize = a.tableExtent(h.BetTablePos)
	}

	hetRaw := make([]byte, hetSize)
	if _, err := a.ra.ReadAt(hetRaw, a.base+int64(h.HetTablePos)); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptHetTable, err)
	}

	het, err := parseHetTable(hetRaw)
	if err != nil {
		return err
	}
	a.het = het

	betRaw := make([]byte, betSize)
	if _, err := a.ra.ReadAt(betRaw, a.base+int64(h.BetTablePos)); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptBetTable, err)
	}

	bet, err := parseBetTable(betRaw)
	if err != nil {
		return err
	}
	a.bet = bet

	return nil
}

// tableExtent derives a table's stored size from the distance to the next
// table or the archive end. v4 archives record exact sizes instead.
func (a *Archive) tableExtent(pos uint64) uint64 {
	h := a.header
	end := h.archiveSize64()

	for _, candidate := range []uint64{
		h.hashTablePos64(), h.blockTablePos64(), h.HiBlockTablePos,
		h.HetTablePos, h.BetTablePos,
	} {
		if candidate > pos && candidate < end {
			end = candidate
		}
	}

	if end <= pos {
		return 0
	}
	return end - pos
}

// loadListfile resolves member names from the internal "(listfile)". A
// missing or unreadable listfile leaves names unresolved.
func (a *Archive) loadListfile() {
	a.names = make(map[uint32]string)

	data, err := a.ReadFile(listfileName)
	if err != nil {
		return
	}

	a.AddListfile(data)
}

// AddListfile merges an external listfile into the name resolution map.
// Names that match no hash entry are ignored.
func (a *Archive) AddListfile(data []byte) {
	if a.names == nil {
		a.names = make(map[uint32]string)
	}

	for _, name := range parseListfile(data) {
		entry, err := hashTableLookup(a.hashTable, name, LocaleAny)
		if err != nil {
			continue
		}
		if entry.BlockIndex < uint32(len(a.blockTable)) {
			a.names[entry.BlockIndex] = name
		}
	}
}

// Header returns a copy of the parsed archive header.
func (a *Archive) Header() Header {
	return *a.header
}

// Find looks a name up and returns its metadata. Locale LocaleAny accepts
// any locale tag. With UseExtendedTables set and HET/BET present, the
// extended tables answer the lookup.
func (a *Archive) Find(name string, locale uint16) (*FileInfo, error) {
	if a == nil || a.ra == nil {
		return nil, ErrNilReader
	}

	name = NormalizePath(name)

	if a.opts.UseExtendedTables && a.het != nil && a.bet != nil {
		if info, err := a.findExtended(name); err == nil {
			return info, nil
		}
	}

	entry, err := hashTableLookup(a.hashTable, name, locale)
	if err != nil {
		return nil, err
	}

	if entry.BlockIndex >= uint32(len(a.blockTable)) {
		return nil, fmt.Errorf("%w: hash entry names block %d of %d",
			ErrInvalidBlockIndex, entry.BlockIndex, len(a.blockTable))
	}

	block := &a.blockTable[entry.BlockIndex]
	return &FileInfo{
		Name:           name,
		BlockIndex:     entry.BlockIndex,
		Position:       block.pos64(),
		CompressedSize: uint64(block.CompressedSize),
		Size:           uint64(block.FileSize),
		Flags:          block.Flags,
		Locale:         entry.Locale,
		Platform:       entry.Platform,
	}, nil
}

// FindAnyLocale looks a name up accepting any locale tag.
func (a *Archive) FindAnyLocale(name string) (*FileInfo, error) {
	return a.Find(name, LocaleAny)
}

// findExtended answers a lookup from the HET and BET tables. The BET name
// hash array arbitrates truncated-hash collisions during the probe.
func (a *Archive) findExtended(name string) (*FileInfo, error) {
	index, ok := a.het.lookup(name, func(candidate uint32) bool {
		return a.bet.verifyName(candidate, name)
	})
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	rec, err := a.bet.record(index)
	if err != nil {
		return nil, err
	}

	return &FileInfo{
		Name:           name,
		BlockIndex:     index,
		Position:       rec.FilePos,
		CompressedSize: rec.CompressedSize,
		Size:           rec.FileSize,
		Flags:          rec.Flags,
	}, nil
}

// HasFile reports whether the archive contains the named member.
func (a *Archive) HasFile(name string) bool {
	_, err := a.FindAnyLocale(name)
	return err == nil
}

// ReadFile reads the whole decoded content of the named member.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	if a == nil || a.ra == nil {
		return nil, ErrNilReader
	}

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	name = NormalizePath(name)

	info, err := a.FindAnyLocale(name)
	if err != nil {
		return nil, err
	}
	if info.BlockIndex >= uint32(len(a.blockTable)) {
		return nil, fmt.Errorf("%w: block %d of %d", ErrInvalidBlockIndex, info.BlockIndex, len(a.blockTable))
	}

	return a.readBlockData(name, &a.blockTable[info.BlockIndex])
}

// Entries returns metadata for every member, ordered by block index then
// locale. Names come from the listfile; members without a known name get a
// synthesized placeholder and NameGuessed set.
func (a *Archive) Entries() []FileInfo {
	if a == nil {
		return nil
	}

	out := make([]FileInfo, 0, len(a.blockTable))
	for i := range a.hashTable {
		entry := &a.hashTable[i]
		if entry.BlockIndex == blockIndexEmpty || entry.BlockIndex == blockIndexDeleted {
			continue
		}
		if entry.BlockIndex >= uint32(len(a.blockTable)) {
			continue
		}

		block := &a.blockTable[entry.BlockIndex]
		if block.Flags&FlagExists == 0 {
			continue
		}

		info := FileInfo{
			BlockIndex:     entry.BlockIndex,
			Position:       block.pos64(),
			CompressedSize: uint64(block.CompressedSize),
			Size:           uint64(block.FileSize),
			Flags:          block.Flags,
			Locale:         entry.Locale,
			Platform:       entry.Platform,
		}

		if name, ok := a.names[entry.BlockIndex]; ok {
			info.Name = name
		} else {
			info.Name = placeholderName(entry.BlockIndex)
			info.NameGuessed = true
		}

		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockIndex != out[j].BlockIndex {
			return out[i].BlockIndex < out[j].BlockIndex
		}
		return out[i].Locale < out[j].Locale
	})

	return out
}

// Close releases the underlying byte source.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	a.closed = true

	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// errIsNotFound reports whether err is a lookup miss.
func errIsNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}
