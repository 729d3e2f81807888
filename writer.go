// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"context"
	"crypto/md5" //nolint:gosec // Header format requires MD5.
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Builder composes a fresh archive from an ordered set of inputs. It never
// mutates an existing archive; Build writes to a co-located temp file and
// renames it into place. Two builds from the same inputs and options produce
// byte-identical archives.
type Builder struct {
	opts    BuildOptions
	matcher *compressMatcher
	files   []buildEntry
	folded  map[string]struct{}
}

// buildEntry is one pending input.
type buildEntry struct {
	name string
	data []byte
	opts FileOptions
}

// NewBuilder validates the configuration and prepares a builder.
func NewBuilder(opts BuildOptions) (*Builder, error) {
	opts.applyDefaults()

	if _, err := headerSizeForVersion(opts.Version); err != nil {
		return nil, err
	}
	if opts.HashTableSize != 0 && !validHashCapacity(opts.HashTableSize) {
		return nil, fmt.Errorf("%w: configured size %d is not a power of two in [4, 2^20]",
			ErrCorruptHashTable, opts.HashTableSize)
	}
	if err := validateCompressionMask(opts.DefaultCompression); err != nil {
		return nil, err
	}

	matcher, err := newCompressMatcher(opts.Compress, opts.CompressMatcherOptions)
	if err != nil {
		return nil, err
	}

	return &Builder{
		opts:    opts,
		matcher: matcher,
		folded:  make(map[string]struct{}),
	}, nil
}

// Add queues one input with default file options.
func (b *Builder) Add(name string, data []byte) error {
	return b.AddWithOptions(name, data, FileOptions{})
}

// AddWithOptions queues one input. The data is copied; the name is folded to
// canonical archive form and must be unique under case folding within its
// locale.
func (b *Builder) AddWithOptions(name string, data []byte, opts FileOptions) error {
	normalized, err := normalizeEntryName(name)
	if err != nil {
		return err
	}

	if opts.Compression != 0 {
		if err := validateCompressionMask(opts.Compression); err != nil {
			return err
		}
	}

	// The same name may recur under distinct locales; the pair must be unique.
	folded := fmt.Sprintf("%04X|%s", opts.Locale, foldName(normalized))
	if _, exists := b.folded[folded]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, normalized)
	}
	b.folded[folded] = struct{}{}

	owned := make([]byte, len(data))
	copy(owned, data)

	b.files = append(b.files, buildEntry{name: normalized, data: owned, opts: opts})
	return nil
}

// Build writes the archive to path atomically: the full archive goes to a
// temp file in the destination directory, renamed over path on success and
// removed on any error.
func (b *Builder) Build(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "mpq_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := b.BuildWriter(ctx, tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("save archive: %w", err)
	}

	return nil
}

// plannedEntry is one member scheduled for layout: a user input or a
// synthesized special file.
type plannedEntry struct {
	name string
	data []byte
	opts FileOptions
	mask byte
}

// BuildWriter writes the complete archive to w starting at offset zero.
func (b *Builder) BuildWriter(ctx context.Context, w io.WriteSeeker) error {
	if w == nil {
		return ErrNilWriter
	}
	if len(b.files) == 0 {
		return ErrNoFilesToArchive
	}

	headerSize, err := headerSizeForVersion(b.opts.Version)
	if err != nil {
		return err
	}

	entries, err := b.planEntries()
	if err != nil {
		return err
	}

	hashCapacity := b.opts.HashTableSize
	if hashCapacity == 0 {
		hashCapacity = nextPowerOf2(uint32(len(entries)) + uint32(len(entries))/3)
		if hashCapacity < minHashCapacity {
			hashCapacity = minHashCapacity
		}
		if hashCapacity > maxHashCapacity {
			hashCapacity = maxHashCapacity
		}
	}
	if uint32(len(entries)) > hashCapacity {
		return fmt.Errorf("%w: %d entries for %d slots", ErrHashTableFull, len(entries), hashCapacity)
	}

	header := &Header{
		HeaderSize:      headerSize,
		FormatVersion:   uint16(b.opts.Version - 1),
		SectorSizeShift: b.opts.SectorSizeShift,
		HashTableCount:  hashCapacity,
		BlockTableCount: uint32(len(entries)),
	}
	if b.opts.Version == 4 {
		header.RawChunkSize = DefaultRawChunkSize
	}

	sectorSize := header.SectorSize()
	hashTable := newHashTable(hashCapacity)
	blockTable := make([]blockEntry, 0, len(entries))
	nameHashes := make([]uint64, 0, len(entries))

	// Member blobs start right after the header, in insertion order.
	pos := int64(headerSize)
	if _, err := w.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek past header: %w", err)
	}

	for i := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry := &entries[i]

		if b.opts.SectorAlign {
			aligned := (pos + int64(sectorSize) - 1) &^ (int64(sectorSize) - 1)
			if aligned != pos {
				if err := writeZeros(w, aligned-pos); err != nil {
					return err
				}
				pos = aligned
			}
		}

		blob, err := buildFileBlob(entry.name, entry.data, entry.opts, entry.mask, sectorSize, uint64(pos))
		if err != nil {
			return fmt.Errorf("pack %s: %w", entry.name, err)
		}

		if _, err := w.Write(blob.data); err != nil {
			return fmt.Errorf("write %s: %w", entry.name, err)
		}

		blockIndex := uint32(len(blockTable))
		var block blockEntry
		block.setPos64(uint64(pos))
		block.CompressedSize = blob.compressedSize
		block.FileSize = uint32(len(entry.data))
		block.Flags = blob.flags
		blockTable = append(blockTable, block)
		nameHashes = append(nameHashes, hashJenkins(entry.name))

		if err := hashTableInsert(hashTable, entry.name, entry.opts.Locale, blockIndex); err != nil {
			return err
		}

		pos += int64(len(blob.data))
	}

	// Tables follow the last blob: hash, block, hi-block, then HET and BET.
	hashRaw := marshalHashTable(hashTable)
	header.setHashTablePos64(uint64(pos))
	if err := writeChunk(w, hashRaw, &pos); err != nil {
		return err
	}

	blockRaw := marshalBlockTable(blockTable)
	header.setBlockTablePos64(uint64(pos))
	if err := writeChunk(w, blockRaw, &pos); err != nil {
		return err
	}

	var hiRaw []byte
	if b.opts.Version >= 2 {
		hiRaw = marshalHiBlockTable(blockTable)
		header.HiBlockTablePos = uint64(pos)
		if err := writeChunk(w, hiRaw, &pos); err != nil {
			return err
		}
	}

	var hetRaw, betRaw []byte
	if b.opts.Version >= 3 {
		het := newHetTable(uint32(len(entries)))
		for i := range entries {
			if err := het.insert(entries[i].name, uint32(i)); err != nil {
				return err
			}
		}

		hetRaw = het.marshal()
		header.HetTablePos = uint64(pos)
		if err := writeChunk(w, hetRaw, &pos); err != nil {
			return err
		}

		betRaw = buildBetTable(blockTable, nameHashes).marshal()
		header.BetTablePos = uint64(pos)
		if err := writeChunk(w, betRaw, &pos); err != nil {
			return err
		}
	}

	header.ArchiveSize = uint32(pos)
	if b.opts.Version >= 3 {
		header.ArchiveSize64 = uint64(pos)
	}

	if b.opts.Version == 4 {
		header.HashTableSize64 = uint64(len(hashRaw))
		header.BlockTableSize64 = uint64(len(blockRaw))
		header.HiBlockTableSize64 = uint64(len(hiRaw))
		header.HetTableSize64 = uint64(len(hetRaw))
		header.BetTableSize64 = uint64(len(betRaw))
		header.MD5HashTable = md5.Sum(hashRaw)   //nolint:gosec // Header format requires MD5.
		header.MD5BlockTable = md5.Sum(blockRaw) //nolint:gosec // Header format requires MD5.
		header.MD5HiBlockTable = md5.Sum(hiRaw)  //nolint:gosec // Header format requires MD5.
		header.MD5HetTable = md5.Sum(hetRaw)     //nolint:gosec // Header format requires MD5.
		header.MD5BetTable = md5.Sum(betRaw)     //nolint:gosec // Header format requires MD5.
	}

	// The header goes in last, once every offset is final.
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to header: %w", err)
	}
	if _, err := w.Write(header.marshal()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	return nil
}

// planEntries schedules user inputs and synthesized special files.
func (b *Builder) planEntries() ([]plannedEntry, error) {
	entries := make([]plannedEntry, 0, len(b.files)+3)

	names := make([]string, 0, len(b.files)+3)
	for i := range b.files {
		entry := &b.files[i]
		entries = append(entries, plannedEntry{
			name: entry.name,
			data: entry.data,
			opts: entry.opts,
			mask: b.effectiveMask(entry),
		})
		names = append(names, entry.name)
	}

	if b.opts.GenerateListfile {
		names = append(names, listfileName)
	}
	if b.opts.GenerateAttributes {
		names = append(names, attributesName)
	}
	if b.opts.SignaturePlaceholder {
		names = append(names, signatureName)
	}

	for _, name := range names[len(b.files):] {
		if _, exists := b.folded[fmt.Sprintf("%04X|%s", LocaleNeutral, foldName(name))]; exists {
			return nil, fmt.Errorf("%w: %s is generated by the builder", ErrDuplicateName, name)
		}
	}

	if b.opts.GenerateListfile {
		entries = append(entries, plannedEntry{
			name: listfileName,
			data: buildListfile(names),
			opts: FileOptions{SingleUnit: true},
			mask: CompressZlib,
		})
	}

	if b.opts.GenerateAttributes {
		attrs := newAttributesWriter(len(names))
		for i := range entries {
			attrs.setEntry(i, entries[i].data)
		}
		if b.opts.SignaturePlaceholder {
			attrs.setEntry(len(names)-1, signaturePlaceholder())
		}

		entries = append(entries, plannedEntry{
			name: attributesName,
			data: attrs.build(),
			opts: FileOptions{SingleUnit: true},
			mask: CompressZlib,
		})
	}

	if b.opts.SignaturePlaceholder {
		// Stored raw and uncompressed so a signer can patch it in place.
		entries = append(entries, plannedEntry{
			name: signatureName,
			data: signaturePlaceholder(),
			opts: FileOptions{SingleUnit: true},
		})
	}

	return entries, nil
}

// effectiveMask resolves the codec mask of one user input: explicit options
// first, then the path rules and size gate over the default mask.
func (b *Builder) effectiveMask(entry *buildEntry) byte {
	if entry.opts.Store {
		return 0
	}
	if entry.opts.Compression != 0 {
		return entry.opts.Compression
	}

	if uint32(len(entry.data)) < b.opts.MinCompressSize {
		return 0
	}
	if !b.matcher.match(entry.name) {
		return 0
	}

	return b.opts.DefaultCompression
}

// writeChunk writes data and advances the tracked position.
func writeChunk(w io.Writer, data []byte, pos *int64) error {
	if len(data) == 0 {
		return nil
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	*pos += int64(len(data))
	return nil
}

// writeZeros pads the stream with n zero bytes.
func writeZeros(w io.Writer, n int64) error {
	if n <= 0 {
		return nil
	}

	if _, err := w.Write(make([]byte, n)); err != nil {
		return fmt.Errorf("write padding: %w", err)
	}
	return nil
}
