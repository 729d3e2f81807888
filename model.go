// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	hashEntrySize    = 16      // hash table entry size in bytes
	blockEntrySize   = 16      // block table entry size in bytes
	minHashCapacity  = 4       // smallest legal hash table
	maxHashCapacity  = 1 << 20 // largest legal hash table
	maxNameLen       = 512     // max entry path length
	headerAlign      = 0x200   // header scan stride
	defaultSectorExp = 3       // 512 << 3 = 4 KiB sectors
)

// Default builder tuning values.
const (
	// DefaultMinCompressSize disables compression for entries smaller than this.
	DefaultMinCompressSize = 0x20
	// DefaultRawChunkSize is the v4 raw chunk size recorded in the header.
	DefaultRawChunkSize = 0x4000
)

// Block table entry flags.
const (
	// FlagImplode marks PKWARE-imploded data without a compression mask byte.
	FlagImplode = 0x00000100
	// FlagCompress marks multi-codec compressed data with a leading mask byte.
	FlagCompress = 0x00000200
	// FlagEncrypted marks data encrypted with the file key.
	FlagEncrypted = 0x00010000
	// FlagFixKey adjusts the file key by block position and size.
	FlagFixKey = 0x00020000
	// FlagPatchFile marks an incremental patch file.
	FlagPatchFile = 0x00100000
	// FlagSingleUnit stores the file as one contiguous unit instead of sectors.
	FlagSingleUnit = 0x01000000
	// FlagDeleteMarker marks a deletion marker entry.
	FlagDeleteMarker = 0x02000000
	// FlagSectorCRC stores a CRC32 per sector after the sector offset table.
	FlagSectorCRC = 0x04000000
	// FlagExists marks a live file entry.
	FlagExists = 0x80000000
)

// Hash table block index sentinels.
const (
	blockIndexEmpty   = 0xFFFFFFFF // slot never used, terminates probing
	blockIndexDeleted = 0xFFFFFFFE // slot deleted, probing continues
)

// LocaleNeutral is the default locale tag; lookups with LocaleAny accept any.
const (
	LocaleNeutral uint16 = 0
	LocaleAny     uint16 = 0xFFFF
)

// Compression mask bits. The mask is the first byte of every compressed
// sector or single unit and names the codec stack.
const (
	// CompressHuffman is the MPQ Huffman codec.
	CompressHuffman = 0x01
	// CompressZlib is a zlib deflate stream.
	CompressZlib = 0x02
	// CompressPKWare is the PKWARE DCL implode codec.
	CompressPKWare = 0x08
	// CompressBzip2 is a bzip2 stream.
	CompressBzip2 = 0x10
	// CompressLZMA is a literal sentinel byte, not a bit combination.
	CompressLZMA = 0x12
	// CompressSparse is the sparse/RLE codec.
	CompressSparse = 0x20
	// CompressADPCMMono is lossy mono audio compression.
	CompressADPCMMono = 0x40
	// CompressADPCMStereo is lossy stereo audio compression.
	CompressADPCMStereo = 0x80
)

// FileInfo describes one archive member.
type FileInfo struct {
	// Name is the archive path, from the listfile or a synthesized placeholder.
	Name string `json:"name" yaml:"name"`
	// BlockIndex is the index of the member's block record.
	BlockIndex uint32 `json:"block_index" yaml:"block_index"`
	// Position is the member's byte offset relative to the archive base.
	Position uint64 `json:"position" yaml:"position"`
	// CompressedSize is the stored payload size in bytes, including the
	// sector map when present.
	CompressedSize uint64 `json:"compressed_size" yaml:"compressed_size"`
	// Size is the uncompressed size in bytes.
	Size uint64 `json:"size" yaml:"size"`
	// Flags is the raw block flag word.
	Flags uint32 `json:"flags" yaml:"flags"`
	// Locale is the entry's locale tag.
	Locale uint16 `json:"locale,omitempty" yaml:"locale,omitempty"`
	// Platform is preserved from the hash entry; zero in practice.
	Platform uint16 `json:"platform,omitempty" yaml:"platform,omitempty"`
	// NameGuessed reports whether Name is a synthesized placeholder.
	NameGuessed bool `json:"name_guessed,omitempty" yaml:"name_guessed,omitempty"`
}

// IsCompressed reports whether the member is stored compressed or imploded.
func (f *FileInfo) IsCompressed() bool {
	return f.Flags&(FlagCompress|FlagImplode) != 0
}

// IsEncrypted reports whether the member is stored encrypted.
func (f *FileInfo) IsEncrypted() bool {
	return f.Flags&FlagEncrypted != 0
}

// ReaderOptions configures archive open behavior.
type ReaderOptions struct {
	// UseExtendedTables prefers HET/BET lookups when the archive carries them.
	UseExtendedTables bool `json:"use_extended_tables,omitempty" yaml:"use_extended_tables,omitempty"`
	// StrictDecrypt fails on encrypted payloads whose size is not a multiple of 4.
	StrictDecrypt bool `json:"strict_decrypt,omitempty" yaml:"strict_decrypt,omitempty"`
	// SkipListfile leaves member names unresolved.
	SkipListfile bool `json:"skip_listfile,omitempty" yaml:"skip_listfile,omitempty"`
	// SkipSectorCRC disables per-sector CRC verification on read.
	SkipSectorCRC bool `json:"skip_sector_crc,omitempty" yaml:"skip_sector_crc,omitempty"`
}

// FileOptions configures storage of one build input.
type FileOptions struct {
	// Compression is the codec mask; zero means BuildOptions.DefaultCompression.
	Compression byte `json:"compression,omitempty" yaml:"compression,omitempty"`
	// Store disables compression for this entry regardless of rules.
	Store bool `json:"store,omitempty" yaml:"store,omitempty"`
	// Encrypt stores the entry under its file key.
	Encrypt bool `json:"encrypt,omitempty" yaml:"encrypt,omitempty"`
	// FixKey adjusts the encryption key by block position and size.
	FixKey bool `json:"fix_key,omitempty" yaml:"fix_key,omitempty"`
	// SectorCRC stores a CRC32 per sector.
	SectorCRC bool `json:"sector_crc,omitempty" yaml:"sector_crc,omitempty"`
	// SingleUnit stores the entry as one contiguous unit.
	SingleUnit bool `json:"single_unit,omitempty" yaml:"single_unit,omitempty"`
	// Locale tags the entry's hash slot.
	Locale uint16 `json:"locale,omitempty" yaml:"locale,omitempty"`
}

// BuildOptions configures archive synthesis.
type BuildOptions struct {
	// Version is the target format version 1..4. Zero means 1.
	Version int `json:"version,omitempty" yaml:"version,omitempty"`
	// SectorSizeShift sets sector size to 512 << shift. Zero means 3 (4 KiB).
	SectorSizeShift uint16 `json:"sector_size_shift,omitempty" yaml:"sector_size_shift,omitempty"`
	// HashTableSize forces the exact hash table capacity; it must be a power
	// of two. Zero derives next_pow2(count * 4/3).
	HashTableSize uint32 `json:"hash_table_size,omitempty" yaml:"hash_table_size,omitempty"`
	// DefaultCompression is the codec mask applied to compression candidates.
	// Zero stores files raw.
	DefaultCompression byte `json:"default_compression,omitempty" yaml:"default_compression,omitempty"`
	// Compress defines ordered path rules for compression candidate selection.
	// Empty means every added file is a candidate.
	Compress []pathrules.Rule `json:"compress,omitempty" yaml:"compress,omitempty"`
	// CompressMatcherOptions control compression path rule matching.
	CompressMatcherOptions pathrules.MatcherOptions `json:"compress_matcher_options,omitzero" yaml:"compress_matcher_options,omitzero"`
	// MinCompressSize disables compression for entries smaller than this size.
	MinCompressSize uint32 `json:"min_compress_size,omitempty" yaml:"min_compress_size,omitempty"`
	// GenerateListfile emits the member list as an internal "(listfile)".
	GenerateListfile bool `json:"generate_listfile,omitempty" yaml:"generate_listfile,omitempty"`
	// GenerateAttributes emits CRC32 and MD5 arrays as an internal "(attributes)".
	GenerateAttributes bool `json:"generate_attributes,omitempty" yaml:"generate_attributes,omitempty"`
	// SignaturePlaceholder reserves a zeroed weak "(signature)" member.
	SignaturePlaceholder bool `json:"signature_placeholder,omitempty" yaml:"signature_placeholder,omitempty"`
	// SectorAlign aligns file blobs to the sector size.
	SectorAlign bool `json:"sector_align,omitempty" yaml:"sector_align,omitempty"`
}

// applyDefaults fills zero-valued build options with defaults.
func (opts *BuildOptions) applyDefaults() {
	if opts.Version == 0 {
		opts.Version = 1
	}

	if opts.SectorSizeShift == 0 {
		opts.SectorSizeShift = defaultSectorExp
	}

	if opts.MinCompressSize == 0 {
		opts.MinCompressSize = DefaultMinCompressSize
	}

	if opts.CompressMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.CompressMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.CompressMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.CompressMatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry FileInfo, written int64, outputPath string) `json:"-" yaml:"-"`
	// Entries limits extraction to a selected list; nil means all members.
	Entries []FileInfo `json:"-" yaml:"-"`
	// MaxWorkers is the number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

// SignatureStatus is the outcome of archive signature verification.
type SignatureStatus int

// Signature verification outcomes.
const (
	// SignatureNone means the archive carries no signature.
	SignatureNone SignatureStatus = iota
	// SignatureWeakValid means the weak signature verified.
	SignatureWeakValid
	// SignatureWeakInvalid means the weak signature failed verification.
	SignatureWeakInvalid
	// SignatureStrongValid means the strong signature verified.
	SignatureStrongValid
	// SignatureStrongInvalid means the strong signature failed verification.
	SignatureStrongInvalid
	// SignatureStrongNoKey means a strong signature is present but no public
	// key is available to check it.
	SignatureStrongNoKey
)

// String returns a stable name for the status.
func (s SignatureStatus) String() string {
	switch s {
	case SignatureNone:
		return "none"
	case SignatureWeakValid:
		return "weak-valid"
	case SignatureWeakInvalid:
		return "weak-invalid"
	case SignatureStrongValid:
		return "strong-valid"
	case SignatureStrongInvalid:
		return "strong-invalid"
	case SignatureStrongNoKey:
		return "strong-no-key"
	default:
		return "unknown"
	}
}

// Problem is one structural violation reported by the verification sweep.
type Problem struct {
	// Err is the sentinel classifying the violation.
	Err error `json:"-" yaml:"-"`
	// Detail describes the violation.
	Detail string `json:"detail" yaml:"detail"`
	// BlockIndex is the affected block, or -1 for table-level problems.
	BlockIndex int `json:"block_index" yaml:"block_index"`
}
