// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import "errors"

// Sentinel errors for MPQ operations. Use errors.Is in callers.
var (
	// ErrNotAnArchive means no MPQ header was found in the source.
	ErrNotAnArchive = errors.New("not an MPQ archive")
	// ErrUnknownVersion means the header declares an unsupported size/revision.
	ErrUnknownVersion = errors.New("unknown MPQ format version")
	// ErrCorruptHashTable means the hash table failed a structural check.
	ErrCorruptHashTable = errors.New("corrupt hash table")
	// ErrCorruptBlockTable means the block table failed a structural check.
	ErrCorruptBlockTable = errors.New("corrupt block table")
	// ErrCorruptHiBlockTable means the hi-block table failed a structural check.
	ErrCorruptHiBlockTable = errors.New("corrupt hi-block table")
	// ErrCorruptHetTable means the HET table failed a structural check.
	ErrCorruptHetTable = errors.New("corrupt HET table")
	// ErrCorruptBetTable means the BET table failed a structural check.
	ErrCorruptBetTable = errors.New("corrupt BET table")
	// ErrCorruptSectorTable means sector offsets are non-monotone or out of range.
	ErrCorruptSectorTable = errors.New("corrupt sector offset table")
	// ErrCorruptData means a compression decoder failed or produced a wrong length.
	ErrCorruptData = errors.New("corrupt compressed data")
	// ErrUnsupportedCompression means the compression mask names an unknown codec.
	ErrUnsupportedCompression = errors.New("unsupported compression")
	// ErrCrcMismatch means a sector CRC32 verification failed.
	ErrCrcMismatch = errors.New("sector CRC mismatch")
	// ErrFileNotFound means the lookup completed without a match.
	ErrFileNotFound = errors.New("file not found in archive")
	// ErrInvalidBlockIndex means a hash entry references a nonexistent block.
	ErrInvalidBlockIndex = errors.New("invalid block index")
	// ErrDecryptSize means a strict decrypt received a payload not a multiple of 4.
	ErrDecryptSize = errors.New("decrypt payload size not a multiple of 4")
	// ErrUnknownFileKey means an encrypted file cannot be decrypted without its real name.
	ErrUnknownFileKey = errors.New("encryption key unknown for unnamed file")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrClosed means the archive or resource is already closed.
	ErrClosed = errors.New("archive already closed")
	// ErrNoFilesToArchive means no inputs were provided for build.
	ErrNoFilesToArchive = errors.New("no files to archive")
	// ErrNameTooLong means the entry name exceeds the maximum length.
	ErrNameTooLong = errors.New("entry name exceeds maximum length")
	// ErrDuplicateName means two inputs resolve to the same archive path.
	ErrDuplicateName = errors.New("duplicate entry name")
	// ErrHashTableFull means the hash table has no free slot for an entry.
	ErrHashTableFull = errors.New("hash table full")
	// ErrInvalidCompressPattern means one or more compression rules are invalid.
	ErrInvalidCompressPattern = errors.New("invalid compress rules")
	// ErrInvalidExtractPath means an archive entry path is invalid as an extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrExtractPathOutsideRoot means a resolved extraction path escapes the destination root.
	ErrExtractPathOutsideRoot = errors.New("extract path escapes destination root")
)
