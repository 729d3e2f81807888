// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

/*
Package mpq provides read, extract, build, and verification operations for
MPQ (Mo'PaQ) archives, the container format of a family of legacy games. It
covers all four on-disk revisions: the classic encrypted hash and block
tables, the v2 hi-block table, and the v3+ bit-packed HET/BET tables with
their v4 MD5 digests.

Storage features are implemented in full: the proprietary stream cipher and
filename hashes, per-file sector splitting with CRC32 integrity, single-unit
members, and the stacked compression mask with zlib, bzip2, LZMA, PKWARE
DCL, sparse/RLE, Huffman and ADPCM codecs.

# Reading

Open an archive and list or read members:

	a, err := mpq.Open("war3patch.mpq")
	if err != nil {
	    return err
	}
	defer a.Close()

	data, err := a.ReadFile(`Units\UnitData.slk`)
	if err != nil {
	    return err
	}
	for _, e := range a.Entries() {
	    // e.Name comes from the archive's listfile when present.
	    _ = e
	}

Paths use backslash separators natively; forward slashes are folded, and
lookups are case-insensitive. For large members, OpenFile returns a
sector-at-a-time io.Reader. Extract writes many members to a directory in
parallel.

# Building

Archives are always composed fresh: the builder collects inputs in order,
writes a co-located temp file and renames it into place. Builds are
deterministic: the same inputs and options produce identical bytes.

	b, err := mpq.NewBuilder(mpq.BuildOptions{
	    Version:            2,
	    DefaultCompression: mpq.CompressZlib,
	    GenerateListfile:   true,
	})
	if err != nil {
	    return err
	}
	if err := b.Add(`scripts\common.j`, script); err != nil {
	    return err
	}
	if err := b.Build(ctx, "out.mpq"); err != nil {
	    return err
	}

Per-file options select encryption, sector CRCs, single-unit storage and
codec masks. Compression candidates can additionally be gated by path rules
(BuildOptions.Compress).

# Verification

VerifySignature checks the weak (512-bit RSA/MD5) and strong (2048-bit
RSA/SHA-1) archive signatures against the well-known public keys. Verify
sweeps the archive structures and reports every violation without stopping
at the first.

# Limitations

In-place mutation of existing archives is out of scope; rebuild instead.
Signature generation and patch-archive chaining are not provided.
*/
package mpq
